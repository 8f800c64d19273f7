package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/sqlagents/internal/schema"
	"github.com/user/sqlagents/internal/schema/fixtures"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaTablesCmd, schemaDescribeCmd, schemaDumpCmd, schemaSeedCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the configured database",
}

// withIntrospector opens the database for one command and closes it after.
func withIntrospector(cmd *cobra.Command, fn func(*schema.Introspector) (string, error)) error {
	cfg := loadConfig()
	setupLogging(cfg)

	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out, err := fn(newIntrospector(db, cfg, slog.Default()))
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, out)
	return nil
}

var schemaTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List base tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIntrospector(cmd, func(in *schema.Introspector) (string, error) {
			return in.ListTables(cmd.Context())
		})
	},
}

var schemaDescribeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show a table's columns and sample rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIntrospector(cmd, func(in *schema.Introspector) (string, error) {
			return in.DescribeTable(cmd.Context(), args[0])
		})
	},
}

var schemaDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the schema document given to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIntrospector(cmd, func(in *schema.Introspector) (string, error) {
			return in.Document(cmd.Context())
		})
	},
}

var schemaSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo Sales and Customers tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		db, err := openDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		return seed(db, dialect(cfg).Name())
	},
}

func seed(db *sql.DB, dialectName string) error {
	if err := fixtures.Apply(db, dialectName); err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	version, err := fixtures.Version(db, dialectName)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Database seeded (fixture version %d).\n", version)
	return nil
}
