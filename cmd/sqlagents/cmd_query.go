package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/sqlagents/internal/config"
	"github.com/user/sqlagents/internal/flow"
	"github.com/user/sqlagents/internal/pipeline"
	"github.com/user/sqlagents/internal/prompt"
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryGenerateCmd, queryOptimizeCmd, queryPipelineCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run the model flows once, without a server",
}

var queryGenerateCmd = &cobra.Command{
	Use:   "generate <request>",
	Short: "Turn a natural-language request into MS SQL using the live schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSchema(cmd, func(flows *flow.Flows, source pipeline.SchemaSource, budget *prompt.Budget) (string, error) {
			return pipeline.NewGenerator(flows, source, budget, slog.Default()).Generate(cmd.Context(), strings.Join(args, " "))
		})
	},
}

var queryOptimizeCmd = &cobra.Command{
	Use:   "optimize <sql>",
	Short: "Optimize an MS SQL query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		flows, err := localFlows(cfg)
		if err != nil {
			return err
		}
		optimized, err := flows.OptimizeQuery(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, optimized)
		return nil
	},
}

var queryPipelineCmd = &cobra.Command{
	Use:   "pipeline <request>",
	Short: "Generate a query from a request and optimize it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSchema(cmd, func(flows *flow.Flows, source pipeline.SchemaSource, budget *prompt.Budget) (string, error) {
			return pipeline.New(flows, source, budget, slog.Default()).Run(cmd.Context(), strings.Join(args, " "))
		})
	},
}

// withSchema sets up the flows, the live schema and the prompt budget for one
// command and prints what fn returns.
func withSchema(cmd *cobra.Command, fn func(*flow.Flows, pipeline.SchemaSource, *prompt.Budget) (string, error)) error {
	cfg := loadConfig()
	setupLogging(cfg)

	flows, err := localFlows(cfg)
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	out, err := fn(flows, newIntrospector(db, cfg, slog.Default()), newBudget(cfg, slog.Default()))
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, out)
	return nil
}

func localFlows(cfg *config.Config) (*flow.Flows, error) {
	provider, err := newProvider(cfg, nil)
	if err != nil {
		return nil, err
	}
	return flow.New(provider, cfg.LLM.OptimizeTemperature), nil
}
