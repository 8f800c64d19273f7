package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/sqlagents/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("sqlagents Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.Provider = askFor(scanner, "LLM provider (ollama or openai)", cfg.LLM.Provider)
		cfg.LLM.BaseURL = askFor(scanner, "LLM base URL", cfg.LLM.BaseURL)
		if cfg.LLM.Provider == "openai" {
			cfg.LLM.APIKey = askFor(scanner, "LLM API key", cfg.LLM.APIKey)
		}
		cfg.LLM.Model = askFor(scanner, "LLM model name", cfg.LLM.Model)

		cfg.Database.Server = askFor(scanner, "SQL Server host", cfg.Database.Server)
		portStr := askFor(scanner, "SQL Server port", strconv.Itoa(cfg.Database.Port))
		if n, err := strconv.Atoi(portStr); err == nil {
			cfg.Database.Port = n
		}
		cfg.Database.User = askFor(scanner, "SQL Server user", cfg.Database.User)
		cfg.Database.Password = askFor(scanner, "SQL Server password", cfg.Database.Password)
		cfg.Database.Database = askFor(scanner, "Database name", cfg.Database.Database)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// askFor displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func askFor(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
