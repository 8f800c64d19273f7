package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/user/sqlagents/internal/config"
	"github.com/user/sqlagents/internal/journal"
	"github.com/user/sqlagents/internal/metrics"
	"github.com/user/sqlagents/internal/prompt"
	"github.com/user/sqlagents/internal/schema"
	"github.com/user/sqlagents/pkg/llm"
	"github.com/user/sqlagents/pkg/llm/ollama"
	"github.com/user/sqlagents/pkg/llm/openai"
)

// newProvider builds the configured model backend. A non-nil m wraps it with
// request metrics.
func newProvider(cfg *config.Config, m *metrics.Metrics) (llm.Provider, error) {
	llmCfg := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "", "ollama":
		if llmCfg.BaseURL == "" {
			llmCfg.BaseURL = ollama.DefaultBaseURL
		}
		provider = ollama.New(llmCfg, cfg.LLM.Timeout.Std())
	case "openai":
		provider = openai.New(llmCfg, cfg.LLM.Timeout.Std())
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want ollama or openai)", cfg.LLM.Provider)
	}
	return m.InstrumentProvider(provider), nil
}

func connConfig(cfg *config.Config) schema.ConnConfig {
	return schema.ConnConfig{
		Server:                 cfg.Database.Server,
		Port:                   cfg.Database.Port,
		User:                   cfg.Database.User,
		Password:               cfg.Database.Password,
		Database:               cfg.Database.Database,
		Encrypt:                cfg.Database.Encrypt,
		TrustServerCertificate: cfg.Database.TrustServerCertificate,
		MaxOpenConns:           cfg.Database.MaxOpenConns,
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := schema.OpenMSSQL(ctx, connConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func dialect(cfg *config.Config) schema.MSSQL {
	return schema.MSSQL{Schema: cfg.Database.Schema}
}

func newIntrospector(db *sql.DB, cfg *config.Config, logger *slog.Logger) *schema.Introspector {
	return schema.NewIntrospector(db, dialect(cfg), cfg.Database.SampleRows, logger)
}

// newBudget returns nil (no truncation) when the budget is off or the
// tokenizer cannot be loaded.
func newBudget(cfg *config.Config, logger *slog.Logger) *prompt.Budget {
	return prompt.NewBudget(cfg.LLM.Model, cfg.LLM.PromptBudget, logger)
}

// newJournal returns nil when the journal is disabled.
func newJournal(cfg *config.Config) *journal.Journal {
	if !cfg.Journal.Enabled {
		return nil
	}
	return journal.New(filepath.Join(cfg.DataDir, "journal"))
}

func agentURL(cfg *config.Config, port int) string {
	return fmt.Sprintf("http://%s:%d/", cfg.Agents.Host, port)
}
