package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/sqlagents/internal/agent"
	"github.com/user/sqlagents/internal/api"
	"github.com/user/sqlagents/internal/config"
	"github.com/user/sqlagents/internal/executor"
	"github.com/user/sqlagents/internal/flow"
	"github.com/user/sqlagents/internal/jobs"
	"github.com/user/sqlagents/internal/metrics"
	"github.com/user/sqlagents/internal/pipeline"
	"github.com/user/sqlagents/internal/prompt"
	"github.com/user/sqlagents/internal/schema"
)

const shutdownTimeout = 30 * time.Second

const (
	targetSQLAgent      = "sql-agent"
	targetOptimizeAgent = "optimize-agent"
	targetAPI           = "api"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(
		serveTargetCmd(targetSQLAgent, "Serve the NL to MS SQL agent", targetSQLAgent),
		serveTargetCmd(targetOptimizeAgent, "Serve the query optimization agent", targetOptimizeAgent),
		serveTargetCmd(targetAPI, "Serve the aggregator job API", targetAPI),
		serveTargetCmd("all", "Serve both agents and the aggregator in one process", targetSQLAgent, targetOptimizeAgent, targetAPI),
	)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run agent and aggregator servers",
}

func serveTargetCmd(use, short string, targets ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(targets...)
		},
	}
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "sqlagents.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

// namedServer is an HTTP server plus the name it is logged under.
type namedServer struct {
	name string
	srv  *http.Server
}

func runServe(targets ...string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	logger := slog.Default()

	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	provider, err := newProvider(cfg, m)
	if err != nil {
		return err
	}
	flows := flow.New(provider, cfg.LLM.OptimizeTemperature)

	jr := newJournal(cfg)
	execOpts := func() executor.Options {
		opts := executor.Options{Logger: logger, Metrics: m}
		if jr != nil {
			opts.Recorder = jr
		}
		return opts
	}
	agentOpts := func(agentName string) agent.Options {
		return agent.Options{Logger: logger.With("agent", agentName), Metrics: m, Journal: jr}
	}

	var servers []namedServer

	// Only the generate side needs the schema and the prompt budget.
	var (
		introspector *schema.Introspector
		budget       *prompt.Budget
	)
	if want[targetSQLAgent] || want[targetAPI] {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		introspector = newIntrospector(db, cfg, logger)
		budget = newBudget(cfg, logger)
	}

	if want[targetSQLAgent] {
		port := cfg.Agents.SQLPort
		exec := executor.NewSQLAgent(pipeline.NewGenerator(flows, introspector, budget, logger), execOpts())
		card := agent.SQLAgentCard(agentURL(cfg, port))
		servers = append(servers, namedServer{
			name: targetSQLAgent,
			srv:  &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: agent.NewServer(card, exec, agentOpts(executor.AgentSQL))},
		})
	}

	if want[targetOptimizeAgent] {
		port := cfg.Agents.OptimizePort
		exec := executor.NewOptimizeAgent(flows, execOpts())
		card := agent.OptimizeAgentCard(agentURL(cfg, port))
		servers = append(servers, namedServer{
			name: targetOptimizeAgent,
			srv:  &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: agent.NewServer(card, exec, agentOpts(executor.AgentOptimize))},
		})
	}

	var runner *jobs.Runner
	if want[targetAPI] {
		cache := pipeline.NewSchemaCache(introspector, cfg.Aggregator.SchemaTTL.Std())
		if err := cache.Warm(ctx); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		p := pipeline.New(flows, cache, budget, logger)

		store := jobs.NewMemStore()
		runner = jobs.NewRunner(store, p, int64(cfg.Aggregator.MaxConcurrentJobs), m, logger)
		runner.Start(ctx)
		defer runner.Stop()

		janitor := jobs.NewJanitor(store, cfg.Aggregator.JobRetention.Std(), cfg.Aggregator.SweepSchedule, logger)
		if err := janitor.Start(); err != nil {
			return fmt.Errorf("start job janitor: %w", err)
		}
		defer janitor.Stop()

		servers = append(servers, namedServer{
			name: targetAPI,
			srv:  &http.Server{Addr: fmt.Sprintf(":%d", cfg.Aggregator.Port), Handler: api.NewServer(p, runner, store, m, logger)},
		})
	}

	logger.Info("sqlagents started",
		"targets", targets,
		"data_dir", cfg.DataDir,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"journal", jr != nil,
		"metrics", m != nil,
		"pid_file", pidFile,
	)

	restart, err := serveUntilSignal(ctx, servers, logger)
	if err != nil {
		return err
	}

	if runner != nil && !runner.WaitIdle(shutdownTimeout) {
		logger.Warn("jobs still running at shutdown; they will be marked failed", "active", runner.Active())
	}
	if restart {
		return reexec(cfg, logger)
	}
	return nil
}

// serveUntilSignal runs every server until one fails or SIGINT, SIGTERM or
// SIGHUP arrives, then shuts them all down gracefully. It reports whether
// the signal asked for a restart.
func serveUntilSignal(ctx context.Context, servers []namedServer, logger *slog.Logger) (bool, error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("server listening", "server", s.name, "addr", s.srv.Addr)
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}

	var restart bool
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			restart = sig == syscall.SIGHUP
			logger.Info("shutting down", "signal", sig.String())
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, s := range servers {
			if err := s.srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown", "server", s.name, "error", err)
			}
		}
		return nil
	})

	err := g.Wait()
	return restart, err
}

// reexec replaces the process with a fresh copy of itself.
func reexec(cfg *config.Config, logger *slog.Logger) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	logger.Info("restarting", "executable", execPath)
	os.Remove(pidPath(cfg.DataDir))
	if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec: %w", err)
	}
	return nil
}
