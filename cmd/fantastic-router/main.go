// Package main provides the fantastic-router binary entry point.
// Fantastic-router turns natural-language queries into fully-bound
// navigation routes using a single language-model call per query.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	// Register LLM providers via init()
	_ "github.com/fantastic-router/fantastic-router/llm/providers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fantastic-router/fantastic-router/config"
	"github.com/fantastic-router/fantastic-router/planning"
	"github.com/fantastic-router/fantastic-router/server"
	"github.com/fantastic-router/fantastic-router/site"
	"github.com/fantastic-router/fantastic-router/telemetry"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "fantastic-router"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Natural-language query planner",
		Long: `Fantastic-router plans navigation routes from natural-language queries.

Each query costs exactly one language-model call: the model extracts
intent and entity mentions, the datastore resolves the mentions to real
records, and the route assembler binds the results into a concrete URL.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(planCmd(&configPath, &logLevel))
	cmd.AddCommand(validateCmd(&logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP planning service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(*logLevel)
			cfg, err := loadConfig(*configPath, logger)
			if err != nil {
				return err
			}

			conn, err := connectNATS(cfg.NATS.URL)
			if err != nil {
				// Events are best-effort; the planner works without them.
				logger.Warn("NATS unavailable, planned-action events disabled", "error", err)
			}
			if conn != nil {
				defer conn.Close()
			}

			observers := []planning.Observer{
				telemetry.NewMetrics(prometheus.DefaultRegisterer),
			}
			if conn != nil {
				observers = append(observers, telemetry.NewEventPublisher(conn, cfg.NATS.Subject, logger))
			}

			a, err := buildApp(cmd.Context(), cfg, logger, observers...)
			if err != nil {
				return err
			}
			defer a.close()

			srv := server.New(cfg.Server.Addr, a.planner, a.store,
				server.WithPinger(a.pinger),
				server.WithVersion(Version),
				server.WithLogger(logger))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Shutting down", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func planCmd(configPath, logLevel *string) *cobra.Command {
	var (
		userRole        string
		maxAlternatives int
	)

	cmd := &cobra.Command{
		Use:   "plan <query>",
		Short: "Plan one query and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(*logLevel)
			cfg, err := loadConfig(*configPath, logger)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.planner.Plan(cmd.Context(), &planning.PlanRequest{
				Query:           args[0],
				UserRole:        userRole,
				MaxAlternatives: maxAlternatives,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userRole, "role", "", "Role the query is planned for")
	cmd.Flags().IntVar(&maxAlternatives, "max-alternatives", planning.DefaultMaxAlternatives, "Alternative plans to include (0-10)")
	return cmd
}

func validateCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <site-config>",
		Short: "Validate a site configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(*logLevel)
			cfg, err := site.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("OK: %s (%d patterns, %d entities, version %s)\n",
				cfg.Domain, len(cfg.RoutePatterns), cfg.Entities.Len(), cfg.Version[:12])
			return nil
		},
	}
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader(logger)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if path != "" {
		override, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg.Merge(override)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func setupLogging(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
