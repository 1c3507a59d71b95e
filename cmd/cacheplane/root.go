package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cacheplane/cacheplane/pkg/logging"
	"github.com/cacheplane/cacheplane/pkg/resolver"
	"github.com/cacheplane/cacheplane/pkg/source"
	"github.com/cacheplane/cacheplane/pkg/source/filesource"
	"github.com/cacheplane/cacheplane/pkg/source/override"
	"github.com/cacheplane/cacheplane/pkg/telemetry"
)

const (
	defaultConfigPath = "policies.yaml"
	defaultLogLevel   = "info"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cacheplane",
		Short: "Cache policy resolution control plane",
		Long: `cacheplane resolves per-operation cache policies from layered sources
(declarative metadata, configuration files, runtime overrides) into one
effective policy per operation, with full provenance.

Example:
  cacheplane resolve Svc.Method --config policies.yaml
  cacheplane watch --config policies.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			pretty, _ := cmd.Flags().GetBool("pretty")
			logging.Setup(level, pretty)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to the policy configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Enable pretty console logging")
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export (disabled when empty)")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newOverrideCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// pipeline bundles everything a command needs to run against a resolver.
type pipeline struct {
	resolver  *resolver.Resolver
	overrides *override.Store
	file      *filesource.Source
	metrics   *resolver.Metrics
	logger    *slog.Logger

	shutdownTelemetry func(context.Context) error
}

// newPipeline wires the file source and the runtime override store into a
// resolver at their conventional priorities.
func newPipeline(cmd *cobra.Command) (*pipeline, error) {
	configPath, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseSlogLevel(level),
	}))

	shutdown, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName: "cacheplane",
		Endpoint:    otlpEndpoint,
		Insecure:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}

	file, err := filesource.New(configPath, filesource.WithLogger(logger))
	if err != nil {
		_ = shutdown(cmd.Context())
		return nil, fmt.Errorf("open policy file: %w", err)
	}

	overrides := override.New("runtime", override.WithLogger(logger))
	metrics := resolver.NewMetrics()

	r, err := resolver.New(
		[]resolver.Registration{
			{Source: file, Priority: source.PriorityFile},
			{Source: overrides, Priority: source.PriorityOverride},
		},
		resolver.WithLogger(logger),
		resolver.WithMetrics(metrics),
	)
	if err != nil {
		_ = file.Close()
		_ = shutdown(cmd.Context())
		return nil, err
	}

	return &pipeline{
		resolver:          r,
		overrides:         overrides,
		file:              file,
		metrics:           metrics,
		logger:            logger,
		shutdownTelemetry: shutdown,
	}, nil
}

func (p *pipeline) close(ctx context.Context) {
	if err := p.resolver.Close(ctx); err != nil {
		p.logger.Error("resolver shutdown", "error", err)
	}
	if err := p.file.Close(); err != nil {
		p.logger.Error("file source shutdown", "error", err)
	}
	if err := p.shutdownTelemetry(ctx); err != nil {
		p.logger.Error("telemetry shutdown", "error", err)
	}
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
