package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [method-id]",
		Short: "Stream recomputed cache policies as sources change",
		Long: `Subscribes to the resolver and prints every recomputed policy until
interrupted. With a method id, only that operation's recomputations are
printed; without one, all of them are.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			methodID := ""
			if len(args) == 1 {
				methodID = args[0]
			}
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			p, err := newPipeline(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownCtx := context.Background()
			defer func() {
				ctx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
				defer cancel()
				p.close(ctx)
			}()

			if metricsAddr != "" {
				server := &http.Server{
					Addr:              metricsAddr,
					Handler:           p.metrics.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error().Err(err).Msg("metrics server failed")
					}
				}()
				defer func() { _ = server.Close() }()
				log.Info().Str("addr", metricsAddr).Msg("metrics server listening")
			}

			updates, err := p.resolver.Watch(ctx, methodID)
			if err != nil {
				return err
			}

			log.Info().Str("method", methodID).Msg("watching for policy recomputations")
			for result := range updates {
				if err := printResult(result); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while watching (disabled when empty)")
	return cmd
}
