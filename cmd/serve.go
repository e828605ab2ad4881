package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/coverage-backend/internal/app"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		store      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Driver = store
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("validate config: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Log.Info("Starting coverage server", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default ./coverage.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&store, "store", "", "report store driver: memory, postgres or sqlite")
	return cmd
}
