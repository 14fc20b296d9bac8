package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/creditchat-backend/internal/app"
)

const shutdownGrace = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and SSE server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, log, cfg)
			if err != nil {
				log.Error("Failed to initialize app", "error", err)
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Shutdown(context.Background())
				return err
			}

			runErr := make(chan error, 1)
			go func() { runErr <- a.Run() }()

			select {
			case err = <-runErr:
			case <-ctx.Done():
				log.Info("Shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if sErr := a.Shutdown(shutdownCtx); sErr != nil {
				log.Error("Shutdown incomplete", "error", sErr)
				err = errors.Join(err, sErr)
			}
			return err
		},
	}
	cmd.Flags().String("port", "", "listen port (overrides PORT)")
	bindFlag(v, cmd, "PORT", "port")
	return cmd
}
