package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP geolocation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		predCache, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		if predCache != nil {
			defer predCache.Close()
		}

		orch := buildOrchestrator(cfg)
		srv := server.New(orch, predCache, cfg.Server.Port)

		err = srv.Start(ctx)
		zap.L().Info("server stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
