package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geomind-labs/geomind/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geomind",
	Short: "Image geolocation reasoning pipeline",
	Long:  "Infers where a photograph was taken: extracts visual clues, proposes region hypotheses, resolves them to coordinates, and verifies the result against independent evidence.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
