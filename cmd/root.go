package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lefei1980/travel-book-generator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "travelbook",
	Short: "Travel book generation pipeline",
	Long:  "Resolves itinerary places to coordinates, computes daily driving routes, enriches places with encyclopedia content, and renders a travel book.",
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
