package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/origin-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "origin-cli",
	Short: "FTA origin determination for footwear costing sheets",
	Long:  "Loads bill-of-materials costing sheets, runs the seven-step EU-Vietnam FTA origin workflow, and exports auditable results.",
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
