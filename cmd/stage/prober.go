package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/db"
	"github.com/zulandar/stagehand/internal/scorer"
)

func newProberCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prober",
		Short: "Run the proxy health prober",
		Long:  "Periodically probes registered proxies and records their status and health score.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProber(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stagehand.yaml", "path to Stagehand config file")
	return cmd
}

func runProber(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	return scorer.RunDaemon(ctx, gormDB, cfg.Prober, cmd.OutOrStdout())
}
