package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stagehand/internal/artifact"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/db"
	"github.com/zulandar/stagehand/internal/engine"
)

func newEngineCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Run the execution engine",
		Long:  "Hosts browser sessions behind the /launch API and drives them through their plans.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stagehand.yaml", "path to Stagehand config file")
	return cmd
}

func runEngine(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}

	artifacts, err := artifact.New(cfg.Artifacts)
	if err != nil {
		return err
	}

	svc, err := engine.NewService(gormDB, cfg.Engine, nil, artifacts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return svc.Serve(ctx, cmd.OutOrStdout())
}
