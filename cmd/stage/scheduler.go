package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/db"
	"github.com/zulandar/stagehand/internal/planner"
	"github.com/zulandar/stagehand/internal/scheduler"
)

func newSchedulerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the dispatch scheduler",
		Long:  "Polls for due work items and dispatches them to the execution engine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stagehand.yaml", "path to Stagehand config file")
	return cmd
}

func runScheduler(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}

	pl, err := createPlanner(cfg)
	if err != nil {
		return err
	}

	daemon, err := scheduler.NewDaemon(scheduler.DaemonOpts{
		DB:      gormDB,
		Config:  cfg,
		Planner: pl,
		Out:     cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return daemon.Run(ctx)
}

// createPlanner builds the plan generator from the config.
func createPlanner(cfg *config.Config) (planner.Planner, error) {
	switch cfg.Planner.Mode {
	case "openai":
		opts := []planner.OpenAIOption{planner.WithModel(cfg.Planner.Model)}
		if cfg.Planner.BaseURL != "" {
			opts = append(opts, planner.WithBaseURL(cfg.Planner.BaseURL))
		}
		return planner.NewOpenAI("", opts...)
	default:
		return planner.Heuristic{}, nil
	}
}
