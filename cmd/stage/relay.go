package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/relay"
)

func newRelayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the session sync relay",
		Long:  "Serves the websocket relay that mirrors a leader session's events to follower clients.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stagehand.yaml", "path to Stagehand config file")
	return cmd
}

func runRelay(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	return relay.Serve(ctx, cfg.Relay.Port, cmd.OutOrStdout())
}
