package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/evosim/internal/logging"
	"github.com/nvandessel/evosim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve evosim tools over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout so agents can run
simulations, inspect recorded runs and ask for phase recommendations.

Tools: evosim_run, evosim_runs, evosim_phase
Resource: evosim://runs/latest

Logs are written to stderr as JSON; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			logger := logging.NewJSONLogger(settings.Logging.Level, cmd.ErrOrStderr())
			server, err := mcp.NewServer(&mcp.Config{
				Name:     "evosim",
				Version:  version,
				Root:     root,
				Settings: settings,
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("mcp server starting", "version", version)
			if err := server.Run(cmd.Context()); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}

	return cmd
}
