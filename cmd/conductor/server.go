package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/config"
	"github.com/conductor-hq/conductor/internal/git"
	"github.com/conductor-hq/conductor/internal/server"
	"github.com/conductor-hq/conductor/internal/state"
	"github.com/conductor-hq/conductor/internal/supervisor"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the conductor server",
	Long: `Start the orchestrator: the HTTP API, SSE event streams, the
agent supervisor and the auto-dispatch loop.

On startup, stale state from a previous run is reconciled: dead agent
runs are marked failed, their tasks returned to pending, and leftover
worktrees and merged branches cleaned up.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := CheckClaudeCLI(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := state.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	worktrees, err := git.NewWorktreeManager("")
	if err != nil {
		return fmt.Errorf("create worktree manager: %w", err)
	}

	b := bus.New()
	manager := supervisor.NewManagerWithTimeouts(db, b, worktrees, cfg.Server.Port,
		cfg.Timeouts.Stall, cfg.Timeouts.Hard, cfg.Timeouts.WatchdogTick)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, db, b, manager, worktrees).Run(ctx)
}
