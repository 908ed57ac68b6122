package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/internal/config"
	"github.com/conductor-hq/conductor/internal/state"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Reconcile stale state from a crashed server",
	Long: `Sweep the database and filesystem for leftovers of a previous run:
agent runs recorded as live are marked failed and their tasks returned
to pending, merged conductor branches are deleted, and orphaned
worktree directories are removed.

Only run this while the server is stopped; a running server does the
same sweep on startup.`,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := state.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// No server is running, so no run is live.
	report, err := db.CleanupStale(nil)
	if err != nil {
		return fmt.Errorf("cleanup stale state: %w", err)
	}

	if report.Empty() {
		fmt.Println("Nothing to clean up.")
		return nil
	}
	fmt.Printf("%s %s\n", color.GreenString("✓"), report)
	return nil
}
