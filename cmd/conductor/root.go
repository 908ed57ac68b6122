package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// serverURL is where CLI subcommands reach a running conductor server.
var serverURL string

// CheckClaudeCLI verifies that the 'claude' CLI is available in PATH.
// Returns an error with installation instructions if not found.
func CheckClaudeCLI() error {
	_, err := exec.LookPath("claude")
	if err != nil {
		return fmt.Errorf("claude CLI not found in PATH\n\n" +
			"Conductor requires the Claude Code CLI to run agents.\n\n" +
			"Install it with:\n" +
			"  npm install -g @anthropic-ai/claude-code\n\n" +
			"For more information, visit:\n" +
			"  https://docs.anthropic.com/en/docs/claude-code")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Fleet orchestrator for coding agents",
	Long: `Conductor runs a fleet of coding agents against your repositories.

Goals are decomposed into a dependency graph of tasks; each task is
worked on by an agent in an isolated git worktree, and finished
branches are merged back to mainline automatically.

Core capabilities:
- Decomposes goals into parallelizable tasks
- Spawns isolated agents in git worktrees
- Enforces budget, stall and hard-timeout limits per agent
- Merges completed branches and dispatches newly unblocked work
- Streams live agent events over SSE`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("CONDUCTOR_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:3001"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Base URL of the conductor server")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(nudgeCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
