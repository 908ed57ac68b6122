package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <agent-id>",
	Short: "Terminate a running agent",
	Long: `Kill the agent's subprocess, mark its run killed and remove its
worktree. The task is left failed and can be retried.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func runKill(cmd *cobra.Command, args []string) error {
	if err := newAPIClient().post("/api/agents/"+args[0]+"/kill", nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s Killed agent %s\n", color.RedString("✗"), args[0])
	return nil
}
