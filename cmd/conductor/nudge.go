package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var nudgeCmd = &cobra.Command{
	Use:   "nudge <agent-id> <message>",
	Short: "Send a message to a running agent",
	Long: `Inject a user message into a running agent's session, steering it
without killing it. The agent picks the message up on its next turn.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runNudge,
}

func runNudge(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	message := strings.Join(args[1:], " ")

	err := newAPIClient().post("/api/agents/"+agentID+"/nudge",
		map[string]string{"message": message}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s Nudged agent %s\n", color.GreenString("✓"), agentID)
	return nil
}
