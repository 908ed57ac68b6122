package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/pkg/models"
)

var logsLimit int

var logsCmd = &cobra.Command{
	Use:   "logs <agent-id>",
	Short: "Show an agent's event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "Only show the last N events")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := "/api/agents/" + args[0] + "/events"
	if logsLimit > 0 {
		path += "?limit=" + strconv.Itoa(logsLimit)
	}

	var events []models.AgentEvent
	if err := newAPIClient().get(path, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events.")
		return nil
	}
	for _, e := range events {
		printAgentEvent(e)
	}
	return nil
}
