package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/pkg/models"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <agent-id>",
	Short: "Show details for one agent run",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	client := newAPIClient()

	var agent models.AgentRun
	if err := client.get("/api/agents/"+args[0], &agent); err != nil {
		return err
	}

	fmt.Println(color.New(color.Bold).Sprintf("Agent %s", agent.ID))
	fmt.Printf("  Status:   %s\n", colorAgentStatus(agent.Status))
	fmt.Printf("  Task:     %s\n", agent.TaskID)
	fmt.Printf("  Goal:     %s\n", agent.GoalSpaceID)
	fmt.Printf("  Model:    %s\n", agent.Model)
	fmt.Printf("  Branch:   %s\n", agent.Branch)
	fmt.Printf("  Worktree: %s\n", agent.WorktreePath)
	fmt.Printf("  Cost:     $%.4f (%d in / %d out tokens)\n",
		agent.CostUSD, agent.InputTokens, agent.OutputTokens)
	if agent.MaxBudgetUSD != nil {
		fmt.Printf("  Budget:   $%.2f\n", *agent.MaxBudgetUSD)
	}
	fmt.Printf("  Started:  %s\n", agent.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Activity: %s\n", humanSince(agent.LastActivityAt))
	if agent.FinishedAt != nil {
		fmt.Printf("  Finished: %s\n", agent.FinishedAt.Format("2006-01-02 15:04:05"))
	}

	var events []models.AgentEvent
	if err := client.get("/api/agents/"+args[0]+"/events", &events); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println(color.New(color.Bold).Sprint("Recent events"))
	start := 0
	if len(events) > 10 {
		start = len(events) - 10
	}
	for _, e := range events[start:] {
		printAgentEvent(e)
	}
	return nil
}

func printAgentEvent(e models.AgentEvent) {
	ts := e.CreatedAt.Format("15:04:05")
	label := e.EventType
	if e.ToolName != "" {
		label = fmt.Sprintf("%s(%s)", e.EventType, e.ToolName)
	}
	fmt.Printf("  %s  %-22s %s\n", color.HiBlackString(ts), label, e.Summary)
}
