package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet status",
	Long:  `Show aggregate stats and every agent run known to the server.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newAPIClient()

	var stats models.Stats
	if err := client.get("/api/stats", &stats); err != nil {
		return err
	}

	var agents []models.AgentRun
	if err := client.get("/api/agents", &agents); err != nil {
		return err
	}

	fmt.Println(color.New(color.Bold).Sprint("Conductor"))
	fmt.Printf("  Active agents:   %d\n", stats.ActiveAgents)
	fmt.Printf("  Goals active:    %d\n", stats.GoalsActive)
	fmt.Printf("  Tasks completed: %d/%d\n", stats.TasksCompleted, stats.TasksTotal)
	fmt.Printf("  Total cost:      $%.2f\n", stats.TotalCostUSD)
	fmt.Println()

	if len(agents) == 0 {
		fmt.Println("No agent runs.")
		return nil
	}

	fmt.Printf("%-38s %-10s %-10s %-8s %s\n", "AGENT", "STATUS", "MODEL", "COST", "STARTED")
	fmt.Println(strings.Repeat("-", 90))
	for _, a := range agents {
		fmt.Printf("%-38s %-10s %-10s $%-7.2f %s\n",
			a.ID, colorAgentStatus(a.Status), a.Model, a.CostUSD, humanSince(a.StartedAt))
	}
	return nil
}

func colorAgentStatus(s models.AgentStatus) string {
	switch s {
	case models.AgentStatusRunning:
		return color.CyanString(string(s))
	case models.AgentStatusDone:
		return color.GreenString(string(s))
	case models.AgentStatusFailed, models.AgentStatusKilled:
		return color.RedString(string(s))
	case models.AgentStatusStalled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// humanSince renders a start time as a coarse age, "2m ago" style.
func humanSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
