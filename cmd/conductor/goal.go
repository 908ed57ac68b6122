package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-hq/conductor/pkg/models"
)

var (
	goalCreateName     string
	goalCreateRepoPath string
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage goal spaces",
}

var goalCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a goal space",
	Long: `Create a goal space bound to a git repository.

The repository defaults to the current directory. Decompose the goal
into tasks with 'conductor goal decompose'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoalCreate,
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goal spaces",
	RunE:  runGoalList,
}

var goalDecomposeCmd = &cobra.Command{
	Use:   "decompose <goal-id>",
	Short: "Decompose a goal into tasks",
	Long: `Ask an agent to analyze the goal's repository and break the goal
into a dependency graph of tasks. Runs in the background on the server;
watch progress with the web UI or the SSE event stream.`,
	Args: cobra.ExactArgs(1),
	RunE: runGoalDecompose,
}

var goalDispatchCmd = &cobra.Command{
	Use:   "dispatch <goal-id>",
	Short: "Spawn agents for every unblocked task",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoalDispatch,
}

func init() {
	goalCreateCmd.Flags().StringVarP(&goalCreateName, "name", "n", "", "Goal name (defaults to the description)")
	goalCreateCmd.Flags().StringVarP(&goalCreateRepoPath, "repo", "r", "", "Repository path (defaults to the current directory)")

	goalCmd.AddCommand(goalCreateCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalDecomposeCmd)
	goalCmd.AddCommand(goalDispatchCmd)
}

func runGoalCreate(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	repoPath := goalCreateRepoPath
	if repoPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		repoPath = cwd
	}
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return fmt.Errorf("resolve repository path: %w", err)
	}

	name := goalCreateName
	if name == "" {
		name = description
		if len(name) > 60 {
			name = name[:60]
		}
	}

	var goal models.GoalSpace
	err = newAPIClient().post("/api/goals", map[string]any{
		"name":        name,
		"description": description,
		"repo_path":   repoPath,
	}, &goal)
	if err != nil {
		return err
	}

	fmt.Printf("%s Created goal %s\n", color.GreenString("✓"), goal.ID)
	fmt.Printf("  Name: %s\n", goal.Name)
	fmt.Printf("  Repo: %s\n", goal.RepoPath)
	fmt.Printf("\nNext: conductor goal decompose %s\n", goal.ID)
	return nil
}

func runGoalList(cmd *cobra.Command, args []string) error {
	var goals []models.GoalSpace
	if err := newAPIClient().get("/api/goals", &goals); err != nil {
		return err
	}

	if len(goals) == 0 {
		fmt.Println("No goal spaces. Create one with 'conductor goal create <description>'.")
		return nil
	}

	fmt.Printf("%-38s %-10s %-30s %s\n", "ID", "STATUS", "NAME", "REPO")
	fmt.Println(strings.Repeat("-", 100))
	for _, g := range goals {
		name := g.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Printf("%-38s %-10s %-30s %s\n", g.ID, colorGoalStatus(g.Status), name, g.RepoPath)
	}
	return nil
}

func runGoalDecompose(cmd *cobra.Command, args []string) error {
	var resp struct {
		OperationID string `json:"operation_id"`
		Status      string `json:"status"`
	}
	if err := newAPIClient().post("/api/goals/"+args[0]+"/decompose", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%s Decomposition started (operation %s)\n", color.GreenString("✓"), resp.OperationID)
	return nil
}

func runGoalDispatch(cmd *cobra.Command, args []string) error {
	var resp struct {
		OperationID string `json:"operation_id"`
		Status      string `json:"status"`
	}
	if err := newAPIClient().post("/api/goals/"+args[0]+"/dispatch", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%s Dispatch started (operation %s)\n", color.GreenString("✓"), resp.OperationID)
	return nil
}

func colorGoalStatus(s models.GoalStatus) string {
	switch s {
	case models.GoalStatusActive:
		return color.CyanString(string(s))
	case models.GoalStatusCompleted:
		return color.GreenString(string(s))
	case models.GoalStatusArchived:
		return color.HiBlackString(string(s))
	default:
		return string(s)
	}
}
