package state

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conductor-hq/conductor/pkg/models"
)

// CleanupReport summarizes what a stale-state sweep changed.
type CleanupReport struct {
	RunsMarkedFailed    int
	BranchesDeleted     int
	WorktreeDirsRemoved int
	// UnmergedBranches are agent branches whose runs are finished but
	// whose commits never reached mainline; they are left alone.
	UnmergedBranches []string
}

// Empty returns true if the sweep changed nothing.
func (r *CleanupReport) Empty() bool {
	return r.RunsMarkedFailed == 0 && r.BranchesDeleted == 0 &&
		r.WorktreeDirsRemoved == 0 && len(r.UnmergedBranches) == 0
}

func (r *CleanupReport) String() string {
	s := fmt.Sprintf("Cleanup: %d runs marked failed, %d branches deleted, %d worktree dirs removed",
		r.RunsMarkedFailed, r.BranchesDeleted, r.WorktreeDirsRemoved)
	if len(r.UnmergedBranches) > 0 {
		s += fmt.Sprintf("\nUnmerged branches (need manual review): %s", strings.Join(r.UnmergedBranches, ", "))
	}
	return s
}

// CleanupStale reconciles persisted state with reality after a crash
// or restart. Runs recorded as live but not in liveRunIDs are marked
// failed and their tasks returned to pending; leftover agent branches
// are pruned from every involved repository; and worktree directories
// without a live owner are deleted.
func (db *DB) CleanupStale(liveRunIDs []string) (*CleanupReport, error) {
	report := &CleanupReport{}

	live := make(map[string]bool, len(liveRunIDs))
	for _, id := range liveRunIDs {
		live[id] = true
	}

	// Dead runs: recorded as in-flight, but no supervisor session owns them.
	runs, err := db.ListActiveAgentRuns()
	if err != nil {
		return nil, err
	}
	liveBranches := make(map[string]bool)
	repos := make(map[string]bool)
	for _, run := range runs {
		goal, err := db.GetGoalSpace(run.GoalSpaceID)
		if err != nil {
			return nil, err
		}
		if goal != nil {
			repos[goal.RepoPath] = true
		}

		if live[run.ID] {
			liveBranches[run.Branch] = true
			continue
		}

		if err := db.UpdateAgentRunStatus(run.ID, models.AgentStatusFailed); err != nil {
			return nil, err
		}
		report.RunsMarkedFailed++

		task, err := db.GetTask(run.TaskID)
		if err != nil {
			return nil, err
		}
		if task != nil && task.Status != models.TaskStatusPending && !task.Status.Terminal() {
			if err := resetTaskToPending(db, task); err != nil {
				log.Printf("cleanup: reset task %s: %v", task.ID, err)
			}
		}
	}

	// Every repo any goal space points at may hold leftover branches.
	goals, err := db.ListGoalSpaces()
	if err != nil {
		return nil, err
	}
	for _, g := range goals {
		if g.RepoPath != "" {
			repos[g.RepoPath] = true
		}
	}

	for repo := range repos {
		deleted, unmerged := cleanupRepoBranches(db, repo, liveBranches)
		report.BranchesDeleted += deleted
		report.UnmergedBranches = append(report.UnmergedBranches, unmerged...)
	}

	// Worktree directories not owned by a live run.
	removed, err := cleanupWorktreeDirs(live)
	if err != nil {
		return nil, err
	}
	report.WorktreeDirsRemoved = removed

	return report, nil
}

// resetTaskToPending walks the task back to pending through whatever
// intermediate transition the status machine requires.
func resetTaskToPending(db *DB, task *models.Task) error {
	switch task.Status {
	case models.TaskStatusRunning, models.TaskStatusStalled:
		if err := db.UpdateTaskStatus(task.ID, models.TaskStatusFailed); err != nil {
			return err
		}
		return db.UpdateTaskStatus(task.ID, models.TaskStatusPending)
	default:
		return db.UpdateTaskStatus(task.ID, models.TaskStatusPending)
	}
}

// cleanupRepoBranches prunes worktree refs and safe-deletes merged
// conductor branches in one repository. Unmerged branches belonging to
// finished runs are reported, not deleted.
func cleanupRepoBranches(db *DB, repoPath string, liveBranches map[string]bool) (int, []string) {
	runGit(repoPath, "worktree", "prune", "--expire", "now")

	out, err := exec.Command("git", "-C", repoPath, "branch", "--list", "conductor/*", "--format", "%(refname:short)").Output()
	if err != nil {
		log.Printf("cleanup: list branches in %s: %v", repoPath, err)
		return 0, nil
	}

	deleted := 0
	var unmerged []string
	for _, branch := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		branch = strings.TrimSpace(branch)
		if branch == "" || liveBranches[branch] {
			continue
		}

		// Safe delete only; -d refuses branches with unmerged commits.
		if err := runGit(repoPath, "branch", "-d", branch); err != nil {
			if branchOwnedByFinishedRun(db, branch) {
				unmerged = append(unmerged, branch)
			}
			continue
		}
		deleted++
	}
	return deleted, unmerged
}

func branchOwnedByFinishedRun(db *DB, branch string) bool {
	row := db.QueryRow(`
		SELECT COUNT(*) FROM agent_runs
		WHERE branch = ? AND status IN ('done', 'failed', 'killed')
	`, branch)
	var count int
	if err := row.Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// cleanupWorktreeDirs removes worktree directories whose name is not a
// live run ID.
func cleanupWorktreeDirs(live map[string]bool) (int, error) {
	entries, err := os.ReadDir(WorktreeBasePath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read worktree base directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		path := filepath.Join(WorktreeBasePath(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("cleanup: remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func runGit(repoPath string, args ...string) error {
	cmd := exec.Command("git", append([]string{"-C", repoPath}, args...)...)
	return cmd.Run()
}

// WorktreeBasePath returns the base path for agent worktrees.
func WorktreeBasePath() string {
	return filepath.Join(os.TempDir(), "conductor", "worktrees")
}

// AgentWorktreePath returns the worktree path for an agent run.
func AgentWorktreePath(runID string) string {
	return filepath.Join(WorktreeBasePath(), runID)
}
