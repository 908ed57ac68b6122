package git

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Worktree represents a git worktree owned by one agent run.
type Worktree struct {
	Path       string    // Absolute path to the worktree directory
	BranchName string    // Name of the branch checked out in this worktree
	AgentRunID string    // ID of the agent run that owns this worktree
	CreatedAt  time.Time // When the worktree was created
}

// WorktreeProvider defines the interface for worktree management.
// This interface allows mocking worktree operations in tests.
type WorktreeProvider interface {
	// CreateWorktree creates a fresh worktree on a new branch for the
	// given agent run.
	CreateWorktree(repoPath, agentRunID, branch string) (*Worktree, error)
	// RemoveWorktree removes a worktree at the given path. Idempotent.
	RemoveWorktree(repoPath, worktreePath string) error
	// MergeBranchToMainline merges the branch into the repository's
	// current HEAD with a merge commit.
	MergeBranchToMainline(repoPath, branch string) error
	// DeleteBranch safe-deletes the branch. Refuses if unmerged.
	DeleteBranch(repoPath, branch string) error
	// ListWorktrees returns the worktrees under the managed base directory.
	ListWorktrees(repoPath string) ([]*Worktree, error)
	// BaseDir returns the base directory where worktrees are created.
	BaseDir() string
}

// Verify WorktreeManager implements WorktreeProvider at compile time.
var _ WorktreeProvider = (*WorktreeManager)(nil)

// WorktreeManager handles git worktree operations for agent isolation.
// Worktrees for all repositories live under a single base directory,
// one subdirectory per agent run.
type WorktreeManager struct {
	baseDir   string
	mu        sync.Mutex
	newRunner func(repoPath string) Runner
}

// NewWorktreeManager creates a WorktreeManager rooted at baseDir.
// An empty baseDir defaults to /tmp/conductor/worktrees.
func NewWorktreeManager(baseDir string) (*WorktreeManager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "conductor", "worktrees")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}
	return &WorktreeManager{
		baseDir:   baseDir,
		newRunner: func(repoPath string) Runner { return NewRunner(repoPath) },
	}, nil
}

// NewWorktreeManagerWithRunner creates a WorktreeManager that uses the
// given runner factory (for testing).
func NewWorktreeManagerWithRunner(baseDir string, factory func(repoPath string) Runner) (*WorktreeManager, error) {
	m, err := NewWorktreeManager(baseDir)
	if err != nil {
		return nil, err
	}
	m.newRunner = factory
	return m, nil
}

// CreateWorktree creates a fresh worktree on a new branch at
// BASE/<agentRunID>. A stale directory at that path is removed first.
// If the branch already exists the add is retried without -b.
func (m *WorktreeManager) CreateWorktree(repoPath, agentRunID, branch string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.baseDir, agentRunID)
	if _, err := os.Stat(path); err == nil {
		_ = os.RemoveAll(path)
	}

	g := m.newRunner(repoPath)
	if err := g.WorktreeAddNewBranch(path, branch); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("create worktree: %w", err)
		}
		// Branch left over from an earlier run; check it out instead.
		if err := g.WorktreeAdd(path, branch); err != nil {
			return nil, fmt.Errorf("create worktree: %w", err)
		}
	}

	return &Worktree{
		Path:       path,
		BranchName: branch,
		AgentRunID: agentRunID,
		CreatedAt:  time.Now(),
	}, nil
}

// RemoveWorktree removes the worktree at the given path. On git failure
// the directory is deleted directly. Stale worktree metadata is pruned
// afterwards. Safe to call on an already-removed worktree.
func (m *WorktreeManager) RemoveWorktree(repoPath, worktreePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(repoPath)
	if err := g.WorktreeRemove(worktreePath); err != nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("remove worktree directory: %w", err)
		}
	}
	_ = g.WorktreePruneExpireNow()
	return nil
}

// MergeBranchToMainline merges the branch into the current HEAD of the
// repository with a merge commit. On failure the merge is aborted so
// the repository stays clean.
func (m *WorktreeManager) MergeBranchToMainline(repoPath, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.newRunner(repoPath)
	if _, err := g.SymbolicRefHead(); err != nil {
		return fmt.Errorf("resolve mainline: %w", err)
	}

	if err := g.MergeNoFFMessage(branch, fmt.Sprintf("Merge %s", branch)); err != nil {
		_ = g.MergeAbort()
		return fmt.Errorf("Merge conflict for branch %s: %v", branch, err)
	}
	return nil
}

// DeleteBranch safe-deletes the branch, refusing if it is unmerged.
func (m *WorktreeManager) DeleteBranch(repoPath, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.newRunner(repoPath).DeleteBranchSafe(branch)
}

// ListWorktrees returns the repository's worktrees whose paths are
// under the managed base directory.
func (m *WorktreeManager) ListWorktrees(repoPath string) ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.newRunner(repoPath).WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	all, err := parseWorktreeList(output)
	if err != nil {
		return nil, err
	}

	var managed []*Worktree
	for _, wt := range all {
		if !strings.HasPrefix(wt.Path, m.baseDir+string(filepath.Separator)) {
			continue
		}
		wt.AgentRunID = filepath.Base(wt.Path)
		managed = append(managed, wt)
	}
	return managed, nil
}

// BaseDir returns the base directory where worktrees are created.
func (m *WorktreeManager) BaseDir() string {
	return m.baseDir
}

// parseWorktreeList parses the output of 'git worktree list --porcelain'.
func parseWorktreeList(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}

		if strings.HasPrefix(line, "worktree ") {
			current = &Worktree{
				Path: strings.TrimPrefix(line, "worktree "),
			}
		} else if strings.HasPrefix(line, "branch ") && current != nil {
			// Format: branch refs/heads/<name>
			branchRef := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(branchRef, "refs/heads/")
		}
	}

	if current != nil {
		worktrees = append(worktrees, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}
	return worktrees, nil
}
