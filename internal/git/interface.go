// Package git provides an interface for git operations.
package git

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// SymbolicRefHead returns the short symbolic ref of HEAD (the
	// checked-out branch name).
	SymbolicRefHead() (string, error)
	// DeleteBranchSafe deletes the branch only if it is fully merged.
	DeleteBranchSafe(name string) error
}

// MergeOperations defines the interface for git merge operations.
type MergeOperations interface {
	// MergeNoFFMessage merges the specified branch with --no-ff and a
	// custom commit message.
	MergeNoFFMessage(branch, message string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAdd creates a new worktree at the given path for an
	// existing branch.
	WorktreeAdd(path, branch string) error
	// WorktreeAddNewBranch creates a new worktree with a new branch
	// (git worktree add PATH -b BRANCH).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove force-removes the worktree at the given path.
	WorktreeRemove(path string) error
	// WorktreeListPorcelain returns the raw porcelain output for
	// detailed parsing.
	WorktreeListPorcelain() (string, error)
	// WorktreePruneExpireNow prunes stale worktree entries immediately.
	WorktreePruneExpireNow() error
}

// Runner defines the complete interface for git operations.
// This interface embeds all focused interfaces for full functionality.
// Consumers should prefer using focused interfaces when possible.
type Runner interface {
	BranchOperations
	MergeOperations
	WorktreeOperations
}
