package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner records git calls and returns scripted results.
type fakeRunner struct {
	calls []string

	addNewBranchErr error
	addErr          error
	removeErr       error
	mergeErr        error
	symbolicRef     string
	symbolicRefErr  error
	deleteSafeErr   error
	porcelain       string
}

func (f *fakeRunner) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRunner) SymbolicRefHead() (string, error) {
	f.record("symbolic-ref")
	if f.symbolicRefErr != nil {
		return "", f.symbolicRefErr
	}
	if f.symbolicRef == "" {
		return "main", nil
	}
	return f.symbolicRef, nil
}

func (f *fakeRunner) DeleteBranchSafe(name string) error {
	f.record("branch -d %s", name)
	return f.deleteSafeErr
}

func (f *fakeRunner) MergeNoFFMessage(branch, message string) error {
	f.record("merge --no-ff -m %q %s", message, branch)
	return f.mergeErr
}

func (f *fakeRunner) MergeAbort() error {
	f.record("merge --abort")
	return nil
}

func (f *fakeRunner) WorktreeAdd(path, branch string) error {
	f.record("worktree add %s %s", path, branch)
	return f.addErr
}

func (f *fakeRunner) WorktreeAddNewBranch(path, branch string) error {
	f.record("worktree add %s -b %s", path, branch)
	return f.addNewBranchErr
}

func (f *fakeRunner) WorktreeRemove(path string) error {
	f.record("worktree remove %s", path)
	return f.removeErr
}

func (f *fakeRunner) WorktreeListPorcelain() (string, error) {
	return f.porcelain, nil
}

func (f *fakeRunner) WorktreePruneExpireNow() error {
	f.record("worktree prune")
	return nil
}

var _ Runner = (*fakeRunner)(nil)

func newTestManager(t *testing.T, fake *fakeRunner) *WorktreeManager {
	t.Helper()
	m, err := NewWorktreeManagerWithRunner(t.TempDir(), func(string) Runner { return fake })
	if err != nil {
		t.Fatalf("NewWorktreeManagerWithRunner failed: %v", err)
	}
	return m
}

func TestCreateWorktree(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	wt, err := m.CreateWorktree("/repo", "run-1", "conductor/run-1/do-it")
	if err != nil {
		t.Fatalf("CreateWorktree failed: %v", err)
	}

	wantPath := filepath.Join(m.BaseDir(), "run-1")
	if wt.Path != wantPath {
		t.Errorf("Path = %q, want %q", wt.Path, wantPath)
	}
	if wt.BranchName != "conductor/run-1/do-it" {
		t.Errorf("BranchName = %q", wt.BranchName)
	}
	if wt.AgentRunID != "run-1" {
		t.Errorf("AgentRunID = %q", wt.AgentRunID)
	}
	if len(fake.calls) != 1 || !strings.Contains(fake.calls[0], "-b") {
		t.Errorf("expected single worktree add -b call, got %v", fake.calls)
	}
}

func TestCreateWorktree_RetriesWhenBranchExists(t *testing.T) {
	fake := &fakeRunner{
		addNewBranchErr: errors.New("git worktree add: exit status 128: fatal: a branch named 'conductor/run-1/x' already exists"),
	}
	m := newTestManager(t, fake)

	wt, err := m.CreateWorktree("/repo", "run-1", "conductor/run-1/x")
	if err != nil {
		t.Fatalf("CreateWorktree failed: %v", err)
	}
	if wt == nil {
		t.Fatal("expected worktree")
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected retry without -b, calls = %v", fake.calls)
	}
	if strings.Contains(fake.calls[1], "-b") {
		t.Errorf("retry should not create a new branch: %v", fake.calls[1])
	}
}

func TestCreateWorktree_OtherErrorPropagates(t *testing.T) {
	fake := &fakeRunner{
		addNewBranchErr: errors.New("fatal: not a git repository"),
	}
	m := newTestManager(t, fake)

	if _, err := m.CreateWorktree("/repo", "run-1", "b"); err == nil {
		t.Error("expected error")
	}
	if len(fake.calls) != 1 {
		t.Errorf("should not retry on unrelated error, calls = %v", fake.calls)
	}
}

func TestCreateWorktree_RemovesStaleDirectory(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	stale := filepath.Join(m.BaseDir(), "run-1")
	if err := os.MkdirAll(stale, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := m.CreateWorktree("/repo", "run-1", "b"); err != nil {
		t.Fatalf("CreateWorktree failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale directory was not removed before worktree add")
	}
}

func TestRemoveWorktree(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	if err := m.RemoveWorktree("/repo", filepath.Join(m.BaseDir(), "run-1")); err != nil {
		t.Fatalf("RemoveWorktree failed: %v", err)
	}
	last := fake.calls[len(fake.calls)-1]
	if last != "worktree prune" {
		t.Errorf("expected prune after remove, calls = %v", fake.calls)
	}
}

func TestRemoveWorktree_FallsBackToDirectoryRemoval(t *testing.T) {
	fake := &fakeRunner{removeErr: errors.New("fatal: not a working tree")}
	m := newTestManager(t, fake)

	dir := filepath.Join(m.BaseDir(), "run-1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := m.RemoveWorktree("/repo", dir); err != nil {
		t.Fatalf("RemoveWorktree failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("directory not removed by fallback")
	}
}

func TestRemoveWorktree_Idempotent(t *testing.T) {
	fake := &fakeRunner{removeErr: errors.New("fatal: not a working tree")}
	m := newTestManager(t, fake)

	// Path does not exist at all; removal should still succeed.
	missing := filepath.Join(m.BaseDir(), "never-created")
	if err := m.RemoveWorktree("/repo", missing); err != nil {
		t.Errorf("RemoveWorktree on missing path failed: %v", err)
	}
}

func TestMergeBranchToMainline(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	if err := m.MergeBranchToMainline("/repo", "conductor/run-1/x"); err != nil {
		t.Fatalf("MergeBranchToMainline failed: %v", err)
	}
	want := `merge --no-ff -m "Merge conductor/run-1/x" conductor/run-1/x`
	found := false
	for _, c := range fake.calls {
		if c == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in calls %v", want, fake.calls)
	}
}

func TestMergeBranchToMainline_ConflictAborts(t *testing.T) {
	fake := &fakeRunner{mergeErr: errors.New("CONFLICT (content): merge conflict in main.go")}
	m := newTestManager(t, fake)

	err := m.MergeBranchToMainline("/repo", "conductor/run-1/x")
	if err == nil {
		t.Fatal("expected merge error")
	}
	if !strings.Contains(err.Error(), "Merge conflict for branch conductor/run-1/x") {
		t.Errorf("error = %q, want branch named in message", err)
	}
	aborted := false
	for _, c := range fake.calls {
		if c == "merge --abort" {
			aborted = true
		}
	}
	if !aborted {
		t.Errorf("merge was not aborted, calls = %v", fake.calls)
	}
}

func TestDeleteBranch_SafeMode(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	if err := m.DeleteBranch("/repo", "conductor/run-1/x"); err != nil {
		t.Fatalf("DeleteBranch failed: %v", err)
	}
	if fake.calls[0] != "branch -d conductor/run-1/x" {
		t.Errorf("calls = %v, want safe delete", fake.calls)
	}
}

func TestListWorktrees_FiltersToBase(t *testing.T) {
	fake := &fakeRunner{}
	m := newTestManager(t, fake)

	inside := filepath.Join(m.BaseDir(), "run-1")
	fake.porcelain = strings.Join([]string{
		"worktree /repo",
		"branch refs/heads/main",
		"",
		"worktree " + inside,
		"branch refs/heads/conductor/run-1/x",
		"",
	}, "\n")

	got, err := m.ListWorktrees("/repo")
	if err != nil {
		t.Fatalf("ListWorktrees failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (main checkout excluded)", len(got))
	}
	if got[0].Path != inside || got[0].BranchName != "conductor/run-1/x" || got[0].AgentRunID != "run-1" {
		t.Errorf("got %+v", got[0])
	}
}

func TestParseWorktreeList(t *testing.T) {
	output := strings.Join([]string{
		"worktree /repo",
		"HEAD abc123",
		"branch refs/heads/main",
		"",
		"worktree /tmp/wt",
		"HEAD def456",
		"branch refs/heads/feature",
	}, "\n")

	got, err := parseWorktreeList(output)
	if err != nil {
		t.Fatalf("parseWorktreeList failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Path != "/repo" || got[0].BranchName != "main" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Path != "/tmp/wt" || got[1].BranchName != "feature" {
		t.Errorf("second = %+v", got[1])
	}
}
