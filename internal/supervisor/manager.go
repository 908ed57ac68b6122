// Package supervisor spawns and oversees agent subprocesses, one per
// task, each isolated in its own git worktree.
package supervisor

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/git"
	"github.com/conductor-hq/conductor/internal/hooks"
	"github.com/conductor-hq/conductor/internal/state"
	"github.com/conductor-hq/conductor/pkg/models"
)

// DispatchMessage asks the dispatcher to act on a goal space. When an
// agent finishes with work to integrate, BranchToMerge, RepoPath and
// AgentRunID carry the merge details; a bare dispatch request leaves
// them empty.
type DispatchMessage struct {
	GoalSpaceID   string
	BranchToMerge string
	RepoPath      string
	AgentRunID    string
}

// liveSession is the in-memory state of one running agent subprocess.
type liveSession struct {
	agentRunID      string
	claudeSessionID string
	cmd             *exec.Cmd
	worktreePath    string
	repoPath        string
	costUSD         float64
	inputTokens     int64
	outputTokens    int64
}

// Manager owns all live agent sessions. All mutation of the session map
// goes through mu.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession

	store     *state.DB
	bus       *bus.Bus
	worktrees git.WorktreeProvider
	dispatch  chan DispatchMessage

	// port is where agent-side hooks report back to.
	port int

	// Watchdog thresholds; overridable in tests.
	stallTimeout time.Duration
	hardTimeout  time.Duration
	watchdogTick time.Duration
}

// NewManager creates a Manager. The returned dispatch channel is
// consumed by the dispatcher loop.
func NewManager(store *state.DB, b *bus.Bus, worktrees git.WorktreeProvider, port int) *Manager {
	return &Manager{
		sessions:     make(map[string]*liveSession),
		store:        store,
		bus:          b,
		worktrees:    worktrees,
		dispatch:     make(chan DispatchMessage, 256),
		port:         port,
		stallTimeout: 10 * time.Minute,
		hardTimeout:  20 * time.Minute,
		watchdogTick: 30 * time.Second,
	}
}

// NewManagerWithTimeouts creates a Manager with explicit watchdog
// thresholds. Zero values keep the defaults.
func NewManagerWithTimeouts(store *state.DB, b *bus.Bus, worktrees git.WorktreeProvider, port int, stall, hard, tick time.Duration) *Manager {
	m := NewManager(store, b, worktrees, port)
	if stall > 0 {
		m.stallTimeout = stall
	}
	if hard > 0 {
		m.hardTimeout = hard
	}
	if tick > 0 {
		m.watchdogTick = tick
	}
	return m
}

// DispatchChannel returns the channel the dispatcher loop reads from.
func (m *Manager) DispatchChannel() <-chan DispatchMessage {
	return m.dispatch
}

// RequestDispatch asks the dispatcher to evaluate a goal space for
// newly unblocked tasks. Non-blocking; a full queue drops the request.
func (m *Manager) RequestDispatch(goalSpaceID string) {
	select {
	case m.dispatch <- DispatchMessage{GoalSpaceID: goalSpaceID}:
	default:
		log.Printf("dispatch queue full, dropping request for goal %s", goalSpaceID)
	}
}

// Spawn starts an agent for the task. The agent runs `claude` in a
// fresh worktree of the goal's repository; its stream is consumed by a
// reader goroutine until the process exits.
func (m *Manager) Spawn(taskID, goalSpaceID, prompt, repoPath string, settings *models.Settings) (*models.AgentRun, error) {
	if settings == nil {
		settings = &models.Settings{}
	}

	run := newAgentRun(taskID, goalSpaceID, settings)

	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("look up task: %w", err)
	}
	title := "task"
	if task != nil {
		title = task.Title
	}

	branch := git.BranchName(run.ID, title)
	wt, err := m.worktrees.CreateWorktree(repoPath, run.ID, branch)
	if err != nil {
		return nil, fmt.Errorf("create worktree: %w", err)
	}

	// From here on any failure must tear down what was built.
	runCreated := false
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		log.Printf("cleaning up failed spawn for run %s", run.ID)
		if err := m.worktrees.RemoveWorktree(repoPath, wt.Path); err != nil {
			log.Printf("cleanup worktree for run %s: %v", run.ID, err)
		}
		if runCreated {
			if err := m.store.UpdateAgentRunStatus(run.ID, models.AgentStatusFailed); err != nil {
				log.Printf("mark run %s failed during cleanup: %v", run.ID, err)
			}
		}
	}()

	run.WorktreePath = wt.Path
	run.Branch = branch
	if err := m.store.CreateAgentRun(run); err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}
	runCreated = true

	if err := m.store.UpdateTaskStatus(taskID, models.TaskStatusRunning); err != nil {
		return nil, fmt.Errorf("mark task running: %w", err)
	}

	if err := hooks.InstallHooks(wt.Path, m.port); err != nil {
		log.Printf("install hooks for run %s: %v", run.ID, err)
	}

	cmd := buildAgentCommand(prompt, wt.Path, settings)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open stderr pipe: %w", err)
	}

	log.Printf("spawning agent %s for task %s in %s", run.ID, taskID, wt.Path)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn claude process: %w", err)
	}

	session := &liveSession{
		agentRunID:   run.ID,
		cmd:          cmd,
		worktreePath: wt.Path,
		repoPath:     repoPath,
	}
	m.mu.Lock()
	m.sessions[run.ID] = session
	m.mu.Unlock()

	if err := m.store.UpdateAgentRunStatus(run.ID, models.AgentStatusRunning); err != nil {
		m.mu.Lock()
		delete(m.sessions, run.ID)
		m.mu.Unlock()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("mark run running: %w", err)
	}

	succeeded = true
	go m.runReader(session, taskID, goalSpaceID, stdout, stderr)

	return run, nil
}

// newAgentRun builds the persisted record for a spawn. Defaults fill
// every unset settings field, so the reader always has a budget cap to
// enforce.
func newAgentRun(taskID, goalSpaceID string, settings *models.Settings) *models.AgentRun {
	budget := settings.ResolvedMaxBudgetUSD()
	return &models.AgentRun{
		ID:           uuid.New().String(),
		TaskID:       taskID,
		GoalSpaceID:  goalSpaceID,
		Model:        settings.ResolvedModel(),
		MaxBudgetUSD: &budget,
	}
}

// buildAgentCommand assembles the claude invocation for one task.
// Budget, turn limit and tool set always resolve to the defaults when
// unset.
func buildAgentCommand(prompt, workdir string, settings *models.Settings) *exec.Cmd {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--max-budget-usd", strconv.FormatFloat(settings.ResolvedMaxBudgetUSD(), 'f', -1, 64),
		"--max-turns", strconv.Itoa(settings.ResolvedMaxTurns()),
	}
	for _, tool := range settings.ResolvedAllowedTools() {
		args = append(args, "--allowedTools", tool)
	}
	if settings.PermissionMode != nil {
		args = append(args, "--permission-mode", *settings.PermissionMode)
	}
	if settings.SystemPrompt != nil {
		args = append(args, "--append-system-prompt", *settings.SystemPrompt)
	}
	args = append(args, "--model", settings.ResolvedModel())

	cmd := exec.Command("claude", args...)
	cmd.Dir = workdir
	return cmd
}

// Nudge re-invokes the agent in resume mode with a user message. The
// nudge process's output is discarded to avoid pipe deadlock; its exit
// status is logged asynchronously.
func (m *Manager) Nudge(agentRunID, message string) error {
	m.mu.RLock()
	session, ok := m.sessions[agentRunID]
	var sessionID, workdir string
	if ok {
		sessionID = session.claudeSessionID
		workdir = session.worktreePath
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("agent %s not found or not running", agentRunID)
	}
	if sessionID == "" {
		return fmt.Errorf("agent %s has no session ID yet", agentRunID)
	}

	cmd := exec.Command("claude", "-p", message, "--resume", sessionID,
		"--output-format", "stream-json")
	cmd.Dir = workdir
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn claude resume: %w", err)
	}
	log.Printf("nudged agent %s", agentRunID)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("nudge for agent %s exited: %v", agentRunID, err)
		}
	}()
	return nil
}

// Kill terminates a live agent, marks its run killed and removes its
// worktree.
func (m *Manager) Kill(agentRunID string) error {
	m.mu.Lock()
	session, ok := m.sessions[agentRunID]
	if ok {
		delete(m.sessions, agentRunID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("agent %s not found or not running", agentRunID)
	}

	if session.cmd.Process != nil {
		_ = session.cmd.Process.Kill()
	}
	if err := m.store.UpdateAgentRunStatus(agentRunID, models.AgentStatusKilled); err != nil {
		return fmt.Errorf("mark run killed: %w", err)
	}
	if err := m.worktrees.RemoveWorktree(session.repoPath, session.worktreePath); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}

	log.Printf("killed agent %s", agentRunID)
	return nil
}

// ActiveSessionIDs returns the IDs of all live sessions.
func (m *Manager) ActiveSessionIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// IsActive reports whether the agent has a live session.
func (m *Manager) IsActive(agentRunID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[agentRunID]
	return ok
}

// MarkSessionDone drops the live session for a run the stop hook has
// already settled, so the reader's finalize leaves its status alone.
func (m *Manager) MarkSessionDone(agentRunID string) {
	m.mu.Lock()
	delete(m.sessions, agentRunID)
	m.mu.Unlock()
}
