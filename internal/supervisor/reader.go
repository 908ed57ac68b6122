package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/stream"
	"github.com/conductor-hq/conductor/pkg/models"
)

// maxLineSize bounds a single stream-json line. Tool results can carry
// whole files.
const maxLineSize = 1024 * 1024

// runReader consumes the agent's stdout until EOF or a watchdog
// decision, then finalizes the run. It runs as its own goroutine, one
// per live session.
func (m *Manager) runReader(session *liveSession, taskID, goalSpaceID string, stdout, stderr io.Reader) {
	runID := session.agentRunID

	// stderr is collected concurrently so the subprocess never blocks
	// on a full pipe.
	stderrCh := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrCh <- string(data)
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	maxBudget := 0.0
	hasBudget := false
	if run, err := m.store.GetAgentRun(runID); err == nil && run != nil && run.MaxBudgetUSD != nil {
		maxBudget = *run.MaxBudgetUSD
		hasBudget = true
	}

	startTime := time.Now()
	lastEventAt := time.Now()
	timedOut := false
	budgetExceeded := false
	stalled := false

	ticker := time.NewTicker(m.watchdogTick)
	defer ticker.Stop()

read:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break read
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			lastEventAt = time.Now()

			if stalled {
				stalled = false
				if err := m.store.UpdateAgentRunStatus(runID, models.AgentStatusRunning); err != nil {
					log.Printf("clear stall for run %s: %v", runID, err)
				}
				if err := m.store.UpdateTaskStatus(taskID, models.TaskStatusRunning); err != nil {
					log.Printf("clear task stall for run %s: %v", runID, err)
				}
			}

			parsed := stream.ParseLine(line)
			if parsed == nil {
				continue
			}
			m.recordEvent(runID, parsed, line)

			switch parsed.Kind {
			case stream.KindAPIRequest:
				if m.accumulateCost(session, runID, parsed, hasBudget, maxBudget) {
					budgetExceeded = true
					break read
				}
			case stream.KindResult:
				m.captureResult(session, runID, parsed)
			default:
				if err := m.store.UpdateAgentRunActivity(runID); err != nil {
					log.Printf("update activity for run %s: %v", runID, err)
				}
			}

		case <-ticker.C:
			if time.Since(startTime) >= m.hardTimeout {
				log.Printf("agent %s hard timeout after %s", runID, time.Since(startTime))
				timedOut = true
				if err := m.store.UpdateAgentRunStatus(runID, models.AgentStatusFailed); err != nil {
					log.Printf("mark run %s failed on timeout: %v", runID, err)
				}
				m.appendEvent(runID, "error",
					fmt.Sprintf("Hard timeout after %s", time.Since(startTime).Round(time.Second)))
				m.killProcess(session)
				break read
			}

			if time.Since(lastEventAt) >= m.stallTimeout && !stalled {
				log.Printf("agent %s stalled, no events for %s", runID, time.Since(lastEventAt))
				stalled = true
				if err := m.store.UpdateAgentRunStatus(runID, models.AgentStatusStalled); err != nil {
					log.Printf("mark run %s stalled: %v", runID, err)
				}
				if err := m.store.UpdateTaskStatus(taskID, models.TaskStatusStalled); err != nil {
					log.Printf("mark task %s stalled: %v", taskID, err)
				}
				m.appendEvent(runID, "warning",
					fmt.Sprintf("Agent stalled - no events for %s", time.Since(lastEventAt).Round(time.Second)))
			}
		}
	}

	// Drain any remaining stdout so the process can exit.
	go func() {
		for range lines {
		}
	}()

	stderrOut := strings.TrimSpace(<-stderrCh)
	if stderrOut != "" {
		log.Printf("agent %s stderr: %s", runID, stderrOut)
		if len(stderrOut) > 500 {
			stderrOut = stderrOut[:500] + "..."
		}
		m.appendEvent(runID, "error", stderrOut)
	}

	exitErr := session.cmd.Wait()
	m.finalize(session, taskID, goalSpaceID, timedOut, budgetExceeded, exitErr == nil)
}

// recordEvent persists and broadcasts one parsed event.
func (m *Manager) recordEvent(runID string, parsed *stream.Event, rawLine string) {
	row := stream.ToAgentEvent(parsed, runID, rawLine)
	if err := m.store.AddAgentEvent(row); err != nil {
		log.Printf("store event for run %s: %v", runID, err)
		return
	}
	m.bus.Publish(bus.AgentEvent{AgentRunID: runID, Event: row})
}

// appendEvent persists and broadcasts a synthetic event produced by the
// supervisor itself.
func (m *Manager) appendEvent(runID, eventType, summary string) {
	row := &models.AgentEvent{
		AgentRunID: runID,
		EventType:  eventType,
		Summary:    summary,
	}
	if err := m.store.AddAgentEvent(row); err != nil {
		log.Printf("append %s event for run %s: %v", eventType, runID, err)
		return
	}
	m.bus.Publish(bus.AgentEvent{AgentRunID: runID, Event: row})
}

// accumulateCost folds an ApiRequest event into the session totals and
// enforces the budget cap. Returns true when the cap was exceeded and
// the process was killed.
func (m *Manager) accumulateCost(session *liveSession, runID string, e *stream.Event, hasBudget bool, maxBudget float64) bool {
	m.mu.Lock()
	session.costUSD += e.CostUSD
	session.inputTokens += e.InputTokens
	session.outputTokens += e.OutputTokens
	total := session.costUSD
	m.mu.Unlock()

	if err := m.store.UpdateAgentRunCost(runID, e.CostUSD, e.InputTokens, e.OutputTokens); err != nil {
		log.Printf("update cost for run %s: %v", runID, err)
	}

	if hasBudget && total > maxBudget {
		log.Printf("agent %s exceeded budget: $%.4f > $%.4f", runID, total, maxBudget)
		if err := m.store.UpdateAgentRunStatus(runID, models.AgentStatusKilled); err != nil {
			log.Printf("mark run %s killed: %v", runID, err)
		}
		m.appendEvent(runID, "error",
			fmt.Sprintf("Budget exceeded: $%.4f > $%.4f", total, maxBudget))
		m.killProcess(session)
		return true
	}
	return false
}

// captureResult records the external session id and the final cost
// totals from a Result event.
func (m *Manager) captureResult(session *liveSession, runID string, e *stream.Event) {
	m.mu.Lock()
	session.claudeSessionID = e.SessionID
	session.costUSD = e.CostUSD
	m.mu.Unlock()

	if e.SessionID != "" {
		if err := m.store.SetAgentRunSessionID(runID, e.SessionID); err != nil {
			log.Printf("set session id for run %s: %v", runID, err)
		}
	}
	if err := m.store.SetAgentRunCost(runID, e.CostUSD, session.inputTokens, session.outputTokens); err != nil {
		log.Printf("set final cost for run %s: %v", runID, err)
	}
}

func (m *Manager) killProcess(session *liveSession) {
	if session.cmd.Process != nil {
		_ = session.cmd.Process.Kill()
	}
}

// finalize settles the terminal status of the run and its task, removes
// the worktree, drops the live session, and notifies the dispatcher
// when there is a branch to merge.
func (m *Manager) finalize(session *liveSession, taskID, goalSpaceID string, timedOut, budgetExceeded, exitOK bool) {
	runID := session.agentRunID

	m.mu.Lock()
	_, live := m.sessions[runID]
	delete(m.sessions, runID)
	cost := session.costUSD
	m.mu.Unlock()

	// Kill or the stop hook already settled this run; the process exit
	// must not overwrite that terminal status.
	if !live {
		log.Printf("agent %s already settled, skipping finalize", runID)
		run, err := m.store.GetAgentRun(runID)
		if err != nil || run == nil || run.Status != models.AgentStatusDone {
			return
		}
		if err := m.worktrees.RemoveWorktree(session.repoPath, session.worktreePath); err != nil {
			log.Printf("remove worktree for run %s: %v", runID, err)
		}
		m.notifyMerge(runID, goalSpaceID, run.Branch)
		return
	}

	var runStatus models.AgentStatus
	var taskStatus models.TaskStatus
	switch {
	case timedOut:
		runStatus, taskStatus = models.AgentStatusFailed, models.TaskStatusFailed
	case budgetExceeded:
		runStatus, taskStatus = models.AgentStatusKilled, models.TaskStatusFailed
	case exitOK && cost > 0:
		runStatus, taskStatus = models.AgentStatusDone, models.TaskStatusDone
	case exitOK:
		// Zero cost means the agent made no API calls at all.
		log.Printf("agent %s exited cleanly but cost $0.00, no work done", runID)
		runStatus, taskStatus = models.AgentStatusFailed, models.TaskStatusFailed
	default:
		runStatus, taskStatus = models.AgentStatusFailed, models.TaskStatusFailed
	}

	if err := m.store.UpdateAgentRunStatus(runID, runStatus); err != nil {
		log.Printf("set final status %s for run %s: %v", runStatus, runID, err)
	}
	// EOF can arrive while the task is still marked stalled. Completion
	// first clears the stall the way a late event would have; the task
	// machine has no stalled -> done edge.
	if taskStatus == models.TaskStatusDone {
		if task, err := m.store.GetTask(taskID); err == nil && task != nil && task.Status == models.TaskStatusStalled {
			if err := m.store.UpdateTaskStatus(taskID, models.TaskStatusRunning); err != nil {
				log.Printf("clear task stall for run %s: %v", runID, err)
			}
		}
	}
	if err := m.store.UpdateTaskStatus(taskID, taskStatus); err != nil {
		log.Printf("set final task status %s for task %s: %v", taskStatus, taskID, err)
	}

	if err := m.worktrees.RemoveWorktree(session.repoPath, session.worktreePath); err != nil {
		log.Printf("remove worktree for run %s: %v", runID, err)
	}

	log.Printf("agent %s finished with status %s", runID, runStatus)

	if runStatus != models.AgentStatusDone {
		return
	}

	var branch string
	if run, err := m.store.GetAgentRun(runID); err == nil && run != nil {
		branch = run.Branch
	}
	m.notifyMerge(runID, goalSpaceID, branch)
}

// notifyMerge tells the dispatcher a completed run's branch is ready
// to integrate.
func (m *Manager) notifyMerge(runID, goalSpaceID, branch string) {
	msg := DispatchMessage{GoalSpaceID: goalSpaceID, AgentRunID: runID, BranchToMerge: branch}
	if goal, err := m.store.GetGoalSpace(goalSpaceID); err == nil && goal != nil {
		msg.RepoPath = goal.RepoPath
	}
	m.dispatch <- msg
}
