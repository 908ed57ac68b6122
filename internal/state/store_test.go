package state

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conductor-hq/conductor/pkg/models"
)

func createTestGoal(t *testing.T, db *DB, id string) *models.GoalSpace {
	t.Helper()
	g := &models.GoalSpace{
		ID:       id,
		Name:     "Test Goal " + id,
		RepoPath: "/tmp/repo-" + id,
	}
	if err := db.CreateGoalSpace(g); err != nil {
		t.Fatalf("CreateGoalSpace failed: %v", err)
	}
	return g
}

func createTestTask(t *testing.T, db *DB, goalID, id string, deps []string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:          id,
		GoalSpaceID: goalID,
		Title:       "Task " + id,
		DependsOn:   deps,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask(%s) failed: %v", id, err)
	}
	return task
}

func TestGoalSpace_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)

	g := createTestGoal(t, db, "g1")

	got, err := db.GetGoalSpace("g1")
	if err != nil {
		t.Fatalf("GetGoalSpace failed: %v", err)
	}
	if got == nil {
		t.Fatal("goal space not found")
	}
	if got.Name != g.Name {
		t.Errorf("Name = %q, want %q", got.Name, g.Name)
	}
	if got.Status != models.GoalStatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if got.RepoPath != g.RepoPath {
		t.Errorf("RepoPath = %q, want %q", got.RepoPath, g.RepoPath)
	}
}

func TestGoalSpace_GetMissing(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetGoalSpace("nope")
	if err != nil {
		t.Fatalf("GetGoalSpace failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing goal, got %+v", got)
	}
}

func TestGoalSpace_CreateRecordsHistory(t *testing.T) {
	db := setupTestDB(t)

	createTestGoal(t, db, "g1")

	history, err := db.ListGoalHistory("g1")
	if err != nil {
		t.Fatalf("ListGoalHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].EventType != "created" {
		t.Errorf("EventType = %q, want created", history[0].EventType)
	}
	if history[0].Description != "Goal space 'Test Goal g1' created" {
		t.Errorf("Description = %q", history[0].Description)
	}
}

func TestGoalSpace_Archive(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")

	if err := db.ArchiveGoalSpace("g1"); err != nil {
		t.Fatalf("ArchiveGoalSpace failed: %v", err)
	}

	got, _ := db.GetGoalSpace("g1")
	if got.Status != models.GoalStatusArchived {
		t.Errorf("Status = %q, want archived", got.Status)
	}
}

func TestTask_CreateValidatesDependencies(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)

	// Unknown dependency
	err := db.CreateTask(&models.Task{
		ID: "t2", GoalSpaceID: "g1", Title: "bad", DependsOn: []string{"missing"},
	})
	if err == nil {
		t.Error("expected error for unknown dependency")
	}

	// Self dependency
	err = db.CreateTask(&models.Task{
		ID: "t3", GoalSpaceID: "g1", Title: "self", DependsOn: []string{"t3"},
	})
	if err == nil {
		t.Error("expected error for self dependency")
	}

	// Valid dependency
	if err := db.CreateTask(&models.Task{
		ID: "t4", GoalSpaceID: "g1", Title: "ok", DependsOn: []string{"t1"},
	}); err != nil {
		t.Errorf("valid dependency rejected: %v", err)
	}
}

func TestTask_UpdateRejectsCycle(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", []string{"t1"})

	// Making t1 depend on t2 closes the loop.
	t1, _ := db.GetTask("t1")
	t1.DependsOn = []string{"t2"}
	if err := db.UpdateTask(t1); err == nil {
		t.Error("expected cycle error")
	}
}

func TestTask_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")

	low := &models.Task{ID: "low", GoalSpaceID: "g1", Title: "low", Priority: 0,
		CreatedAt: time.Now().Add(-2 * time.Hour)}
	high := &models.Task{ID: "high", GoalSpaceID: "g1", Title: "high", Priority: 5,
		CreatedAt: time.Now().Add(-1 * time.Hour)}
	if err := db.CreateTask(low); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateTask(high); err != nil {
		t.Fatal(err)
	}

	tasks, err := db.ListTasks("g1")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks[0].ID != "high" {
		t.Errorf("first task = %s, want high (priority DESC)", tasks[0].ID)
	}
}

func TestTask_StatusTransitions(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)

	if err := db.UpdateTaskStatus("t1", models.TaskStatusRunning); err != nil {
		t.Fatalf("pending -> running failed: %v", err)
	}
	if err := db.UpdateTaskStatus("t1", models.TaskStatusDone); err != nil {
		t.Fatalf("running -> done failed: %v", err)
	}

	err := db.UpdateTaskStatus("t1", models.TaskStatusRunning)
	if err == nil {
		t.Fatal("done -> running should be rejected")
	}
	if !strings.Contains(err.Error(), "invalid task status transition") {
		t.Errorf("unexpected error: %v", err)
	}

	got, _ := db.GetTask("t1")
	if got.Status != models.TaskStatusDone {
		t.Errorf("status mutated by rejected transition: %q", got.Status)
	}
}

func TestTask_UpdateStatusMissing(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateTaskStatus("nope", models.TaskStatusRunning)
	if err == nil {
		t.Error("expected error for missing task")
	}
}

func TestGetUnblockedTasks(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "a", nil)
	createTestTask(t, db, "g1", "b", []string{"a"})
	createTestTask(t, db, "g1", "c", nil)

	unblocked, err := db.GetUnblockedTasks("g1")
	if err != nil {
		t.Fatalf("GetUnblockedTasks failed: %v", err)
	}
	if len(unblocked) != 2 {
		t.Fatalf("unblocked = %d, want 2 (a and c)", len(unblocked))
	}

	// Finish a; b becomes dispatchable, a leaves the set.
	if err := db.UpdateTaskStatus("a", models.TaskStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateTaskStatus("a", models.TaskStatusDone); err != nil {
		t.Fatal(err)
	}

	unblocked, err = db.GetUnblockedTasks("g1")
	if err != nil {
		t.Fatalf("GetUnblockedTasks failed: %v", err)
	}
	ids := make(map[string]bool)
	for _, task := range unblocked {
		ids[task.ID] = true
	}
	if !ids["b"] || !ids["c"] || len(unblocked) != 2 {
		t.Errorf("unblocked = %v, want b and c", ids)
	}
}

func TestRetryFailedTasks(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", nil)

	db.UpdateTaskStatus("t1", models.TaskStatusRunning)
	db.UpdateTaskStatus("t1", models.TaskStatusFailed)

	n, err := db.RetryFailedTasks("g1")
	if err != nil {
		t.Fatalf("RetryFailedTasks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}

	got, _ := db.GetTask("t1")
	if got.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
}

func TestMarkGoalCompletedIfAllTasksDone(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")

	// No tasks at all: not completed.
	flipped, err := db.MarkGoalCompletedIfAllTasksDone("g1")
	if err != nil {
		t.Fatalf("completion check failed: %v", err)
	}
	if flipped {
		t.Error("goal with no tasks should not complete")
	}

	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", nil)

	db.UpdateTaskStatus("t1", models.TaskStatusRunning)
	db.UpdateTaskStatus("t1", models.TaskStatusDone)

	// One task still pending: not completed.
	flipped, _ = db.MarkGoalCompletedIfAllTasksDone("g1")
	if flipped {
		t.Error("goal with pending task should not complete")
	}

	db.UpdateTaskStatus("t2", models.TaskStatusRunning)
	db.UpdateTaskStatus("t2", models.TaskStatusDone)

	flipped, err = db.MarkGoalCompletedIfAllTasksDone("g1")
	if err != nil {
		t.Fatalf("completion check failed: %v", err)
	}
	if !flipped {
		t.Error("goal with all tasks done should complete")
	}

	got, _ := db.GetGoalSpace("g1")
	if got.Status != models.GoalStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	// Second call is a no-op.
	flipped, _ = db.MarkGoalCompletedIfAllTasksDone("g1")
	if flipped {
		t.Error("second completion check should report no change")
	}
}

func TestMarkGoalCompleted_ConcurrentWithTaskInserts(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "seed", nil)
	db.UpdateTaskStatus("seed", models.TaskStatusRunning)
	db.UpdateTaskStatus("seed", models.TaskStatusDone)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("t%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := db.CreateTask(&models.Task{
				ID: id, GoalSpaceID: "g1", Title: "Task " + id,
			}); err != nil {
				t.Errorf("CreateTask(%s): %v", id, err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := db.MarkGoalCompletedIfAllTasksDone("g1"); err != nil {
				t.Errorf("completion check: %v", err)
			}
		}()
	}
	wg.Wait()

	tasks, err := db.ListTasks("g1")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 51 {
		t.Fatalf("tasks = %d, want 51", len(tasks))
	}
	unfinished := 0
	for _, task := range tasks {
		if task.Status != models.TaskStatusDone {
			unfinished++
		}
	}

	goal, err := db.GetGoalSpace("g1")
	if err != nil {
		t.Fatalf("GetGoalSpace failed: %v", err)
	}
	if goal.Status == models.GoalStatusCompleted && unfinished > 0 {
		t.Fatalf("goal completed while %d tasks are unfinished", unfinished)
	}
	if unfinished > 0 && goal.Status != models.GoalStatusActive {
		t.Errorf("goal status = %q with unfinished tasks, want active", goal.Status)
	}
}

func createTestRun(t *testing.T, db *DB, goalID, taskID, id string) *models.AgentRun {
	t.Helper()
	run := &models.AgentRun{
		ID:          id,
		TaskID:      taskID,
		GoalSpaceID: goalID,
		Branch:      "conductor/" + id[:min(8, len(id))] + "/task",
	}
	if err := db.CreateAgentRun(run); err != nil {
		t.Fatalf("CreateAgentRun failed: %v", err)
	}
	return run
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestAgentRun_CreateDefaults(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	got, err := db.GetAgentRun("run-1")
	if err != nil {
		t.Fatalf("GetAgentRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("run not found")
	}
	if got.Status != models.AgentStatusSpawning {
		t.Errorf("Status = %q, want spawning", got.Status)
	}
	if got.Model != "sonnet" {
		t.Errorf("Model = %q, want sonnet", got.Model)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt should be nil, got %v", got.FinishedAt)
	}
}

func TestAgentRun_TerminalStatusSetsFinishedAt(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	if err := db.UpdateAgentRunStatus("run-1", models.AgentStatusRunning); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetAgentRun("run-1")
	if got.FinishedAt != nil {
		t.Error("running status should not set finished_at")
	}

	if err := db.UpdateAgentRunStatus("run-1", models.AgentStatusDone); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetAgentRun("run-1")
	if got.FinishedAt == nil {
		t.Error("done status should set finished_at")
	}
}

func TestAgentRun_TerminalStatusIsFinal(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	if err := db.UpdateAgentRunStatus("run-1", models.AgentStatusRunning); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateAgentRunStatus("run-1", models.AgentStatusKilled); err != nil {
		t.Fatal(err)
	}

	err := db.UpdateAgentRunStatus("run-1", models.AgentStatusFailed)
	if err == nil {
		t.Fatal("killed -> failed should be rejected")
	}
	if !strings.Contains(err.Error(), "invalid agent status transition") {
		t.Errorf("unexpected error: %v", err)
	}

	got, _ := db.GetAgentRun("run-1")
	if got.Status != models.AgentStatusKilled {
		t.Errorf("status mutated by rejected transition: %q", got.Status)
	}
}

func TestAgentRun_ConcurrentTerminalWritesSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")

	for i := 0; i < 50; i++ {
		taskID := fmt.Sprintf("t%d", i)
		runID := fmt.Sprintf("run-%d", i)
		createTestTask(t, db, "g1", taskID, nil)
		createTestRun(t, db, "g1", taskID, runID)
		if err := db.UpdateAgentRunStatus(runID, models.AgentStatusRunning); err != nil {
			t.Fatal(err)
		}

		// A stop-hook done and a finalizer failed race for the same
		// running run; exactly one may commit.
		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j, status := range []models.AgentStatus{models.AgentStatusDone, models.AgentStatusFailed} {
			wg.Add(1)
			go func(j int, status models.AgentStatus) {
				defer wg.Done()
				<-start
				errs[j] = db.UpdateAgentRunStatus(runID, status)
			}(j, status)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			}
		}
		if succeeded != 1 {
			t.Fatalf("iteration %d: %d terminal writes committed, want exactly 1 (errs=%v)", i, succeeded, errs)
		}

		run, _ := db.GetAgentRun(runID)
		if (errs[0] == nil && run.Status != models.AgentStatusDone) ||
			(errs[1] == nil && run.Status != models.AgentStatusFailed) {
			t.Fatalf("iteration %d: status %q does not match the committed write", i, run.Status)
		}
	}
}

func TestAgentRun_RejectsSecondLiveRun(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	err := db.CreateAgentRun(&models.AgentRun{
		ID: "run-2", TaskID: "t1", GoalSpaceID: "g1",
	})
	if err == nil {
		t.Fatal("second live run for the same task should be rejected")
	}
	if !strings.Contains(err.Error(), "already has a live agent run") {
		t.Errorf("unexpected error: %v", err)
	}

	// Once the first run is terminal, a retry run is fine.
	db.UpdateAgentRunStatus("run-1", models.AgentStatusRunning)
	if err := db.UpdateAgentRunStatus("run-1", models.AgentStatusFailed); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateAgentRun(&models.AgentRun{
		ID: "run-2", TaskID: "t1", GoalSpaceID: "g1",
	}); err != nil {
		t.Fatalf("retry run after terminal run rejected: %v", err)
	}
}

func TestAgentRun_CreateRecordsHistory(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	history, err := db.ListGoalHistory("g1")
	if err != nil {
		t.Fatalf("ListGoalHistory failed: %v", err)
	}
	last := history[len(history)-1]
	if last.EventType != "agent_spawned" {
		t.Errorf("EventType = %q, want agent_spawned", last.EventType)
	}
	if last.Description != "Agent run-1 spawned for task t1" {
		t.Errorf("Description = %q", last.Description)
	}
}

func TestAgentRun_CostAccumulation(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	if err := db.UpdateAgentRunCost("run-1", 0.01, 100, 50); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateAgentRunCost("run-1", 0.02, 200, 75); err != nil {
		t.Fatal(err)
	}

	got, _ := db.GetAgentRun("run-1")
	if got.CostUSD < 0.029 || got.CostUSD > 0.031 {
		t.Errorf("CostUSD = %v, want 0.03", got.CostUSD)
	}
	if got.InputTokens != 300 {
		t.Errorf("InputTokens = %d, want 300", got.InputTokens)
	}
	if got.OutputTokens != 125 {
		t.Errorf("OutputTokens = %d, want 125", got.OutputTokens)
	}
}

func TestAgentRun_SessionIDLookup(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	if err := db.SetAgentRunSessionID("run-1", "sess-abc"); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetAgentRunBySessionID("sess-abc")
	if err != nil {
		t.Fatalf("GetAgentRunBySessionID failed: %v", err)
	}
	if got == nil || got.ID != "run-1" {
		t.Errorf("got %+v, want run-1", got)
	}

	missing, err := db.GetAgentRunBySessionID("sess-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown session, got %+v", missing)
	}
}

func TestAgentRun_ListActive(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", nil)
	createTestRun(t, db, "g1", "t1", "run-live")
	createTestRun(t, db, "g1", "t2", "run-dead")
	db.UpdateAgentRunStatus("run-dead", models.AgentStatusFailed)

	active, err := db.ListActiveAgentRuns()
	if err != nil {
		t.Fatalf("ListActiveAgentRuns failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "run-live" {
		t.Errorf("active = %+v, want just run-live", active)
	}
}

func TestAgentEvents_AddAndList(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestRun(t, db, "g1", "t1", "run-1")

	for i := 0; i < 5; i++ {
		e := &models.AgentEvent{
			AgentRunID: "run-1",
			EventType:  "tool_call",
			ToolName:   "Read",
			Summary:    fmt.Sprintf("Reading file%d.go", i),
		}
		if err := db.AddAgentEvent(e); err != nil {
			t.Fatalf("AddAgentEvent failed: %v", err)
		}
		if e.ID == 0 {
			t.Error("event ID not filled in")
		}
	}

	events, err := db.ListAgentEvents("run-1", 3)
	if err != nil {
		t.Fatalf("ListAgentEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	// Newest three, oldest first.
	if events[0].Summary != "Reading file2.go" || events[2].Summary != "Reading file4.go" {
		t.Errorf("unexpected order: %q .. %q", events[0].Summary, events[2].Summary)
	}

	all, _ := db.ListAgentEvents("run-1", 0)
	if len(all) != 5 {
		t.Errorf("all events = %d, want 5", len(all))
	}
}

func TestGoalMessages_LimitAndOrder(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")

	for i := 0; i < 4; i++ {
		m := &models.GoalMessage{
			ID:          fmt.Sprintf("m%d", i),
			GoalSpaceID: "g1",
			Role:        "user",
			Content:     fmt.Sprintf("message %d", i),
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := db.AddGoalMessage(m); err != nil {
			t.Fatalf("AddGoalMessage failed: %v", err)
		}
	}

	msgs, err := db.ListGoalMessages("g1", 2)
	if err != nil {
		t.Fatalf("ListGoalMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "message 2" || msgs[1].Content != "message 3" {
		t.Errorf("unexpected window: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestProjects_EnsureForPath(t *testing.T) {
	db := setupTestDB(t)

	p1, err := db.EnsureProjectForPath("/srv/repos/api")
	if err != nil {
		t.Fatalf("EnsureProjectForPath failed: %v", err)
	}
	if p1.DisplayName != "api" {
		t.Errorf("DisplayName = %q, want api", p1.DisplayName)
	}

	p2, err := db.EnsureProjectForPath("/srv/repos/api")
	if err != nil {
		t.Fatalf("second EnsureProjectForPath failed: %v", err)
	}
	if p2.ID != p1.ID {
		t.Errorf("second call created a new project: %s != %s", p2.ID, p1.ID)
	}

	projects, _ := db.ListProjects()
	if len(projects) != 1 {
		t.Errorf("projects = %d, want 1", len(projects))
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", nil)
	createTestRun(t, db, "g1", "t1", "run-1")
	db.UpdateAgentRunCost("run-1", 1.25, 10, 20)

	db.UpdateTaskStatus("t1", models.TaskStatusRunning)
	db.UpdateTaskStatus("t1", models.TaskStatusDone)

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ActiveAgents != 1 {
		t.Errorf("ActiveAgents = %d, want 1", stats.ActiveAgents)
	}
	if stats.TotalCostUSD < 1.24 || stats.TotalCostUSD > 1.26 {
		t.Errorf("TotalCostUSD = %v, want 1.25", stats.TotalCostUSD)
	}
	if stats.TasksCompleted != 1 || stats.TasksTotal != 2 {
		t.Errorf("tasks = %d/%d, want 1/2", stats.TasksCompleted, stats.TasksTotal)
	}
	if stats.GoalsActive != 1 {
		t.Errorf("GoalsActive = %d, want 1", stats.GoalsActive)
	}
}

func TestCleanupStale_MarksDeadRuns(t *testing.T) {
	db := setupTestDB(t)
	createTestGoal(t, db, "g1")
	createTestTask(t, db, "g1", "t1", nil)
	createTestTask(t, db, "g1", "t2", nil)
	createTestRun(t, db, "g1", "t1", "run-dead")
	createTestRun(t, db, "g1", "t2", "run-live")

	db.UpdateTaskStatus("t1", models.TaskStatusRunning)
	db.UpdateAgentRunStatus("run-dead", models.AgentStatusRunning)
	db.UpdateAgentRunStatus("run-live", models.AgentStatusRunning)

	report, err := db.CleanupStale([]string{"run-live"})
	if err != nil {
		t.Fatalf("CleanupStale failed: %v", err)
	}
	if report.RunsMarkedFailed != 1 {
		t.Errorf("RunsMarkedFailed = %d, want 1", report.RunsMarkedFailed)
	}

	run, _ := db.GetAgentRun("run-dead")
	if run.Status != models.AgentStatusFailed {
		t.Errorf("dead run status = %q, want failed", run.Status)
	}
	liveRun, _ := db.GetAgentRun("run-live")
	if liveRun.Status != models.AgentStatusRunning {
		t.Errorf("live run status = %q, want running", liveRun.Status)
	}

	task, _ := db.GetTask("t1")
	if task.Status != models.TaskStatusPending {
		t.Errorf("task status = %q, want pending", task.Status)
	}
}

func TestCleanupReport_String(t *testing.T) {
	r := &CleanupReport{RunsMarkedFailed: 2, BranchesDeleted: 1, WorktreeDirsRemoved: 3}
	want := "Cleanup: 2 runs marked failed, 1 branches deleted, 3 worktree dirs removed"
	if r.String() != want {
		t.Errorf("String() = %q, want %q", r.String(), want)
	}

	r.UnmergedBranches = []string{"conductor/abc/x", "conductor/def/y"}
	if !strings.Contains(r.String(), "Unmerged branches (need manual review): conductor/abc/x, conductor/def/y") {
		t.Errorf("String() missing unmerged list: %q", r.String())
	}
}
