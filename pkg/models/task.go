package models

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to be dispatched.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task has been claimed but work has not started.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusBlocked indicates the task is waiting on its dependencies.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusRunning indicates an agent is actively working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed and may be retried.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusStalled indicates the task's agent stopped producing events.
	TaskStatusStalled TaskStatus = "stalled"
	// TaskStatusKilled indicates the task's agent was terminated.
	TaskStatusKilled TaskStatus = "killed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusBlocked, TaskStatusRunning,
		TaskStatusDone, TaskStatusFailed, TaskStatusStalled, TaskStatusKilled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions leave this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusKilled
}

// taskTransitions maps each status to the statuses it may move to.
// Identity transitions are always allowed and are not listed here.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:  {TaskStatusAssigned, TaskStatusBlocked, TaskStatusRunning},
	TaskStatusAssigned: {TaskStatusRunning, TaskStatusPending},
	TaskStatusRunning:  {TaskStatusDone, TaskStatusFailed, TaskStatusStalled},
	TaskStatusStalled:  {TaskStatusRunning, TaskStatusFailed, TaskStatusKilled},
	TaskStatusFailed:   {TaskStatusPending},
	TaskStatusBlocked:  {TaskStatusPending},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is not allowed.
func ValidateTransition(from, to TaskStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid task status transition: %s -> %s", from, to)
	}
	return nil
}

// Task is a unit of work within a goal space. Tasks depend on other
// tasks in the same goal space by ID; a task is dispatchable once every
// dependency is done.
type Task struct {
	ID          string     `json:"id"`
	GoalSpaceID string     `json:"goal_space_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	// Priority orders dispatch within a goal space; higher runs first.
	Priority  int       `json:"priority"`
	DependsOn []string  `json:"depends_on"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCycle reports whether assigning deps to taskID would create a
// dependency cycle, given the current dependency edges of the other
// tasks. The walk follows edges from the proposed dependencies and
// returns true only if it reaches taskID itself.
func HasCycle(taskID string, deps []string, edges map[string][]string) bool {
	visited := make(map[string]bool)
	stack := append([]string(nil), deps...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == taskID {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		stack = append(stack, edges[id]...)
	}
	return false
}
