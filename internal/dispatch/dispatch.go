// Package dispatch runs the loop that merges finished branches and
// spawns agents for newly unblocked tasks.
package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/conductor-hq/conductor/internal/git"
	"github.com/conductor-hq/conductor/internal/state"
	"github.com/conductor-hq/conductor/internal/supervisor"
	"github.com/conductor-hq/conductor/pkg/models"
)

// Spawner is the part of the supervisor the dispatcher needs.
type Spawner interface {
	Spawn(taskID, goalSpaceID, prompt, repoPath string, settings *models.Settings) (*models.AgentRun, error)
}

// Dispatcher consumes dispatch messages serially. Single-consumer by
// construction so merges for the same repository never race.
type Dispatcher struct {
	store     *state.DB
	worktrees git.WorktreeProvider
	spawner   Spawner
	messages  <-chan supervisor.DispatchMessage
}

// New creates a Dispatcher reading from the supervisor's channel.
func New(store *state.DB, worktrees git.WorktreeProvider, spawner Spawner, messages <-chan supervisor.DispatchMessage) *Dispatcher {
	return &Dispatcher{
		store:     store,
		worktrees: worktrees,
		spawner:   spawner,
		messages:  messages,
	}
}

// Run processes messages until the context is cancelled or the channel
// closes.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Printf("auto-dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.messages:
			if !ok {
				return
			}
			d.Handle(msg)
		}
	}
}

// Handle processes one dispatch message: merge the finished branch if
// present, then spawn agents for every unblocked task of the goal.
func (d *Dispatcher) Handle(msg supervisor.DispatchMessage) {
	if msg.BranchToMerge != "" && msg.RepoPath != "" {
		d.mergeFinishedBranch(msg)
	}

	goal, err := d.store.GetGoalSpace(msg.GoalSpaceID)
	if err != nil {
		log.Printf("get goal %s: %v", msg.GoalSpaceID, err)
		return
	}
	if goal == nil {
		log.Printf("goal %s not found for auto-dispatch", msg.GoalSpaceID)
		return
	}
	if goal.Status == models.GoalStatusCompleted || goal.Status == models.GoalStatusArchived {
		return
	}

	unblocked, err := d.store.GetUnblockedTasks(msg.GoalSpaceID)
	if err != nil {
		log.Printf("get unblocked tasks for goal %s: %v", msg.GoalSpaceID, err)
		return
	}
	if len(unblocked) == 0 {
		// Nothing left to start; the goal may be fully complete.
		if _, err := d.store.MarkGoalCompletedIfAllTasksDone(msg.GoalSpaceID); err != nil {
			log.Printf("completion check for goal %s: %v", msg.GoalSpaceID, err)
		}
		return
	}

	spawned := 0
	for i := range unblocked {
		task := &unblocked[i]
		effective := goal.Settings.Merge(task.Settings)
		prompt := BuildPrompt(goal, task)

		if _, err := d.spawner.Spawn(task.ID, msg.GoalSpaceID, prompt, goal.RepoPath, &effective); err != nil {
			log.Printf("auto-dispatch: spawn agent for task %s: %v", task.ID, err)
			continue
		}
		spawned++
	}
	log.Printf("auto-dispatch: spawned %d agents for goal %s", spawned, msg.GoalSpaceID)
}

// mergeFinishedBranch merges the branch into mainline and records the
// outcome as an event on the finishing run. Either outcome lets
// dispatching proceed.
func (d *Dispatcher) mergeFinishedBranch(msg supervisor.DispatchMessage) {
	branch := msg.BranchToMerge
	if err := d.worktrees.MergeBranchToMainline(msg.RepoPath, branch); err != nil {
		log.Printf("auto-merge branch %s: %v", branch, err)
		d.appendMergeEvent(msg.AgentRunID, "merge_failed",
			fmt.Sprintf("Failed to merge branch %s: %v", branch, err))
		return
	}

	log.Printf("auto-merged branch %s into main", branch)
	d.appendMergeEvent(msg.AgentRunID, "merge_completed",
		fmt.Sprintf("Merged branch %s into main", branch))

	if err := d.worktrees.DeleteBranch(msg.RepoPath, branch); err != nil {
		log.Printf("delete merged branch %s: %v", branch, err)
	}
}

func (d *Dispatcher) appendMergeEvent(runID, eventType, summary string) {
	if runID == "" {
		return
	}
	err := d.store.AddAgentEvent(&models.AgentEvent{
		AgentRunID: runID,
		EventType:  eventType,
		Summary:    summary,
	})
	if err != nil {
		log.Printf("record %s event for run %s: %v", eventType, runID, err)
	}
}

// BuildPrompt renders the agent prompt for a task within its goal.
func BuildPrompt(goal *models.GoalSpace, task *models.Task) string {
	return fmt.Sprintf(
		"You are working on the following task as part of the goal: %s\n\n"+
			"Task: %s\n\n"+
			"Description: %s\n\n"+
			"Work in the current directory. Make your changes, test them, and commit when done.",
		goal.Description, task.Title, task.Description)
}
