package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/internal/bus"
	"github.com/conductor-hq/conductor/internal/chat"
	"github.com/conductor-hq/conductor/internal/decompose"
	"github.com/conductor-hq/conductor/internal/dispatch"
	"github.com/conductor-hq/conductor/pkg/models"
)

type createGoalRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	RepoPath    string          `json:"repo_path" binding:"required"`
	ProjectID   string          `json:"project_id"`
	Settings    models.Settings `json:"settings"`
}

func (s *Server) createGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	projectID := req.ProjectID
	if projectID == "" {
		project, err := s.db.EnsureProjectForPath(req.RepoPath)
		if err != nil {
			errorJSON(c, http.StatusInternalServerError, err.Error())
			return
		}
		projectID = project.ID
	}

	goal := &models.GoalSpace{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		RepoPath:    req.RepoPath,
		ProjectID:   projectID,
		Settings:    req.Settings,
	}
	if err := s.db.CreateGoalSpace(goal); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, goal)
}

func (s *Server) listGoals(c *gin.Context) {
	goals, err := s.db.ListGoalSpaces()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, goals)
}

func (s *Server) getGoal(c *gin.Context) {
	goal, err := s.db.GetGoalSpace(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Not found")
		return
	}
	c.JSON(http.StatusOK, goal)
}

type updateGoalRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Status      *string          `json:"status"`
	Settings    *models.Settings `json:"settings"`
}

func (s *Server) updateGoal(c *gin.Context) {
	var req updateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	goal, err := s.db.GetGoalSpace(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Not found")
		return
	}

	if req.Name != nil {
		goal.Name = *req.Name
	}
	if req.Description != nil {
		goal.Description = *req.Description
	}
	if req.Settings != nil {
		goal.Settings = *req.Settings
	}
	if err := s.db.UpdateGoalSpace(goal); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Status != nil {
		status := models.GoalStatus(*req.Status)
		if !status.Valid() {
			errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid status %q", *req.Status))
			return
		}
		if err := s.db.UpdateGoalSpaceStatus(goal.ID, status); err != nil {
			errorJSON(c, http.StatusInternalServerError, err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) archiveGoal(c *gin.Context) {
	if err := s.db.ArchiveGoalSpace(c.Param("id")); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// decomposeGoal starts a background decomposition and returns the
// operation ID immediately. Progress and the final task list arrive as
// operation_update events.
func (s *Server) decomposeGoal(c *gin.Context) {
	goal, err := s.db.GetGoalSpace(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Goal not found")
		return
	}

	operationID := uuid.New().String()
	s.publishOperation(operationID, goal.ID, "decompose", "running", "Decomposing goal...", nil)

	go s.runDecompose(goal, operationID)

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "status": "running"})
}

func (s *Server) runDecompose(goal *models.GoalSpace, operationID string) {
	drafts, err := decompose.Decompose(context.Background(), goal.Description, goal.RepoPath, s.bus, operationID, goal.ID)
	if err != nil {
		s.publishOperation(operationID, goal.ID, "decompose", "failed", err.Error(), nil)
		return
	}

	created := make([]*models.Task, 0, len(drafts))
	createdIDs := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		// Placeholders can only refer to already-created tasks; forward
		// references are dropped with a warning, matching dispatch order.
		var deps []string
		for _, dep := range draft.DependsOn {
			resolved, err := decompose.ResolveDependencies([]string{dep}, createdIDs)
			if err != nil {
				log.Printf("unresolved dependency %q for task %q: %v", dep, draft.Title, err)
				continue
			}
			deps = append(deps, resolved...)
		}

		task := &models.Task{
			ID:          uuid.New().String(),
			GoalSpaceID: goal.ID,
			Title:       draft.Title,
			Description: draft.Description,
			Priority:    draft.Priority,
			DependsOn:   deps,
			Settings:    draft.Settings,
		}
		if err := s.db.CreateTask(task); err != nil {
			s.publishOperation(operationID, goal.ID, "decompose", "failed",
				fmt.Sprintf("Failed to create task: %v", err), nil)
			return
		}
		created = append(created, task)
		createdIDs = append(createdIDs, task.ID)
	}

	s.publishOperation(operationID, goal.ID, "decompose", "completed",
		fmt.Sprintf("Created %d tasks", len(created)), created)
}

// dispatchGoal spawns an agent for every currently unblocked task.
func (s *Server) dispatchGoal(c *gin.Context) {
	goal, err := s.db.GetGoalSpace(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Goal not found")
		return
	}

	operationID := uuid.New().String()
	s.publishOperation(operationID, goal.ID, "dispatch", "running", "Dispatching agents...", nil)

	go func() {
		unblocked, err := s.db.GetUnblockedTasks(goal.ID)
		if err != nil {
			s.publishOperation(operationID, goal.ID, "dispatch", "failed",
				fmt.Sprintf("Failed to get tasks: %v", err), nil)
			return
		}

		spawned := 0
		for i := range unblocked {
			task := &unblocked[i]
			effective := goal.Settings.Merge(task.Settings)
			prompt := dispatch.BuildPrompt(goal, task)
			if _, err := s.manager.Spawn(task.ID, goal.ID, prompt, goal.RepoPath, &effective); err != nil {
				log.Printf("spawn agent for task %s: %v", task.ID, err)
				continue
			}
			spawned++
		}

		s.publishOperation(operationID, goal.ID, "dispatch", "completed",
			fmt.Sprintf("Spawned %d agents for %d tasks", spawned, len(unblocked)),
			gin.H{"agents_spawned": spawned, "tasks_available": len(unblocked)})
	}()

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "status": "running"})
}

func (s *Server) retryFailedTasks(c *gin.Context) {
	goalID := c.Param("id")
	retried, err := s.db.RetryFailedTasks(goalID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if retried > 0 {
		s.manager.RequestDispatch(goalID)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "retried": retried})
}

func (s *Server) goalSummary(c *gin.Context) {
	summary, err := s.db.GoalSummary(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) goalHistory(c *gin.Context) {
	history, err := s.db.ListGoalHistory(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) listGoalMessages(c *gin.Context) {
	messages, err := s.db.ListGoalMessages(c.Param("id"), 0)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, messages)
}

type chatRequest struct {
	Message string `json:"message"`
}

// goalChat saves the user message and streams the reply as chat_chunk
// events; the HTTP response only acknowledges the operation.
func (s *Server) goalChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		errorJSON(c, http.StatusBadRequest, "Message required")
		return
	}

	goalID := c.Param("id")
	goal, err := s.db.GetGoalSpace(goalID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Goal not found")
		return
	}

	operationID := uuid.New().String()
	go func() {
		if err := chat.Run(context.Background(), s.db, s.bus, goalID, req.Message, operationID); err != nil {
			log.Printf("chat for goal %s: %v", goalID, err)
			s.publishOperation(operationID, goalID, "chat", "failed", err.Error(), nil)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "status": "running"})
}

func (s *Server) publishOperation(operationID, goalID, opType, status, message string, result any) {
	s.bus.Publish(bus.OperationUpdate{
		OperationID:   operationID,
		GoalSpaceID:   goalID,
		OperationType: opType,
		Status:        status,
		Message:       message,
		Result:        result,
	})
}
