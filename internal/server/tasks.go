package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/internal/dispatch"
	"github.com/conductor-hq/conductor/pkg/models"
)

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.db.ListTasks(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Priority    int             `json:"priority"`
	DependsOn   []string        `json:"depends_on"`
	Settings    models.Settings `json:"settings"`
}

func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	task := &models.Task{
		ID:          uuid.New().String(),
		GoalSpaceID: c.Param("id"),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DependsOn:   req.DependsOn,
		Settings:    req.Settings,
	}
	if err := s.db.CreateTask(task); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, task)
}

type updateTaskRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *int      `json:"priority"`
	DependsOn   *[]string `json:"depends_on"`
	Status      *string   `json:"status"`
}

func (s *Server) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.db.GetTask(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		errorJSON(c, http.StatusNotFound, "Task not found")
		return
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.DependsOn != nil {
		task.DependsOn = *req.DependsOn
	}
	if err := s.db.UpdateTask(task); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if !status.Valid() {
			errorJSON(c, http.StatusBadRequest, fmt.Sprintf("invalid status %q", *req.Status))
			return
		}
		if err := s.db.UpdateTaskStatus(task.ID, status); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// retryTask resets a failed task to pending and asks the dispatcher to
// re-evaluate its goal space.
func (s *Server) retryTask(c *gin.Context) {
	task, err := s.db.GetTask(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		errorJSON(c, http.StatusNotFound, "Task not found")
		return
	}

	if err := s.db.UpdateTaskStatus(task.ID, models.TaskStatusPending); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	s.manager.RequestDispatch(task.GoalSpaceID)
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": "pending"})
}

// dispatchTask spawns an agent for one specific task regardless of the
// rest of the goal space.
func (s *Server) dispatchTask(c *gin.Context) {
	task, err := s.db.GetTask(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		errorJSON(c, http.StatusNotFound, "Task not found")
		return
	}

	goal, err := s.db.GetGoalSpace(task.GoalSpaceID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if goal == nil {
		errorJSON(c, http.StatusNotFound, "Goal space not found")
		return
	}

	operationID := uuid.New().String()
	s.publishOperation(operationID, goal.ID, "dispatch", "running",
		fmt.Sprintf("Dispatching agent for task '%s'...", task.Title), nil)

	go func() {
		effective := goal.Settings.Merge(task.Settings)
		prompt := dispatch.BuildPrompt(goal, task)
		if _, err := s.manager.Spawn(task.ID, goal.ID, prompt, goal.RepoPath, &effective); err != nil {
			log.Printf("spawn agent for task %s: %v", task.ID, err)
			s.publishOperation(operationID, goal.ID, "dispatch", "failed",
				fmt.Sprintf("Failed to spawn agent: %v", err), nil)
			return
		}
		s.publishOperation(operationID, goal.ID, "dispatch", "completed",
			fmt.Sprintf("Agent spawned for task '%s'", task.Title),
			gin.H{"task_id": task.ID})
	}()

	c.JSON(http.StatusAccepted, gin.H{"operation_id": operationID, "status": "running"})
}
