package server

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conductor-hq/conductor/pkg/models"
)

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.db.ListAgentRuns()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, agents)
}

func (s *Server) getAgent(c *gin.Context) {
	agent, err := s.db.GetAgentRun(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if agent == nil {
		errorJSON(c, http.StatusNotFound, "Not found")
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (s *Server) listAgentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := s.db.ListAgentEvents(c.Param("id"), limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, events)
}

type nudgeRequest struct {
	Message string `json:"message"`
}

func (s *Server) nudgeAgent(c *gin.Context) {
	var req nudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		errorJSON(c, http.StatusBadRequest, "Message required")
		return
	}

	if err := s.manager.Nudge(c.Param("id"), req.Message); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) killAgent(c *gin.Context) {
	if err := s.manager.Kill(c.Param("id")); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.db.Stats()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

type stopHookPayload struct {
	SessionID      string `json:"session_id"`
	StopHookActive bool   `json:"stop_hook_active"`
}

// stopHook handles the agent's Stop hook: the run that owns the
// reported session is marked done, its task completes, and the goal is
// re-evaluated for newly unblocked work.
func (s *Server) stopHook(c *gin.Context) {
	var payload stopHookPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.SessionID == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	agent, err := s.db.GetAgentRunBySessionID(payload.SessionID)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if agent == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if err := s.db.UpdateAgentRunStatus(agent.ID, models.AgentStatusDone); err != nil {
		log.Printf("stop hook: mark run %s done: %v", agent.ID, err)
	}
	if err := s.db.UpdateTaskStatus(agent.TaskID, models.TaskStatusDone); err != nil {
		log.Printf("stop hook: mark task %s done: %v", agent.TaskID, err)
	}
	if err := s.db.AddGoalHistory(agent.GoalSpaceID, "task_completed",
		"Task "+agent.TaskID+" completed by agent "+agent.ID, ""); err != nil {
		log.Printf("stop hook: record history for goal %s: %v", agent.GoalSpaceID, err)
	}
	if _, err := s.db.MarkGoalCompletedIfAllTasksDone(agent.GoalSpaceID); err != nil {
		log.Printf("stop hook: completion check for goal %s: %v", agent.GoalSpaceID, err)
	}

	s.manager.MarkSessionDone(agent.ID)
	s.manager.RequestDispatch(agent.GoalSpaceID)

	log.Printf("agent %s completed task %s via stop hook", agent.ID, agent.TaskID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// subagentStopHook only logs; subagent completion does not change run
// state.
func (s *Server) subagentStopHook(c *gin.Context) {
	var payload map[string]any
	_ = c.ShouldBindJSON(&payload)
	log.Printf("subagent stop hook received: %v", payload)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
