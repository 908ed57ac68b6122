package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conductor-hq/conductor/pkg/models"
)

type createProjectRequest struct {
	Path        string `json:"path" binding:"required"`
	DisplayName string `json:"display_name"`
	SortOrder   int    `json:"sort_order"`
	Settings    string `json:"settings"`
}

func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	project := &models.Project{
		ID:          uuid.New().String(),
		Path:        req.Path,
		DisplayName: req.DisplayName,
		SortOrder:   req.SortOrder,
		Settings:    req.Settings,
	}
	if err := s.db.CreateProject(project); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) listProjects(c *gin.Context) {
	projects, err := s.db.ListProjects()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) getProject(c *gin.Context) {
	project, err := s.db.GetProject(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if project == nil {
		errorJSON(c, http.StatusNotFound, "Not found")
		return
	}
	c.JSON(http.StatusOK, project)
}

type updateProjectRequest struct {
	DisplayName *string `json:"display_name"`
	SortOrder   *int    `json:"sort_order"`
	Settings    *string `json:"settings"`
}

func (s *Server) updateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	project, err := s.db.GetProject(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	if project == nil {
		errorJSON(c, http.StatusNotFound, "Not found")
		return
	}

	if req.DisplayName != nil {
		project.DisplayName = *req.DisplayName
	}
	if req.SortOrder != nil {
		project.SortOrder = *req.SortOrder
	}
	if req.Settings != nil {
		project.Settings = *req.Settings
	}
	if err := s.db.UpdateProject(project); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) deleteProject(c *gin.Context) {
	if err := s.db.DeleteProject(c.Param("id")); err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) listProjectGoals(c *gin.Context) {
	goals, err := s.db.ListGoalSpacesByProject(c.Param("id"))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, goals)
}
