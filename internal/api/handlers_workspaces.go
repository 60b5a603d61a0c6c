package api

import (
	"net/http"

	"noiton/internal/api/middleware"
	"noiton/internal/pkg/apperr"
	"noiton/internal/service"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleGetMe(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), middleware.Caller(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleUpdateMe(c *gin.Context) {
	var req service.ProfilePatch
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.users.UpdateProfile(c.Request.Context(), middleware.Caller(c).UserID, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleCreateWorkspace(c *gin.Context) {
	var req service.WorkspaceInput
	if !s.bindJSON(c, &req) {
		return
	}
	ws, err := s.workspaces.Create(c.Request.Context(), middleware.Caller(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (s *Server) handleListWorkspaces(c *gin.Context) {
	list, err := s.workspaces.List(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetWorkspace(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	ws, err := s.workspaces.Get(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) handleUpdateWorkspace(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req service.WorkspacePatch
	if !s.bindJSON(c, &req) {
		return
	}
	ws, err := s.workspaces.Update(c.Request.Context(), middleware.Caller(c), id, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (s *Server) handleDeleteWorkspace(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.workspaces.Delete(c.Request.Context(), middleware.Caller(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Workspace deletado com sucesso"})
}

type memberRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleAddMember(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req memberRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.workspaces.AddMember(c.Request.Context(), middleware.Caller(c), id, req.Email); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Membro adicionado com sucesso"})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.workspaces.RemoveMember(c.Request.Context(), middleware.Caller(c), id, c.Param("email")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Membro removido com sucesso"})
}

func (s *Server) handleCreateCategory(c *gin.Context) {
	var req service.CategoryInput
	if !s.bindJSON(c, &req) {
		return
	}
	cat, err := s.categories.Create(c.Request.Context(), middleware.Caller(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (s *Server) handleListCategories(c *gin.Context) {
	wsID, ok := s.queryID(c, "id_workspace")
	if !ok {
		return
	}
	if wsID == 0 {
		s.fail(c, apperr.Validation("id_workspace é obrigatório"))
		return
	}
	cats, err := s.categories.List(c.Request.Context(), middleware.Caller(c), wsID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

func (s *Server) handleUpdateCategory(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req service.CategoryInput
	if !s.bindJSON(c, &req) {
		return
	}
	cat, err := s.categories.Update(c.Request.Context(), middleware.Caller(c), id, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	wsID, ok := s.queryID(c, "id_workspace")
	if !ok {
		return
	}
	if err := s.categories.Delete(c.Request.Context(), middleware.Caller(c), id, wsID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Categoria deletada com sucesso"})
}
