package api

import (
	"net/http"
	"strings"
	"time"

	"noiton/internal/api/middleware"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/timeutil"
	"noiton/internal/service"
	"noiton/internal/store"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateTask(c *gin.Context) {
	var req service.TaskInput
	if !s.bindJSON(c, &req) {
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), middleware.Caller(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListAccessible(c *gin.Context) {
	tasks, err := s.tasks.ListAccessible(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleListWorkspaceTasks(c *gin.Context) {
	wsID, ok := s.pathID(c, "id_workspace")
	if !ok {
		return
	}
	tasks, err := s.tasks.ListByWorkspace(c.Request.Context(), middleware.Caller(c), wsID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// handleFilterTasks 支持的查询参数:
// titulo, categoria, id_usuario, data_inicio, data_fim, prioridade, status, palavras_chave。
func (s *Server) handleFilterTasks(c *gin.Context) {
	wsID, ok := s.pathID(c, "id_workspace")
	if !ok {
		return
	}
	ownerID, ok := s.queryID(c, "id_usuario")
	if !ok {
		return
	}
	f := store.TaskFilter{
		WorkspaceID:  wsID,
		Title:        strings.TrimSpace(c.Query("titulo")),
		CategoryName: strings.TrimSpace(c.Query("categoria")),
		OwnerID:      ownerID,
		Priority:     c.Query("prioridade"),
		Status:       c.Query("status"),
		Keywords:     c.Query("palavras_chave"),
	}
	if f.CreatedFrom, ok = s.queryTime(c, "data_inicio"); !ok {
		return
	}
	if f.DueUntil, ok = s.queryTime(c, "data_fim"); !ok {
		return
	}
	tasks, err := s.tasks.Filter(c.Request.Context(), middleware.Caller(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c *gin.Context) {
	wsID, ok := s.pathID(c, "id_workspace")
	if !ok {
		return
	}
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	task, err := s.tasks.GetInWorkspace(c.Request.Context(), middleware.Caller(c), wsID, taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	var req service.TaskPatch
	if !s.bindJSON(c, &req) {
		return
	}
	res, err := s.tasks.Update(c.Request.Context(), middleware.Caller(c), taskID, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleDeleteTask 只允许拥有者删除，其他人返回 403。
func (s *Server) handleDeleteTask(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	if err := s.tasks.DeleteOrDeny(c.Request.Context(), middleware.Caller(c), taskID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tarefa deletada com sucesso"})
}

type categoryIDsRequest struct {
	Categories []uint `json:"categorias"`
}

func (s *Server) handleAssociateCategories(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	var req categoryIDsRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.tasks.AssociateCategories(c.Request.Context(), taskID, req.Categories); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Categorias associadas com sucesso"})
}

func (s *Server) handleTaskCategories(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	cats, err := s.tasks.Categories(c.Request.Context(), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

// handleRemoveCategories 没有 id_categoria 时移除任务的全部分类。
func (s *Server) handleRemoveCategories(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	var catID uint
	if c.Param("id_categoria") != "" {
		if catID, ok = s.pathID(c, "id_categoria"); !ok {
			return
		}
	}
	if err := s.tasks.RemoveCategories(c.Request.Context(), taskID, catID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Categorias removidas com sucesso"})
}

type workspaceLinkRequest struct {
	WorkspaceID uint `json:"id_workspace"`
}

func (s *Server) handleLinkWorkspace(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	var req workspaceLinkRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.tasks.LinkWorkspace(c.Request.Context(), middleware.Caller(c), taskID, req.WorkspaceID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Tarefa associada ao workspace"})
}

func (s *Server) handleUnlinkWorkspace(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	wsID, ok := s.pathID(c, "id_workspace")
	if !ok {
		return
	}
	if err := s.tasks.UnlinkWorkspace(c.Request.Context(), middleware.Caller(c), taskID, wsID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tarefa removida do workspace"})
}

type grantRequest struct {
	UserID uint `json:"id_usuario"`
	Level  *int `json:"nivel_acesso"`
}

func (s *Server) handleGrant(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	var req grantRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Level == nil {
		s.fail(c, apperr.Validation("nivel_acesso é obrigatório"))
		return
	}
	if err := s.permissions.Grant(c.Request.Context(), middleware.Caller(c), taskID, req.UserID, *req.Level); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Permissão concedida com sucesso"})
}

func (s *Server) handleListGrants(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	grants, err := s.permissions.List(c.Request.Context(), middleware.Caller(c), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, grants)
}

func (s *Server) handleRevoke(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	userID, ok := s.pathID(c, "id_usuario")
	if !ok {
		return
	}
	if err := s.permissions.Revoke(c.Request.Context(), middleware.Caller(c), taskID, userID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Permissão removida com sucesso"})
}

func (s *Server) handleMyPermission(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	mine, err := s.permissions.Mine(c.Request.Context(), middleware.Caller(c), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mine)
}

// queryTime 解析可选的时间查询参数（RFC 3339、日期或毫秒时间戳）。
func (s *Server) queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := timeutil.Parse(raw)
	if err != nil {
		s.fail(c, apperr.Validation("Data inválida em %s", name))
		return nil, false
	}
	return &t, true
}
