package api

import (
	"net/http"

	"noiton/internal/api/middleware"
	"noiton/internal/model"
	"noiton/internal/offlinesync"

	"github.com/gin-gonic/gin"
)

type submitReportRequest struct {
	TaskID uint   `json:"id_tarefa"`
	Reason string `json:"motivo"`
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var req submitReportRequest
	if !s.bindJSON(c, &req) {
		return
	}
	r, err := s.reports.Submit(c.Request.Context(), middleware.Caller(c).UserID, req.TaskID, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleListReports(c *gin.Context) {
	list, err := s.reports.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleReportStats(c *gin.Context) {
	stats, err := s.reports.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleReportsByTask(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	list, err := s.reports.ListByTask(c.Request.Context(), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetReport(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	r, err := s.reports.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"observacoes"`
}

// handleModerateReport 由 moderator 角色处理举报，审核人记录为调用方。
func (s *Server) handleModerateReport(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	moderator := middleware.Caller(c).UserID
	r, err := s.reports.Transition(c.Request.Context(), id, req.Status, &moderator, req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleAdminDashboard(c *gin.Context) {
	d, err := s.admin.Dashboard(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleAdminReports(c *gin.Context) {
	list, err := s.admin.Reports(c.Request.Context(), c.Query("status"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleAdminTransition(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	s.adminTransition(c, id, req.Status, req.Notes)
}

func (s *Server) handleAdminApprove(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	s.adminTransition(c, id, model.ReportApproved, "")
}

func (s *Server) handleAdminReject(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	s.adminTransition(c, id, model.ReportRejected, "")
}

func (s *Server) adminTransition(c *gin.Context, id uint, status, notes string) {
	if err := s.admin.Transition(c.Request.Context(), id, status, notes); err != nil {
		s.fail(c, err)
		return
	}
	msg := "Status da denúncia atualizado"
	switch status {
	case model.ReportApproved:
		msg = "Denúncia aprovada e tarefa removida"
	case model.ReportRejected:
		msg = "Denúncia rejeitada"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "status": status})
}

func (s *Server) handleAdminTasks(c *gin.Context) {
	list, err := s.admin.Tasks(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleAdminDeleteTask(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	if err := s.admin.DeleteTask(c.Request.Context(), taskID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Tarefa deletada pelo administrador"})
}

func (s *Server) handleAdminUsers(c *gin.Context) {
	list, err := s.admin.Users(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleSyncOffline(c *gin.Context) {
	var batch offlinesync.Batch
	if !s.bindJSON(c, &batch) {
		return
	}
	out, err := s.sync.Reconcile(c.Request.Context(), middleware.Caller(c), batch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSyncSnapshot(c *gin.Context) {
	snap, err := s.sync.Snapshot(c.Request.Context(), middleware.Caller(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
