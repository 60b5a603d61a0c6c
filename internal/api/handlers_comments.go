package api

import (
	"fmt"
	"net/http"
	"strconv"

	"noiton/internal/api/middleware"
	"noiton/internal/pkg/apperr"
	"noiton/internal/service"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCreateComment(c *gin.Context) {
	var req service.CommentInput
	if !s.bindJSON(c, &req) {
		return
	}
	cm, err := s.comments.Create(c.Request.Context(), middleware.Caller(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (s *Server) handleListComments(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	list, err := s.comments.ListByTask(c.Request.Context(), middleware.Caller(c), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type commentUpdateRequest struct {
	Body string `json:"descricao"`
}

func (s *Server) handleUpdateComment(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	var req commentUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	cm, err := s.comments.Update(c.Request.Context(), middleware.Caller(c), id, req.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.comments.Delete(c.Request.Context(), middleware.Caller(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comentário deletado com sucesso"})
}

// handleUploadAttachment 处理 multipart 字段 arquivo。replace 为 true 时替换同类型的已有附件。
func (s *Server) handleUploadAttachment(replace bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID, ok := s.pathID(c, "id_tarefa")
		if !ok {
			return
		}
		fh, err := c.FormFile("arquivo")
		if err != nil {
			s.fail(c, apperr.Validation("Nenhum arquivo enviado no campo arquivo"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.fail(c, apperr.Internal(fmt.Errorf("open upload: %w", err)))
			return
		}
		defer f.Close()

		a, err := s.attachments.Upload(c.Request.Context(), middleware.Caller(c), taskID, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		}, replace)
		if err != nil {
			s.fail(c, err)
			return
		}
		status := http.StatusCreated
		if replace {
			status = http.StatusOK
		}
		c.JSON(status, a)
	}
}

func (s *Server) handleListAttachments(c *gin.Context) {
	taskID, ok := s.pathID(c, "id_tarefa")
	if !ok {
		return
	}
	list, err := s.attachments.ListByTask(c.Request.Context(), middleware.Caller(c), taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleDownloadAttachment(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	a, rc, err := s.attachments.Open(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer rc.Close()

	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, a.Size, contentType, rc, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(a.OriginalName),
	})
}

func (s *Server) handleDeleteAttachment(c *gin.Context) {
	id, ok := s.pathID(c, "id")
	if !ok {
		return
	}
	if err := s.attachments.Delete(c.Request.Context(), middleware.Caller(c), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Anexo deletado com sucesso"})
}
