package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"noiton/internal/access"
	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/blob"
	"noiton/internal/store"

	"github.com/google/uuid"
)

// 附件大小上限。
const (
	MaxPDFBytes   int64 = 10 << 20
	MaxImageBytes int64 = 15 << 20
)

var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// AttachmentKind 根据 MIME 类型判断附件类型，不支持时返回空字符串。
func AttachmentKind(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct == "application/pdf" {
		return model.AttachmentPDF
	}
	if _, ok := imageTypes[ct]; ok {
		return model.AttachmentImage
	}
	return ""
}

// Upload 是一次附件上传。
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentService 管理任务附件。
type AttachmentService struct {
	store  *store.Store
	access *access.Evaluator
	blobs  blob.Store
	logger *slog.Logger
	now    clock
}

// NewAttachmentService 创建附件服务。
func NewAttachmentService(st *store.Store, ev *access.Evaluator, blobs blob.Store, logger *slog.Logger) *AttachmentService {
	return &AttachmentService{store: st, access: ev, blobs: blobs, logger: logger, now: time.Now}
}

// Upload 给任务上传附件，需要编辑权限。
//
// 每个任务每种类型（pdf / imagem）最多一个附件。replace 为 false 且已存在同类附件时返回 Conflict；
// replace 为 true 时覆盖旧附件并删除旧文件。
func (s *AttachmentService) Upload(ctx context.Context, caller identity.Caller, taskID uint, up Upload, replace bool) (*model.Attachment, error) {
	if up.Body == nil {
		return nil, apperr.Validation("Nenhum arquivo foi enviado")
	}
	kind := AttachmentKind(up.ContentType)
	if kind == "" {
		return nil, apperr.Validation("Tipo de arquivo não permitido. Use apenas PDF ou imagens (JPEG, PNG, GIF, WebP)")
	}
	limit, label := MaxImageBytes, "15MB"
	if kind == model.AttachmentPDF {
		limit, label = MaxPDFBytes, "10MB"
	}
	if up.Size > limit {
		return nil, apperr.Validation("Arquivo muito grande. Tamanho máximo para %s: %s", kind, label)
	}
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionEdit, ""); err != nil {
		return nil, err
	}

	existing, err := s.store.FindAttachmentByKind(ctx, taskID, kind)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if existing != nil && !replace {
		return nil, apperr.Conflict("Já existe um %s anexado a esta tarefa. Remova o arquivo atual primeiro.", kind)
	}

	original := filepath.Base(strings.TrimSpace(up.Filename))
	if original == "." || original == "/" || original == "" {
		original = kind
	}
	key := fmt.Sprintf("tarefa_%d_%s_%d_%s%s", taskID, kind, s.now().UnixMilli(), uuid.NewString()[:8], strings.ToLower(filepath.Ext(original)))
	if err := s.blobs.Put(ctx, key, io.LimitReader(up.Body, limit+1), up.Size, up.ContentType); err != nil {
		return nil, apperr.Internal(err)
	}

	a := &model.Attachment{}
	if existing != nil {
		*a = *existing
	}
	a.TaskID = taskID
	a.Kind = kind
	a.StoredName = key
	a.OriginalName = original
	a.ContentType = up.ContentType
	a.Size = up.Size
	a.Path = key
	if err := s.store.SaveAttachment(ctx, a); err != nil {
		removeBlobs(ctx, s.blobs, s.logger, []model.Attachment{{StoredName: key}})
		return nil, apperr.From(err)
	}
	if existing != nil && existing.StoredName != key {
		removeBlobs(ctx, s.blobs, s.logger, []model.Attachment{*existing})
	}
	s.logger.Info("attachment stored",
		slog.Uint64("task_id", uint64(taskID)),
		slog.String("kind", kind),
		slog.Int64("size", up.Size),
		slog.Bool("replaced", existing != nil))
	return a, nil
}

// ListByTask 返回任务附件，需要查看权限。
func (s *AttachmentService) ListByTask(ctx context.Context, caller identity.Caller, taskID uint) ([]model.Attachment, error) {
	if err := s.access.Require(ctx, taskID, caller.UserID, access.ActionView, ""); err != nil {
		return nil, err
	}
	list, err := s.store.ListAttachments(ctx, taskID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// Open 打开附件内容用于下载，需要任务查看权限。调用方负责关闭返回的 ReadCloser。
func (s *AttachmentService) Open(ctx context.Context, caller identity.Caller, id uint) (*model.Attachment, io.ReadCloser, error) {
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, wrapErr(err, "Anexo não encontrado")
	}
	if err := s.access.Require(ctx, a.TaskID, caller.UserID, access.ActionView, ""); err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, a.StoredName)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil, apperr.NotFound("Arquivo do anexo não encontrado")
		}
		return nil, nil, apperr.Internal(err)
	}
	return a, rc, nil
}

// Delete 删除附件及其文件，需要任务编辑权限。
func (s *AttachmentService) Delete(ctx context.Context, caller identity.Caller, id uint) error {
	a, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return wrapErr(err, "Anexo não encontrado")
	}
	if err := s.access.Require(ctx, a.TaskID, caller.UserID, access.ActionEdit, ""); err != nil {
		return err
	}
	if err := s.store.DeleteAttachment(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	removeBlobs(ctx, s.blobs, s.logger, []model.Attachment{*a})
	return nil
}
