// Package service 实现任务、工作区、权限、评论、附件、举报与用户的业务规则。
//
// 每个方法显式接收 identity.Caller，权限判断统一交给 access.Evaluator。
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/blob"

	"gorm.io/gorm"
)

// TaskIndex 是任务检索索引（search.Service 实现）。
type TaskIndex interface {
	IndexTask(task model.Task, workspaceIDs []uint)
	RemoveTask(id uint)
	SearchTaskIDs(ctx context.Context, workspaceID uint, query string) ([]uint, error)
}

// ReportNotifier 在举报提交与处理后发送通知（notify.ReportMailer 实现）。
type ReportNotifier interface {
	ReportSubmitted(report model.Report, task model.Task)
	ReportDecided(report model.Report, reporter model.User, taskTitle string)
}

// wrapErr 把存储层错误转换为业务错误，记录不存在时使用 notFoundMsg。
func wrapErr(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &apperr.Error{Kind: apperr.KindNotFound, Message: notFoundMsg, Cause: err}
	}
	return apperr.From(err)
}

// removeBlobs 在事务提交后删除附件文件，失败只记录日志。
func removeBlobs(ctx context.Context, blobs blob.Store, logger *slog.Logger, attachments []model.Attachment) {
	if blobs == nil {
		return
	}
	for _, a := range attachments {
		if err := blobs.Remove(ctx, a.StoredName); err != nil {
			logger.Warn("remove attachment blob failed",
				slog.Uint64("attachment_id", uint64(a.ID)),
				slog.String("key", a.StoredName),
				slog.String("error", err.Error()))
		}
	}
}

type clock func() time.Time
