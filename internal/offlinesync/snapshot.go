package offlinesync

import (
	"context"
	"time"

	"noiton/internal/identity"
	"noiton/internal/model"
	"noiton/internal/pkg/apperr"
)

// Snapshot 是客户端首次同步时拉取的完整数据。
type Snapshot struct {
	UserEmail   string             `json:"user_email"`
	Workspaces  []model.Workspace  `json:"workspaces"`
	Categories  []model.Category   `json:"categorias"`
	Tasks       []model.Task       `json:"tarefas"`
	Comments    []model.Comment    `json:"comentarios"`
	Attachments []model.Attachment `json:"anexos"`
	Timestamp   time.Time          `json:"sync_timestamp"`
}

// Snapshot 返回调用方所在工作区的全部数据。
func (r *Reconciler) Snapshot(ctx context.Context, caller identity.Caller) (*Snapshot, error) {
	snap := &Snapshot{
		UserEmail:   caller.Email,
		Workspaces:  []model.Workspace{},
		Categories:  []model.Category{},
		Tasks:       []model.Task{},
		Comments:    []model.Comment{},
		Attachments: []model.Attachment{},
	}
	workspaces, err := r.store.ListWorkspacesByEmail(ctx, caller.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	snap.Workspaces = workspaces
	if len(workspaces) == 0 {
		snap.Timestamp = r.now().UTC()
		return snap, nil
	}

	wsIDs := make([]uint, 0, len(workspaces))
	for _, ws := range workspaces {
		wsIDs = append(wsIDs, ws.ID)
	}
	if snap.Categories, err = r.store.ListCategories(ctx, wsIDs...); err != nil {
		return nil, apperr.Internal(err)
	}
	taskIDs, err := r.store.TaskIDsInWorkspaces(ctx, wsIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(taskIDs) > 0 {
		if snap.Tasks, err = r.store.ListTasksByIDs(ctx, taskIDs); err != nil {
			return nil, apperr.Internal(err)
		}
		if snap.Comments, err = r.store.ListComments(ctx, taskIDs...); err != nil {
			return nil, apperr.Internal(err)
		}
		if snap.Attachments, err = r.store.ListAttachments(ctx, taskIDs...); err != nil {
			return nil, apperr.Internal(err)
		}
	}
	snap.Timestamp = r.now().UTC()
	return snap, nil
}
