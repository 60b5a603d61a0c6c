package search

import (
	"context"
	"errors"
	"log/slog"

	"noiton/internal/model"
)

// ErrUnavailable 表示检索后端不可用，调用方应回退到 SQL 查询。
var ErrUnavailable = errors.New("search backend unavailable")

// Service 是任务检索的门面。meili 为 nil 时所有写入都是空操作。
type Service struct {
	meili  *Meili
	logger *slog.Logger
}

// NewService 创建检索服务。
func NewService(m *Meili, logger *slog.Logger) *Service {
	return &Service{meili: m, logger: logger}
}

func (s *Service) available() bool {
	return s != nil && s.meili != nil && s.meili.Healthy()
}

// IndexTask 异步写入任务文档。
func (s *Service) IndexTask(task model.Task, workspaceIDs []uint) {
	if !s.available() {
		return
	}
	rec := TaskRecord{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		Status:       task.Status,
		Priority:     task.Priority,
		WorkspaceIDs: workspaceIDs,
	}
	go func() {
		if err := s.meili.Upsert(rec); err != nil {
			s.logger.Warn("index task failed", slog.Uint64("task_id", uint64(rec.ID)), slog.String("error", err.Error()))
		}
	}()
}

// RemoveTask 异步删除任务文档。
func (s *Service) RemoveTask(id uint) {
	if !s.available() {
		return
	}
	go func() {
		if err := s.meili.Delete(id); err != nil {
			s.logger.Warn("remove task from index failed", slog.Uint64("task_id", uint64(id)), slog.String("error", err.Error()))
		}
	}()
}

// SearchTaskIDs 检索工作区内匹配关键词的任务。
//
// 返回值:
//   - []uint: 匹配的任务 ID
//   - error: 后端不可用或查询失败时返回 ErrUnavailable（已包装）
func (s *Service) SearchTaskIDs(ctx context.Context, workspaceID uint, query string) ([]uint, error) {
	if !s.available() {
		return nil, ErrUnavailable
	}
	ids, err := s.meili.SearchIDs(workspaceID, query, 0)
	if err != nil {
		s.logger.Warn("meilisearch error, falling back to sql", slog.String("error", err.Error()))
		return nil, errors.Join(ErrUnavailable, err)
	}
	return ids, nil
}

// Reindex 批量写入任务文档，启动时调用。
func (s *Service) Reindex(records []TaskRecord) {
	if !s.available() || len(records) == 0 {
		return
	}
	if err := s.meili.Upsert(records...); err != nil {
		s.logger.Warn("reindex tasks failed", slog.String("error", err.Error()))
	}
}

// Close 释放后台资源。
func (s *Service) Close() {
	if s != nil && s.meili != nil {
		s.meili.Close()
	}
}
