// Package search 维护任务关键词检索索引。
//
// Meilisearch 不可用时调用方回退到 SQL LIKE 查询。
package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const defaultIndex = "noiton_tasks"

// TaskRecord 是写入索引的任务文档。
type TaskRecord struct {
	ID           uint   `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	WorkspaceIDs []uint `json:"workspaceIds"`
}

// Meili 通过 Meilisearch 实现任务检索。
type Meili struct {
	client  meili.ServiceManager
	index   string
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili 创建客户端并配置索引。初始连接失败时仍返回实例，由健康检查循环负责恢复。
func NewMeili(url, apiKey, index string, logger *slog.Logger) *Meili {
	if index == "" {
		index = defaultIndex
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		index:  index,
		logger: logger,
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", slog.String("url", url), slog.String("error", err.Error()))
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: m.index, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", slog.String("index", m.index), slog.String("error", err.Error()))
	}
	idx := m.client.Index(m.index)
	filterable := []interface{}{"workspaceIds", "status", "priority"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes failed", slog.String("error", err.Error()))
	}
	searchable := []string{"title", "description"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes failed", slog.String("error", err.Error()))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close 停止健康检查。
func (m *Meili) Close() {
	close(m.done)
}

// Healthy 返回 Meilisearch 是否可达。
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Upsert 写入或更新任务文档。
func (m *Meili) Upsert(records ...TaskRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(m.index).AddDocuments(records, nil)
	return err
}

// Delete 删除任务文档。
func (m *Meili) Delete(id uint) error {
	_, err := m.client.Index(m.index).DeleteDocument(fmt.Sprint(id), nil)
	return err
}

// SearchIDs 在指定工作区内检索任务，返回按相关度排序的任务 ID。
func (m *Meili) SearchIDs(workspaceID uint, query string, limit int64) ([]uint, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 200
	}
	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:             m.index,
			Query:                query,
			Limit:                limit,
			AttributesToRetrieve: []string{"id"},
			Filter:               fmt.Sprintf("workspaceIds = %d", workspaceID),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	ids := []uint{}
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			raw, ok := hit["id"]
			if !ok {
				continue
			}
			var id uint
			if err := json.Unmarshal(raw, &id); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
