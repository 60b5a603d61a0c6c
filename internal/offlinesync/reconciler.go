// Package offlinesync 回放客户端离线期间排队的变更。
//
// 一批操作按提交顺序串行处理，每个操作独立成功或失败，
// 单个操作出错不会中断整批。早于 last_sync 的操作直接跳过。
package offlinesync

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"noiton/internal/identity"
	"noiton/internal/pkg/apperr"
	"noiton/internal/pkg/metrics"
	"noiton/internal/pkg/timeutil"
	"noiton/internal/service"
	"noiton/internal/store"
)

// 操作类型。
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// 跳过原因。
const (
	ReasonTooOld    = "operation_too_old"
	ReasonDuplicate = "duplicate_operation"
)

// MaxBatchSize 是单批允许的最大操作数。
const MaxBatchSize = 500

// Operation 是客户端排队的一次变更。
type Operation struct {
	OpID      string          `json:"op_id"`
	OpType    string          `json:"op_type"`
	Entity    string          `json:"entity"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp *timeutil.Time  `json:"timestamp"`

	malformed    bool
	badTimestamp bool
}

// Batch 是 POST /sync/offline 的请求体。
type Batch struct {
	Operations []Operation    `json:"operacoes"`
	LastSync   *timeutil.Time `json:"last_sync"`
	UserEmail  string         `json:"user_email"`
}

// Result 是单个操作的处理结果，与请求中的操作一一对应。
type Result struct {
	OpID    string `json:"op_id"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Entity  string `json:"entity"`
	OpType  string `json:"op_type"`
}

// EntityTally 是按实体统计的结果。
type EntityTally struct {
	Successes int `json:"sucessos"`
	Failures  int `json:"falhas"`
	Skipped   int `json:"ignoradas"`
}

// Report 汇总一批操作。跳过的操作只计入 Skipped。
type Report struct {
	Total     int                     `json:"total_operacoes"`
	Successes int                     `json:"sucessos"`
	Failures  int                     `json:"falhas"`
	Skipped   int                     `json:"ignoradas"`
	ByEntity  map[string]*EntityTally `json:"por_entidade"`
}

// Outcome 是整批的响应。
type Outcome struct {
	Message         string    `json:"message"`
	Report          Report    `json:"relatorio"`
	Results         []Result  `json:"resultados"`
	ServerTimestamp time.Time `json:"server_timestamp"`
}

// ReplayGuard 记录已处理的 op_id（dedup.Guard 实现）。
type ReplayGuard interface {
	Claim(ctx context.Context, userID uint, opID string) (bool, error)
	Release(ctx context.Context, userID uint, opID string) error
}

// Services 是回放时调用的业务服务。
type Services struct {
	Users       *service.UserService
	Tasks       *service.TaskService
	Categories  *service.CategoryService
	Workspaces  *service.WorkspaceService
	Comments    *service.CommentService
	Attachments *service.AttachmentService
}

type handler func(ctx context.Context, caller identity.Caller, opType string, payload json.RawMessage) (any, error)

// Reconciler 处理离线同步批次。
type Reconciler struct {
	store    *store.Store
	svc      Services
	guard    ReplayGuard
	logger   *slog.Logger
	handlers map[string]handler
	aliases  map[string]string
	now      func() time.Time
}

// NewReconciler 创建同步器。guard 为 nil 时不做重放检查。
func NewReconciler(st *store.Store, svc Services, guard ReplayGuard, logger *slog.Logger) *Reconciler {
	r := &Reconciler{
		store:  st,
		svc:    svc,
		guard:  guard,
		logger: logger,
		now:    time.Now,
	}
	r.handlers = map[string]handler{
		"usuario":           r.user,
		"tarefa":            r.task,
		"categoria":         r.category,
		"workspace":         r.workspace,
		"comentario":        r.comment,
		"anexo":             r.attachment,
		"usuario_workspace": r.workspaceMember,
		"tarefa_workspace":  r.taskWorkspace,
		"tarefa_categoria":  r.taskCategory,
	}
	r.aliases = map[string]string{
		"user":             "usuario",
		"task":             "tarefa",
		"category":         "categoria",
		"comment":          "comentario",
		"attachment":       "anexo",
		"workspace_member": "usuario_workspace",
		"task_workspace":   "tarefa_workspace",
		"task_category":    "tarefa_categoria",
	}
	return r
}

// Reconcile 按顺序回放整批操作。
//
// 参数:
//   - caller: 已认证的调用方，所有操作都以其身份执行
//   - batch: 操作列表与上次同步时间
//
// 返回值:
//   - *Outcome: 汇总报告与逐条结果（数量、顺序与请求一致）
//   - error: 只有批次本身无效时返回（格式错误或 user_email 与调用方不符）
func (r *Reconciler) Reconcile(ctx context.Context, caller identity.Caller, batch Batch) (*Outcome, error) {
	if batch.Operations == nil {
		return nil, apperr.Validation("Formato inválido: operacoes deve ser um array de operações")
	}
	if len(batch.Operations) > MaxBatchSize {
		return nil, apperr.Validation("Lote muito grande: máximo de %d operações", MaxBatchSize)
	}
	if email := strings.TrimSpace(batch.UserEmail); email != "" && !strings.EqualFold(email, caller.Email) {
		return nil, apperr.Authorization("user_email não corresponde ao usuário autenticado")
	}
	metrics.SyncBatchSize.Observe(float64(len(batch.Operations)))

	out := &Outcome{
		Message: "Sincronização processada",
		Report:  Report{Total: len(batch.Operations), ByEntity: map[string]*EntityTally{}},
		Results: make([]Result, 0, len(batch.Operations)),
	}
	for _, op := range batch.Operations {
		res := r.apply(ctx, caller, op, batch.LastSync)
		out.Results = append(out.Results, res)
		out.Report.tally(r.canonical(op.Entity), res)
		metrics.SyncOperationsTotal.WithLabelValues(r.metricEntity(op.Entity), outcomeOf(res)).Inc()
	}
	out.ServerTimestamp = r.now().UTC()

	r.logger.Info("offline sync processed",
		slog.Uint64("user_id", uint64(caller.UserID)),
		slog.Int("total", out.Report.Total),
		slog.Int("successes", out.Report.Successes),
		slog.Int("failures", out.Report.Failures),
		slog.Int("skipped", out.Report.Skipped))
	return out, nil
}

func (r *Reconciler) apply(ctx context.Context, caller identity.Caller, op Operation, lastSync *timeutil.Time) Result {
	res := Result{OpID: op.OpID, Entity: op.Entity, OpType: op.OpType}
	if op.malformed {
		res.Error = "Operação inválida: cada item de operacoes deve ser um objeto"
		return res
	}
	if op.badTimestamp {
		r.logger.Debug("sync operation timestamp ignored", slog.String("op_id", op.OpID))
	}

	if op.Timestamp.Ptr() != nil && lastSync.Ptr() != nil && op.Timestamp.Before(lastSync.Time) {
		res.Success, res.Skipped, res.Reason = true, true, ReasonTooOld
		return res
	}

	claimed := false
	if r.guard != nil && op.OpID != "" {
		fresh, err := r.guard.Claim(ctx, caller.UserID, op.OpID)
		switch {
		case err != nil:
			r.logger.Warn("sync replay guard unavailable", slog.String("op_id", op.OpID), slog.String("error", err.Error()))
		case !fresh:
			res.Success, res.Skipped, res.Reason = true, true, ReasonDuplicate
			return res
		default:
			claimed = true
		}
	}

	result, err := r.dispatch(ctx, caller, op)
	if err != nil {
		if claimed {
			if rerr := r.guard.Release(ctx, caller.UserID, op.OpID); rerr != nil {
				r.logger.Warn("release sync op failed", slog.String("op_id", op.OpID), slog.String("error", rerr.Error()))
			}
		}
		ae := apperr.From(err)
		if ae.Kind == apperr.KindInternal {
			r.logger.Error("sync operation failed",
				slog.String("op_id", op.OpID),
				slog.String("entity", op.Entity),
				slog.String("op_type", op.OpType),
				slog.String("error", err.Error()))
		}
		res.Error = ae.Message
		return res
	}
	res.Success = true
	res.Result = result
	return res
}

func (r *Reconciler) canonical(entity string) string {
	entity = strings.ToLower(strings.TrimSpace(entity))
	if c, ok := r.aliases[entity]; ok {
		return c
	}
	return entity
}

// metricEntity 限制指标标签取值，未知实体统一记为 desconhecida。
func (r *Reconciler) metricEntity(entity string) string {
	c := r.canonical(entity)
	if _, ok := r.handlers[c]; ok {
		return c
	}
	return "desconhecida"
}

func (r *Reconciler) dispatch(ctx context.Context, caller identity.Caller, op Operation) (any, error) {
	h, ok := r.handlers[r.canonical(op.Entity)]
	if !ok {
		return nil, apperr.Unsupported("Entidade não reconhecida: %s", op.Entity)
	}
	payload := op.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}
	return h(ctx, caller, strings.ToUpper(strings.TrimSpace(op.OpType)), payload)
}

// tally 计入一条结果。entity 是规范化后的实体名，别名合并到同一个桶。
func (rep *Report) tally(entity string, res Result) {
	t, ok := rep.ByEntity[entity]
	if !ok {
		t = &EntityTally{}
		rep.ByEntity[entity] = t
	}
	switch {
	case res.Skipped:
		rep.Skipped++
		t.Skipped++
	case res.Success:
		rep.Successes++
		t.Successes++
	default:
		rep.Failures++
		t.Failures++
	}
}

func outcomeOf(res Result) string {
	switch {
	case res.Skipped:
		return "skipped"
	case res.Success:
		return "success"
	default:
		return "failure"
	}
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Validation("Payload inválido: %v", err)
	}
	return nil
}

func invalidOp(opType string) error {
	return apperr.Unsupported("Operação inválida: %s", opType)
}
