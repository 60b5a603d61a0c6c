package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"noiton/internal/config"
	"noiton/internal/pkg/blob"
	"noiton/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const adminToken = "admin-secret"

type testServer struct {
	t   *testing.T
	srv *Server
}

func newTestServer(t *testing.T, tweak func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Security.JWTSecret = "server-test-secret"
	cfg.Security.AdminToken = adminToken
	cfg.Scheduler.Enabled = false
	cfg.App.LoginRateLimit = 0
	cfg.App.SyncRateLimit = 0
	if tweak != nil {
		tweak(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	srv, err := New(cfg, Deps{DB: storetest.NewDB(t), Redis: rdb, Blobs: blobs}, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return &testServer{t: t, srv: srv}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	return w
}

func (ts *testServer) expect(w *httptest.ResponseRecorder, status int, out any) {
	ts.t.Helper()
	if w.Code != status {
		ts.t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			ts.t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
}

// signup 注册并登录，返回 JWT 与用户 ID。
func (ts *testServer) signup(email string) (string, uint) {
	ts.t.Helper()
	var user struct {
		ID uint `json:"id_usuario"`
	}
	ts.expect(ts.do(http.MethodPost, "/usuarios", "", map[string]any{"email": email, "senha": "secret123", "nome": email}), http.StatusCreated, &user)
	var tok struct {
		Token string `json:"token"`
	}
	ts.expect(ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": email, "senha": "secret123"}), http.StatusOK, &tok)
	return tok.Token, user.ID
}

type idResp struct {
	Workspace uint `json:"id_workspace"`
	Task      uint `json:"id_tarefa"`
	Report    uint `json:"id_denuncia"`
	Attach    uint `json:"id_anexo"`
}

func (ts *testServer) workspaceWithTask(token, title string, members ...string) (uint, uint) {
	ts.t.Helper()
	var ws idResp
	ts.expect(ts.do(http.MethodPost, "/workspaces", token, map[string]any{"nome": "Casa", "emails": members}), http.StatusCreated, &ws)
	var task idResp
	due := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	ts.expect(ts.do(http.MethodPost, "/tarefas", token, map[string]any{"id_workspace": ws.Workspace, "titulo": title, "data_fim": due}), http.StatusCreated, &task)
	return ws.Workspace, task.Task
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.expect(ts.do(http.MethodGet, "/", "", nil), http.StatusOK, nil)
	ts.expect(ts.do(http.MethodGet, "/healthz", "", nil), http.StatusOK, nil)

	ts.expect(ts.do(http.MethodPost, "/auth/login-google", "", map[string]any{"email": "alice@example.com"}), http.StatusNotFound, nil)
	ts.expect(ts.do(http.MethodGet, "/auth/verificar-email?email=alice@example.com", "", nil), http.StatusNotFound, nil)

	var body map[string]any
	ts.expect(ts.do(http.MethodGet, "/tarefas/acessiveis", "", nil), http.StatusUnauthorized, &body)
	if body["error"] == nil {
		t.Fatalf("expected error envelope, got %v", body)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, _ := ts.signup("alice@example.com")
	bob, bobID := ts.signup("bob@example.com")

	wsID, taskID := ts.workspaceWithTask(alice, "Comprar pão", "bob@example.com")

	ts.expect(ts.do(http.MethodPost, "/tarefas", alice, map[string]any{"id_workspace": wsID, "titulo": "Comprar pão"}), http.StatusConflict, nil)

	var list []map[string]any
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/tarefas/workspace/%d", wsID), bob, nil), http.StatusOK, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 task in workspace, got %d", len(list))
	}

	ts.expect(ts.do(http.MethodPut, fmt.Sprintf("/tarefas/%d", taskID), bob, map[string]any{"status": "concluido"}), http.StatusForbidden, nil)
	ts.expect(ts.do(http.MethodPost, fmt.Sprintf("/tarefas/%d/permissoes", taskID), alice, map[string]any{"id_usuario": bobID, "nivel_acesso": 1}), http.StatusCreated, nil)

	var mine struct {
		Level   int  `json:"nivel_acesso"`
		CanEdit bool `json:"pode_editar"`
	}
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/tarefas/%d/minha-permissao", taskID), bob, nil), http.StatusOK, &mine)
	if mine.Level != 1 {
		t.Fatalf("expected editor level, got %+v", mine)
	}

	var upd struct {
		Points float64 `json:"pontos_ganhos"`
	}
	ts.expect(ts.do(http.MethodPut, fmt.Sprintf("/tarefas/%d", taskID), bob, map[string]any{"status": "concluido"}), http.StatusOK, &upd)
	if upd.Points != 1.0 {
		t.Fatalf("expected 1.0 points for on-time completion, got %v", upd.Points)
	}
	ts.expect(ts.do(http.MethodPut, fmt.Sprintf("/tarefas/%d", taskID), bob, map[string]any{"status": "concluido"}), http.StatusOK, &upd)
	if upd.Points != 0 {
		t.Fatalf("re-marking done must award nothing, got %v", upd.Points)
	}

	var me struct {
		Points float64 `json:"pontos"`
	}
	ts.expect(ts.do(http.MethodGet, "/usuarios/me", alice, nil), http.StatusOK, &me)
	if me.Points != 1.0 {
		t.Fatalf("owner should hold 1.0 points, got %v", me.Points)
	}

	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/tarefas/%d", taskID), bob, nil), http.StatusForbidden, nil)
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/tarefas/%d", taskID), alice, nil), http.StatusOK, nil)
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/tarefas/workspace/%d/tarefa/%d", wsID, taskID), alice, nil), http.StatusNotFound, nil)
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/tarefas/%d", taskID), alice, nil), http.StatusNotFound, nil)
}

func TestReportModerationOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, _ := ts.signup("alice@example.com")
	bob, _ := ts.signup("bob@example.com")
	_, taskID := ts.workspaceWithTask(alice, "Suspeita")

	ts.expect(ts.do(http.MethodPost, "/denuncias", bob, map[string]any{"id_tarefa": taskID, "motivo": "curto"}), http.StatusBadRequest, nil)
	var rep idResp
	ts.expect(ts.do(http.MethodPost, "/denuncias", bob, map[string]any{"id_tarefa": taskID, "motivo": "conteúdo inadequado"}), http.StatusCreated, &rep)
	ts.expect(ts.do(http.MethodPost, "/denuncias", bob, map[string]any{"id_tarefa": taskID, "motivo": "conteúdo inadequado"}), http.StatusConflict, nil)

	ts.expect(ts.do(http.MethodPut, fmt.Sprintf("/denuncias/%d/status", rep.Report), bob, map[string]any{"status": "aprovada"}), http.StatusForbidden, nil)

	var stats struct {
		ByStatus map[string]int64 `json:"por_status"`
		Total    int64            `json:"total"`
	}
	ts.expect(ts.do(http.MethodGet, "/denuncias/estatisticas", bob, nil), http.StatusOK, &stats)
	if stats.Total != 1 || stats.ByStatus["pendente"] != 1 || stats.ByStatus["aprovada"] != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	approve := fmt.Sprintf("/admin/denuncias/%d/aprovar", rep.Report)
	ts.expect(ts.do(http.MethodPost, approve, "", nil), http.StatusUnauthorized, nil)
	ts.expect(ts.do(http.MethodPost, approve, adminToken, nil), http.StatusOK, nil)
	ts.expect(ts.do(http.MethodPost, approve, adminToken, nil), http.StatusOK, nil)
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/admin/denuncias/%d/rejeitar", rep.Report), adminToken, nil), http.StatusConflict, nil)

	var got struct {
		Status string `json:"status"`
		Notes  string `json:"observacoes_moderador"`
	}
	ts.expect(ts.do(http.MethodGet, fmt.Sprintf("/denuncias/%d", rep.Report), bob, nil), http.StatusOK, &got)
	if got.Status != "aprovada" || got.Notes == "" {
		t.Fatalf("unexpected report after approval %+v", got)
	}
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/admin/tarefas/%d", taskID), adminToken, nil), http.StatusNotFound, nil)

	var dash map[string]any
	ts.expect(ts.do(http.MethodGet, "/admin/dashboard", adminToken, nil), http.StatusOK, &dash)
	if dash["usuarios"] == nil || dash["denuncias"] == nil {
		t.Fatalf("unexpected dashboard %v", dash)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Security.AdminToken = "" })
	ts.expect(ts.do(http.MethodGet, "/admin/dashboard", "anything", nil), http.StatusForbidden, nil)
}

func TestSyncOfflineOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, _ := ts.signup("alice@example.com")
	wsID, taskID := ts.workspaceWithTask(alice, "Base")

	batch := map[string]any{
		"user_email": "alice@example.com",
		"operacoes": []map[string]any{
			{"op_id": "a1", "op_type": "CREATE", "entity": "tarefa", "payload": map[string]any{"id_workspace": wsID, "titulo": "Offline 1"}},
			{"op_id": "a2", "op_type": "UPDATE", "entity": "tarefa", "payload": map[string]any{"id_tarefa": 999999, "titulo": "fantasma"}},
			{"op_id": "a3", "op_type": "UPDATE", "entity": "tarefa", "payload": map[string]any{"id_tarefa": taskID, "descricao": "editada offline"}},
		},
	}
	var out struct {
		Report struct {
			Total     int `json:"total_operacoes"`
			Successes int `json:"sucessos"`
			Failures  int `json:"falhas"`
		} `json:"relatorio"`
		Results []struct {
			OpID    string `json:"op_id"`
			Success bool   `json:"success"`
		} `json:"resultados"`
	}
	ts.expect(ts.do(http.MethodPost, "/sync/offline", alice, batch), http.StatusOK, &out)
	if out.Report.Total != 3 || out.Report.Successes != 2 || out.Report.Failures != 1 {
		t.Fatalf("unexpected report %+v", out.Report)
	}
	if len(out.Results) != 3 || out.Results[1].OpID != "a2" || out.Results[1].Success {
		t.Fatalf("unexpected results %+v", out.Results)
	}

	loose := map[string]any{"operacoes": []map[string]any{
		{"op_id": 7, "op_type": "CREATE", "entity": "tarefa", "timestamp": "not-a-date", "payload": map[string]any{"id_workspace": wsID, "titulo": "Offline 2"}},
	}}
	ts.expect(ts.do(http.MethodPost, "/sync/offline", alice, loose), http.StatusOK, &out)
	if out.Report.Successes != 1 || out.Results[0].OpID != "7" {
		t.Fatalf("malformed op fields should not reject the batch, got %+v", out)
	}

	batch["user_email"] = "mallory@example.com"
	ts.expect(ts.do(http.MethodPost, "/sync/offline", alice, batch), http.StatusForbidden, nil)
	ts.expect(ts.do(http.MethodPost, "/sync/offline", alice, map[string]any{"operacoes": nil}), http.StatusBadRequest, nil)

	var snap struct {
		Tasks []map[string]any `json:"tarefas"`
	}
	ts.expect(ts.do(http.MethodGet, "/sync/dados", alice, nil), http.StatusOK, &snap)
	if len(snap.Tasks) != 3 {
		t.Fatalf("expected 3 tasks in snapshot, got %d", len(snap.Tasks))
	}
}

func TestAttachmentUploadOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	alice, _ := ts.signup("alice@example.com")
	_, taskID := ts.workspaceWithTask(alice, "Com anexo")

	upload := func(method, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="arquivo"; filename="nota.pdf"`)
		h.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte(content))
		_ = mw.Close()

		req := httptest.NewRequest(method, fmt.Sprintf("/tarefa/%d/anexo", taskID), &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+alice)
		w := httptest.NewRecorder()
		ts.srv.Router().ServeHTTP(w, req)
		return w
	}

	var a idResp
	ts.expect(upload(http.MethodPost, "%PDF-1 primeira"), http.StatusCreated, &a)
	ts.expect(upload(http.MethodPost, "%PDF-1 segunda"), http.StatusConflict, nil)
	ts.expect(upload(http.MethodPut, "%PDF-1 terceira"), http.StatusOK, nil)

	w := ts.do(http.MethodGet, fmt.Sprintf("/anexo/%d/download", a.Attach), alice, nil)
	if w.Code != http.StatusOK || w.Body.String() != "%PDF-1 terceira" {
		t.Fatalf("unexpected download %d %q", w.Code, w.Body.String())
	}
	ts.expect(ts.do(http.MethodDelete, fmt.Sprintf("/anexo/%d", a.Attach), alice, nil), http.StatusOK, nil)
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.App.LoginRateLimit = 0.01
		cfg.App.LoginRateBurst = 2
	})
	for i := 0; i < 2; i++ {
		ts.expect(ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "x@example.com", "senha": "nope"}), http.StatusUnauthorized, nil)
	}
	w := ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": "x@example.com", "senha": "nope"})
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}
}

func TestSeedDemoDataIsIdempotent(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.App.SeedDemo = true })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for i := 0; i < 2; i++ {
		if err := ts.srv.SeedDemoData(ctx); err != nil {
			t.Fatalf("seed #%d: %v", i+1, err)
		}
	}
	var tok struct {
		Token string `json:"token"`
	}
	ts.expect(ts.do(http.MethodPost, "/auth/login", "", map[string]any{"email": demoEmail, "senha": demoPassword}), http.StatusOK, &tok)
	var spaces []map[string]any
	ts.expect(ts.do(http.MethodGet, "/workspaces", tok.Token, nil), http.StatusOK, &spaces)
	if len(spaces) != 1 {
		t.Fatalf("expected a single demo workspace, got %d", len(spaces))
	}
}
