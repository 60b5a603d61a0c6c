package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"noiton/internal/api/middleware"
	"noiton/internal/service"
	"noiton/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const secret = "auth-test-secret"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	denylist := middleware.NewTokenDenylist(rdb, logger)

	users := service.NewUserService(storetest.NewStore(t), []string{"mod@example.com"}, logger)
	h := NewHandler(users, secret, time.Hour, denylist, logger)

	r := gin.New()
	r.POST("/usuarios", h.Register)
	r.POST("/auth/login", h.Login)
	authed := r.Group("/")
	authed.Use(middleware.AuthMiddleware(secret, denylist))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/whoami", func(c *gin.Context) { c.JSON(http.StatusOK, middleware.Caller(c)) })
	return r
}

func postJSON(r http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginLogout(t *testing.T) {
	r := newRouter(t)

	w := postJSON(r, "/usuarios", map[string]any{"email": "Ana@Example.com", "senha": "segredo1", "nome": "Ana"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("segredo1")) {
		t.Fatalf("password must not be echoed")
	}

	w = postJSON(r, "/usuarios", map[string]any{"email": "ana@example.com", "senha": "segredo1", "nome": "Ana"}, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", w.Code)
	}

	w = postJSON(r, "/auth/login", map[string]any{"email": "ana@example.com", "senha": "errada"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", w.Code)
	}

	w = postJSON(r, "/auth/login", map[string]any{"email": "ana@example.com", "senha": "segredo1"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.Token == "" || tok.Email != "ana@example.com" {
		t.Fatalf("unexpected login response %+v", tok)
	}

	claims, err := middleware.ParseToken(secret, tok.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID == 0 || claims.Email != "ana@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if w := postJSON(r, "/auth/logout", nil, tok.Token); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token should be rejected, got %d", rec.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	r := newRouter(t)
	if w := postJSON(r, "/auth/login", map[string]any{"email": ""}, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := postJSON(r, "/auth/login", map[string]any{"email": "ghost@example.com", "senha": "x"}, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", w.Code)
	}
}

func TestModeratorRoleInToken(t *testing.T) {
	r := newRouter(t)
	postJSON(r, "/usuarios", map[string]any{"email": "mod@example.com", "senha": "segredo1", "nome": "Mod"}, "")
	w := postJSON(r, "/auth/login", map[string]any{"email": "mod@example.com", "senha": "segredo1"}, "")
	var tok tokenResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tok)
	claims, err := middleware.ParseToken(secret, tok.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "moderator" {
		t.Fatalf("expected moderator role, got %q", claims.Role)
	}
}
