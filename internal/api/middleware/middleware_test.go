package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"noiton/internal/model"
	"noiton/internal/pkg/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDenylist(t *testing.T) *TokenDenylist {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenDenylist(rdb, discardLogger())
}

func authRouter(denylist *TokenDenylist) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(testSecret, denylist))
	r.GET("/me", func(c *gin.Context) {
		caller := Caller(c)
		jti, _ := TokenID(c)
		c.JSON(http.StatusOK, gin.H{"id": caller.UserID, "email": caller.Email, "role": caller.Role, "jti": jti})
	})
	r.GET("/mod", RequireModerator(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, time.Hour, &model.User{ID: 7, Email: "Ana@Example.com", Role: model.RoleUser})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w := doGet(authRouter(nil), "/me", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		ID    uint   `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
		JTI   string `json:"jti"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != 7 || body.Email != "ana@example.com" || body.Role != model.RoleUser || body.JTI == "" {
		t.Fatalf("unexpected caller %+v", body)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	expired, _ := IssueToken(testSecret, -time.Minute, &model.User{ID: 1, Email: "a@example.com"})
	otherKey, _ := IssueToken("other-secret", time.Hour, &model.User{ID: 1, Email: "a@example.com"})
	noSubject, _ := IssueToken(testSecret, time.Hour, &model.User{Email: "a@example.com"})

	cases := map[string]string{
		"missing":    "",
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"wrong key":  otherKey,
		"no user id": noSubject,
	}
	r := authRouter(nil)
	for name, token := range cases {
		w := doGet(r, "/me", token)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, w.Code)
		}
	}
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	denylist := newDenylist(t)
	r := authRouter(denylist)
	token, _ := IssueToken(testSecret, time.Hour, &model.User{ID: 3, Email: "c@example.com"})

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w := doGet(r, "/me", token); w.Code != http.StatusOK {
		t.Fatalf("expected 200 before logout, got %d", w.Code)
	}
	if err := denylist.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if w := doGet(r, "/me", token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestRequireModerator(t *testing.T) {
	r := authRouter(nil)
	user, _ := IssueToken(testSecret, time.Hour, &model.User{ID: 1, Email: "u@example.com", Role: model.RoleUser})
	mod, _ := IssueToken(testSecret, time.Hour, &model.User{ID: 2, Email: "m@example.com", Role: model.RoleModerator})

	if w := doGet(r, "/mod", user); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user, got %d", w.Code)
	}
	if w := doGet(r, "/mod", mod); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for moderator, got %d", w.Code)
	}
}

func TestAdminToken(t *testing.T) {
	newRouter := func(token string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", AdminToken(token), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	if w := doGet(newRouter(""), "/admin", "anything"); w.Code != http.StatusForbidden {
		t.Fatalf("disabled namespace: expected 403, got %d", w.Code)
	}
	r := newRouter("s3cr3t")
	if w := doGet(r, "/admin", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if w := doGet(r, "/admin", "wrong"); w.Code != http.StatusForbidden {
		t.Fatalf("wrong token: expected 403, got %d", w.Code)
	}
	if w := doGet(r, "/admin", "s3cr3t"); w.Code != http.StatusNoContent {
		t.Fatalf("valid token: expected 204, got %d", w.Code)
	}
}

type stubLimiter struct {
	allow bool
	wait  time.Duration
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	s.keys = append(s.keys, subject)
	return s.allow, s.wait, s.err
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allow: false, wait: 1500 * time.Millisecond}
	r := gin.New()
	r.GET("/login", RateLimit(limiter, ByClientIP, discardLogger()), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doGet(r, "/login", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] == "" {
		t.Fatalf("expected client ip key, got %v", limiter.keys)
	}

	limiter.allow, limiter.err = true, errors.New("redis down")
	if w := doGet(r, "/login", ""); w.Code != http.StatusOK {
		t.Fatalf("limiter errors should fail open, got %d", w.Code)
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(discardLogger()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

	w := doGet(r, "/ping", "")
	id := w.Header().Get("X-Request-ID")
	if id == "" || w.Body.String() != id {
		t.Fatalf("expected generated request id echoed, header=%q body=%q", id, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("client request id should be kept")
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	r := gin.New()
	r.GET("/conflict", func(c *gin.Context) {
		WriteError(c, discardLogger(), apperr.Conflict("Duplicado").WithDetails(gin.H{"campo": "titulo"}))
	})
	r.GET("/boom", func(c *gin.Context) {
		WriteError(c, discardLogger(), errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	})

	w := doGet(r, "/conflict", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "Duplicado" || body["details"] == nil {
		t.Fatalf("unexpected body %v", body)
	}

	w = doGet(r, "/boom", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body = map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "Erro interno do servidor" {
		t.Fatalf("driver text must not leak: %v", body)
	}
	if _, ok := body["details"]; ok {
		t.Fatalf("internal errors carry no details")
	}
}
