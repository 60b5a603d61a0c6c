package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestFromMapsStoreErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("get task: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
		{"gorm duplicate", gorm.ErrDuplicatedKey, http.StatusConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, http.StatusConflict},
		{"postgres duplicate", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), http.StatusConflict},
		{"other", errors.New("connection reset"), http.StatusInternalServerError},
		{"passthrough", Authorization("sem acesso"), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := From(tc.err)
			if got.Status() != tc.status {
				t.Fatalf("status = %d, want %d", got.Status(), tc.status)
			}
		})
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := From(errors.New("pq: relation does not exist"))
	if err.Message != "Erro interno do servidor" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if err.Details != nil {
		t.Fatalf("internal errors must not carry details")
	}
	if !errors.Is(err, err.Cause) {
		t.Fatalf("expected cause to be unwrappable")
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NotFound("Tarefa não encontrada"))
	if !IsKind(err, KindNotFound) {
		t.Fatalf("expected not found kind")
	}
	if IsKind(err, KindConflict) {
		t.Fatalf("unexpected conflict kind")
	}
}
