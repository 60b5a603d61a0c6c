package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"noiton/internal/config"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := st.Put(ctx, "tarefa_1_pdf.pdf", strings.NewReader("conteudo"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := st.Open(ctx, "tarefa_1_pdf.pdf")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "conteudo" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := st.Remove(ctx, "tarefa_1_pdf.pdf"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := st.Remove(ctx, "tarefa_1_pdf.pdf"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if _, err := st.Open(ctx, "tarefa_1_pdf.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreKeepsKeysInsideDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.Put(ctx, "../../escape.txt", strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := st.Open(ctx, "escape.txt")
	if err != nil {
		t.Fatalf("expected file stored under base name: %v", err)
	}
	rc.Close()
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
