package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"noiton/internal/model"
)

func TestServiceWithoutBackendFallsBack(t *testing.T) {
	svc := NewService(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	svc.IndexTask(model.Task{ID: 1, Title: "x"}, []uint{1})
	svc.RemoveTask(1)
	svc.Reindex([]TaskRecord{{ID: 1}})

	_, err := svc.SearchTaskIDs(context.Background(), 1, "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *Service
	svc.IndexTask(model.Task{ID: 1}, nil)
	svc.Close()
	if _, err := svc.SearchTaskIDs(context.Background(), 1, "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
