package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(workers, capacity int, timeout time.Duration) *Pool {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPool(logger, workers, capacity, timeout)
}

func TestPool_RunsAllJobsBeforeShutdownReturns(t *testing.T) {
	p := newTestPool(3, 10, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := p.Submit(Job{Name: "mail", Run: func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			completed.Add(1)
			return nil
		}})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := p.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed jobs, got %d", completed.Load())
	}
	if s := p.Stats(); s.Enqueued != 5 || s.Succeeded != 5 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestPool_CountsFailuresAndPanics(t *testing.T) {
	p := newTestPool(1, 5, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var executed atomic.Bool
	p.Submit(Job{Name: "fail", Run: func(ctx context.Context) error { return errors.New("smtp down") }})
	p.Submit(Job{Name: "panic", Run: func(ctx context.Context) error { panic("boom") }})
	p.Submit(Job{Name: "ok", Run: func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}})

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := p.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	s := p.Stats()
	if s.Failed != 1 || s.Panics != 1 || s.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if !executed.Load() {
		t.Fatalf("worker should survive a panicking job")
	}
}

func TestPool_DropsWhenFullOrClosed(t *testing.T) {
	p := newTestPool(1, 1, 0)

	if !p.Submit(Job{Name: "first", Run: func(ctx context.Context) error { return nil }}) {
		t.Fatalf("first submit should fit")
	}
	if p.Submit(Job{Name: "second", Run: func(ctx context.Context) error { return nil }}) {
		t.Fatalf("second submit should be dropped while no worker drains the queue")
	}
	if p.Stats().Dropped != 1 {
		t.Fatalf("expected one dropped job, got %d", p.Stats().Dropped)
	}
	if p.Submit(Job{Name: "nil"}) {
		t.Fatalf("job without Run must be rejected")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if p.Submit(Job{Name: "late", Run: func(ctx context.Context) error { return nil }}) {
		t.Fatalf("closed pool must reject jobs")
	}
}

func TestPool_JobTimeout(t *testing.T) {
	p := newTestPool(1, 1, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var sawDeadline atomic.Bool
	p.Submit(Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}})

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := p.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !sawDeadline.Load() {
		t.Fatalf("job context should carry the configured timeout")
	}
}
