package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"noiton/internal/config"
	"noiton/internal/model"
	"noiton/internal/store"
	"noiton/internal/store/storetest"
)

type fakeIndex struct {
	mu      sync.Mutex
	indexed []model.Task
}

func (f *fakeIndex) IndexTask(task model.Task, workspaceIDs []uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, task)
}

func (f *fakeIndex) RemoveTask(id uint) {}

func (f *fakeIndex) SearchTaskIDs(ctx context.Context, workspaceID uint, query string) ([]uint, error) {
	return nil, nil
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, st *store.Store, index *fakeIndex) *Scheduler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(st, index, config.SchedulerConfig{
		Timezone:        "UTC",
		OverdueSpec:     "@every 5m",
		RecurrenceSpec:  "0 0 * * * *",
		RecurrenceLimit: 10,
	}, logger)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.now = func() time.Time { return testNow }
	return s
}

func seedTask(t *testing.T, st *store.Store, task model.Task) *model.Task {
	t.Helper()
	ctx := context.Background()
	if task.OwnerID == 0 {
		u := &model.User{Email: "owner@example.com", Password: "x", Name: "Owner", Role: model.RoleUser}
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		task.OwnerID = u.ID
	}
	if task.WorkspaceID == 0 {
		ws := &model.Workspace{Name: "Casa", Creator: "owner@example.com"}
		if err := st.CreateWorkspace(ctx, ws, nil); err != nil {
			t.Fatalf("create workspace: %v", err)
		}
		task.WorkspaceID = ws.ID
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	if err := st.CreateTask(ctx, &task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	return &task
}

func ptr[T any](v T) *T { return &v }

func TestNextDue(t *testing.T) {
	due := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		recurrence string
		now        time.Time
		want       time.Time
	}{
		{model.RecurrenceDaily, due.Add(time.Hour), due.AddDate(0, 0, 1)},
		{model.RecurrenceDaily, due.AddDate(0, 0, 3), due.AddDate(0, 0, 4)},
		{model.RecurrenceWeekly, due.AddDate(0, 0, 8), due.AddDate(0, 0, 14)},
		{model.RecurrenceMonthly, due.Add(time.Hour), due.AddDate(0, 1, 0)},
	}
	for _, tc := range cases {
		got, ok := NextDue(due, tc.recurrence, tc.now)
		if !ok {
			t.Fatalf("%s: unexpected unknown recurrence", tc.recurrence)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%s now=%s: expected %s, got %s", tc.recurrence, tc.now, tc.want, got)
		}
		if !got.After(tc.now) {
			t.Fatalf("%s: next due %s must be after now", tc.recurrence, got)
		}
	}
	if _, ok := NextDue(due, "anual", due); ok {
		t.Fatalf("unknown recurrence should be rejected")
	}
}

func TestMarkOverdue(t *testing.T) {
	st := storetest.NewStore(t)
	s := newScheduler(t, st, &fakeIndex{})
	ctx := context.Background()

	late := seedTask(t, st, model.Task{Title: "atrasada", Status: model.StatusTodo, DueDate: ptr(testNow.Add(-time.Hour))})
	doing := seedTask(t, st, model.Task{Title: "andamento", Status: model.StatusInProgress, DueDate: ptr(testNow.Add(-time.Minute)), OwnerID: late.OwnerID, WorkspaceID: late.WorkspaceID})
	done := seedTask(t, st, model.Task{Title: "feita", Status: model.StatusDone, Done: true, DueDate: ptr(testNow.Add(-time.Hour)), OwnerID: late.OwnerID, WorkspaceID: late.WorkspaceID})
	future := seedTask(t, st, model.Task{Title: "futura", Status: model.StatusTodo, DueDate: ptr(testNow.Add(time.Hour)), OwnerID: late.OwnerID, WorkspaceID: late.WorkspaceID})

	n, err := s.MarkOverdue(ctx)
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 overdue tasks, got %d", n)
	}
	for _, tc := range []struct {
		id   uint
		want string
	}{
		{late.ID, model.StatusOverdue},
		{doing.ID, model.StatusOverdue},
		{done.ID, model.StatusDone},
		{future.ID, model.StatusTodo},
	} {
		got, err := st.GetTask(ctx, tc.id)
		if err != nil {
			t.Fatalf("get task %d: %v", tc.id, err)
		}
		if got.Status != tc.want {
			t.Fatalf("task %d: expected %s, got %s", tc.id, tc.want, got.Status)
		}
	}
}

func TestRollRecurring(t *testing.T) {
	st := storetest.NewStore(t)
	index := &fakeIndex{}
	s := newScheduler(t, st, index)
	ctx := context.Background()

	due := testNow.Add(-2 * time.Hour)
	daily := seedTask(t, st, model.Task{Title: "regar plantas", Status: model.StatusDone, Done: true, Recurring: true, Recurrence: ptr(model.RecurrenceDaily), DueDate: &due})
	pending := seedTask(t, st, model.Task{Title: "pendente", Status: model.StatusTodo, Recurring: true, Recurrence: ptr(model.RecurrenceDaily), DueDate: &due, OwnerID: daily.OwnerID, WorkspaceID: daily.WorkspaceID})
	once := seedTask(t, st, model.Task{Title: "única", Status: model.StatusDone, Done: true, DueDate: &due, OwnerID: daily.OwnerID, WorkspaceID: daily.WorkspaceID})

	n, err := s.RollRecurring(ctx)
	if err != nil {
		t.Fatalf("roll recurring: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 rolled task, got %d", n)
	}

	got, err := st.GetTask(ctx, daily.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != model.StatusTodo || got.Done {
		t.Fatalf("expected a_fazer/not done, got %s/%v", got.Status, got.Done)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due.AddDate(0, 0, 1)) {
		t.Fatalf("expected due date advanced one day, got %v", got.DueDate)
	}
	if len(index.indexed) != 1 || index.indexed[0].ID != daily.ID {
		t.Fatalf("expected rolled task reindexed, got %+v", index.indexed)
	}

	for _, id := range []uint{pending.ID, once.ID} {
		other, err := st.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("get task %d: %v", id, err)
		}
		if !other.DueDate.Equal(due) {
			t.Fatalf("task %d should keep its due date", id)
		}
	}

	if n, err := s.RollRecurring(ctx); err != nil || n != 0 {
		t.Fatalf("second run should be a no-op, got %d, %v", n, err)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	st := storetest.NewStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(st, nil, config.SchedulerConfig{OverdueSpec: "nunca", RecurrenceSpec: "@daily"}, logger); err == nil {
		t.Fatalf("expected invalid cron spec error")
	}
	if _, err := New(st, nil, config.SchedulerConfig{Timezone: "Marte/Olimpo", OverdueSpec: "@hourly", RecurrenceSpec: "@daily"}, logger); err == nil {
		t.Fatalf("expected invalid timezone error")
	}
}
