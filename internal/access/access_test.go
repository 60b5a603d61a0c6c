package access

import (
	"context"
	"errors"
	"testing"

	"noiton/internal/pkg/apperr"
)

type mockLookup struct {
	grants map[[2]uint]int
	owners map[uint]uint
	err    error

	grantCalls int
	ownerCalls int
}

func (m *mockLookup) FindGrantLevel(_ context.Context, taskID, userID uint) (int, bool, error) {
	m.grantCalls++
	if m.err != nil {
		return 0, false, m.err
	}
	level, ok := m.grants[[2]uint{taskID, userID}]
	return level, ok, nil
}

func (m *mockLookup) IsTaskOwner(_ context.Context, taskID, userID uint) (bool, error) {
	m.ownerCalls++
	owner, ok := m.owners[taskID]
	return ok && owner == userID, nil
}

func (m *mockLookup) TaskExists(_ context.Context, taskID uint) (bool, error) {
	_, ok := m.owners[taskID]
	return ok, nil
}

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		level  Level
		action Action
		allow  bool
	}{
		{name: "owner view", level: LevelOwner, action: ActionView, allow: true},
		{name: "owner edit", level: LevelOwner, action: ActionEdit, allow: true},
		{name: "owner delete", level: LevelOwner, action: ActionDelete, allow: true},
		{name: "editor view", level: LevelEditor, action: ActionView, allow: true},
		{name: "editor edit", level: LevelEditor, action: ActionEdit, allow: true},
		{name: "editor delete", level: LevelEditor, action: ActionDelete, allow: false},
		{name: "viewer view", level: LevelViewer, action: ActionView, allow: true},
		{name: "viewer edit", level: LevelViewer, action: ActionEdit, allow: false},
		{name: "viewer delete", level: LevelViewer, action: ActionDelete, allow: false},
		{name: "none view", level: LevelNone, action: ActionView, allow: false},
		{name: "none edit", level: LevelNone, action: ActionEdit, allow: false},
		{name: "none delete", level: LevelNone, action: ActionDelete, allow: false},
		{name: "unknown action", level: LevelOwner, action: Action("share"), allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.level, tc.action); got != tc.allow {
				t.Fatalf("Can(%d, %q) = %v, want %v", tc.level, tc.action, got, tc.allow)
			}
		})
	}
}

func TestResolveOwnerWithoutGrant(t *testing.T) {
	lookup := &mockLookup{owners: map[uint]uint{1: 10}}
	level, err := NewEvaluator(lookup).Resolve(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if level != LevelOwner {
		t.Fatalf("expected owner level, got %d", level)
	}
	if lookup.grantCalls != 1 || lookup.ownerCalls != 1 {
		t.Fatalf("expected one lookup each, got grant=%d owner=%d", lookup.grantCalls, lookup.ownerCalls)
	}
}

func TestResolveGrantWinsOverOwnership(t *testing.T) {
	lookup := &mockLookup{
		grants: map[[2]uint]int{{1, 10}: 2},
		owners: map[uint]uint{1: 10},
	}
	level, err := NewEvaluator(lookup).Resolve(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if level != LevelViewer {
		t.Fatalf("expected grant level 2 to win, got %d", level)
	}
	if lookup.ownerCalls != 0 {
		t.Fatalf("owner lookup must be skipped when a grant exists")
	}
}

func TestResolveNoAccess(t *testing.T) {
	lookup := &mockLookup{owners: map[uint]uint{1: 10}}
	level, err := NewEvaluator(lookup).Resolve(context.Background(), 1, 11)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if level != LevelNone {
		t.Fatalf("expected none, got %d", level)
	}
	for _, action := range []Action{ActionView, ActionEdit, ActionDelete} {
		if Can(level, action) {
			t.Fatalf("expected %s denied", action)
		}
	}
}

func TestRequireDistinguishesMissingTask(t *testing.T) {
	lookup := &mockLookup{owners: map[uint]uint{1: 10}}
	ev := NewEvaluator(lookup)

	err := ev.Require(context.Background(), 99, 10, ActionView, "")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	err = ev.Require(context.Background(), 1, 11, ActionEdit, "")
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	if err := ev.Require(context.Background(), 1, 10, ActionDelete, ""); err != nil {
		t.Fatalf("owner should pass delete: %v", err)
	}
}

func TestRequireLookupError(t *testing.T) {
	ev := NewEvaluator(&mockLookup{err: errors.New("db down")})
	err := ev.Require(context.Background(), 1, 1, ActionView, "")
	if !apperr.IsKind(err, apperr.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestCapabilitiesAndDescription(t *testing.T) {
	caps := CapabilitiesOf(LevelEditor)
	if !caps.CanView || !caps.CanEdit || caps.CanDelete {
		t.Fatalf("unexpected editor capabilities %+v", caps)
	}
	if Describe(LevelViewer) != "Visualizador (pode apenas ver)" {
		t.Fatalf("unexpected viewer description %q", Describe(LevelViewer))
	}
	if (CapabilitiesOf(LevelNone) != Capabilities{}) {
		t.Fatalf("none must have no capabilities")
	}
}
