package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateGetRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "u1", "Ada", RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	state, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Role != RoleLearner || state.Name != "Ada" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.Goals) != 0 || len(state.Preferences) != 0 || len(state.History) != 0 {
		t.Fatalf("new state should be empty: %+v", state)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "u1", "Ada", RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := s.Create(ctx, "u1", "Ada", RoleCoach)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetUnknownUser(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMergePreferencesLeavesHistoryUntouched(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "u1", "", RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	seed := UserState{
		UserID: "u1",
		Role:   RoleLearner,
		History: []Turn{
			{Role: TurnUser, Content: "hello", CreatedAt: time.Now().UTC()},
			{Role: TurnAssistant, Content: "hi", CreatedAt: time.Now().UTC()},
		},
	}
	if err := s.Put(ctx, "u1", seed); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	merged, err := s.Merge(ctx, "u1", Patch{Preferences: map[string]string{"x": "y"}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if merged.Preferences["x"] != "y" {
		t.Fatalf("Preferences = %v, want x=y", merged.Preferences)
	}
	if len(merged.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(merged.History))
	}

	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Preferences["x"] != "y" || len(got.History) != 2 {
		t.Fatalf("state after merge = %+v", got)
	}
}

func TestMergeUnknownUser(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Merge(context.Background(), "ghost", Patch{Goals: []string{"learn go"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Merge() error = %v, want ErrNotFound", err)
	}
}

func TestMergeReplacesSuppliedFieldsWholesale(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "u1", "", RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Merge(ctx, "u1", Patch{Preferences: map[string]string{"a": "1", "b": "2"}}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	merged, err := s.Merge(ctx, "u1", Patch{Preferences: map[string]string{"c": "3"}})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(merged.Preferences) != 1 || merged.Preferences["c"] != "3" {
		t.Fatalf("Preferences = %v, want only c=3", merged.Preferences)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, "u1", "", RoleLearner); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Preferences["leak"] = "oops"
	got.History = append(got.History, Turn{Role: TurnUser, Content: "injected"})

	fresh, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(fresh.Preferences) != 0 || len(fresh.History) != 0 {
		t.Fatalf("mutating a returned state leaked into the store: %+v", fresh)
	}
}

func TestPutUpserts(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	state := UserState{
		UserID: "fresh",
		Role:   RoleLearner,
		History: []Turn{
			{Role: TurnUser, Content: "hello"},
		},
	}
	if err := s.Put(ctx, "fresh", state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("Get() after Put error = %v", err)
	}
	if len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Fatalf("state after Put = %+v", got)
	}
}
