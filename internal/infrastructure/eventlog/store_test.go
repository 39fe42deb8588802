package eventlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rfsense/tagbridge/internal/infrastructure/config"
)

// openTestStore creates a store backed by a temp directory database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.EventLogConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "events.db"),
		WALMode:     true,
		BusyTimeout: 5,
	}
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	store := openTestStore(t)

	if store.Path() == "" {
		t.Error("Path() should return the database path")
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	cfg := config.EventLogConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "nested", "dir", "events.db"),
		WALMode:     false,
		BusyTimeout: 5,
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
}

func TestClose_NilDB(t *testing.T) {
	store := &Store{}
	if err := store.Close(); err != nil {
		t.Errorf("Close() on empty store error = %v", err)
	}
}

func TestRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ev := &Event{
		Kind:     KindStateTransition,
		ReaderID: "dock-door-3",
		Detail:   map[string]any{"from": "starting", "to": "running"},
	}

	if err := store.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if ev.ID == "" {
		t.Error("Record() should generate an ID")
	}
	if ev.CreatedAt.IsZero() {
		t.Error("Record() should set CreatedAt")
	}
}

func TestRecord_MissingKind(t *testing.T) {
	store := openTestStore(t)

	err := store.Record(context.Background(), &Event{ReaderID: "dock-door-3"})
	if !errors.Is(err, ErrMissingKind) {
		t.Errorf("Record() error = %v, want ErrMissingKind", err)
	}
}

func TestRecord_PreservesExplicitID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ev := &Event{
		ID:       "evt-fixed001",
		Kind:     KindCommand,
		ReaderID: "dock-door-3",
	}
	if err := store.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ev.ID != "evt-fixed001" {
		t.Errorf("Record() overwrote explicit ID: %s", ev.ID)
	}
}

func TestList_RoundtripsDetail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ev := &Event{
		Kind:     KindCommand,
		ReaderID: "dock-door-3",
		Detail:   map[string]any{"command": "restart", "request_id": "req-123"},
	}
	if err := store.Record(ctx, ev); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	result, err := store.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("List() total = %d, want 1", result.Total)
	}

	got := result.Events[0]
	if got.Kind != KindCommand {
		t.Errorf("event kind = %q, want %q", got.Kind, KindCommand)
	}
	if got.ReaderID != "dock-door-3" {
		t.Errorf("event reader_id = %q, want %q", got.ReaderID, "dock-door-3")
	}
	if got.Detail["command"] != "restart" {
		t.Errorf("event detail command = %v, want restart", got.Detail["command"])
	}
}

func TestList_FilterByKind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	kinds := []string{KindStartup, KindStateTransition, KindStateTransition, KindCommand}
	for _, kind := range kinds {
		if err := store.Record(ctx, &Event{Kind: kind, ReaderID: "r1"}); err != nil {
			t.Fatalf("Record(%s) error = %v", kind, err)
		}
	}

	result, err := store.List(ctx, Filter{Kind: KindStateTransition})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 2 {
		t.Errorf("List(kind=state_transition) total = %d, want 2", result.Total)
	}
	for _, ev := range result.Events {
		if ev.Kind != KindStateTransition {
			t.Errorf("unexpected kind in filtered results: %s", ev.Kind)
		}
	}
}

func TestList_OrderAndPagination(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := &Event{
			Kind:      KindCommand,
			ReaderID:  "r1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := store.List(ctx, Filter{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("List() total = %d, want 5", result.Total)
	}
	if len(result.Events) != 2 {
		t.Fatalf("List() returned %d events, want 2", len(result.Events))
	}

	// Most recent first.
	if !result.Events[0].CreatedAt.After(result.Events[1].CreatedAt) {
		t.Error("List() should order events most recent first")
	}

	page2, err := store.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() page 2 error = %v", err)
	}
	if len(page2.Events) != 2 {
		t.Errorf("List() page 2 returned %d events, want 2", len(page2.Events))
	}
	if page2.Events[0].ID == result.Events[0].ID {
		t.Error("List() pagination returned overlapping pages")
	}
}

func TestList_Empty(t *testing.T) {
	store := openTestStore(t)

	result, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 0 {
		t.Errorf("List() total = %d, want 0", result.Total)
	}
	if result.Events == nil {
		t.Error("List() should return empty slice, not nil")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	store := openTestStore(t)

	result, err := store.List(context.Background(), Filter{Limit: 10000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != maxListLimit {
		t.Errorf("List() limit = %d, want clamped to %d", result.Limit, maxListLimit)
	}
	if result.Offset != 0 {
		t.Errorf("List() offset = %d, want clamped to 0", result.Offset)
	}
}
