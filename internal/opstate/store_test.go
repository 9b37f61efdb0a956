package opstate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "opstate_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get(context.Background(), "ns", "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string for missing key", val)
	}
}

func TestSetUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "behavior", "tone", "formal"); err != nil {
		t.Fatalf("Set(formal) error: %v", err)
	}
	if err := s.Set(ctx, "behavior", "tone", "casual"); err != nil {
		t.Fatalf("Set(casual) error: %v", err)
	}

	val, err := s.Get(ctx, "behavior", "tone")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "casual" {
		t.Errorf("Get() = %q, want %q", val, "casual")
	}
}

func TestSetManyAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	want := map[string]string{
		"temperature": "0.4",
		"max_tokens":  "120",
		"humor":       "playful",
	}
	if err := s.SetMany(ctx, "behavior", want); err != nil {
		t.Fatalf("SetMany() error: %v", err)
	}
	if err := s.Set(ctx, "other", "temperature", "9"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := s.List(ctx, "behavior")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestListEmptyNamespace(t *testing.T) {
	s := testStore(t)

	got, err := s.List(context.Background(), "nothing")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty non-nil map", got)
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "behavior", "tone", "formal"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "behavior", "tone"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(ctx, "behavior", "tone"); err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	val, _ := s.Get(ctx, "behavior", "tone")
	if val != "" {
		t.Errorf("Get() after Delete = %q, want empty", val)
	}
}

func TestNewStoreDB_PureGoDriver(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewStoreDB(db)
	if err != nil {
		t.Fatalf("NewStoreDB() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.Set(ctx, "behavior", "ai_enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "behavior", "ai_enabled"); got != "false" {
		t.Errorf("Get() = %q, want false", got)
	}
}
