package repo_test

import (
	"context"
	"errors"
	"testing"

	"razmkar/internal/db"
	"razmkar/internal/migrate"
	"razmkar/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func TestPutSettingVersioning(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.GetSetting(ctx, repo.GlobalScope, "k"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	v, err := r.PutSetting(ctx, repo.GlobalScope, "k", `{"a":1}`, 0)
	if err != nil || v != 1 {
		t.Fatalf("insert: v=%d err=%v", v, err)
	}
	if _, err := r.PutSetting(ctx, repo.GlobalScope, "k", `{"a":2}`, 0); !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("second insert should conflict, got %v", err)
	}
	v, err = r.PutSetting(ctx, repo.GlobalScope, "k", `{"a":2}`, 1)
	if err != nil || v != 2 {
		t.Fatalf("update: v=%d err=%v", v, err)
	}
	if _, err := r.PutSetting(ctx, repo.GlobalScope, "k", `{"a":3}`, 1); !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("stale update should conflict, got %v", err)
	}
	v, err = r.PutSetting(ctx, repo.GlobalScope, "k", `{"a":4}`, repo.AnyVersion)
	if err != nil || v != 3 {
		t.Fatalf("unconditional: v=%d err=%v", v, err)
	}
	s, err := r.GetSetting(ctx, repo.GlobalScope, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Value != `{"a":4}` || s.Version != 3 {
		t.Fatalf("unexpected row %+v", s)
	}
}

func TestListSettingsByPrefix(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, k := range []string{"capacity_schedule_2025-02", "capacity_schedule_2025-01", "tag_category_map"} {
		if _, err := r.PutSetting(ctx, repo.GlobalScope, k, "{}", repo.AnyVersion); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	items, err := r.ListSettings(ctx, repo.GlobalScope, "capacity_schedule_")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Key != "capacity_schedule_2025-01" {
		t.Fatalf("unexpected items %+v", items)
	}
}
