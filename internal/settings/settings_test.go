package settings_test

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"razmkar/internal/config"
	"razmkar/internal/db"
	"razmkar/internal/migrate"
	"razmkar/internal/repo"
	"razmkar/internal/settings"
)

func newTestService(t *testing.T) settings.Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return settings.Service{Repo: repo.Repo{DB: conn}, Defaults: config.Default().Planning}
}

func raw(t *testing.T, m map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := map[string]json.RawMessage{}
	for k, v := range m {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		out[k] = data
	}
	return out
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	svc := newTestService(t)
	s, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.CapacityFor("AM") != 3 || s.CapacityFor("MID") != 2 || s.CategoryPoints("field") != 2 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.AllowOverflow {
		t.Fatalf("overflow should default to false")
	}
	if !reflect.DeepEqual(s.Blocks, []string{"AM", "MID", "PM"}) {
		t.Fatalf("blocks %v", s.Blocks)
	}
}

func TestEnsureDefaultsKeepsExistingValues(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.Set(ctx, settings.KeyAllowOverflow, true, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := svc.EnsureDefaults(ctx); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if err := svc.EnsureDefaults(ctx); err != nil {
		t.Fatalf("second ensure defaults: %v", err)
	}
	c, err := svc.Capacity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !c.AllowOverflow {
		t.Fatalf("seeding overwrote an existing value")
	}
	row, err := svc.Repo.GetSetting(ctx, repo.GlobalScope, settings.KeyBlockPoints)
	if err != nil || row.Version != 1 {
		t.Fatalf("seeded row %+v %v", row, err)
	}
}

func TestUpdateCapacityAppliesOnlyWellTypedFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c, u, err := svc.UpdateCapacity(ctx, raw(t, map[string]any{
		settings.KeyBlockPoints:   map[string]int{"AM": 4, "MID": 2, "PM": 1},
		settings.KeyAllowOverflow: "yes",
		settings.KeyBlocks:        []string{"AM", "LATE_PM"},
		settings.KeyWorkdays:      []string{"sat", "sun"},
		"unrelated":               1,
	}), "admin")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reflect.DeepEqual(u.Applied, []string{settings.KeyBlockPoints, settings.KeyWorkdays}) {
		t.Fatalf("applied %v", u.Applied)
	}
	if !reflect.DeepEqual(u.Ignored, []string{settings.KeyAllowOverflow, settings.KeyBlocks, "unrelated"}) {
		t.Fatalf("ignored %v", u.Ignored)
	}
	if c.BlockPoints["AM"] != 4 || c.AllowOverflow || len(c.Blocks) != 3 {
		t.Fatalf("capacity %+v", c)
	}
	s, err := svc.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.CapacityFor("AM") != 4 || !reflect.DeepEqual(s.Workdays, []string{"sat", "sun"}) {
		t.Fatalf("loaded %+v", s)
	}
}

func TestUpdateTagsNormalizesHashes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	tags, u, err := svc.UpdateTags(ctx, raw(t, map[string]any{
		settings.KeyTagCategoryMap:   map[string]string{"#visit": "field", "letter": "administrative"},
		settings.KeyCategoryPriority: 42,
	}), "admin")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(u.Applied) != 1 || len(u.Ignored) != 1 {
		t.Fatalf("update result %+v", u)
	}
	if !reflect.DeepEqual(tags.TagCategoryMap, map[string]string{"visit": "field", "letter": "administrative"}) {
		t.Fatalf("tags %v", tags.TagCategoryMap)
	}
	if len(tags.CategoryPriority) == 0 {
		t.Fatalf("priority should keep default")
	}
	evts, err := svc.Repo.LatestEvents(ctx, repo.EventFilters{Type: "settings.updated"})
	if err != nil || len(evts) != 1 || evts[0].ActorID != "admin" {
		t.Fatalf("events %+v %v", evts, err)
	}
}

func TestUndecodableValueFallsBack(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Repo.PutSetting(ctx, repo.GlobalScope, settings.KeyBlockPoints, "not json", repo.AnyVersion); err != nil {
		t.Fatal(err)
	}
	s, err := svc.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.CapacityFor("AM") != 3 {
		t.Fatalf("expected default capacity, got %d", s.CapacityFor("AM"))
	}
}
