package razmkarsdk_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"razmkar/internal/config"
	"razmkar/internal/db"
	"razmkar/internal/engine"
	"razmkar/internal/migrate"
	"razmkar/internal/server"
	razmkarsdk "razmkar/sdk/go"
)

func newClient(t *testing.T) *razmkarsdk.Client {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), filepath.Join(dir, "uploads"))
	if err := e.Settings.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return razmkarsdk.New(srv.URL, "sdk-test")
}

func TestPlanningRoundTrip(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	p, err := c.CreateProject(ctx, "boundary survey", "Karimi")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	m, err := c.CreateMission(ctx, p.ID, "draft letter #نامه", "2025-03-11")
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}

	res, err := c.Assign(ctx, razmkarsdk.PlaceRequest{Date: "2025-03-11", Block: "PM", MissionID: m.ID})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !res.Changed || res.Version != 1 || res.Usage["2025-03-11_PM"].Used != 1 {
		t.Fatalf("unexpected assign result %+v", res)
	}

	res, err = c.Move(ctx, razmkarsdk.MoveRequest{
		SrcDate: "2025-03-11", SrcBlock: "PM",
		DstDate: "2025-03-13", DstBlock: "AM",
		MissionID: m.ID,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(res.Schedule["2025-03-11_PM"]) != 0 || len(res.Schedule["2025-03-13_AM"]) != 1 {
		t.Fatalf("unexpected schedule %v", res.Schedule)
	}

	week, err := c.Week(ctx, "2025-03-13")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if week.Week != "2025-11" || week.Version != 2 || len(week.Blocks) != 3 {
		t.Fatalf("unexpected week %+v", week)
	}

	page, err := c.EventsPage(ctx, p.ID, 10, "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) == 0 || page.Items[0].Type != "schedule.move" || page.Items[0].ActorID != "sdk-test" {
		t.Fatalf("unexpected events %+v", page.Items)
	}
}

func TestAPIErrorCarriesEnvelope(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	_, err := c.Move(ctx, razmkarsdk.MoveRequest{
		SrcDate: "2025-03-16", SrcBlock: "AM",
		DstDate: "2025-03-17", DstBlock: "AM",
		MissionID: 1,
	})
	if !razmkarsdk.IsCode(err, "cross_week_not_supported") {
		t.Fatalf("expected cross_week_not_supported, got %v", err)
	}
	apiErr := err.(*razmkarsdk.APIError)
	if apiErr.StatusCode != 422 || apiErr.Details["src_week"] == nil {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
