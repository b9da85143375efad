package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"razmkar/internal/config"
	"razmkar/internal/settings"
)

func TestOpenSeedsSettings(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Planning.BlockPoints = map[string]int{"AM": 5, "MID": 2, "PM": 2}
	ctx := context.Background()
	e, err := Open(ctx, dir, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c, err := e.Settings.Capacity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.BlockPoints["AM"] != 5 {
		t.Fatalf("seed not applied: %v", c.BlockPoints)
	}
	if !strings.HasPrefix(e.Storage.Dir, dir) || filepath.Base(e.Storage.Dir) != "uploads" {
		t.Fatalf("uploads dir %s", e.Storage.Dir)
	}

	// a second open with different config keeps stored values
	Close(e)
	cfg.Planning.BlockPoints = map[string]int{"AM": 9}
	e, err = Open(ctx, dir, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer Close(e)
	var points map[string]int
	if ok, err := e.Settings.Get(ctx, settings.KeyBlockPoints, &points); !ok || err != nil || points["AM"] != 5 {
		t.Fatalf("stored points %v %v %v", points, ok, err)
	}
}
