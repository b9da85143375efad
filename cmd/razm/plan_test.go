package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"razmkar/internal/planning"
)

func TestRenderBoardMarksOverCapacity(t *testing.T) {
	view := planning.WeekView{
		Week:    "2025-11",
		Version: 3,
		Start:   "2025-03-10",
		End:     "2025-03-16",
		Days: []planning.Day{
			{Date: "2025-03-10", Weekday: "mon", Workday: true},
			{Date: "2025-03-14", Weekday: "fri", Workday: false},
		},
		Blocks: []planning.Block{{Name: "AM", Label: "7-13", Capacity: 3}},
		Schedule: planning.Schedule{
			"2025-03-10_AM": {1, 9},
		},
		Usage: map[string]planning.Usage{
			"2025-03-10_AM": {Used: 4, Capacity: 3, Over: true},
		},
		Missions: []planning.PlannedMission{
			{ID: 1, Title: "site visit", Category: "field", Points: 3},
			{ID: 9, Category: planning.CategoryUnknown, Points: 1, Missing: true},
		},
	}
	var buf bytes.Buffer
	renderBoard(&buf, view, false)
	out := buf.String()
	for _, want := range []string{"Week 2025-11", "#1 site visit [3]", "#9 (deleted)", "4/3 !", "0/3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("board missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colorless board contains escape codes:\n%s", out)
	}
}

func TestReadSettingsFileAcceptsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capacity.yml")
	doc := "capacity_block_points:\n  AM: 4\nworkdays: [sat, sun]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := readSettingsFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw["capacity_block_points"]) != `{"AM":4}` || string(raw["workdays"]) != `["sat","sun"]` {
		t.Fatalf("unexpected raw %v", raw)
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	if got := truncate("نقشه برداری ملک", 5); got != "نقشه…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}
