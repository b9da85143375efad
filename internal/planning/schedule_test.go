package planning_test

import (
	"reflect"
	"testing"
	"time"

	"razmkar/internal/planning"
)

func TestWeekHelpers(t *testing.T) {
	cases := []struct {
		date  string
		week  string
		start string
	}{
		{"2025-03-10", "2025-11", "2025-03-10"},
		{"2025-03-16", "2025-11", "2025-03-10"},
		{"2025-03-17", "2025-12", "2025-03-17"},
		{"2024-12-30", "2025-01", "2024-12-30"},
		{"2021-01-03", "2020-53", "2020-12-28"},
	}
	for _, c := range cases {
		d, err := planning.ParseDate(c.date)
		if err != nil {
			t.Fatalf("parse %s: %v", c.date, err)
		}
		if got := planning.WeekOf(d); got != c.week {
			t.Fatalf("WeekOf(%s) = %s, want %s", c.date, got, c.week)
		}
		if got := planning.FormatDate(planning.WeekStart(d)); got != c.start {
			t.Fatalf("WeekStart(%s) = %s, want %s", c.date, got, c.start)
		}
	}
	if planning.ScheduleKey("2025-11") != "capacity_schedule_2025-11" {
		t.Fatalf("unexpected schedule key")
	}
}

func TestCellKeyParts(t *testing.T) {
	cell := planning.CellKey(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), "MID")
	if cell != "2025-03-10_MID" {
		t.Fatalf("cell %s", cell)
	}
	if planning.BlockOf(cell) != "MID" || planning.DateOf(cell) != "2025-03-10" {
		t.Fatalf("split %s wrong", cell)
	}
}

func TestScheduleDecodeAndEncode(t *testing.T) {
	s, err := planning.DecodeSchedule(nil)
	if err != nil || len(s) != 0 {
		t.Fatalf("empty decode: %v %v", s, err)
	}
	s, err = planning.DecodeSchedule([]byte(`{"2025-03-10_AM":[3,1],"2025-03-10_PM":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(s["2025-03-10_AM"], []int64{3, 1}) {
		t.Fatalf("order not kept: %v", s["2025-03-10_AM"])
	}
	if _, err := planning.DecodeSchedule([]byte(`["not","a","map"]`)); err == nil {
		t.Fatalf("expected decode error")
	}
	data, err := s.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"2025-03-10_AM":[3,1],"2025-03-10_PM":[]}` {
		t.Fatalf("encoded %s", data)
	}
}

func TestScheduleCloneIsIndependent(t *testing.T) {
	s := planning.Schedule{"c_AM": {1, 2}}
	c := s.Clone()
	c.Add("c_AM", 3)
	c.Remove("c_AM", 1)
	if !reflect.DeepEqual(s["c_AM"], []int64{1, 2}) {
		t.Fatalf("original changed: %v", s["c_AM"])
	}
	if !reflect.DeepEqual(c.MissionIDs(), []int64{2, 3}) {
		t.Fatalf("clone ids %v", c.MissionIDs())
	}
}
