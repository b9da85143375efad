package planning_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"razmkar/internal/domain"
	"razmkar/internal/planning"
)

type memStore struct {
	mu        sync.Mutex
	weeks     map[string]planning.Schedule
	versions  map[string]int64
	missions  map[int64]domain.Mission
	failSaves int
	changes   []planning.Change
}

func newMemStore(missions ...domain.Mission) *memStore {
	s := &memStore{
		weeks:    map[string]planning.Schedule{},
		versions: map[string]int64{},
		missions: map[int64]domain.Mission{},
	}
	for _, m := range missions {
		s.missions[m.ID] = m
	}
	return s
}

func (s *memStore) GetMission(_ context.Context, id int64) (domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	if !ok {
		return domain.Mission{}, planning.ErrNoMission
	}
	return m, nil
}

func (s *memStore) GetMissions(_ context.Context, ids []int64) (map[int64]domain.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := map[int64]domain.Mission{}
	for _, id := range ids {
		if m, ok := s.missions[id]; ok {
			res[id] = m
		}
	}
	return res, nil
}

func (s *memStore) LoadWeek(_ context.Context, week string) (planning.Schedule, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.weeks[week]; ok {
		return sched.Clone(), s.versions[week], nil
	}
	return planning.Schedule{}, 0, nil
}

func (s *memStore) SaveWeek(_ context.Context, week string, sched planning.Schedule, expected int64, change planning.Change) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves > 0 {
		s.failSaves--
		// simulate another writer landing first
		s.versions[week]++
		if _, ok := s.weeks[week]; !ok {
			s.weeks[week] = planning.Schedule{}
		}
		return 0, planning.ErrStale
	}
	if s.versions[week] != expected {
		return 0, planning.ErrStale
	}
	s.weeks[week] = sched.Clone()
	s.versions[week]++
	s.changes = append(s.changes, change)
	return s.versions[week], nil
}

func testSettings() planning.Settings {
	return planning.Settings{
		TagMap:           map[string]string{"visit": "field", "letter": "administrative", "report": "desk"},
		CategoryPriority: []string{"administrative", "field", "desk"},
		Blocks:           []string{"AM", "MID", "PM"},
		BlockPoints:      map[string]int{"AM": 3, "MID": 2, "PM": 2},
		MissionPoints:    map[string]int{"administrative": 1, "field": 2, "desk": 1, "unknown": 1},
		Workdays:         []string{"sat", "sun", "mon", "tue", "wed", "thu"},
	}
}

func missionWith(id int64, title string) domain.Mission {
	return domain.Mission{ID: id, ProjectID: 1, Title: title, Status: domain.MissionPending}
}

func newPlanner(store *memStore) planning.Planner {
	p := planning.New(testSettings(), store, store)
	p.Now = func() time.Time { return time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC) }
	return p
}

func TestAssignRejectsOverCapacity(t *testing.T) {
	store := newMemStore(missionWith(1, "#visit site"), missionWith(2, "#letter"))
	p := newPlanner(store)
	ctx := context.Background()

	res, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "MID", MissionID: 1})
	if err != nil {
		t.Fatalf("assign field mission: %v", err)
	}
	cell := "2025-03-10_MID"
	if u := res.Usage[cell]; u.Used != 2 || u.Capacity != 2 || u.Over {
		t.Fatalf("usage after first assign %+v", u)
	}
	_, err = p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "MID", MissionID: 2})
	var pe *planning.Error
	if !errors.As(err, &pe) || pe.Code != planning.CodeOverCapacity {
		t.Fatalf("expected over_capacity, got %v", err)
	}
	if pe.Details["used"] != 2 || pe.Details["capacity"] != 2 || pe.Details["points_new"] != 1 {
		t.Fatalf("unexpected details %+v", pe.Details)
	}
	if pe.Kind() != "capacity_exceeded" {
		t.Fatalf("kind %s", pe.Kind())
	}
	view, err := p.Week(ctx, "2025-03-10")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if !reflect.DeepEqual(view.Schedule[cell], []int64{1}) {
		t.Fatalf("rejected assign mutated the cell: %v", view.Schedule[cell])
	}
}

func TestAssignForceAndOverflowFlag(t *testing.T) {
	store := newMemStore(missionWith(1, "#visit"), missionWith(2, "#letter"), missionWith(3, "#report"))
	p := newPlanner(store)
	ctx := context.Background()
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "PM", MissionID: 1}); err != nil {
		t.Fatal(err)
	}
	res, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "PM", MissionID: 2, Force: true})
	if err != nil {
		t.Fatalf("forced assign: %v", err)
	}
	if u := res.Usage["2025-03-10_PM"]; u.Used != 3 || !u.Over {
		t.Fatalf("expected over usage, got %+v", u)
	}
	p.Settings.AllowOverflow = true
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "PM", MissionID: 3}); err != nil {
		t.Fatalf("overflow flag should admit: %v", err)
	}
	last := store.changes[len(store.changes)-1]
	if last.Details["override"] != true {
		t.Fatalf("override not recorded: %+v", last.Details)
	}
}

func TestAssignIsIdempotent(t *testing.T) {
	store := newMemStore(missionWith(1, "#letter"))
	p := newPlanner(store)
	ctx := context.Background()
	first, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-11", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-11", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if second.Changed || second.Version != first.Version {
		t.Fatalf("repeat assign should not write: %+v", second)
	}
	if got := second.Schedule["2025-03-11_AM"]; !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("cell %v", got)
	}
}

func TestAssignValidation(t *testing.T) {
	p := newPlanner(newMemStore(missionWith(1, "x")))
	ctx := context.Background()
	cases := []struct {
		req  planning.AssignRequest
		code string
	}{
		{planning.AssignRequest{Block: "AM", MissionID: 1}, planning.CodeParamsRequired},
		{planning.AssignRequest{Date: "2025-03-10", MissionID: 1}, planning.CodeParamsRequired},
		{planning.AssignRequest{Date: "2025-03-10", Block: "AM"}, planning.CodeParamsRequired},
		{planning.AssignRequest{Date: "10/03/2025", Block: "AM", MissionID: 1}, planning.CodeInvalidDate},
		{planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 99}, planning.CodeMissionNotFound},
	}
	for i, c := range cases {
		_, err := p.Assign(ctx, c.req)
		if !planning.IsCode(err, c.code) {
			t.Fatalf("case %d: expected %s, got %v", i, c.code, err)
		}
	}
}

func TestUnassignIsNoopWhenAbsent(t *testing.T) {
	store := newMemStore(missionWith(1, "x"))
	p := newPlanner(store)
	ctx := context.Background()
	res, err := p.Unassign(ctx, planning.UnassignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatalf("unassign empty: %v", err)
	}
	if res.Changed || len(res.Schedule) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1}); err != nil {
		t.Fatal(err)
	}
	res, err = p.Unassign(ctx, planning.UnassignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1})
	if err != nil || !res.Changed {
		t.Fatalf("unassign: %+v %v", res, err)
	}
	ids, ok := res.Schedule["2025-03-10_AM"]
	if !ok || len(ids) != 0 {
		t.Fatalf("emptied cell should remain as empty list, got %v (present=%v)", ids, ok)
	}
}

func TestForcedMove(t *testing.T) {
	store := newMemStore(missionWith(1, "#visit"), missionWith(2, "#visit again"))
	p := newPlanner(store)
	ctx := context.Background()
	for _, a := range []planning.AssignRequest{
		{Date: "2025-03-10", Block: "AM", MissionID: 1},
		{Date: "2025-03-11", Block: "PM", MissionID: 2},
	} {
		if _, err := p.Assign(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	move := planning.MoveRequest{SrcDate: "2025-03-10", SrcBlock: "AM", DstDate: "2025-03-11", DstBlock: "PM", MissionID: 1}
	if _, err := p.Move(ctx, move); !planning.IsCode(err, planning.CodeOverCapacity) {
		t.Fatalf("unforced move into full cell should fail, got %v", err)
	}
	move.Force = true
	res, err := p.Move(ctx, move)
	if err != nil {
		t.Fatalf("forced move: %v", err)
	}
	if got := res.Schedule["2025-03-10_AM"]; len(got) != 0 {
		t.Fatalf("source still holds %v", got)
	}
	if got := res.Schedule["2025-03-11_PM"]; !reflect.DeepEqual(got, []int64{2, 1}) {
		t.Fatalf("destination %v", got)
	}
}

func TestMoveAcrossWeeksIsRejected(t *testing.T) {
	store := newMemStore(missionWith(1, "#letter"))
	p := newPlanner(store)
	ctx := context.Background()
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-16", Block: "AM", MissionID: 1}); err != nil {
		t.Fatal(err)
	}
	before, _ := p.Week(ctx, "2025-03-16")
	_, err := p.Move(ctx, planning.MoveRequest{SrcDate: "2025-03-16", SrcBlock: "AM", DstDate: "2025-03-17", DstBlock: "AM", MissionID: 1})
	if !planning.IsCode(err, planning.CodeCrossWeek) {
		t.Fatalf("expected cross_week_not_supported, got %v", err)
	}
	after, _ := p.Week(ctx, "2025-03-16")
	if !reflect.DeepEqual(before.Schedule, after.Schedule) || before.Version != after.Version {
		t.Fatalf("source week changed: %v -> %v", before.Schedule, after.Schedule)
	}
	next, _ := p.Week(ctx, "2025-03-17")
	if len(next.Schedule) != 0 || next.Version != 0 {
		t.Fatalf("destination week written: %+v", next)
	}
}

func TestMoveOntoSameCellIsNoop(t *testing.T) {
	store := newMemStore(missionWith(1, "x"))
	p := newPlanner(store)
	ctx := context.Background()
	first, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Move(ctx, planning.MoveRequest{SrcDate: "2025-03-10", SrcBlock: "AM", DstDate: "2025-03-10", DstBlock: "AM", MissionID: 1})
	if err != nil || res.Changed || res.Version != first.Version {
		t.Fatalf("same-cell move: %+v %v", res, err)
	}
}

func TestUsageCountsMissingMissionsAsOnePoint(t *testing.T) {
	store := newMemStore(missionWith(1, "#visit"))
	p := newPlanner(store)
	usage, err := p.Usage(context.Background(), planning.Schedule{
		"2025-03-10_AM":    {1, 404},
		"2025-03-10_NIGHT": {405},
	})
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if u := usage["2025-03-10_AM"]; u.Used != 3 || u.Capacity != 3 || u.Over {
		t.Fatalf("AM usage %+v", u)
	}
	if u := usage["2025-03-10_NIGHT"]; u.Used != 1 || u.Capacity != 1 || u.Over {
		t.Fatalf("unknown block usage %+v", u)
	}
	if _, ok := usage["2025-03-10_PM"]; ok {
		t.Fatalf("absent cells must not be reported")
	}
}

func TestPinnedVersionConflict(t *testing.T) {
	store := newMemStore(missionWith(1, "x"), missionWith(2, "y"))
	p := newPlanner(store)
	ctx := context.Background()
	res, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatal(err)
	}
	stale := res.Version - 1
	_, err = p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 2, ExpectedVersion: &stale})
	if !planning.IsCode(err, planning.CodeVersionConflict) {
		t.Fatalf("expected version_conflict, got %v", err)
	}
	current := res.Version
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 2, ExpectedVersion: &current}); err != nil {
		t.Fatalf("assign with current version: %v", err)
	}
}

func TestLostRaceIsRetried(t *testing.T) {
	store := newMemStore(missionWith(1, "x"))
	store.failSaves = 2
	p := newPlanner(store)
	res, err := p.Assign(context.Background(), planning.AssignRequest{Date: "2025-03-10", Block: "AM", MissionID: 1})
	if err != nil {
		t.Fatalf("assign after races: %v", err)
	}
	if !res.Changed || !reflect.DeepEqual(res.Schedule["2025-03-10_AM"], []int64{1}) {
		t.Fatalf("unexpected result %+v", res)
	}

	store.failSaves = 5
	_, err = p.Assign(context.Background(), planning.AssignRequest{Date: "2025-03-11", Block: "AM", MissionID: 1})
	if !planning.IsCode(err, planning.CodeVersionConflict) {
		t.Fatalf("expected version_conflict after exhausting retries, got %v", err)
	}
}

func TestWeekView(t *testing.T) {
	store := newMemStore(missionWith(1, "#visit"))
	p := newPlanner(store)
	ctx := context.Background()
	if _, err := p.Assign(ctx, planning.AssignRequest{Date: "2025-03-12", Block: "AM", MissionID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Week(ctx, "12-03-2025"); !planning.IsCode(err, planning.CodeInvalidDate) {
		t.Fatalf("expected invalid_date, got %v", err)
	}
	view, err := p.Week(ctx, "")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if view.Week != "2025-11" || view.Start != "2025-03-10" || view.End != "2025-03-16" {
		t.Fatalf("unexpected range %s %s..%s", view.Week, view.Start, view.End)
	}
	if len(view.Days) != 7 || view.Days[4].Weekday != "fri" || view.Days[4].Workday {
		t.Fatalf("friday should not be a workday: %+v", view.Days[4])
	}
	if len(view.Blocks) != 3 || view.Blocks[0].Capacity != 3 {
		t.Fatalf("blocks %+v", view.Blocks)
	}
	if len(view.Missions) != 1 || view.Missions[0].Category != "field" || view.Missions[0].Points != 2 {
		t.Fatalf("missions %+v", view.Missions)
	}
}
