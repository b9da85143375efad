package planning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"razmkar/internal/domain"
)

var (
	// ErrNoMission is returned by a MissionSource for unknown ids.
	ErrNoMission = errors.New("mission does not exist")
	// ErrStale is returned by a Store when the stored version moved on.
	ErrStale = errors.New("stale schedule version")
)

const defaultAttempts = 3

// MissionSource resolves missions by id.
type MissionSource interface {
	GetMission(ctx context.Context, id int64) (domain.Mission, error)
	// GetMissions omits unknown ids from the result.
	GetMissions(ctx context.Context, ids []int64) (map[int64]domain.Mission, error)
}

// Store persists one schedule per ISO week with a version token.
// LoadWeek returns version 0 for a week that was never written.
// SaveWeek must fail with ErrStale unless the stored version equals expected.
type Store interface {
	LoadWeek(ctx context.Context, week string) (Schedule, int64, error)
	SaveWeek(ctx context.Context, week string, s Schedule, expected int64, change Change) (int64, error)
}

// Change describes a schedule mutation for the activity log.
type Change struct {
	Op        string
	MissionID int64
	ProjectID int64
	ActorID   string
	Details   map[string]any
}

// Usage is the load of one schedule cell.
type Usage struct {
	Used     int  `json:"used"`
	Capacity int  `json:"capacity"`
	Over     bool `json:"over"`
}

// Result is the state of a week after an operation.
type Result struct {
	Week     string
	Version  int64
	Schedule Schedule
	Usage    map[string]Usage
	Changed  bool
}

type AssignRequest struct {
	Date      string
	Block     string
	MissionID int64
	Force     bool
	// ExpectedVersion pins the week version the caller last saw.
	ExpectedVersion *int64
	ActorID         string
}

type UnassignRequest struct {
	Date            string
	Block           string
	MissionID       int64
	ExpectedVersion *int64
	ActorID         string
}

type MoveRequest struct {
	SrcDate         string
	SrcBlock        string
	DstDate         string
	DstBlock        string
	MissionID       int64
	Force           bool
	ExpectedVersion *int64
	ActorID         string
}

// Planner applies capacity rules to weekly schedules.
type Planner struct {
	Settings Settings
	Missions MissionSource
	Store    Store
	Logger   *slog.Logger
	Now      func() time.Time
	// Attempts bounds re-reads after a concurrent write when the caller did
	// not pin a version.
	Attempts int
}

func New(settings Settings, missions MissionSource, store Store) Planner {
	return Planner{
		Settings: settings,
		Missions: missions,
		Store:    store,
		Now:      time.Now,
	}
}

func (p Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p Planner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Usage computes used points, capacity and overflow for every cell present
// in s. Missions that no longer exist cost 1 point.
func (p Planner) Usage(ctx context.Context, s Schedule) (map[string]Usage, error) {
	costs, err := p.costs(ctx, s.MissionIDs())
	if err != nil {
		return nil, err
	}
	res := make(map[string]Usage, len(s))
	for cell, ids := range s {
		used := 0
		for _, id := range ids {
			used += costOf(costs, id)
		}
		capacity := p.Settings.CapacityFor(BlockOf(cell))
		res[cell] = Usage{Used: used, Capacity: capacity, Over: used > capacity}
	}
	return res, nil
}

func (p Planner) costs(ctx context.Context, ids []int64) (map[int64]int, error) {
	missions, err := p.Missions.GetMissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	res := make(map[int64]int, len(missions))
	for id, m := range missions {
		_, pts := p.Settings.PointsFor(m)
		res[id] = pts
	}
	return res, nil
}

func costOf(costs map[int64]int, id int64) int {
	if c, ok := costs[id]; ok {
		return c
	}
	return 1
}

func (p Planner) cellUsed(ctx context.Context, ids []int64) (int, error) {
	costs, err := p.costs(ctx, ids)
	if err != nil {
		return 0, err
	}
	used := 0
	for _, id := range ids {
		used += costOf(costs, id)
	}
	return used, nil
}

// Assign adds a mission to a day/block cell when it fits, or when force or
// the global overflow flag allows exceeding capacity.
func (p Planner) Assign(ctx context.Context, req AssignRequest) (Result, error) {
	block := strings.TrimSpace(req.Block)
	if err := require(map[string]bool{
		"date":       strings.TrimSpace(req.Date) != "",
		"block":      block != "",
		"mission_id": req.MissionID > 0,
	}); err != nil {
		return Result{}, err
	}
	day, err := ParseDate(req.Date)
	if err != nil {
		return Result{}, invalidDate("date", req.Date)
	}
	mission, err := p.mission(ctx, req.MissionID)
	if err != nil {
		return Result{}, err
	}
	category, pts := p.Settings.PointsFor(mission)
	cell := CellKey(day, block)
	change := Change{
		Op:        "assign",
		MissionID: mission.ID,
		ProjectID: mission.ProjectID,
		ActorID:   req.ActorID,
		Details:   map[string]any{"cell": cell, "category": category, "points": pts},
	}
	return p.mutate(ctx, WeekOf(day), req.ExpectedVersion, change, func(s Schedule) (bool, error) {
		if s.Contains(cell, mission.ID) {
			return false, nil
		}
		overridden, err := p.admit(ctx, s, cell, pts, req.Force)
		if err != nil {
			return false, err
		}
		change.Details["override"] = overridden
		return s.Add(cell, mission.ID), nil
	})
}

// Unassign removes a mission from a cell; absent cells or ids are a no-op.
func (p Planner) Unassign(ctx context.Context, req UnassignRequest) (Result, error) {
	block := strings.TrimSpace(req.Block)
	if err := require(map[string]bool{
		"date":       strings.TrimSpace(req.Date) != "",
		"block":      block != "",
		"mission_id": req.MissionID > 0,
	}); err != nil {
		return Result{}, err
	}
	day, err := ParseDate(req.Date)
	if err != nil {
		return Result{}, invalidDate("date", req.Date)
	}
	cell := CellKey(day, block)
	change := Change{
		Op:        "unassign",
		MissionID: req.MissionID,
		ActorID:   req.ActorID,
		Details:   map[string]any{"cell": cell},
	}
	if m, err := p.Missions.GetMission(ctx, req.MissionID); err == nil {
		change.ProjectID = m.ProjectID
	}
	return p.mutate(ctx, WeekOf(day), req.ExpectedVersion, change, func(s Schedule) (bool, error) {
		return s.Remove(cell, req.MissionID), nil
	})
}

// Move relocates a mission between two cells of the same ISO week. The
// destination is checked like Assign; a move onto the same cell is a no-op.
func (p Planner) Move(ctx context.Context, req MoveRequest) (Result, error) {
	srcBlock := strings.TrimSpace(req.SrcBlock)
	dstBlock := strings.TrimSpace(req.DstBlock)
	if err := require(map[string]bool{
		"src_date":   strings.TrimSpace(req.SrcDate) != "",
		"src_block":  srcBlock != "",
		"dst_date":   strings.TrimSpace(req.DstDate) != "",
		"dst_block":  dstBlock != "",
		"mission_id": req.MissionID > 0,
	}); err != nil {
		return Result{}, err
	}
	srcDay, err := ParseDate(req.SrcDate)
	if err != nil {
		return Result{}, invalidDate("src_date", req.SrcDate)
	}
	dstDay, err := ParseDate(req.DstDate)
	if err != nil {
		return Result{}, invalidDate("dst_date", req.DstDate)
	}
	week, dstWeek := WeekOf(srcDay), WeekOf(dstDay)
	if week != dstWeek {
		return Result{}, crossWeek(week, dstWeek)
	}
	mission, err := p.mission(ctx, req.MissionID)
	if err != nil {
		return Result{}, err
	}
	category, pts := p.Settings.PointsFor(mission)
	srcCell, dstCell := CellKey(srcDay, srcBlock), CellKey(dstDay, dstBlock)
	change := Change{
		Op:        "move",
		MissionID: mission.ID,
		ProjectID: mission.ProjectID,
		ActorID:   req.ActorID,
		Details:   map[string]any{"src_cell": srcCell, "dst_cell": dstCell, "category": category, "points": pts},
	}
	return p.mutate(ctx, week, req.ExpectedVersion, change, func(s Schedule) (bool, error) {
		if srcCell == dstCell {
			return false, nil
		}
		if !s.Contains(dstCell, mission.ID) {
			overridden, err := p.admit(ctx, s, dstCell, pts, req.Force)
			if err != nil {
				return false, err
			}
			change.Details["override"] = overridden
		}
		removed := s.Remove(srcCell, mission.ID)
		added := s.Add(dstCell, mission.ID)
		return removed || added, nil
	})
}

// admit checks whether pts more points fit in cell. It reports true when the
// assignment only proceeds because of force or the overflow flag.
func (p Planner) admit(ctx context.Context, s Schedule, cell string, pts int, force bool) (bool, error) {
	used, err := p.cellUsed(ctx, s[cell])
	if err != nil {
		return false, err
	}
	capacity := p.Settings.CapacityFor(BlockOf(cell))
	if used+pts <= capacity {
		return false, nil
	}
	if !force && !p.Settings.AllowOverflow {
		p.logger().Info("assignment rejected", "cell", cell, "used", used, "capacity", capacity, "points_new", pts)
		return false, overCapacity(cell, used, capacity, pts)
	}
	p.logger().Warn("capacity exceeded by override", "cell", cell, "used", used, "capacity", capacity,
		"points_new", pts, "force", force, "allow_overflow", p.Settings.AllowOverflow)
	return true, nil
}

func (p Planner) mission(ctx context.Context, id int64) (domain.Mission, error) {
	m, err := p.Missions.GetMission(ctx, id)
	if errors.Is(err, ErrNoMission) {
		return m, missionNotFound(id)
	}
	return m, err
}

// mutate runs apply against the freshest copy of a week and writes it back
// conditionally. Without a pinned version a lost race is retried.
func (p Planner) mutate(ctx context.Context, week string, expected *int64, change Change, apply func(Schedule) (bool, error)) (Result, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	for attempt := 1; ; attempt++ {
		current, version, err := p.Store.LoadWeek(ctx, week)
		if err != nil {
			return Result{}, err
		}
		if expected != nil && *expected != version {
			return Result{}, versionConflict(week, *expected, version)
		}
		next := current.Clone()
		changed, err := apply(next)
		if err != nil {
			return Result{}, err
		}
		if !changed {
			return p.result(ctx, week, version, current, false)
		}
		newVersion, err := p.Store.SaveWeek(ctx, week, next, version, change)
		if errors.Is(err, ErrStale) {
			if expected != nil || attempt >= attempts {
				_, actual, _ := p.Store.LoadWeek(ctx, week)
				return Result{}, versionConflict(week, version, actual)
			}
			p.logger().Debug("schedule write raced, retrying", "week", week, "attempt", attempt)
			continue
		}
		if err != nil {
			return Result{}, err
		}
		p.logger().Info("schedule updated", "op", change.Op, "week", week, "mission_id", change.MissionID, "version", newVersion)
		return p.result(ctx, week, newVersion, next, true)
	}
}

func (p Planner) result(ctx context.Context, week string, version int64, s Schedule, changed bool) (Result, error) {
	usage, err := p.Usage(ctx, s)
	if err != nil {
		return Result{}, err
	}
	return Result{Week: week, Version: version, Schedule: s, Usage: usage, Changed: changed}, nil
}

// require returns params_required naming every false entry, in a stable order.
func require(present map[string]bool) error {
	order := []string{"date", "block", "src_date", "src_block", "dst_date", "dst_block", "mission_id"}
	var missing []string
	for _, name := range order {
		if ok, listed := present[name]; listed && !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return paramsRequired(missing...)
	}
	return nil
}
