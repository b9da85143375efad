package planning

import (
	"context"
	"sort"
	"strings"
)

// Day is one date of a week view.
type Day struct {
	Date    string `json:"date" format:"date"`
	Weekday string `json:"weekday"`
	Workday bool   `json:"workday"`
}

// PlannedMission summarizes a mission that appears in a week.
type PlannedMission struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id,omitempty"`
	Title     string `json:"title"`
	Status    string `json:"status,omitempty"`
	Category  string `json:"category"`
	Points    int    `json:"points"`
	Missing   bool   `json:"missing,omitempty"`
}

// WeekView is everything needed to render one week of the board.
type WeekView struct {
	Week     string           `json:"week"`
	Version  int64            `json:"version"`
	Start    string           `json:"start" format:"date"`
	End      string           `json:"end" format:"date"`
	Days     []Day            `json:"days"`
	Blocks   []Block          `json:"blocks"`
	Schedule Schedule         `json:"schedule"`
	Usage    map[string]Usage `json:"usage"`
	Missions []PlannedMission `json:"missions"`
}

// Week loads the ISO week containing date; an empty date means today.
func (p Planner) Week(ctx context.Context, date string) (WeekView, error) {
	day := p.now().UTC()
	if strings.TrimSpace(date) != "" {
		d, err := ParseDate(date)
		if err != nil {
			return WeekView{}, invalidDate("date", date)
		}
		day = d
	}
	week := WeekOf(day)
	s, version, err := p.Store.LoadWeek(ctx, week)
	if err != nil {
		return WeekView{}, err
	}
	usage, err := p.Usage(ctx, s)
	if err != nil {
		return WeekView{}, err
	}
	missions, err := p.plannedMissions(ctx, s)
	if err != nil {
		return WeekView{}, err
	}
	start := WeekStart(day)
	workdays := map[string]bool{}
	for _, d := range p.Settings.Workdays {
		workdays[d] = true
	}
	days := make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		wd := strings.ToLower(d.Weekday().String()[:3])
		days = append(days, Day{Date: FormatDate(d), Weekday: wd, Workday: workdays[wd]})
	}
	return WeekView{
		Week:     week,
		Version:  version,
		Start:    days[0].Date,
		End:      days[6].Date,
		Days:     days,
		Blocks:   p.Settings.ResolvedBlocks(),
		Schedule: s,
		Usage:    usage,
		Missions: missions,
	}, nil
}

func (p Planner) plannedMissions(ctx context.Context, s Schedule) ([]PlannedMission, error) {
	ids := s.MissionIDs()
	found, err := p.Missions.GetMissions(ctx, ids)
	if err != nil {
		return nil, err
	}
	res := make([]PlannedMission, 0, len(ids))
	for _, id := range ids {
		m, ok := found[id]
		if !ok {
			res = append(res, PlannedMission{ID: id, Category: CategoryUnknown, Points: 1, Missing: true})
			continue
		}
		cat, pts := p.Settings.PointsFor(m)
		res = append(res, PlannedMission{
			ID:        m.ID,
			ProjectID: m.ProjectID,
			Title:     m.Title,
			Status:    m.Status,
			Category:  cat,
			Points:    pts,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
