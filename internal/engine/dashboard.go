package engine

import (
	"context"
	"time"

	"razmkar/internal/domain"
	"razmkar/internal/planning"
	"razmkar/internal/repo"
)

const recentProjectsLimit = 10

type Dashboard struct {
	Date     string           `json:"date" format:"date"`
	Today    []domain.Mission `json:"today"`
	Tomorrow []domain.Mission `json:"tomorrow"`
	// Week holds missions due after tomorrow up to Sunday.
	Week     []domain.Mission `json:"week"`
	Overdue  []domain.Mission `json:"overdue"`
	Projects []domain.Project `json:"projects"`
}

// Dashboard gathers open missions by due date and the latest projects.
func (e Engine) Dashboard(ctx context.Context) (Dashboard, error) {
	now := e.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	sunday := planning.WeekStart(today).AddDate(0, 0, 6)

	d := Dashboard{Date: planning.FormatDate(today)}
	var err error
	if d.Today, err = e.due(ctx, repo.DueFilter{From: d.Date, To: d.Date}); err != nil {
		return d, err
	}
	t := planning.FormatDate(tomorrow)
	if d.Tomorrow, err = e.due(ctx, repo.DueFilter{From: t, To: t}); err != nil {
		return d, err
	}
	d.Week = []domain.Mission{}
	if from := tomorrow.AddDate(0, 0, 1); !from.After(sunday) {
		if d.Week, err = e.due(ctx, repo.DueFilter{From: planning.FormatDate(from), To: planning.FormatDate(sunday)}); err != nil {
			return d, err
		}
	}
	if d.Overdue, err = e.due(ctx, repo.DueFilter{Before: d.Date}); err != nil {
		return d, err
	}
	if d.Projects, err = e.Repo.RecentProjects(ctx, recentProjectsLimit); err != nil {
		return d, err
	}
	if d.Projects == nil {
		d.Projects = []domain.Project{}
	}
	return d, nil
}

func (e Engine) due(ctx context.Context, f repo.DueFilter) ([]domain.Mission, error) {
	ms, err := e.Repo.OpenMissionsDue(ctx, f)
	if ms == nil {
		ms = []domain.Mission{}
	}
	return ms, err
}
