package planning

import (
	"context"
	"errors"
	"fmt"

	"razmkar/internal/domain"
	"razmkar/internal/events"
	"razmkar/internal/repo"
)

// SQLStore keeps week schedules as versioned settings rows and resolves
// missions through the repo.
type SQLStore struct {
	Repo   repo.Repo
	Events events.Writer
}

func (s SQLStore) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	m, err := s.Repo.GetMission(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return m, ErrNoMission
	}
	return m, err
}

func (s SQLStore) GetMissions(ctx context.Context, ids []int64) (map[int64]domain.Mission, error) {
	return s.Repo.GetMissions(ctx, ids)
}

func (s SQLStore) LoadWeek(ctx context.Context, week string) (Schedule, int64, error) {
	row, err := s.Repo.GetSetting(ctx, repo.GlobalScope, ScheduleKey(week))
	if errors.Is(err, repo.ErrNotFound) {
		return Schedule{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	sched, err := DecodeSchedule([]byte(row.Value))
	if err != nil {
		return nil, 0, &Error{
			Code:    CodeCorruptSchedule,
			Message: fmt.Sprintf("stored schedule %s is not valid: %v", week, err),
			Details: map[string]any{"week": week, "version": row.Version},
		}
	}
	return sched, row.Version, nil
}

func (s SQLStore) SaveWeek(ctx context.Context, week string, sched Schedule, expected int64, change Change) (int64, error) {
	data, err := sched.Encode()
	if err != nil {
		return 0, err
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	version, err := s.Repo.PutSettingTx(ctx, tx, repo.GlobalScope, ScheduleKey(week), string(data), expected)
	if errors.Is(err, repo.ErrVersionConflict) {
		return 0, ErrStale
	}
	if err != nil {
		return 0, err
	}
	payload := events.EventPayload{"week": week, "version": version, "mission_id": change.MissionID}
	for k, v := range change.Details {
		payload[k] = v
	}
	if err := s.Events.Append(ctx, tx, "schedule."+change.Op, change.ProjectID, events.KindSchedule, week, change.ActorID, payload); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// Weeks lists the ISO weeks that have a stored schedule.
func (s SQLStore) Weeks(ctx context.Context) ([]string, error) {
	rows, err := s.Repo.ListSettings(ctx, repo.GlobalScope, ScheduleKeyPrefix)
	if err != nil {
		return nil, err
	}
	weeks := make([]string, 0, len(rows))
	for _, r := range rows {
		weeks = append(weeks, r.Key[len(ScheduleKeyPrefix):])
	}
	return weeks, nil
}
