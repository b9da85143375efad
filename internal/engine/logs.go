package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"razmkar/internal/domain"
	"razmkar/internal/events"
)

type ProjectLogOptions struct {
	ProjectID int64
	Type      string
	Note      string
	CreatedBy string
	ActorID   string
}

func (e Engine) AddProjectLog(ctx context.Context, opts ProjectLogOptions) (domain.ProjectLog, error) {
	logType, err := domain.ParseLogType(opts.Type, domain.ProjectLogTypes)
	if err != nil {
		return domain.ProjectLog{}, err
	}
	note := strings.TrimSpace(opts.Note)
	if note == "" {
		return domain.ProjectLog{}, errors.New("note is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ProjectLog{}, err
	}
	l := domain.ProjectLog{
		ProjectID: opts.ProjectID,
		Type:      logType,
		Note:      note,
		CreatedBy: strings.TrimSpace(opts.CreatedBy),
		CreatedAt: e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProjectLog{}, err
	}
	defer tx.Rollback()
	if l.ID, err = e.Repo.InsertProjectLogTx(ctx, tx, l); err != nil {
		return domain.ProjectLog{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.log.added", l.ProjectID, events.KindProject, fmt.Sprint(l.ProjectID), opts.ActorID, events.EventPayload{
		"log_id": l.ID,
		"type":   l.Type,
	}); err != nil {
		return domain.ProjectLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectLog{}, err
	}
	return l, nil
}

// ProjectLogUpdateOptions carries a partial log edit; nil fields are kept.
type ProjectLogUpdateOptions struct {
	ID        int64
	Type      *string
	Note      *string
	CreatedBy *string
	ActorID   string
}

func (e Engine) UpdateProjectLog(ctx context.Context, opts ProjectLogUpdateOptions) (domain.ProjectLog, error) {
	if opts.Type != nil {
		t, err := domain.ParseLogType(*opts.Type, domain.ProjectLogTypes)
		if err != nil {
			return domain.ProjectLog{}, err
		}
		opts.Type = &t
	}
	if opts.Note != nil && strings.TrimSpace(*opts.Note) == "" {
		return domain.ProjectLog{}, errors.New("note is required")
	}
	l, err := e.Repo.GetProjectLog(ctx, opts.ID)
	if err != nil {
		return l, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return l, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProjectLogTx(ctx, tx, opts.ID, opts.Type, trimmed(opts.Note), trimmed(opts.CreatedBy)); err != nil {
		return l, err
	}
	if err := e.Events.Append(ctx, tx, "project.log.updated", l.ProjectID, events.KindProject, fmt.Sprint(l.ProjectID), opts.ActorID, events.EventPayload{"log_id": l.ID}); err != nil {
		return l, err
	}
	if err := tx.Commit(); err != nil {
		return l, err
	}
	return e.Repo.GetProjectLog(ctx, opts.ID)
}

func (e Engine) DeleteProjectLog(ctx context.Context, id int64, actorID string) error {
	l, err := e.Repo.GetProjectLog(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProjectLogTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.log.deleted", l.ProjectID, events.KindProject, fmt.Sprint(l.ProjectID), actorID, events.EventPayload{"log_id": id}); err != nil {
		return err
	}
	return tx.Commit()
}

type MissionLogOptions struct {
	MissionID int64
	Type      string
	Content   string
	CreatedBy string
	ActorID   string
}

// AddMissionLog records a user entry on a mission. The system kinds
// status_change and file_upload are written by the engine itself.
func (e Engine) AddMissionLog(ctx context.Context, opts MissionLogOptions) (domain.MissionLog, error) {
	logType, err := domain.ParseLogType(opts.Type, domain.ProjectLogTypes)
	if err != nil {
		return domain.MissionLog{}, err
	}
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return domain.MissionLog{}, errors.New("content is required")
	}
	return e.insertMissionLog(ctx, opts.MissionID, domain.MissionLog{
		Type:      logType,
		Content:   content,
		CreatedBy: strings.TrimSpace(opts.CreatedBy),
	}, opts.ActorID, nil)
}

func (e Engine) insertMissionLog(ctx context.Context, missionID int64, l domain.MissionLog, actorID string, extra events.EventPayload) (domain.MissionLog, error) {
	m, err := e.Repo.GetMission(ctx, missionID)
	if err != nil {
		return domain.MissionLog{}, err
	}
	l.MissionID = m.ID
	l.CreatedAt = e.stamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MissionLog{}, err
	}
	defer tx.Rollback()
	if l.ID, err = e.Repo.InsertMissionLogTx(ctx, tx, l); err != nil {
		return domain.MissionLog{}, err
	}
	payload := events.EventPayload{"log_id": l.ID, "type": l.Type}
	for k, v := range extra {
		payload[k] = v
	}
	if err := e.Events.Append(ctx, tx, "mission.log.added", m.ProjectID, events.KindMission, fmt.Sprint(m.ID), actorID, payload); err != nil {
		return domain.MissionLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MissionLog{}, err
	}
	return l, nil
}

// DeleteMissionLog removes a log entry and its attachment file, if any.
func (e Engine) DeleteMissionLog(ctx context.Context, id int64, actorID string) error {
	l, err := e.Repo.GetMissionLog(ctx, id)
	if err != nil {
		return err
	}
	m, err := e.Repo.GetMission(ctx, l.MissionID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMissionLogTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "mission.log.deleted", m.ProjectID, events.KindMission, fmt.Sprint(m.ID), actorID, events.EventPayload{"log_id": id}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if l.FilePath != "" {
		e.removeFiles([]string{l.FilePath})
	}
	return nil
}

type AttachOptions struct {
	MissionID int64
	Filename  string
	Content   io.Reader
	Note      string
	ActorID   string
}

// AttachFile stores an upload and records it as a file_upload mission log.
func (e Engine) AttachFile(ctx context.Context, opts AttachOptions) (domain.MissionLog, error) {
	if opts.Content == nil {
		return domain.MissionLog{}, errors.New("file is required")
	}
	if _, err := e.Repo.GetMission(ctx, opts.MissionID); err != nil {
		return domain.MissionLog{}, err
	}
	name, err := e.Storage.Save(opts.Content, opts.Filename)
	if err != nil {
		return domain.MissionLog{}, err
	}
	content := strings.TrimSpace(opts.Note)
	if content == "" {
		content = filepath.Base(opts.Filename)
	}
	l, err := e.insertMissionLog(ctx, opts.MissionID, domain.MissionLog{
		Type:      domain.LogFileUpload,
		Content:   content,
		FilePath:  name,
		CreatedBy: opts.ActorID,
	}, opts.ActorID, events.EventPayload{"file_path": name, "original_name": filepath.Base(opts.Filename)})
	if err != nil {
		e.removeFiles([]string{name})
		return domain.MissionLog{}, err
	}
	e.logger().Info("attachment stored", "mission_id", opts.MissionID, "path", name)
	return l, nil
}
