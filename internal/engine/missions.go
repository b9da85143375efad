package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"razmkar/internal/domain"
	"razmkar/internal/events"
	"razmkar/internal/repo"
)

const dueDateLayout = "2006-01-02"

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ProjectID   int64
	ParentID    int64
	Title       string
	Note        string
	Description string
	DueDate     string
	Status      string
	ActorID     string
}

func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Mission{}, errors.New("title is required")
	}
	if opts.ProjectID <= 0 {
		return domain.Mission{}, errors.New("project_id is required")
	}
	if opts.Status == "" {
		opts.Status = domain.MissionPending
	}
	if !domain.ValidMissionStatus(opts.Status) {
		return domain.Mission{}, fmt.Errorf("invalid mission status: %s", opts.Status)
	}
	due, err := parseDue(opts.DueDate)
	if err != nil {
		return domain.Mission{}, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Mission{}, err
	}
	now := e.stamp()
	m := domain.Mission{
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Note:        strings.TrimSpace(opts.Note),
		Description: strings.TrimSpace(opts.Description),
		DueDate:     due,
		Status:      opts.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if opts.ParentID > 0 {
		parent, err := e.Repo.GetMission(ctx, opts.ParentID)
		if err != nil {
			return domain.Mission{}, err
		}
		if parent.ProjectID != opts.ProjectID {
			return domain.Mission{}, errors.New("invalid parent: mission belongs to another project")
		}
		m.ParentID = &parent.ID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m.ID, err = e.Repo.InsertMissionTx(ctx, tx, m)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "mission.created", m.ProjectID, events.KindMission, fmt.Sprint(m.ID), opts.ActorID, events.EventPayload{
		"title":  m.Title,
		"status": m.Status,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

func parseDue(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(dueDateLayout, s); err != nil {
		return nil, fmt.Errorf("invalid due_date %q: want YYYY-MM-DD", s)
	}
	return &s, nil
}

func (e Engine) ensureNoCycle(ctx context.Context, parentID, childID int64) error {
	// climb up the parent chain looking for the child
	cur := parentID
	for cur != 0 {
		if cur == childID {
			return errors.New("invalid parent: mission hierarchy cycle detected")
		}
		m, err := e.Repo.GetMission(ctx, cur)
		if err != nil {
			return err
		}
		if m.ParentID == nil {
			return nil
		}
		cur = *m.ParentID
	}
	return nil
}

// MissionUpdateOptions carries a partial mission edit; nil fields are kept.
// An empty DueDate clears the date and a zero ParentID detaches the mission.
type MissionUpdateOptions struct {
	ID          int64
	Title       *string
	Note        *string
	Description *string
	DueDate     *string
	ParentID    *int64
	Status      *string
	ActorID     string
}

func (e Engine) UpdateMission(ctx context.Context, opts MissionUpdateOptions) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, opts.ID)
	if err != nil {
		return m, err
	}
	original := m
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return m, errors.New("title is required")
		}
		m.Title = title
	}
	if opts.Note != nil {
		m.Note = strings.TrimSpace(*opts.Note)
	}
	if opts.Description != nil {
		m.Description = strings.TrimSpace(*opts.Description)
	}
	if opts.DueDate != nil {
		if m.DueDate, err = parseDue(*opts.DueDate); err != nil {
			return original, err
		}
	}
	if opts.ParentID != nil {
		if *opts.ParentID == 0 {
			m.ParentID = nil
		} else {
			parent, err := e.Repo.GetMission(ctx, *opts.ParentID)
			if err != nil {
				return original, err
			}
			if parent.ProjectID != m.ProjectID {
				return original, errors.New("invalid parent: mission belongs to another project")
			}
			if err := e.ensureNoCycle(ctx, parent.ID, m.ID); err != nil {
				return original, err
			}
			m.ParentID = &parent.ID
		}
	}
	if opts.Status != nil {
		if !domain.ValidMissionStatus(*opts.Status) {
			return original, fmt.Errorf("invalid mission status: %s", *opts.Status)
		}
		m.Status = *opts.Status
	}
	m.UpdatedAt = e.stamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return original, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateMissionTx(ctx, tx, m); err != nil {
		return original, err
	}
	if m.Status != original.Status {
		if err := e.logStatusChange(ctx, tx, original, m.Status, opts.ActorID); err != nil {
			return original, err
		}
	}
	if err := e.Events.Append(ctx, tx, "mission.updated", m.ProjectID, events.KindMission, fmt.Sprint(m.ID), opts.ActorID, missionDiff(original, m)); err != nil {
		return original, err
	}
	if err := tx.Commit(); err != nil {
		return original, err
	}
	return m, nil
}

// SetMissionStatus changes a mission's status and records a status_change log.
func (e Engine) SetMissionStatus(ctx context.Context, id int64, status, actorID string) (domain.Mission, error) {
	return e.UpdateMission(ctx, MissionUpdateOptions{ID: id, Status: &status, ActorID: actorID})
}

func (e Engine) logStatusChange(ctx context.Context, tx *sql.Tx, m domain.Mission, status, actorID string) error {
	l := domain.MissionLog{
		MissionID: m.ID,
		Type:      domain.LogStatusChange,
		Content:   fmt.Sprintf("%s → %s", domain.MissionStatusLabel(m.Status), domain.MissionStatusLabel(status)),
		CreatedBy: actorID,
		CreatedAt: e.stamp(),
	}
	if _, err := e.Repo.InsertMissionLogTx(ctx, tx, l); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, "mission.status", m.ProjectID, events.KindMission, fmt.Sprint(m.ID), actorID, events.EventPayload{
		"old_status": m.Status,
		"status":     status,
	})
}

func missionDiff(before, after domain.Mission) events.EventPayload {
	p := events.EventPayload{}
	if before.Title != after.Title {
		p["title"] = after.Title
	}
	if before.Note != after.Note {
		p["note"] = after.Note
	}
	if before.Description != after.Description {
		p["description"] = after.Description
	}
	if deref(before.DueDate) != deref(after.DueDate) {
		p["due_date"] = deref(after.DueDate)
	}
	if derefID(before.ParentID) != derefID(after.ParentID) {
		p["parent_id"] = derefID(after.ParentID)
	}
	if before.Status != after.Status {
		p["status"] = after.Status
	}
	return p
}

// DeleteMission removes a mission with its whole subtree and their attachments.
func (e Engine) DeleteMission(ctx context.Context, id int64, actorID string) ([]int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMissionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ids, err := e.Repo.SubtreeIDs(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	files, err := e.Repo.AttachmentPaths(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.DeleteMissionTx(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "mission.deleted", m.ProjectID, events.KindMission, fmt.Sprint(id), actorID, events.EventPayload{
		"title":   m.Title,
		"subtree": ids,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	e.removeFiles(files)
	return ids, nil
}

// MissionNode is a mission with its children.
type MissionNode struct {
	domain.Mission
	Children []MissionNode `json:"children"`
}

// MissionTree returns a project's root missions with nested children.
func (e Engine) MissionTree(ctx context.Context, projectID int64) ([]MissionNode, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	all, err := e.Repo.ProjectMissions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	children := map[int64][]domain.Mission{}
	var roots []domain.Mission
	for _, m := range all {
		if m.ParentID == nil {
			roots = append(roots, m)
			continue
		}
		children[*m.ParentID] = append(children[*m.ParentID], m)
	}
	var build func(m domain.Mission) MissionNode
	build = func(m domain.Mission) MissionNode {
		node := MissionNode{Mission: m, Children: []MissionNode{}}
		for _, c := range children[m.ID] {
			node.Children = append(node.Children, build(c))
		}
		return node
	}
	res := make([]MissionNode, 0, len(roots))
	for _, r := range roots {
		res = append(res, build(r))
	}
	return res, nil
}

// MissionListOptions filter a project's missions.
type MissionListOptions struct {
	ProjectID    int64
	Status       string
	Q            string
	Limit        int
	TopOnly      bool
	WithCategory bool
}

// MissionItem is a listed mission, optionally classified.
type MissionItem struct {
	domain.Mission
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Points   int      `json:"points,omitempty"`
}

type MissionList struct {
	Items  []MissionItem  `json:"items"`
	Counts map[string]int `json:"counts"`
}

func (e Engine) ListMissions(ctx context.Context, opts MissionListOptions) (MissionList, error) {
	if opts.Status != "" && !domain.ValidMissionStatus(opts.Status) {
		return MissionList{}, fmt.Errorf("invalid mission status: %s", opts.Status)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return MissionList{}, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	f := repo.MissionFilters{
		ProjectID: opts.ProjectID,
		Status:    opts.Status,
		Q:         opts.Q,
		TopOnly:   opts.TopOnly,
		Limit:     opts.Limit,
	}
	missions, err := e.Repo.ListMissions(ctx, f)
	if err != nil {
		return MissionList{}, err
	}
	counts, err := e.Repo.CountMissionsByStatus(ctx, f)
	if err != nil {
		return MissionList{}, err
	}
	items := make([]MissionItem, 0, len(missions))
	if !opts.WithCategory {
		for _, m := range missions {
			items = append(items, MissionItem{Mission: m})
		}
		return MissionList{Items: items, Counts: counts}, nil
	}
	s, err := e.Settings.Load(ctx)
	if err != nil {
		return MissionList{}, err
	}
	for _, m := range missions {
		cat, tags := s.Classify(m)
		items = append(items, MissionItem{Mission: m, Category: cat, Tags: tags, Points: s.CategoryPoints(cat)})
	}
	return MissionList{Items: items, Counts: counts}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefID(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
