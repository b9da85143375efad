package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"razmkar/internal/domain"
	"razmkar/internal/events"
	"razmkar/internal/repo"
)

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	Goal       string
	ClientName string
	Status     string
	ActorID    string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	opts.Goal = strings.TrimSpace(opts.Goal)
	opts.ClientName = strings.TrimSpace(opts.ClientName)
	if opts.Goal == "" || opts.ClientName == "" {
		return domain.Project{}, errors.New("goal and client_name are required")
	}
	if opts.Status == "" {
		opts.Status = domain.ProjectDraft
	}
	if !domain.ValidProjectStatus(opts.Status) {
		return domain.Project{}, fmt.Errorf("invalid project status: %s", opts.Status)
	}
	p := domain.Project{
		Goal:       opts.Goal,
		ClientName: opts.ClientName,
		Status:     opts.Status,
		CreatedAt:  e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p.ID, err = e.Repo.InsertProjectTx(ctx, tx, p)
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, events.KindProject, fmt.Sprint(p.ID), opts.ActorID, events.EventPayload{
		"goal":        p.Goal,
		"client_name": p.ClientName,
		"status":      p.Status,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectUpdateOptions carries a partial project edit; nil fields are kept.
type ProjectUpdateOptions struct {
	ID         int64
	Goal       *string
	ClientName *string
	Status     *string
	ActorID    string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if opts.Goal != nil && strings.TrimSpace(*opts.Goal) == "" {
		return domain.Project{}, errors.New("goal is required")
	}
	if opts.ClientName != nil && strings.TrimSpace(*opts.ClientName) == "" {
		return domain.Project{}, errors.New("client_name is required")
	}
	if opts.Status != nil && !domain.ValidProjectStatus(*opts.Status) {
		return domain.Project{}, fmt.Errorf("invalid project status: %s", *opts.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	before, err := e.Repo.GetProjectTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.UpdateProjectTx(ctx, tx, opts.ID, trimmed(opts.Goal), trimmed(opts.ClientName), opts.Status); err != nil {
		return domain.Project{}, err
	}
	after, err := e.Repo.GetProjectTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Project{}, err
	}
	payload := events.EventPayload{}
	if before.Goal != after.Goal {
		payload["goal"] = after.Goal
	}
	if before.ClientName != after.ClientName {
		payload["client_name"] = after.ClientName
	}
	if before.Status != after.Status {
		payload["old_status"] = before.Status
		payload["status"] = after.Status
	}
	if err := e.Events.Append(ctx, tx, "project.updated", after.ID, events.KindProject, fmt.Sprint(after.ID), opts.ActorID, payload); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return after, nil
}

func (e Engine) SetProjectStatus(ctx context.Context, id int64, status, actorID string) (domain.Project, error) {
	return e.UpdateProject(ctx, ProjectUpdateOptions{ID: id, Status: &status, ActorID: actorID})
}

// DeleteProject removes a project with its missions, logs and attachment files.
func (e Engine) DeleteProject(ctx context.Context, id int64, actorID string) error {
	missions, err := e.Repo.ProjectMissions(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(missions))
	for _, m := range missions {
		ids = append(ids, m.ID)
	}
	files, err := e.Repo.AttachmentPaths(ctx, tx, ids)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteProjectTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", 0, events.KindProject, fmt.Sprint(id), actorID, events.EventPayload{
		"goal":     p.Goal,
		"missions": len(ids),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeFiles(files)
	return nil
}

func (e Engine) removeFiles(files []string) {
	for _, f := range files {
		if err := e.Storage.Remove(f); err != nil {
			e.logger().Warn("attachment not removed", "path", f, "err", err)
		}
	}
}

// ManageFiltersKey stores the last filters used on the project listing.
const ManageFiltersKey = "projects_manage_filters"

// ProjectManageFilters are the filters of the project management listing.
type ProjectManageFilters struct {
	Q       string `json:"q"`
	Status  string `json:"status"`
	Sort    string `json:"sort"`
	Order   string `json:"order"`
	PerPage int    `json:"per_page"`
	Page    int    `json:"page"`
	Group   bool   `json:"group"`
}

func (f ProjectManageFilters) normalized() ProjectManageFilters {
	f.Q = strings.TrimSpace(f.Q)
	if !domain.ValidProjectStatus(f.Status) {
		f.Status = ""
	}
	switch f.Sort {
	case "id", "client", "created", "status":
	default:
		f.Sort = "created"
	}
	if f.Order != "asc" {
		f.Order = "desc"
	}
	switch f.PerPage {
	case 25, 50, 100:
	default:
		f.PerPage = 50
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

type ManageOptions struct {
	Filters ProjectManageFilters
	// Supplied marks Filters as coming from the request; they are then stored.
	Supplied bool
	Clear    bool
	ActorID  string
}

// ProjectPage is one page of the management listing.
type ProjectPage struct {
	Filters ProjectManageFilters        `json:"filters"`
	Items   []domain.Project            `json:"items"`
	Groups  map[string][]domain.Project `json:"groups,omitempty"`
	Counts  map[string]int              `json:"counts"`
	Total   int                         `json:"total"`
}

// ManageProjects lists projects, remembering the filters between calls.
func (e Engine) ManageProjects(ctx context.Context, opts ManageOptions) (ProjectPage, error) {
	var f ProjectManageFilters
	switch {
	case opts.Clear:
		if err := e.Repo.DeleteSetting(ctx, repo.GlobalScope, ManageFiltersKey); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return ProjectPage{}, err
		}
	case opts.Supplied:
		f = opts.Filters.normalized()
		if err := e.Settings.Set(ctx, ManageFiltersKey, f, opts.ActorID); err != nil {
			return ProjectPage{}, err
		}
	default:
		if _, err := e.Settings.Get(ctx, ManageFiltersKey, &f); err != nil {
			return ProjectPage{}, err
		}
	}
	f = f.normalized()
	items, total, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
		Q:       f.Q,
		Status:  f.Status,
		Sort:    f.Sort,
		Order:   f.Order,
		PerPage: f.PerPage,
		Page:    f.Page,
	})
	if err != nil {
		return ProjectPage{}, err
	}
	if items == nil {
		items = []domain.Project{}
	}
	counts, err := e.Repo.CountProjectsByStatus(ctx)
	if err != nil {
		return ProjectPage{}, err
	}
	page := ProjectPage{Filters: f, Items: items, Counts: counts, Total: total}
	if f.Group {
		page.Groups = map[string][]domain.Project{}
		for _, p := range items {
			page.Groups[p.Status] = append(page.Groups[p.Status], p)
		}
	}
	return page, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
