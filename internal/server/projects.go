package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"razmkar/internal/domain"
	"razmkar/internal/engine"
	"razmkar/internal/repo"
)

var manageQueryParams = []string{"q", "status", "sort", "order", "per_page", "page", "group"}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Description: "Filters given in the query are remembered and reused by later calls without filters; clear=true resets them.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Q       string `query:"q" doc:"substring of client or goal; #<id> matches an id"`
		Status  string `query:"status"`
		Sort    string `query:"sort"`
		Order   string `query:"order"`
		PerPage int    `query:"per_page"`
		Page    int    `query:"page"`
		Group   bool   `query:"group"`
		Clear   bool   `query:"clear"`
	}) (*struct {
		Body engine.ProjectPage `json:"body"`
	}, error) {
		page, err := e.ManageProjects(ctx, engine.ManageOptions{
			Filters: engine.ProjectManageFilters{
				Q:       input.Q,
				Status:  input.Status,
				Sort:    input.Sort,
				Order:   input.Order,
				PerPage: input.PerPage,
				Page:    input.Page,
				Group:   input.Group,
			},
			Supplied: queryPresent(ctx, manageQueryParams...),
			Clear:    input.Clear,
			ActorID:  actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProjectPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			Goal:       input.Body.Goal,
			ClientName: input.Body.ClientName,
			Status:     input.Body.Status,
			ActorID:    actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with its logs and mission counters",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body ProjectDetailResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		logs, err := e.Repo.ListProjectLogs(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountMissionsByStatus(ctx, repo.MissionFilters{ProjectID: p.ID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectDetailResponse `json:"body"`
		}{Body: ProjectDetailResponse{
			Project:     p,
			StatusLabel: domain.ProjectStatusLabel(p.Status),
			Logs:        nonNil(logs),
			Missions:    counts,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:         input.ProjectID,
			Goal:       input.Body.Goal,
			ClientName: input.Body.ClientName,
			Status:     input.Body.Status,
			ActorID:    actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-status",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/status",
		Summary:     "Set project status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64            `path:"project_id"`
		Body      SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.SetProjectStatus(ctx, input.ProjectID, input.Body.Status, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project with its missions and logs",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjectLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-project-logs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/logs",
		Summary:     "List project logs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []domain.ProjectLog `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		logs, err := e.Repo.ListProjectLogs(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProjectLog `json:"body"`
		}{Body: nonNil(logs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-project-log",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/logs",
		Summary:       "Add project log",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                   `path:"project_id"`
		Body      CreateProjectLogRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectLog `json:"body"`
	}, error) {
		l, err := e.AddProjectLog(ctx, engine.ProjectLogOptions{
			ProjectID: input.ProjectID,
			Type:      input.Body.Type,
			Note:      input.Body.Note,
			CreatedBy: input.Body.CreatedBy,
			ActorID:   actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectLog `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project-log",
		Method:      http.MethodPatch,
		Path:        "/project-logs/{log_id}",
		Summary:     "Edit project log",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LogID int64                   `path:"log_id"`
		Body  UpdateProjectLogRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectLog `json:"body"`
	}, error) {
		l, err := e.UpdateProjectLog(ctx, engine.ProjectLogUpdateOptions{
			ID:        input.LogID,
			Type:      input.Body.Type,
			Note:      input.Body.Note,
			CreatedBy: input.Body.CreatedBy,
			ActorID:   actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProjectLog `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project-log",
		Method:        http.MethodDelete,
		Path:          "/project-logs/{log_id}",
		Summary:       "Delete project log",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LogID int64 `path:"log_id"`
	}) (*struct{}, error) {
		if err := e.DeleteProjectLog(ctx, input.LogID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
