package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"razmkar/internal/engine"
	"razmkar/internal/planning"
	"razmkar/internal/repo"
)

var planningErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

func registerPlanning(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-week",
		Method:      http.MethodGet,
		Path:        "/planning/weeks/{date}",
		Summary:     "Week schedule with usage",
		Description: "Loads the ISO week containing date. The literal today selects the current week.",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Date string `path:"date" doc:"YYYY-MM-DD or today"`
	}) (*struct {
		Body WeekResponse `json:"body"`
	}, error) {
		p, err := e.Planner(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		date := input.Date
		if date == "today" {
			date = ""
		}
		view, err := p.Week(ctx, date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WeekResponse `json:"body"`
		}{Body: WeekResponse{OK: true, WeekView: view}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-mission",
		Method:      http.MethodPost,
		Path:        "/planning/assign",
		Summary:     "Place a mission in a day block",
		Errors:      planningErrors,
	}, func(ctx context.Context, input *struct {
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		p, err := e.Planner(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := p.Assign(ctx, planning.AssignRequest{
			Date:            input.Body.Date,
			Block:           input.Body.Block,
			MissionID:       input.Body.MissionID,
			Force:           input.Body.Force,
			ExpectedVersion: input.Body.ExpectedVersion,
			ActorID:         actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-mission",
		Method:      http.MethodPost,
		Path:        "/planning/unassign",
		Summary:     "Remove a mission from a day block",
		Errors:      planningErrors,
	}, func(ctx context.Context, input *struct {
		Body UnassignRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		p, err := e.Planner(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := p.Unassign(ctx, planning.UnassignRequest{
			Date:            input.Body.Date,
			Block:           input.Body.Block,
			MissionID:       input.Body.MissionID,
			ExpectedVersion: input.Body.ExpectedVersion,
			ActorID:         actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-mission",
		Method:      http.MethodPost,
		Path:        "/planning/move",
		Summary:     "Move a mission between blocks of the same week",
		Errors:      planningErrors,
	}, func(ctx context.Context, input *struct {
		Body MoveRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		p, err := e.Planner(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := p.Move(ctx, planning.MoveRequest{
			SrcDate:         input.Body.SrcDate,
			SrcBlock:        input.Body.SrcBlock,
			DstDate:         input.Body.DstDate,
			DstBlock:        input.Body.DstBlock,
			MissionID:       input.Body.MissionID,
			Force:           input.Body.Force,
			ExpectedVersion: input.Body.ExpectedVersion,
			ActorID:         actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: scheduleResponse(res)}, nil
	})
}

func registerSettings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tag-settings",
		Method:      http.MethodGet,
		Path:        "/settings/tags",
		Summary:     "Tag to category mapping",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body TagSettingsResponse `json:"body"`
	}, error) {
		tags, err := e.Settings.Tags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TagSettingsResponse `json:"body"`
		}{Body: TagSettingsResponse{Tags: tags}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tag-settings",
		Method:      http.MethodPost,
		Path:        "/settings/tags",
		Summary:     "Update tag settings",
		Description: "Fields that are unknown or ill-typed are ignored and reported.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body TagSettingsResponse `json:"body"`
	}, error) {
		tags, upd, err := e.Settings.UpdateTags(ctx, rawBodyMap(ctx), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TagSettingsResponse `json:"body"`
		}{Body: TagSettingsResponse{Tags: tags, Update: &upd}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-capacity-settings",
		Method:      http.MethodGet,
		Path:        "/settings/capacity",
		Summary:     "Blocks, points and workdays",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body CapacitySettingsResponse `json:"body"`
	}, error) {
		c, err := e.Settings.Capacity(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapacitySettingsResponse `json:"body"`
		}{Body: CapacitySettingsResponse{Capacity: c}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-capacity-settings",
		Method:      http.MethodPost,
		Path:        "/settings/capacity",
		Summary:     "Update capacity settings",
		Description: "Fields that are unknown or ill-typed are ignored and reported.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body CapacitySettingsResponse `json:"body"`
	}, error) {
		c, upd, err := e.Settings.UpdateCapacity(ctx, rawBodyMap(ctx), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapacitySettingsResponse `json:"body"`
		}{Body: CapacitySettingsResponse{Capacity: c, Update: &upd}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Open missions by due date and recent projects",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		d, err := e.Dashboard(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Activity log, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  int64  `query:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		var cursor int64
		if input.Cursor != "" {
			c, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || c <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursor = c
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			ProjectID:  input.ProjectID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursor,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: nonNil(items)}
		if len(items) > limit {
			resp.Items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
