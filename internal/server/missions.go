package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"razmkar/internal/domain"
	"razmkar/internal/engine"
	"razmkar/internal/repo"
)

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/missions",
		Summary:     "List project missions",
		Description: "Ordered by due date, undated last, then newest first.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    int64  `path:"project_id"`
		Status       string `query:"status"`
		Q            string `query:"q"`
		Limit        int    `query:"limit" default:"20"`
		Top          bool   `query:"top" doc:"only missions without a parent"`
		WithCategory bool   `query:"with_category"`
	}) (*struct {
		Body engine.MissionList `json:"body"`
	}, error) {
		list, err := e.ListMissions(ctx, engine.MissionListOptions{
			ProjectID:    input.ProjectID,
			Status:       input.Status,
			Q:            input.Q,
			Limit:        normalizeLimit(input.Limit),
			TopOnly:      input.Top,
			WithCategory: input.WithCategory,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.MissionList `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mission-tree",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/missions/tree",
		Summary:     "Mission hierarchy of a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body missionTreeResponse `json:"body"`
	}, error) {
		tree, err := e.MissionTree(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body missionTreeResponse `json:"body"`
		}{Body: missionTreeResponse{Items: tree}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		Body      CreateMissionRequest `json:"body"`
	}) (*struct {
		Body domain.Mission `json:"body"`
	}, error) {
		m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
			ProjectID:   input.ProjectID,
			ParentID:    input.Body.ParentID,
			Title:       input.Body.Title,
			Note:        input.Body.Note,
			Description: input.Body.Description,
			DueDate:     input.Body.DueDate,
			Status:      input.Body.Status,
			ActorID:     actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Mission `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}",
		Summary:     "Get mission with category and logs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64 `path:"mission_id"`
	}) (*struct {
		Body MissionDetailResponse `json:"body"`
	}, error) {
		m, err := e.Repo.GetMission(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		cat, tags, pts, err := e.MissionCategory(ctx, m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		logs, err := e.Repo.ListMissionLogs(ctx, m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionDetailResponse `json:"body"`
		}{Body: MissionDetailResponse{
			Mission:     m,
			StatusLabel: domain.MissionStatusLabel(m.Status),
			Category:    cat,
			Tags:        nonNil(tags),
			Points:      pts,
			Logs:        nonNil(logs),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{mission_id}",
		Summary:     "Update mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64                `path:"mission_id"`
		Body      UpdateMissionRequest `json:"body"`
	}) (*struct {
		Body domain.Mission `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		parent := input.Body.ParentID
		if raw, ok := rawBodyMap(ctx)["parent_id"]; ok && isNullRaw(raw) {
			detach := int64(0)
			parent = &detach
		}
		m, err := e.UpdateMission(ctx, engine.MissionUpdateOptions{
			ID:          input.MissionID,
			Title:       input.Body.Title,
			Note:        input.Body.Note,
			Description: input.Body.Description,
			DueDate:     input.Body.DueDate,
			ParentID:    parent,
			Status:      input.Body.Status,
			ActorID:     actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Mission `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-mission-status",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/status",
		Summary:     "Set mission status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64            `path:"mission_id"`
		Body      SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Mission `json:"body"`
	}, error) {
		m, err := e.SetMissionStatus(ctx, input.MissionID, input.Body.Status, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Mission `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-mission",
		Method:      http.MethodDelete,
		Path:        "/missions/{mission_id}",
		Summary:     "Delete mission and its subtree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64 `path:"mission_id"`
	}) (*struct {
		Body map[string][]int64 `json:"body"`
	}, error) {
		ids, err := e.DeleteMission(ctx, input.MissionID, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string][]int64 `json:"body"`
		}{Body: map[string][]int64{"deleted": ids}}, nil
	})
}

func registerMissionLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mission-logs",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}/logs",
		Summary:     "List mission logs, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64 `path:"mission_id"`
	}) (*struct {
		Body []domain.MissionLog `json:"body"`
	}, error) {
		if _, err := e.Repo.GetMission(ctx, input.MissionID); err != nil {
			return nil, handleError(err)
		}
		logs, err := e.Repo.ListMissionLogs(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.MissionLog `json:"body"`
		}{Body: nonNil(logs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-mission-log",
		Method:        http.MethodPost,
		Path:          "/missions/{mission_id}/logs",
		Summary:       "Add mission log",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MissionID int64                   `path:"mission_id"`
		Body      CreateMissionLogRequest `json:"body"`
	}) (*struct {
		Body domain.MissionLog `json:"body"`
	}, error) {
		l, err := e.AddMissionLog(ctx, engine.MissionLogOptions{
			MissionID: input.MissionID,
			Type:      input.Body.Type,
			Content:   input.Body.Content,
			CreatedBy: input.Body.CreatedBy,
			ActorID:   actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionLog `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-mission-log",
		Method:        http.MethodDelete,
		Path:          "/mission-logs/{log_id}",
		Summary:       "Delete mission log and its attachment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LogID int64 `path:"log_id"`
	}) (*struct{}, error) {
		if err := e.DeleteMissionLog(ctx, input.LogID, actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

// registerAttachments mounts multipart upload and download on the router
// directly; huma only sees JSON bodies.
func registerAttachments(r chi.Router, basePath string, e engine.Engine) {
	r.Post(basePath+"/missions/{mission_id}/attachments", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "mission_id"), 10, 64)
		if err != nil {
			writeError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid mission_id", nil))
			return
		}
		limit := e.Storage.MaxBytes
		if limit > 0 {
			// room for the multipart framing around the file
			req.Body = http.MaxBytesReader(w, req.Body, limit+1<<20)
		}
		f, hdr, err := req.FormFile("file")
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeError(w, newAPIError(http.StatusRequestEntityTooLarge, "file_too_large", err.Error(), nil))
				return
			}
			writeError(w, newAPIError(http.StatusBadRequest, "bad_request", "file is required", nil))
			return
		}
		defer f.Close()
		l, err := e.AttachFile(req.Context(), engine.AttachOptions{
			MissionID: id,
			Filename:  hdr.Filename,
			Content:   f,
			Note:      req.FormValue("note"),
			ActorID:   req.Header.Get(ActorHeader),
		})
		if err != nil {
			writeError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, l)
	})

	r.Get(basePath+"/mission-logs/{log_id}/file", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "log_id"), 10, 64)
		if err != nil {
			writeError(w, newAPIError(http.StatusBadRequest, "bad_request", "invalid log_id", nil))
			return
		}
		l, err := e.Repo.GetMissionLog(req.Context(), id)
		if err != nil {
			writeError(w, handleError(err))
			return
		}
		if l.FilePath == "" {
			writeError(w, handleError(fmt.Errorf("log %d has no attachment: %w", id, repo.ErrNotFound)))
			return
		}
		f, err := e.Storage.Open(l.FilePath)
		if err != nil {
			writeError(w, newAPIError(http.StatusNotFound, "not_found", "attachment file missing", map[string]any{"file_path": l.FilePath}))
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			writeError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(l.FilePath)))
		http.ServeContent(w, req, l.FilePath, st.ModTime(), f)
	})
}
