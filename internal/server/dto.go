package server

import (
	"razmkar/internal/domain"
	"razmkar/internal/engine"
	"razmkar/internal/planning"
	"razmkar/internal/settings"
)

// Request payloads

type CreateProjectRequest struct {
	Goal       string `json:"goal"`
	ClientName string `json:"client_name"`
	Status     string `json:"status,omitempty" enum:"draft,active,waiting,completed,cancelled"`
}

type UpdateProjectRequest struct {
	Goal       *string `json:"goal,omitempty"`
	ClientName *string `json:"client_name,omitempty"`
	Status     *string `json:"status,omitempty" enum:"draft,active,waiting,completed,cancelled"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type CreateProjectLogRequest struct {
	Type      string `json:"type" doc:"note, action, followup, reminder or a display label"`
	Note      string `json:"note"`
	CreatedBy string `json:"created_by,omitempty"`
}

type UpdateProjectLogRequest struct {
	Type      *string `json:"type,omitempty"`
	Note      *string `json:"note,omitempty"`
	CreatedBy *string `json:"created_by,omitempty"`
}

type CreateMissionRequest struct {
	Title       string `json:"title"`
	ParentID    int64  `json:"parent_id,omitempty"`
	Note        string `json:"note,omitempty"`
	Description string `json:"description,omitempty"`
	DueDate     string `json:"due_date,omitempty" doc:"YYYY-MM-DD"`
	Status      string `json:"status,omitempty" enum:"pending,in_progress,done,cancelled"`
}

type UpdateMissionRequest struct {
	Title       *string `json:"title,omitempty"`
	ParentID    *int64  `json:"parent_id,omitempty" nullable:"true" doc:"null or 0 detaches the mission"`
	Note        *string `json:"note,omitempty"`
	Description *string `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty" doc:"empty string clears the date"`
	Status      *string `json:"status,omitempty" enum:"pending,in_progress,done,cancelled"`
}

type CreateMissionLogRequest struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	CreatedBy string `json:"created_by,omitempty"`
}

type AssignRequest struct {
	Date            string `json:"date,omitempty" doc:"YYYY-MM-DD"`
	Block           string `json:"block,omitempty"`
	MissionID       int64  `json:"mission_id,omitempty"`
	Force           bool   `json:"force,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type UnassignRequest struct {
	Date            string `json:"date,omitempty" doc:"YYYY-MM-DD"`
	Block           string `json:"block,omitempty"`
	MissionID       int64  `json:"mission_id,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type MoveRequest struct {
	SrcDate         string `json:"src_date,omitempty"`
	SrcBlock        string `json:"src_block,omitempty"`
	DstDate         string `json:"dst_date,omitempty"`
	DstBlock        string `json:"dst_block,omitempty"`
	MissionID       int64  `json:"mission_id,omitempty"`
	Force           bool   `json:"force,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// Responses

type ScheduleResponse struct {
	OK       bool                      `json:"ok"`
	Week     string                    `json:"week"`
	Version  int64                     `json:"version"`
	Changed  bool                      `json:"changed"`
	Schedule planning.Schedule         `json:"schedule"`
	Usage    map[string]planning.Usage `json:"usage"`
}

func scheduleResponse(r planning.Result) ScheduleResponse {
	return ScheduleResponse{
		OK:       true,
		Week:     r.Week,
		Version:  r.Version,
		Changed:  r.Changed,
		Schedule: r.Schedule,
		Usage:    r.Usage,
	}
}

type WeekResponse struct {
	OK bool `json:"ok"`
	planning.WeekView
}

type TagSettingsResponse struct {
	settings.Tags
	Update *settings.Update `json:"update,omitempty"`
}

type CapacitySettingsResponse struct {
	settings.Capacity
	Update *settings.Update `json:"update,omitempty"`
}

type ProjectDetailResponse struct {
	domain.Project
	StatusLabel string              `json:"status_label"`
	Logs        []domain.ProjectLog `json:"logs"`
	Missions    map[string]int      `json:"mission_counts"`
}

type MissionDetailResponse struct {
	domain.Mission
	StatusLabel string              `json:"status_label"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags"`
	Points      int                 `json:"points"`
	Logs        []domain.MissionLog `json:"logs"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type missionTreeResponse struct {
	Items []engine.MissionNode `json:"items"`
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
