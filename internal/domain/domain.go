package domain

import (
	"fmt"
	"strings"
)

const (
	ProjectDraft     = "draft"
	ProjectActive    = "active"
	ProjectWaiting   = "waiting"
	ProjectCompleted = "completed"
	ProjectCancelled = "cancelled"
)

const (
	MissionPending    = "pending"
	MissionInProgress = "in_progress"
	MissionDone       = "done"
	MissionCancelled  = "cancelled"
)

const (
	LogNote         = "note"
	LogAction       = "action"
	LogFollowup     = "followup"
	LogReminder     = "reminder"
	LogStatusChange = "status_change"
	LogFileUpload   = "file_upload"
)

// ProjectStatuses lists project states in display order.
var ProjectStatuses = []string{ProjectDraft, ProjectActive, ProjectWaiting, ProjectCompleted, ProjectCancelled}

// MissionStatuses lists mission states in display order.
var MissionStatuses = []string{MissionPending, MissionInProgress, MissionDone, MissionCancelled}

// ProjectLogTypes are the entry kinds a user may add to a project.
var ProjectLogTypes = []string{LogNote, LogAction, LogFollowup, LogReminder}

// MissionLogTypes include the system-written kinds.
var MissionLogTypes = []string{LogNote, LogAction, LogFollowup, LogReminder, LogStatusChange, LogFileUpload}

var projectStatusLabels = map[string]string{
	ProjectDraft:     "پیش نویس",
	ProjectActive:    "فعال",
	ProjectWaiting:   "درانتظار",
	ProjectCompleted: "اتمام",
	ProjectCancelled: "لغو",
}

var missionStatusLabels = map[string]string{
	MissionPending:    "پیش نویس",
	MissionInProgress: "درحال انجام",
	MissionDone:       "انجام شده",
	MissionCancelled:  "لغو",
}

// logTypeAliases maps display labels, old and current, to log type names.
var logTypeAliases = map[string]string{
	"یادداشت": LogNote,
	"فعالیت":  LogAction,
	"اقدام":   LogAction,
	"پیگیری":  LogFollowup,
	"یادآوری": LogReminder,
}

type Project struct {
	ID         int64  `json:"id"`
	Goal       string `json:"goal"`
	ClientName string `json:"client_name"`
	Status     string `json:"status" enum:"draft,active,waiting,completed,cancelled"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ProjectLog struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Type      string `json:"type" enum:"note,action,followup,reminder"`
	Note      string `json:"note"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Mission struct {
	ID          int64   `json:"id"`
	ProjectID   int64   `json:"project_id"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	Note        string  `json:"note,omitempty"`
	Description string  `json:"description,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	Status      string  `json:"status" enum:"pending,in_progress,done,cancelled"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// Texts returns the fields hashtags are read from.
func (m Mission) Texts() []string {
	return []string{m.Title, m.Note, m.Description}
}

type MissionLog struct {
	ID        int64  `json:"id"`
	MissionID int64  `json:"mission_id"`
	Type      string `json:"type" enum:"note,action,followup,reminder,status_change,file_upload"`
	Content   string `json:"content,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Setting struct {
	Scope     string `json:"scope"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func ValidProjectStatus(s string) bool { return contains(ProjectStatuses, s) }
func ValidMissionStatus(s string) bool { return contains(MissionStatuses, s) }

// ProjectStatusLabel returns the display label of a project status.
func ProjectStatusLabel(s string) string { return projectStatusLabels[s] }

// MissionStatusLabel returns the display label of a mission status.
func MissionStatusLabel(s string) string { return missionStatusLabels[s] }

// ParseLogType accepts a log type by name or by display label.
func ParseLogType(s string, allowed []string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("log type is required")
	}
	if contains(allowed, s) {
		return s, nil
	}
	if name, ok := logTypeAliases[s]; ok && contains(allowed, name) {
		return name, nil
	}
	return "", fmt.Errorf("invalid log type: %s", s)
}

func contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
