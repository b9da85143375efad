package planning

import (
	"errors"
	"fmt"
)

// Error codes returned by planning operations.
const (
	CodeParamsRequired  = "params_required"
	CodeInvalidDate     = "invalid_date"
	CodeMissionNotFound = "mission_not_found"
	CodeOverCapacity    = "over_capacity"
	CodeCrossWeek       = "cross_week_not_supported"
	CodeVersionConflict = "version_conflict"
	CodeCorruptSchedule = "corrupt_schedule"
)

// Error is a planning failure with a stable code and structured details.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Message }

// Kind groups codes into the broader failure classes callers switch on.
func (e *Error) Kind() string {
	switch e.Code {
	case CodeParamsRequired, CodeInvalidDate:
		return "invalid_input"
	case CodeMissionNotFound:
		return "not_found"
	case CodeOverCapacity:
		return "capacity_exceeded"
	case CodeCrossWeek:
		return "unsupported_operation"
	case CodeVersionConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// IsCode reports whether err carries the given planning code.
func IsCode(err error, code string) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == code
}

func paramsRequired(names ...string) *Error {
	return &Error{
		Code:    CodeParamsRequired,
		Message: fmt.Sprintf("missing required parameters: %v", names),
		Details: map[string]any{"params": names},
	}
}

func invalidDate(field, value string) *Error {
	return &Error{
		Code:    CodeInvalidDate,
		Message: fmt.Sprintf("%s must be YYYY-MM-DD, got %q", field, value),
		Details: map[string]any{"field": field, "value": value},
	}
}

func missionNotFound(id int64) *Error {
	return &Error{
		Code:    CodeMissionNotFound,
		Message: fmt.Sprintf("mission %d not found", id),
		Details: map[string]any{"mission_id": id},
	}
}

func overCapacity(cell string, used, capacity, pointsNew int) *Error {
	return &Error{
		Code:    CodeOverCapacity,
		Message: fmt.Sprintf("cell %s is over capacity: %d used + %d new > %d", cell, used, pointsNew, capacity),
		Details: map[string]any{
			"cell":       cell,
			"used":       used,
			"capacity":   capacity,
			"points_new": pointsNew,
		},
	}
}

func crossWeek(srcWeek, dstWeek string) *Error {
	return &Error{
		Code:    CodeCrossWeek,
		Message: fmt.Sprintf("cannot move between weeks %s and %s", srcWeek, dstWeek),
		Details: map[string]any{"src_week": srcWeek, "dst_week": dstWeek},
	}
}

func versionConflict(week string, expected, actual int64) *Error {
	return &Error{
		Code:    CodeVersionConflict,
		Message: fmt.Sprintf("schedule %s changed: expected version %d, found %d", week, expected, actual),
		Details: map[string]any{"week": week, "expected_version": expected, "version": actual},
	}
}
