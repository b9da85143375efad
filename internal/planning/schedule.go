package planning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// ScheduleKeyPrefix prefixes the settings key of every week's schedule.
	ScheduleKeyPrefix = "capacity_schedule_"
	dateLayout        = "2006-01-02"
)

// Schedule maps "<YYYY-MM-DD>_<BLOCK>" cells to ordered mission ids.
type Schedule map[string][]int64

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// WeekOf returns the ISO week of t as YYYY-WW.
func WeekOf(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-%02d", y, w)
}

// WeekStart returns the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// ScheduleKey is the settings key holding a week's schedule.
func ScheduleKey(week string) string {
	return ScheduleKeyPrefix + week
}

// CellKey joins a date and a block into a schedule cell key.
func CellKey(date time.Time, block string) string {
	return FormatDate(date) + "_" + block
}

// BlockOf returns the block part of a cell key: the suffix after the last '_'.
func BlockOf(cell string) string {
	i := strings.LastIndex(cell, "_")
	if i < 0 {
		return cell
	}
	return cell[i+1:]
}

// DateOf returns the date part of a cell key.
func DateOf(cell string) string {
	i := strings.LastIndex(cell, "_")
	if i < 0 {
		return ""
	}
	return cell[:i]
}

// DecodeSchedule parses a stored schedule; empty input is an empty schedule.
func DecodeSchedule(data []byte) (Schedule, error) {
	s := Schedule{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = Schedule{}
	}
	return s, nil
}

// Encode serializes the schedule for storage.
func (s Schedule) Encode() ([]byte, error) {
	if s == nil {
		s = Schedule{}
	}
	return json.Marshal(s)
}

func (s Schedule) Contains(cell string, id int64) bool {
	for _, v := range s[cell] {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id to cell unless it is already there.
func (s Schedule) Add(cell string, id int64) bool {
	if s.Contains(cell, id) {
		return false
	}
	s[cell] = append(s[cell], id)
	return true
}

// Remove drops id from cell. An emptied cell stays as an empty list.
func (s Schedule) Remove(cell string, id int64) bool {
	ids, ok := s[cell]
	if !ok {
		return false
	}
	out := make([]int64, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if removed {
		s[cell] = out
	}
	return removed
}

func (s Schedule) Clone() Schedule {
	out := make(Schedule, len(s))
	for k, v := range s {
		out[k] = append([]int64{}, v...)
	}
	return out
}

// Cells returns the cell keys in sorted order.
func (s Schedule) Cells() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MissionIDs returns every distinct id in the schedule.
func (s Schedule) MissionIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, cell := range s.Cells() {
		for _, id := range s[cell] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
