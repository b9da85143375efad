package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"razmkar/internal/config"
	"razmkar/internal/events"
	"razmkar/internal/planning"
	"razmkar/internal/repo"
)

// Setting keys stored in app_settings.
const (
	KeyTagCategoryMap   = "tag_category_map"
	KeyCategoryPriority = "category_priority"
	KeyBlocks           = "capacity_blocks_per_day"
	KeyBlockLabels      = "block_labels"
	KeyBlockPoints      = "capacity_block_points"
	KeyMissionPoints    = "mission_points_by_category"
	KeyAllowOverflow    = "capacity_allow_overflow"
	KeyWorkdays         = "workdays"
)

var tagKeys = []string{KeyTagCategoryMap, KeyCategoryPriority}

var capacityKeys = []string{KeyBlocks, KeyBlockLabels, KeyBlockPoints, KeyMissionPoints, KeyAllowOverflow, KeyWorkdays}

// Tags is the classifier configuration.
type Tags struct {
	TagCategoryMap   map[string]string `json:"tag_category_map"`
	CategoryPriority []string          `json:"category_priority"`
}

// Capacity is the block and point configuration.
type Capacity struct {
	Blocks        []string                       `json:"capacity_blocks_per_day"`
	BlockLabels   map[string]planning.BlockLabel `json:"block_labels"`
	BlockPoints   map[string]int                 `json:"capacity_block_points"`
	MissionPoints map[string]int                 `json:"mission_points_by_category"`
	AllowOverflow bool                           `json:"capacity_allow_overflow"`
	Workdays      []string                       `json:"workdays"`
}

// Update reports which submitted fields were stored.
type Update struct {
	Applied []string `json:"applied"`
	Ignored []string `json:"ignored"`
}

// Service reads and writes global settings. Values that are missing or
// cannot be decoded fall back to Defaults.
type Service struct {
	Repo     repo.Repo
	Events   events.Writer
	Defaults config.Planning
	Logger   *slog.Logger
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// EnsureDefaults stores the seed value of every planning key not yet present.
func (s Service) EnsureDefaults(ctx context.Context) error {
	seeds := map[string]any{
		KeyTagCategoryMap:   s.Defaults.TagCategoryMap,
		KeyCategoryPriority: s.Defaults.CategoryPriority,
		KeyBlocks:           s.Defaults.Blocks,
		KeyBlockLabels:      labelsFromConfig(s.Defaults.BlockLabels),
		KeyBlockPoints:      s.Defaults.BlockPoints,
		KeyMissionPoints:    s.Defaults.MissionPoints,
		KeyAllowOverflow:    s.Defaults.AllowOverflow,
		KeyWorkdays:         s.Defaults.Workdays,
	}
	keys := make([]string, 0, len(seeds))
	for k := range seeds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		data, err := json.Marshal(seeds[key])
		if err != nil {
			return fmt.Errorf("encode default %s: %w", key, err)
		}
		_, err = s.Repo.PutSetting(ctx, repo.GlobalScope, key, string(data), 0)
		if errors.Is(err, repo.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
		s.logger().Debug("seeded setting", "key", key)
	}
	return nil
}

// Get decodes the value stored under key into dst. It reports false when the
// key is absent or undecodable, leaving dst untouched.
func (s Service) Get(ctx context.Context, key string, dst any) (bool, error) {
	row, err := s.Repo.GetSetting(ctx, repo.GlobalScope, key)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// decode into a fresh value so maps shared with Defaults are never merged into
	target := reflect.ValueOf(dst).Elem()
	fresh := reflect.New(target.Type())
	if err := json.Unmarshal([]byte(row.Value), fresh.Interface()); err != nil {
		s.logger().Warn("ignoring undecodable setting", "key", key, "err", err)
		return false, nil
	}
	target.Set(fresh.Elem())
	return true, nil
}

// Set stores v under key unconditionally and records a settings event.
func (s Service) Set(ctx context.Context, key string, v any, actorID string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(ctx, map[string]string{key: string(data)}, actorID)
}

func (s Service) write(ctx context.Context, values map[string]string, actorID string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if _, err := s.Repo.PutSettingTx(ctx, tx, repo.GlobalScope, k, v, repo.AnyVersion); err != nil {
			return fmt.Errorf("store %s: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := events.EventPayload{"keys": keys}
	if err := s.Events.Append(ctx, tx, "settings.updated", 0, events.KindSettings, strings.Join(keys, ","), actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// Load assembles the planning settings currently in effect.
func (s Service) Load(ctx context.Context) (planning.Settings, error) {
	tags, err := s.Tags(ctx)
	if err != nil {
		return planning.Settings{}, err
	}
	c, err := s.Capacity(ctx)
	if err != nil {
		return planning.Settings{}, err
	}
	return planning.Settings{
		TagMap:           tags.TagCategoryMap,
		CategoryPriority: tags.CategoryPriority,
		Blocks:           c.Blocks,
		BlockLabels:      c.BlockLabels,
		BlockPoints:      c.BlockPoints,
		MissionPoints:    c.MissionPoints,
		AllowOverflow:    c.AllowOverflow,
		Workdays:         c.Workdays,
	}, nil
}

func (s Service) Tags(ctx context.Context) (Tags, error) {
	t := Tags{
		TagCategoryMap:   s.Defaults.TagCategoryMap,
		CategoryPriority: s.Defaults.CategoryPriority,
	}
	if _, err := s.Get(ctx, KeyTagCategoryMap, &t.TagCategoryMap); err != nil {
		return t, err
	}
	if _, err := s.Get(ctx, KeyCategoryPriority, &t.CategoryPriority); err != nil {
		return t, err
	}
	if t.TagCategoryMap == nil {
		t.TagCategoryMap = map[string]string{}
	}
	if t.CategoryPriority == nil {
		t.CategoryPriority = []string{}
	}
	return t, nil
}

func (s Service) Capacity(ctx context.Context) (Capacity, error) {
	c := Capacity{
		Blocks:        s.Defaults.Blocks,
		BlockLabels:   labelsFromConfig(s.Defaults.BlockLabels),
		BlockPoints:   s.Defaults.BlockPoints,
		MissionPoints: s.Defaults.MissionPoints,
		AllowOverflow: s.Defaults.AllowOverflow,
		Workdays:      s.Defaults.Workdays,
	}
	targets := map[string]any{
		KeyBlocks:        &c.Blocks,
		KeyBlockLabels:   &c.BlockLabels,
		KeyBlockPoints:   &c.BlockPoints,
		KeyMissionPoints: &c.MissionPoints,
		KeyAllowOverflow: &c.AllowOverflow,
		KeyWorkdays:      &c.Workdays,
	}
	for _, key := range capacityKeys {
		if _, err := s.Get(ctx, key, targets[key]); err != nil {
			return c, err
		}
	}
	return c, nil
}

// UpdateTags stores the well-typed tag fields of raw and ignores the rest.
func (s Service) UpdateTags(ctx context.Context, raw map[string]json.RawMessage, actorID string) (Tags, Update, error) {
	u, values := collect(raw, tagKeys, map[string]func(json.RawMessage) (any, bool){
		KeyTagCategoryMap: func(m json.RawMessage) (any, bool) {
			var v map[string]string
			if json.Unmarshal(m, &v) != nil || v == nil {
				return nil, false
			}
			out := make(map[string]string, len(v))
			for tag, cat := range v {
				tag, cat = strings.TrimPrefix(strings.TrimSpace(tag), "#"), strings.TrimSpace(cat)
				if tag == "" || cat == "" {
					return nil, false
				}
				out[tag] = cat
			}
			return out, true
		},
		KeyCategoryPriority: decodeStrings(func(string) bool { return true }),
	})
	if err := s.write(ctx, values, actorID); err != nil {
		return Tags{}, u, err
	}
	t, err := s.Tags(ctx)
	return t, u, err
}

// UpdateCapacity stores the well-typed capacity fields of raw and ignores the rest.
func (s Service) UpdateCapacity(ctx context.Context, raw map[string]json.RawMessage, actorID string) (Capacity, Update, error) {
	u, values := collect(raw, capacityKeys, map[string]func(json.RawMessage) (any, bool){
		KeyBlocks: decodeStrings(func(b string) bool { return b != "" && !strings.Contains(b, "_") }),
		KeyBlockLabels: func(m json.RawMessage) (any, bool) {
			var v map[string]planning.BlockLabel
			if json.Unmarshal(m, &v) != nil || v == nil {
				return nil, false
			}
			return v, true
		},
		KeyBlockPoints:   decodePoints,
		KeyMissionPoints: decodePoints,
		KeyAllowOverflow: func(m json.RawMessage) (any, bool) {
			var v bool
			if json.Unmarshal(m, &v) != nil {
				return nil, false
			}
			return v, true
		},
		KeyWorkdays: decodeStrings(config.ValidWeekday),
	})
	if err := s.write(ctx, values, actorID); err != nil {
		return Capacity{}, u, err
	}
	c, err := s.Capacity(ctx)
	return c, u, err
}

func collect(raw map[string]json.RawMessage, known []string, decoders map[string]func(json.RawMessage) (any, bool)) (Update, map[string]string) {
	u := Update{Applied: []string{}, Ignored: []string{}}
	values := map[string]string{}
	allowed := map[string]bool{}
	for _, k := range known {
		allowed[k] = true
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowed[k] {
			u.Ignored = append(u.Ignored, k)
			continue
		}
		v, ok := decoders[k](raw[k])
		if !ok {
			u.Ignored = append(u.Ignored, k)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			u.Ignored = append(u.Ignored, k)
			continue
		}
		values[k] = string(data)
		u.Applied = append(u.Applied, k)
	}
	return u, values
}

func decodeStrings(valid func(string) bool) func(json.RawMessage) (any, bool) {
	return func(m json.RawMessage) (any, bool) {
		var v []string
		if json.Unmarshal(m, &v) != nil || v == nil {
			return nil, false
		}
		out := make([]string, 0, len(v))
		for _, s := range v {
			s = strings.TrimSpace(s)
			if !valid(s) {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
}

func decodePoints(m json.RawMessage) (any, bool) {
	var v map[string]int
	if json.Unmarshal(m, &v) != nil || v == nil {
		return nil, false
	}
	for _, p := range v {
		if p < 0 {
			return nil, false
		}
	}
	return v, true
}

func labelsFromConfig(in map[string]config.BlockLabel) map[string]planning.BlockLabel {
	out := make(map[string]planning.BlockLabel, len(in))
	for k, l := range in {
		out[k] = planning.BlockLabel{Label: l.Label, Start: l.Start, End: l.End}
	}
	return out
}
