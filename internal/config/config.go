package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in a workspace.
const FileName = "razmkar.yml"

// Config models razmkar.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
	Storage struct {
		UploadsDir     string `yaml:"uploads_dir" json:"uploads_dir"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes" json:"max_upload_bytes"`
	} `yaml:"storage" json:"storage"`
	Planning Planning `yaml:"planning" json:"planning"`
}

// Planning seeds the planning settings the first time a workspace is used.
type Planning struct {
	TagCategoryMap   map[string]string     `yaml:"tag_category_map" json:"tag_category_map"`
	CategoryPriority []string              `yaml:"category_priority" json:"category_priority"`
	Blocks           []string              `yaml:"blocks" json:"blocks"`
	BlockLabels      map[string]BlockLabel `yaml:"block_labels" json:"block_labels"`
	BlockPoints      map[string]int        `yaml:"block_points" json:"block_points"`
	MissionPoints    map[string]int        `yaml:"mission_points" json:"mission_points"`
	AllowOverflow    bool                  `yaml:"allow_overflow" json:"allow_overflow"`
	Workdays         []string              `yaml:"workdays" json:"workdays"`
}

type BlockLabel struct {
	Label string `yaml:"label" json:"label"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

var validWeekdays = map[string]bool{"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true}

// ValidWeekday reports whether name is a three-letter lowercase weekday.
func ValidWeekday(name string) bool { return validWeekdays[name] }

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("config.storage.max_upload_bytes must be positive")
	}
	return c.Planning.Validate()
}

// Validate checks planning seeds.
func (p Planning) Validate() error {
	if len(p.Blocks) == 0 {
		return fmt.Errorf("config.planning.blocks must list at least one block")
	}
	for _, b := range p.Blocks {
		if b == "" || strings.Contains(b, "_") {
			return fmt.Errorf("block name %q must be non-empty and contain no underscore", b)
		}
	}
	for b, pts := range p.BlockPoints {
		if pts < 0 {
			return fmt.Errorf("block %s has negative capacity %d", b, pts)
		}
	}
	for cat, pts := range p.MissionPoints {
		if pts < 0 {
			return fmt.Errorf("category %s has negative points %d", cat, pts)
		}
	}
	for _, d := range p.Workdays {
		if !ValidWeekday(d) {
			return fmt.Errorf("unknown workday %q", d)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with razm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left
// out of the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.fillDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) fillDefaults(d *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = d.Server.BasePath
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = d.Storage.UploadsDir
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = d.Storage.MaxUploadBytes
	}
	p, dp := &c.Planning, d.Planning
	if p.TagCategoryMap == nil {
		p.TagCategoryMap = dp.TagCategoryMap
	}
	if p.CategoryPriority == nil {
		p.CategoryPriority = dp.CategoryPriority
	}
	if p.Blocks == nil {
		p.Blocks = dp.Blocks
	}
	if p.BlockLabels == nil {
		p.BlockLabels = dp.BlockLabels
	}
	if p.BlockPoints == nil {
		p.BlockPoints = dp.BlockPoints
	}
	if p.MissionPoints == nil {
		p.MissionPoints = dp.MissionPoints
	}
	if p.Workdays == nil {
		p.Workdays = dp.Workdays
	}
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

log:
  level: info
  format: text

storage:
  # relative paths resolve inside the workspace state directory
  uploads_dir: uploads
  max_upload_bytes: 20971520

planning:
  tag_category_map:
    # administrative
    اداره_ثبت: administrative
    شهرداری: administrative
    املاک: administrative
    کمیسیون: administrative
    نامه: administrative
    پیگیری: administrative
    # field
    نقشه_برداری: field
    برداشت: field
    بازدید: field
    میدانی: field
    # desk
    گزارش: desk
    ترسیم: desk
    نقشه: desk
    مستندسازی: desk
    بارگذاری: desk
  category_priority: [administrative, field, desk]
  blocks: [AM, MID, PM]
  block_labels:
    AM:  {label: "۷–۱۳", start: "07:00", end: "13:00"}
    MID: {label: "۱۳–۱۶", start: "13:00", end: "16:00"}
    PM:  {label: "۱۶–۱۹", start: "16:00", end: "19:00"}
  block_points:
    AM: 3
    MID: 2
    PM: 2
  mission_points:
    administrative: 1
    field: 2
    desk: 1
    unknown: 1
  allow_overflow: false
  workdays: [sat, sun, mon, tue, wed, thu]
`
