package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"razmkar/internal/config"
	"razmkar/internal/events"
	"razmkar/internal/planning"
	"razmkar/internal/repo"
	"razmkar/internal/settings"
	"razmkar/internal/storage"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Settings settings.Service
	Storage  storage.Store
	Logger   *slog.Logger
	Now      func() time.Time
}

// New wires an engine around an open, migrated database. uploadsDir is the
// resolved attachment directory.
func New(db *sql.DB, cfg *config.Config, uploadsDir string) Engine {
	r := repo.Repo{DB: db}
	w := events.Writer{Now: time.Now}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   w,
		Config:   cfg,
		Settings: settings.Service{Repo: r, Events: w, Defaults: cfg.Planning},
		Storage:  storage.Store{Dir: uploadsDir, MaxBytes: cfg.Storage.MaxUploadBytes},
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Planner returns a planner bound to the settings currently stored.
func (e Engine) Planner(ctx context.Context) (planning.Planner, error) {
	s, err := e.Settings.Load(ctx)
	if err != nil {
		return planning.Planner{}, err
	}
	store := planning.SQLStore{Repo: e.Repo, Events: e.Events}
	p := planning.New(s, store, store)
	p.Logger = e.logger().With("component", "planning")
	p.Now = e.now
	return p, nil
}

// MissionCategory classifies a mission with the stored tag settings.
func (e Engine) MissionCategory(ctx context.Context, id int64) (string, []string, int, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return "", nil, 0, err
	}
	s, err := e.Settings.Load(ctx)
	if err != nil {
		return "", nil, 0, err
	}
	cat, tags := s.Classify(m)
	return cat, tags, s.CategoryPoints(cat), nil
}
