package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"razmkar/internal/config"
	"razmkar/internal/db"
	"razmkar/internal/engine"
	"razmkar/internal/migrate"
)

// Open prepares a workspace: it opens and migrates the database, seeds the
// planning settings from cfg when absent and returns a ready engine.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg, UploadsDir(workspace, cfg))
	if logger != nil {
		e.Logger = logger
		e.Settings.Logger = logger
	}
	if err := e.Settings.EnsureDefaults(ctx); err != nil {
		conn.Close()
		return engine.Engine{}, err
	}
	return e, nil
}

// UploadsDir resolves the attachment directory; relative paths live in the
// workspace state directory.
func UploadsDir(workspace string, cfg *config.Config) string {
	dir := cfg.Storage.UploadsDir
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(db.Dir(workspace), dir)
}

// Close releases the engine's database.
func Close(e engine.Engine) error {
	if e.DB == nil {
		return nil
	}
	return e.DB.Close()
}
