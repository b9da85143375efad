package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"razmkar/internal/app"
	"razmkar/internal/config"
	"razmkar/internal/logging"
	"razmkar/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close(e)
			watchConfig(logger)

			handler, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath, Logger: logger.With("component", "http")})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Razmkar API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// watchConfig follows the config file and applies log.level changes while
// serving. Other sections need a restart.
func watchConfig(logger *slog.Logger) {
	path := configPath()
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config file not found, not watching", "path", path)
		return
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		logger.Warn("config watch disabled", "path", path, "err", err)
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		if viper.GetString("log-level") != "" {
			return
		}
		cfg, err := config.FromFile(path)
		if err != nil {
			logger.Warn("config reload rejected", "path", path, "err", err)
			return
		}
		lvl, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			logger.Warn("config reload rejected", "path", path, "err", err)
			return
		}
		if lvl != levelVar.Level() {
			levelVar.Set(lvl)
			logger.Info("log level changed", "level", lvl.String())
		}
	})
	v.WatchConfig()
}
