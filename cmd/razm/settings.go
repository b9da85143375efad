package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"razmkar/internal/engine"
	"razmkar/internal/settings"
)

func settingsCmd() *cobra.Command {
	s := &cobra.Command{Use: "settings", Short: "Tag mapping and capacity settings"}
	s.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tags, err := e.Settings.Tags(ctx)
				if err != nil {
					return err
				}
				capacity, err := e.Settings.Capacity(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"tags": tags, "capacity": capacity})
			})
		},
	})
	s.AddCommand(settingsSetCmd("set-tags", "Update tag_category_map and category_priority",
		func(ctx context.Context, e engine.Engine, raw map[string]json.RawMessage) (any, settings.Update, error) {
			return e.Settings.UpdateTags(ctx, raw, actor())
		}))
	s.AddCommand(settingsSetCmd("set-capacity", "Update blocks, points, overflow and workdays",
		func(ctx context.Context, e engine.Engine, raw map[string]json.RawMessage) (any, settings.Update, error) {
			return e.Settings.UpdateCapacity(ctx, raw, actor())
		}))
	return s
}

type settingsUpdater func(context.Context, engine.Engine, map[string]json.RawMessage) (any, settings.Update, error)

func settingsSetCmd(use, short string, update settingsUpdater) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <file>",
		Short: short,
		Long:  short + ". The file is YAML or JSON keyed by setting name; unknown or ill-typed keys are ignored and reported.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSettingsFile(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, u, err := update(ctx, e, raw)
				if err != nil {
					return err
				}
				if len(u.Ignored) > 0 {
					fmt.Fprintf(os.Stderr, "ignored: %v\n", u.Ignored)
				}
				return printJSONOrTable(map[string]any{"settings": v, "applied": u.Applied, "ignored": u.Ignored})
			})
		},
	}
	return cmd
}

func readSettingsFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	raw := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
		raw[k] = b
	}
	return raw, nil
}
