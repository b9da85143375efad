package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"razmkar/internal/app"
	"razmkar/internal/config"
	"razmkar/internal/engine"
	"razmkar/internal/logging"
)

// levelVar is shared by every logger so serve can change it on config reload.
var levelVar = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "razm",
	Short: "Razmkar CLI",
	Long: `Razmkar tracks survey and registration projects, their missions and a weekly capacity plan.
- Project: a client engagement with a goal, a status and a log of notes and follow-ups.
- Mission: a unit of work inside a project; missions nest and carry due dates and hashtags.
- Category: derived from a mission's hashtags (#بازدید -> field) and decides how many points it costs.
- Week plan: each day has blocks (AM, MID, PM) with a point capacity; missions are assigned to cells.
- Settings: tag mapping and capacity live in the database; razmkar.yml only seeds them.
- Event log: every change, view with 'razm log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RAZMKAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/razmkar.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local-user", "actor recorded in the event log")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

func loadConfig() (*config.Config, error) {
	if p := viper.GetString("config"); p != "" {
		return config.FromFile(p)
	}
	return config.LoadOptional(viper.GetString("workspace"))
}

// applyLogLevel sets levelVar from the flag, falling back to the config.
func applyLogLevel(cfg *config.Config) error {
	name := viper.GetString("log-level")
	if name == "" {
		name = cfg.Log.Level
	}
	lvl, err := logging.ParseLevel(name)
	if err != nil {
		return err
	}
	levelVar.Set(lvl)
	return nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	if err := applyLogLevel(cfg); err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, cfg.Log.Format, levelVar), nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	e, err := app.Open(ctx, viper.GetString("workspace"), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close(e)
	return fn(ctx, e)
}

func actor() string {
	return viper.GetString("actor")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// changedString returns a pointer to v when the flag was set on cmd.
func changedString(cmd *cobra.Command, flag, v string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
