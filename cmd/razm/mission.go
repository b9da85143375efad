package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"razmkar/internal/domain"
	"razmkar/internal/engine"
)

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionListCmd())
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionUpdateCmd())
	m.AddCommand(missionStatusCmd())
	m.AddCommand(missionDeleteCmd())
	m.AddCommand(missionTreeCmd())
	m.AddCommand(missionLogCmd())
	m.AddCommand(missionAttachCmd())
	return m
}

func missionListCmd() *cobra.Command {
	var opts engine.MissionListOptions
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List project missions by due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts.ProjectID = id
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.ListMissions(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				header := table.Row{"ID", "Title", "Status", "Due"}
				if opts.WithCategory {
					header = append(header, "Category", "Points")
				}
				tw.AppendHeader(header)
				for _, m := range list.Items {
					row := table.Row{m.ID, m.Title, domain.MissionStatusLabel(m.Status), deref(m.DueDate)}
					if opts.WithCategory {
						row = append(row, m.Category, m.Points)
					}
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&opts.Q, "q", "", "search title and note")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum missions")
	cmd.Flags().BoolVar(&opts.TopOnly, "top", false, "only missions without a parent")
	cmd.Flags().BoolVar(&opts.WithCategory, "with-category", false, "classify missions by hashtag")
	return cmd
}

func missionCreateCmd() *cobra.Command {
	var opts engine.MissionCreateOptions
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts.ProjectID = id
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "mission title; hashtags set the category")
	cmd.Flags().Int64Var(&opts.ParentID, "parent", 0, "parent mission id")
	cmd.Flags().StringVar(&opts.Note, "note", "", "short note")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (default pending)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func missionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission with category and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.Repo.GetMission(ctx, id)
				if err != nil {
					return err
				}
				cat, tags, pts, err := e.MissionCategory(ctx, id)
				if err != nil {
					return err
				}
				logs, err := e.Repo.ListMissionLogs(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"mission":      m,
					"status_label": domain.MissionStatusLabel(m.Status),
					"category":     cat,
					"tags":         tags,
					"points":       pts,
					"logs":         logs,
				})
			})
		},
	}
	return cmd
}

func missionUpdateCmd() *cobra.Command {
	var title, note, description, due, status string
	var parent int64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.MissionUpdateOptions{
				ID:          id,
				Title:       changedString(cmd, "title", title),
				Note:        changedString(cmd, "note", note),
				Description: changedString(cmd, "description", description),
				DueDate:     changedString(cmd, "due", due),
				Status:      changedString(cmd, "status", status),
				ActorID:     actor(),
			}
			if cmd.Flags().Changed("parent") {
				opts.ParentID = &parent
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMission(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "mission title")
	cmd.Flags().StringVar(&note, "note", "", "short note")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD, empty clears")
	cmd.Flags().StringVar(&status, "status", "", "pending, in_progress, done or cancelled")
	cmd.Flags().Int64Var(&parent, "parent", 0, "parent mission id, 0 detaches")
	return cmd
}

func missionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set mission status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.SetMissionStatus(ctx, id, args[1], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func missionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mission and its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ids, err := e.DeleteMission(ctx, id, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": ids})
				}
				fmt.Printf("Deleted %d mission(s)\n", len(ids))
				return nil
			})
		},
	}
	return cmd
}

func missionTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Show mission tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roots, err := e.MissionTree(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roots)
				}
				for i, r := range roots {
					printMissionTree(r, "", i == len(roots)-1)
				}
				return nil
			})
		},
	}
	return cmd
}

func missionLogCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Mission logs"}

	list := &cobra.Command{
		Use:   "list <mission-id>",
		Short: "List mission logs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetMission(ctx, id); err != nil {
					return err
				}
				logs, err := e.Repo.ListMissionLogs(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Content", "File", "At"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.ID, l.Type, l.Content, l.FilePath, l.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	var logType, content string
	add := &cobra.Command{
		Use:   "add <mission-id>",
		Short: "Add a mission log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.AddMissionLog(ctx, engine.MissionLogOptions{
					MissionID: id,
					Type:      logType,
					Content:   content,
					CreatedBy: actor(),
					ActorID:   actor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	add.Flags().StringVar(&logType, "type", "note", "note, action, followup or reminder")
	add.Flags().StringVar(&content, "content", "", "log text")
	_ = add.MarkFlagRequired("content")

	del := &cobra.Command{
		Use:   "delete <log-id>",
		Short: "Delete a mission log and its attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteMissionLog(ctx, id, actor())
			})
		},
	}

	lg.AddCommand(list, add, del)
	return lg
}

func missionAttachCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "attach <mission-id> <file>",
		Short: "Attach a file to a mission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.AttachFile(ctx, engine.AttachOptions{
					MissionID: id,
					Filename:  filepath.Base(args[1]),
					Content:   f,
					Note:      note,
					ActorID:   actor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "log text (default file name)")
	return cmd
}

func printMissionTree(n engine.MissionNode, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	due := ""
	if n.DueDate != nil {
		due = " due " + *n.DueDate
	}
	fmt.Printf("%s%s#%d %s [%s]%s\n", prefix, connector, n.ID, strings.TrimSpace(n.Title), n.Status, due)
	for i, c := range n.Children {
		printMissionTree(c, newPrefix, i == len(n.Children)-1)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
