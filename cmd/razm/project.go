package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"razmkar/internal/domain"
	"razmkar/internal/engine"
	"razmkar/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectLogCmd())
	return prj
}

var manageFlags = []string{"q", "status", "sort", "order", "per-page", "page", "group"}

func projectListCmd() *cobra.Command {
	var f engine.ProjectManageFilters
	var forget bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Long:  "List projects. Filters given on the command line are remembered for the next call; --clear forgets them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			supplied := false
			for _, name := range manageFlags {
				if cmd.Flags().Changed(name) {
					supplied = true
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ManageProjects(ctx, engine.ManageOptions{Filters: f, Supplied: supplied, Clear: forget, ActorID: actor()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Goal", "Status", "Created"})
				for _, p := range page.Items {
					tw.AppendRow(table.Row{p.ID, p.ClientName, p.Goal, domain.ProjectStatusLabel(p.Status), p.CreatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", "total", page.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Q, "q", "", "search client or goal; #<id> matches an id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Sort, "sort", "created", "sort by id, client, created or status")
	cmd.Flags().StringVar(&f.Order, "order", "desc", "asc or desc")
	cmd.Flags().IntVar(&f.PerPage, "per-page", 50, "25, 50 or 100")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().BoolVar(&f.Group, "group", false, "group by status")
	cmd.Flags().BoolVar(&forget, "clear", false, "forget remembered filters")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actor()
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Goal, "goal", "", "project goal")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (default draft)")
	_ = cmd.MarkFlagRequired("goal")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				logs, err := e.Repo.ListProjectLogs(ctx, id)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountMissionsByStatus(ctx, repo.MissionFilters{ProjectID: id})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"project":        p,
					"status_label":   domain.ProjectStatusLabel(p.Status),
					"logs":           logs,
					"mission_counts": counts,
				})
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var goal, client, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
					ID:         id,
					Goal:       changedString(cmd, "goal", goal),
					ClientName: changedString(cmd, "client", client),
					Status:     changedString(cmd, "status", status),
					ActorID:    actor(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "project goal")
	cmd.Flags().StringVar(&client, "client", "", "client name")
	cmd.Flags().StringVar(&status, "status", "", "draft, active, waiting, completed or cancelled")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project with its missions and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteProject(ctx, id, actor()); err != nil {
					return err
				}
				fmt.Printf("Deleted project %d\n", id)
				return nil
			})
		},
	}
	return cmd
}

func projectLogCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Project notes and follow-ups"}

	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List project logs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetProject(ctx, id); err != nil {
					return err
				}
				logs, err := e.Repo.ListProjectLogs(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Note", "By", "At"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.ID, l.Type, l.Note, l.CreatedBy, l.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	var logType, note string
	add := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a project log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.AddProjectLog(ctx, engine.ProjectLogOptions{
					ProjectID: id,
					Type:      logType,
					Note:      note,
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
	add.Flags().StringVar(&note, "note", "", "log text")
	_ = add.MarkFlagRequired("note")

	del := &cobra.Command{
		Use:   "delete <log-id>",
		Short: "Delete a project log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProjectLog(ctx, id, actor())
			})
		},
	}

	lg.AddCommand(list, add, del)
	return lg
}
