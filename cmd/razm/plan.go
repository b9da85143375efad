package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"razmkar/internal/engine"
	"razmkar/internal/planning"
	razmkarsdk "razmkar/sdk/go"
)

var (
	overStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	fullStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	offDayStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

func planCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "plan",
		Short: "Weekly capacity plan",
		Long:  "Plan missions into day blocks. With --server the commands go through a running razm serve instead of the local database.",
	}
	p.PersistentFlags().String("server", "", "base URL of a razm API server")
	_ = viper.BindPFlag("server", p.PersistentFlags().Lookup("server"))
	p.AddCommand(planWeekCmd())
	p.AddCommand(planAssignCmd())
	p.AddCommand(planUnassignCmd())
	p.AddCommand(planMoveCmd())
	return p
}

func remote() *razmkarsdk.Client {
	base := viper.GetString("server")
	if base == "" {
		return nil
	}
	return razmkarsdk.New(base, actor())
}

func planWeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week [date]",
		Short: "Show the week board containing date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := ""
			if len(args) == 1 {
				date = args[0]
			}
			show := func(view planning.WeekView) error {
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderBoard(os.Stdout, view, term.IsTerminal(int(os.Stdout.Fd())))
				return nil
			}
			if c := remote(); c != nil {
				w, err := c.Week(cmd.Context(), date)
				if err != nil {
					return err
				}
				return show(viewFromRemote(w))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Planner(ctx)
				if err != nil {
					return err
				}
				view, err := p.Week(ctx, date)
				if err != nil {
					return err
				}
				return show(view)
			})
		},
	}
	return cmd
}

func planAssignCmd() *cobra.Command {
	var req planning.AssignRequest
	var expected int64
	cmd := &cobra.Command{
		Use:   "assign <date> <block> <mission-id>",
		Short: "Place a mission in a day block",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[2])
			if err != nil {
				return err
			}
			req.Date, req.Block, req.MissionID, req.ActorID = args[0], args[1], id, actor()
			req.ExpectedVersion = pinned(cmd, expected)
			if c := remote(); c != nil {
				res, err := c.Assign(cmd.Context(), razmkarsdk.PlaceRequest{
					Date: req.Date, Block: req.Block, MissionID: id, Force: req.Force, ExpectedVersion: req.ExpectedVersion,
				})
				return printRemoteResult(res, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Planner(ctx)
				if err != nil {
					return err
				}
				return printResult(p.Assign(ctx, req))
			})
		},
	}
	cmd.Flags().BoolVar(&req.Force, "force", false, "assign even when the block is full")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the week is at this version")
	return cmd
}

func planUnassignCmd() *cobra.Command {
	var req planning.UnassignRequest
	var expected int64
	cmd := &cobra.Command{
		Use:   "unassign <date> <block> <mission-id>",
		Short: "Remove a mission from a day block",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[2])
			if err != nil {
				return err
			}
			req.Date, req.Block, req.MissionID, req.ActorID = args[0], args[1], id, actor()
			req.ExpectedVersion = pinned(cmd, expected)
			if c := remote(); c != nil {
				res, err := c.Unassign(cmd.Context(), razmkarsdk.PlaceRequest{
					Date: req.Date, Block: req.Block, MissionID: id, ExpectedVersion: req.ExpectedVersion,
				})
				return printRemoteResult(res, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Planner(ctx)
				if err != nil {
					return err
				}
				return printResult(p.Unassign(ctx, req))
			})
		},
	}
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the week is at this version")
	return cmd
}

func planMoveCmd() *cobra.Command {
	var req planning.MoveRequest
	var expected int64
	cmd := &cobra.Command{
		Use:   "move <src-date> <src-block> <dst-date> <dst-block> <mission-id>",
		Short: "Move a mission between blocks of the same week",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[4])
			if err != nil {
				return err
			}
			req.SrcDate, req.SrcBlock, req.DstDate, req.DstBlock = args[0], args[1], args[2], args[3]
			req.MissionID, req.ActorID = id, actor()
			req.ExpectedVersion = pinned(cmd, expected)
			if c := remote(); c != nil {
				res, err := c.Move(cmd.Context(), razmkarsdk.MoveRequest{
					SrcDate: req.SrcDate, SrcBlock: req.SrcBlock,
					DstDate: req.DstDate, DstBlock: req.DstBlock,
					MissionID: id, Force: req.Force, ExpectedVersion: req.ExpectedVersion,
				})
				return printRemoteResult(res, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Planner(ctx)
				if err != nil {
					return err
				}
				return printResult(p.Move(ctx, req))
			})
		},
	}
	cmd.Flags().BoolVar(&req.Force, "force", false, "move even when the target block is full")
	cmd.Flags().Int64Var(&expected, "expected-version", 0, "fail unless the week is at this version")
	return cmd
}

func pinned(cmd *cobra.Command, v int64) *int64 {
	if !cmd.Flags().Changed("expected-version") {
		return nil
	}
	return &v
}

func printResult(res planning.Result, err error) error {
	if err != nil {
		var pe *planning.Error
		if errors.As(err, &pe) && pe.Code == planning.CodeOverCapacity {
			return fmt.Errorf("%w (use --force to assign anyway)", err)
		}
		return err
	}
	if viper.GetBool("json") {
		return printJSON(map[string]any{
			"ok": true, "week": res.Week, "version": res.Version, "changed": res.Changed,
			"schedule": res.Schedule, "usage": res.Usage,
		})
	}
	if !res.Changed {
		fmt.Printf("Week %s unchanged (version %d)\n", res.Week, res.Version)
		return nil
	}
	fmt.Printf("Week %s saved (version %d)\n", res.Week, res.Version)
	return nil
}

func printRemoteResult(res razmkarsdk.ScheduleResult, err error) error {
	if err != nil {
		if razmkarsdk.IsCode(err, planning.CodeOverCapacity) {
			return fmt.Errorf("%w (use --force to assign anyway)", err)
		}
		return err
	}
	if viper.GetBool("json") {
		return printJSON(res)
	}
	state := "saved"
	if !res.Changed {
		state = "unchanged"
	}
	fmt.Printf("Week %s %s (version %d)\n", res.Week, state, res.Version)
	return nil
}

// renderBoard prints blocks as rows and days as columns. Each cell lists its
// missions and the used/capacity points.
func renderBoard(w io.Writer, view planning.WeekView, color bool) {
	style := func(s lipgloss.Style, text string) string {
		if !color {
			return text
		}
		return s.Render(text)
	}
	titles := map[int64]planning.PlannedMission{}
	for _, m := range view.Missions {
		titles[m.ID] = m
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("Week %s (%s … %s) v%d", view.Week, view.Start, view.End, view.Version))
	header := table.Row{"Block"}
	for _, d := range view.Days {
		label := d.Weekday + " " + d.Date[5:]
		if !d.Workday {
			label = style(offDayStyle, label)
		}
		header = append(header, label)
	}
	tw.AppendHeader(header)
	for _, b := range view.Blocks {
		row := table.Row{fmt.Sprintf("%s\n%s", b.Name, b.Label)}
		for _, d := range view.Days {
			cell := d.Date + "_" + b.Name
			var lines []string
			for _, id := range view.Schedule[cell] {
				m, ok := titles[id]
				switch {
				case !ok || m.Missing:
					lines = append(lines, style(missingStyle, fmt.Sprintf("#%d (deleted)", id)))
				default:
					lines = append(lines, fmt.Sprintf("#%d %s [%d]", m.ID, truncate(m.Title, 24), m.Points))
				}
			}
			u, ok := view.Usage[cell]
			if !ok {
				u = planning.Usage{Capacity: b.Capacity}
			}
			load := fmt.Sprintf("%d/%d", u.Used, u.Capacity)
			switch {
			case u.Over:
				load = style(overStyle, load+" !")
			case u.Used == u.Capacity && u.Used > 0:
				load = style(fullStyle, load)
			}
			lines = append(lines, load)
			row = append(row, strings.Join(lines, "\n"))
		}
		tw.AppendRow(row)
		tw.AppendSeparator()
	}
	tw.Render()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func viewFromRemote(w razmkarsdk.Week) planning.WeekView {
	view := planning.WeekView{
		Week:     w.Week,
		Version:  w.Version,
		Start:    w.Start,
		End:      w.End,
		Schedule: planning.Schedule(w.Schedule),
		Usage:    make(map[string]planning.Usage, len(w.Usage)),
	}
	for _, d := range w.Days {
		view.Days = append(view.Days, planning.Day{Date: d.Date, Weekday: d.Weekday, Workday: d.Workday})
	}
	for _, b := range w.Blocks {
		view.Blocks = append(view.Blocks, planning.Block{Name: b.Name, Label: b.Label, Start: b.Start, End: b.End, Capacity: b.Capacity})
	}
	for cell, u := range w.Usage {
		view.Usage[cell] = planning.Usage{Used: u.Used, Capacity: u.Capacity, Over: u.Over}
	}
	for _, m := range w.Missions {
		view.Missions = append(view.Missions, planning.PlannedMission{
			ID: m.ID, ProjectID: m.ProjectID, Title: m.Title, Status: m.Status,
			Category: m.Category, Points: m.Points, Missing: m.Missing,
		})
	}
	return view
}
