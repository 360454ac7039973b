package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vzahanych/land2port/internal/cut"
	"github.com/vzahanych/land2port/internal/journal"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect journaled runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := journalFor(ctx)
			if err != nil {
				return err
			}
			runs, err := jnl.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.Source,
					r.Strategy,
					strconv.FormatInt(r.Frames, 10),
					strconv.FormatInt(r.Cuts, 10),
					r.StartedAt.Local().Format(time.DateTime),
					runState(r),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Source", "Strategy", "Frames", "Cuts", "Started", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var decisions int

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run and its first decisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := journalFor(ctx)
			if err != nil {
				return err
			}
			run, err := jnl.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			hard, err := jnl.CountCuts(cmd.Context(), run.ID, cut.Hard.String())
			if err != nil {
				return err
			}
			soft, err := jnl.CountCuts(cmd.Context(), run.ID, cut.Soft.String())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:              %s\n", run.ID)
			fmt.Fprintf(out, "Source:           %s\n", run.Source)
			fmt.Fprintf(out, "Frame:            %.0fx%.0f @ %.2f fps\n", run.Frame.Width, run.Frame.Height, run.FPS)
			fmt.Fprintf(out, "Strategy:         %s\n", run.Strategy)
			fmt.Fprintf(out, "State:            %s\n", runState(run))
			fmt.Fprintf(out, "Frames:           %d\n", run.Frames)
			fmt.Fprintf(out, "Hard cuts:        %d\n", hard)
			fmt.Fprintf(out, "Soft transitions: %d\n", soft)
			fmt.Fprintf(out, "Layout switches:  %d\n", run.LayoutSwitches)
			if run.LastWindow != nil {
				fmt.Fprintf(out, "Last window:      %s\n", describeWindow(run.LastWindow.Rects))
			}

			if decisions <= 0 {
				return nil
			}
			list, err := jnl.Decisions(cmd.Context(), run.ID, 0, decisions)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, d := range list {
				rows = append(rows, []string{
					strconv.FormatInt(d.FrameIndex, 10),
					d.Layout,
					describeWindow(d.Window.Rects),
					d.Reason,
					d.CutClass,
					d.Step,
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Frame", "Layout", "Window", "Reason", "Cut", "Step"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&decisions, "decisions", 10, "Number of decisions to print")
	return cmd
}

func journalFor(ctx *commandContext) (*journal.Journal, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.JournalEnabled {
		return nil, errors.New("journal is disabled (storage.journal_enabled)")
	}
	return ctx.openJournal()
}

func runState(r *journal.RunRecord) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.FinishedAt != nil:
		return "finished"
	default:
		return "running"
	}
}
