package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/history"
)

// HistoryOptions holds options for the history command
type HistoryOptions struct {
	*GlobalOptions

	// Limit caps the number of listed runs
	Limit int
}

// NewHistoryCommand creates the history command.
//
// Usage:
//
//	molft history [--limit N]
//	molft history show RUN
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for browsing past runs
func NewHistoryCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &HistoryOptions{GlobalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs",
		Long: `List past training and evaluation runs, newest first.

Every launch is recorded with its task, runner, masked command line and exit
status. Use 'history show RUN' with a full run id or a unique prefix for
details.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show RUN",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.AddCommand(show)

	return cmd
}

// runHistoryList prints recent runs.
func runHistoryList(ctx context.Context, w io.Writer, opts *HistoryOptions) error {
	store, err := opts.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(contextOrBackground(ctx), opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTASK\tMODE\tSTATUS\tEXIT\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRunID(r.ID), r.TaskID, r.Mode, r.Status, exitColumn(r),
			humanize.Time(r.StartedAt), formatDuration(r.Duration()))
	}
	return tw.Flush()
}

// runHistoryShow prints the details of one run.
func runHistoryShow(ctx context.Context, w io.Writer, id string, opts *HistoryOptions) error {
	store, err := opts.openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(contextOrBackground(ctx), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Task:      %s (%s)\n", r.TaskID, r.Kind)
	fmt.Fprintf(w, "Mode:      %s\n", r.Mode)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Exit code: %s\n", exitColumn(r))
	fmt.Fprintf(w, "Started:   %s (%s)\n", r.StartedAt.Local().Format(time.RFC3339), humanize.Time(r.StartedAt))
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:  %s\n", r.FinishedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Duration:  %s\n", formatDuration(r.Duration()))
	if r.OutputDir != "" {
		fmt.Fprintf(w, "Output:    %s\n", r.OutputDir)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}
	fmt.Fprintf(w, "Command:   %s\n", r.Command)
	return nil
}

func exitColumn(r history.Run) string {
	if r.Status == history.StatusRunning {
		return "-"
	}
	return fmt.Sprintf("%d", r.ExitCode)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
