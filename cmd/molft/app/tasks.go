package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/launch"
	"github.com/bioagent/molft/internal/tasks"
)

// TasksOptions holds options for the tasks commands
type TasksOptions struct {
	*GlobalOptions

	// Kind filters the list by train or eval
	Kind string
}

// NewTasksCommand creates the tasks command group (ls, show).
func NewTasksCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &TasksOptions{GlobalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and inspect task presets",
		Long: `List and inspect task presets.

Built-in presets cover projector pretraining, LoRA fine-tuning and the
molecule evaluations. Presets in tasks.yaml are added on top and replace
built-ins with the same id.`,
		Args: cobra.NoArgs,
	}

	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List task presets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksList(cmd.OutOrStdout(), opts)
		},
	}
	ls.Flags().StringVarP(&opts.Kind, "kind", "k", "", "only list train or eval tasks")

	show := &cobra.Command{
		Use:   "show TASK",
		Short: "Show a task preset and its command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasksShow(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.AddCommand(ls, show)
	return cmd
}

// runTasksList prints registered tasks in a table.
func runTasksList(w io.Writer, opts *TasksOptions) error {
	if opts.Kind != "" && opts.Kind != string(tasks.KindTrain) && opts.Kind != string(tasks.KindEval) {
		return fmt.Errorf("unknown kind %q (want train or eval)", opts.Kind)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "TASK\tKIND\tSOURCE\tDESCRIPTION")
	n := 0
	for _, spec := range tasks.ListTaskSpecs() {
		if opts.Kind != "" && string(spec.Kind) != opts.Kind {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.ID, spec.Kind, spec.Source, spec.Description)
		n++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(w, "No tasks found.")
	}
	return nil
}

// runTasksShow prints one task's settings and the resulting command.
func runTasksShow(w io.Writer, id string, opts *TasksOptions) error {
	spec, err := lookupTask(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Task:        %s\n", spec.ID)
	fmt.Fprintf(w, "Kind:        %s\n", spec.Kind)
	fmt.Fprintf(w, "Source:      %s\n", spec.Source)
	if spec.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", spec.Description)
	}
	if spec.Docker != nil && spec.Docker.Image != "" {
		fmt.Fprintf(w, "Image:       %s\n", spec.Docker.Image)
	}

	cmd, err := launch.BuildCommand(spec, opts.env, launch.BuildOptions{})
	if err != nil {
		return err
	}

	masked := cmd.MaskedEnv()
	if len(masked) > 0 {
		fmt.Fprintln(w, "\nEnvironment:")
		for _, k := range cmd.EnvKeys() {
			fmt.Fprintf(w, "  %s=%s\n", k, masked[k])
		}
	}

	fmt.Fprintln(w, "\nCommand:")
	fmt.Fprintf(w, "  %s\n", cmd.Program)
	args := cmd.Args
	for i := 0; i < len(args); i++ {
		line := args[i]
		if strings.HasPrefix(line, "--") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			line += " " + launch.ShellQuote(args[i+1])
			i++
		}
		fmt.Fprintf(w, "    %s\n", line)
	}
	return nil
}
