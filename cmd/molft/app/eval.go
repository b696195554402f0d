package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bioagent/molft/internal/launch"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
)

// EvalOptions holds options for the eval command
type EvalOptions struct {
	LaunchOptions

	// Parallel is the number of evaluations run at once
	Parallel int
}

// NewEvalCommand creates the eval command.
//
// The eval command runs the python evaluator for one or more evaluation
// tasks. Tasks are independent; with --parallel they run concurrently and a
// failing task does not stop the others.
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for evaluation
func NewEvalCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &EvalOptions{
		LaunchOptions: LaunchOptions{GlobalOptions: globalOpts},
	}

	cmd := &cobra.Command{
		Use:   "eval TASK...",
		Short: "Run the evaluator for one or more tasks",
		Long: `Run the python evaluator with the parameter block of each evaluation task.

Overrides given with --set apply to every task. With --parallel N, up to N
evaluations run at once and their output lines are prefixed with the task id.`,
		Example: `  # Evaluate name conversion
  molft eval molecule-eval-i2s

  # Run all molecule evaluations two at a time
  molft eval molecule-eval-i2s molecule-eval-s2f molecule-eval-caption --parallel 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.out = cmd.OutOrStdout()
			return runEval(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 1,
		"number of evaluations to run at once")
	addLaunchFlags(cmd, &opts.LaunchOptions)

	return cmd
}

type evalJob struct {
	spec *tasks.TaskSpec
	cmd  *launch.Command
	out  *launch.Outcome
	err  error
}

// runEval executes the eval command logic.
func runEval(ctx context.Context, ids []string, opts *EvalOptions) error {
	if opts.Parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}

	// Build everything first so a typo fails before anything runs.
	jobs := make([]*evalJob, 0, len(ids))
	for _, id := range ids {
		spec, cmd, err := buildTaskCommand(id, &opts.LaunchOptions)
		if err != nil {
			return err
		}
		if spec.Kind != tasks.KindEval {
			return fmt.Errorf("task %s is a training task; use '%s train %s'", id, cliName, id)
		}
		jobs = append(jobs, &evalJob{spec: spec, cmd: cmd})
	}

	if opts.DryRun {
		for _, job := range jobs {
			if _, err := runTask(ctx, job.spec, job.cmd, &opts.LaunchOptions, launch.RunIO{}); err != nil {
				return err
			}
		}
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrent := opts.Parallel > 1 && len(jobs) > 1
	if concurrent && opts.TTY {
		logger.Warn("--tty is ignored when evaluations run in parallel")
	}
	var outMu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(opts.Parallel)
	for _, job := range jobs {
		g.Go(func() error {
			rio := launch.RunIO{Stdout: os.Stdout, Stderr: os.Stderr, TTY: opts.TTY}
			if concurrent {
				stdout := newPrefixWriter(os.Stdout, job.spec.ID, &outMu)
				stderr := newPrefixWriter(os.Stderr, job.spec.ID, &outMu)
				defer stdout.Flush()
				defer stderr.Flush()
				rio = launch.RunIO{Stdout: stdout, Stderr: stderr}
			} else {
				rio.Stdin = os.Stdin
			}
			job.out, job.err = runTask(ctx, job.spec, job.cmd, &opts.LaunchOptions, rio)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	w := tabwriter.NewWriter(opts.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TASK\tRUN\tSTATUS\tEXIT")
	for _, job := range jobs {
		runID, exit := "-", "-"
		if job.out != nil {
			runID = job.out.RunID
			if job.out.Result != nil {
				exit = fmt.Sprintf("%d", job.out.Result.ExitCode)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", job.spec.ID, runID, recordedStatus(job.out), exit)
		if job.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.spec.ID, job.err))
		}
	}
	w.Flush()

	return errors.Join(errs...)
}

// prefixWriter prefixes each complete line with "[name] ". Lines from
// concurrent writers sharing mu are never interleaved.
type prefixWriter struct {
	w      io.Writer
	prefix []byte
	mu     *sync.Mutex
	buf    bytes.Buffer
}

func newPrefixWriter(w io.Writer, name string, mu *sync.Mutex) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte("[" + name + "] "), mu: mu}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.buf.Write(b)
	for {
		i := bytes.IndexByte(p.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := p.buf.Next(i + 1)
		if err := p.emit(line); err != nil {
			return len(b), err
		}
	}
	return len(b), nil
}

// Flush writes a trailing partial line.
func (p *prefixWriter) Flush() error {
	if p.buf.Len() == 0 {
		return nil
	}
	line := append(p.buf.Bytes(), '\n')
	p.buf.Reset()
	return p.emit(line)
}

func (p *prefixWriter) emit(line []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(p.prefix); err != nil {
		return err
	}
	_, err := p.w.Write(line)
	return err
}
