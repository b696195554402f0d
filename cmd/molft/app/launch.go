package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/device"
	"github.com/bioagent/molft/internal/history"
	"github.com/bioagent/molft/internal/launch"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
)

// LaunchOptions are the per-run flags shared by train and eval.
type LaunchOptions struct {
	*GlobalOptions

	// GPUs overrides the worker count (train only)
	GPUs int

	// Set holds key=value flag overrides
	Set []string

	// Mode is native or docker; empty picks docker for tasks with an image
	Mode string

	// DryRun prints the command instead of running it
	DryRun bool

	// TTY runs the child on a pseudo-terminal
	TTY bool

	// Keep leaves the container after a docker run
	Keep bool

	out io.Writer
}

func addLaunchFlags(cmd *cobra.Command, opts *LaunchOptions) {
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil,
		"override a flag as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "",
		"where to run: native or docker (default: docker if the task names an image)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"print the command and environment without running")
	cmd.Flags().BoolVarP(&opts.TTY, "tty", "t", false,
		"run on a pseudo-terminal so progress bars render")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false,
		"keep the container after it exits (docker mode)")
}

// buildTaskCommand looks up a task and assembles its command.
func buildTaskCommand(id string, opts *LaunchOptions) (*tasks.TaskSpec, *launch.Command, error) {
	spec, err := lookupTask(id)
	if err != nil {
		return nil, nil, err
	}
	cmd, err := launch.BuildCommand(spec, opts.env, launch.BuildOptions{
		NumGPUs:    opts.GPUs,
		Overrides:  opts.Set,
		DetectGPUs: device.CountGPUs,
	})
	if err != nil {
		return nil, nil, err
	}
	return spec, cmd, nil
}

// resolveMode picks the runner mode for spec.
func resolveMode(flag string, spec *tasks.TaskSpec) (launch.Mode, error) {
	if flag != "" {
		mode, err := launch.ParseMode(flag)
		if err != nil {
			return "", err
		}
		if mode == launch.ModeDocker && (spec.Docker == nil || spec.Docker.Image == "") {
			return "", fmt.Errorf("task %s has no docker image configured", spec.ID)
		}
		return mode, nil
	}
	if spec.Docker != nil && spec.Docker.Image != "" {
		return launch.ModeDocker, nil
	}
	return launch.ModeNative, nil
}

// newRunner creates the runner for mode.
func newRunner(mode launch.Mode, spec *tasks.TaskSpec, opts *LaunchOptions) (launch.Runner, error) {
	if mode == launch.ModeNative {
		return launch.NewNativeRunner(), nil
	}
	d := spec.Docker
	return launch.NewDockerRunner(launch.DockerOptions{
		Image:     d.Image,
		Mounts:    d.Mounts,
		ShmSize:   d.ShmSize,
		Ports:     d.Ports,
		WorkDir:   d.WorkDir,
		CacheDirs: opts.env.CacheDirs(),
		Keep:      opts.Keep,
	})
}

// printDryRun shows what would be executed.
func printDryRun(w io.Writer, spec *tasks.TaskSpec, mode launch.Mode, cmd *launch.Command) {
	fmt.Fprintf(w, "# task: %s (%s, %s)\n", spec.ID, spec.Kind, mode)
	fmt.Fprint(w, launch.RenderScript(cmd, launch.RenderOptions{}))
}

// runTask executes one built command and records it in the history.
//
// The returned error is the runner's error; a non-zero child exit is a
// *launch.ExitError carrying the exit status.
func runTask(ctx context.Context, spec *tasks.TaskSpec, cmd *launch.Command, opts *LaunchOptions, rio launch.RunIO) (*launch.Outcome, error) {
	mode, err := resolveMode(opts.Mode, spec)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		printDryRun(opts.out, spec, mode, cmd)
		return nil, nil
	}

	runner, err := newRunner(mode, spec, opts)
	if err != nil {
		return nil, err
	}

	store, err := opts.openHistory()
	if err != nil {
		logger.Warn("Run history unavailable: %v", err)
		store = nil
	}
	executor := &launch.Executor{Runner: runner}
	if store != nil {
		defer store.Close()
		executor.History = store
		executor.ScriptDir = opts.config.Storage.GetRunsDir()
	}

	return executor.Execute(ctx, spec, cmd, rio)
}

// outputDirHasFiles reports whether the task's output dir exists and is
// not empty. Relative paths are resolved against workDir.
func outputDirHasFiles(dir, workDir string) bool {
	if dir == "" {
		return false
	}
	if !filepath.IsAbs(dir) && workDir != "" {
		dir = filepath.Join(workDir, dir)
	}
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// recordedStatus is used in summaries.
func recordedStatus(out *launch.Outcome) history.Status {
	if out == nil {
		return history.StatusFailed
	}
	return out.Status
}
