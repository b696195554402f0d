// Package app provides the command-line interface implementation for molft.
//
// Each file holds one command: a NewXxxCommand constructor that declares
// flags and a runXxx function with the logic. Global options are shared
// through GlobalOptions.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/history"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
	_ "github.com/bioagent/molft/internal/tasks/molecule"
	"github.com/bioagent/molft/internal/telemetry"
)

const (
	// cliName is the name of the CLI application
	cliName = "molft"

	// cliDescription is the short description shown in help text
	cliDescription = "molft - launch molecule LLM fine-tuning and evaluation"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// Verbose enables debug logging
	Verbose bool

	// ConfigDir overrides the configuration directory (~/.molft)
	ConfigDir string

	// DataDir overrides the data directory (<config>/data)
	DataDir string

	// TasksFile overrides the user task file (<config>/tasks.yaml)
	TasksFile string

	config  *config.Config
	env     config.EnvConfig
	tracing func(context.Context) error
}

// NewMolftCommand creates the root molft command with all subcommands.
//
// Before any subcommand runs, the launcher environment is parsed and user
// task presets are layered over the built-in ones.
//
// Returns:
//   - A configured cobra.Command ready for execution
//
// Example:
//
//	cmd := NewMolftCommand()
//	if err := cmd.Execute(); err != nil {
//	    os.Exit(1)
//	}
//
// Use Execute instead when spans of failed commands must be exported.
func NewMolftCommand() *cobra.Command {
	return newMolftCommand(&GlobalOptions{})
}

// Execute runs the molft command line and flushes pending spans on every
// exit path, including launches whose child process failed.
//
// Parameters:
//   - ctx: base context for the command
//   - args: arguments without the program name
//   - stdout, stderr: command output streams
//
// Returns:
//   - The command's error; a failed child is reported as *launch.ExitError
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &GlobalOptions{}
	cmd := newMolftCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if flushErr := opts.shutdownTracing(); flushErr != nil {
		logger.Warn("Failed to flush traces: %v", flushErr)
	}
	return err
}

func newMolftCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `molft builds and runs the deepspeed trainer and the python evaluator of the
multimodal molecule language model.

Each task is a named parameter block: the base checkpoint, dataset, projector
weights, output directory and training hyperparameters. molft exports the
launcher environment (Hugging Face caches, API keys, visible GPUs), turns the
block into command-line flags and runs the external program on the host or in
a container. Failures are reported with the program's own exit status.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.shutdownTracing()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "",
		"configuration directory (default: $MOLFT_HOME or ~/.molft)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "",
		"data directory for run history (default: <config-dir>/data)")
	cmd.PersistentFlags().StringVar(&opts.TasksFile, "tasks", "",
		"task preset file (default: <config-dir>/tasks.yaml)")

	cmd.AddCommand(
		NewTrainCommand(opts),
		NewEvalCommand(opts),
		NewRenderCommand(opts),
		NewTasksCommand(opts),
		NewHistoryCommand(opts),
		NewDatasetCommand(opts),
		NewDoctorCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// init resolves directories, the launcher environment and task presets.
func (o *GlobalOptions) init(ctx context.Context) error {
	logger.SetDebug(o.Verbose)

	o.config = config.NewConfigWithCustomDirs(o.ConfigDir, o.DataDir)

	env, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	o.env = env

	tasksFile := o.TasksFile
	if tasksFile == "" {
		tasksFile = o.config.Storage.GetTasksPath()
	}
	if _, err := tasks.LoadAndRegisterTasksFromConfig(tasksFile); err != nil {
		return fmt.Errorf("failed to load tasks from %s: %w", tasksFile, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Setup(ctx)
	if err != nil {
		logger.Warn("Tracing disabled: %v", err)
	}
	o.tracing = shutdown
	return nil
}

// shutdownTracing flushes and stops the tracer provider. Later calls do
// nothing.
func (o *GlobalOptions) shutdownTracing() error {
	if o.tracing == nil {
		return nil
	}
	shutdown := o.tracing
	o.tracing = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(ctx)
}

// openHistory opens the run ledger, creating the data directories first.
func (o *GlobalOptions) openHistory() (*history.Store, error) {
	if err := o.config.EnsureDirectories(); err != nil {
		return nil, err
	}
	return history.Open(o.config.Storage.GetHistoryPath())
}

// lookupTask returns a copy of a registered task.
func lookupTask(id string) (*tasks.TaskSpec, error) {
	spec, err := tasks.GetTaskSpec(id)
	if err != nil {
		return nil, fmt.Errorf("%w (see '%s tasks ls')", err, cliName)
	}
	return spec, nil
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return readline.IsTerminal(int(f.Fd()))
}
