package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bioagent/molft/internal/history"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
	"github.com/bioagent/molft/internal/telemetry"
)

// Recorder persists run lifecycle events. *history.Store implements it.
type Recorder interface {
	RecordStart(ctx context.Context, run history.Run) error
	RecordFinish(ctx context.Context, id string, status history.Status, exitCode int, errMsg string) error
}

// Executor runs built commands and records them.
type Executor struct {
	Runner Runner

	// History may be nil, in which case nothing is recorded.
	History Recorder

	// ScriptDir, when set, receives a <run id>.sh launcher per run with
	// secrets masked.
	ScriptDir string
}

// Outcome is the result of one Execute call.
type Outcome struct {
	RunID  string
	Status history.Status
	Result *Result
}

// Execute runs cmd for spec through the configured runner.
//
// A fresh run id is attached to the command as the "molft.run_id" label and
// the run is recorded before start and after exit. The stored command line
// never contains secret values. Ledger failures are logged and do not affect
// the run.
//
// Parameters:
//   - ctx: cancelling it stops the child
//   - spec: the task the command was built from
//   - cmd: the command, as returned by BuildCommand
//   - rio: child stream wiring
//
// Returns:
//   - Outcome with the run id and status; Result is nil if the child never
//     started
//   - The runner's error, including *ExitError for a non-zero exit
func (e *Executor) Execute(ctx context.Context, spec *tasks.TaskSpec, cmd *Command, rio RunIO) (*Outcome, error) {
	if e.Runner == nil {
		return nil, fmt.Errorf("no runner configured")
	}

	runID := history.NewRunID()
	run := withRunID(cmd, runID)

	ctx, span := telemetry.Tracer().Start(ctx, "molft."+string(spec.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("molft.task", spec.ID),
		attribute.String("molft.run_id", runID),
		attribute.String("molft.runner", e.Runner.Name()),
	)
	telemetry.InjectEnv(ctx, run.Env)

	if e.History != nil {
		err := e.History.RecordStart(ctx, history.Run{
			ID:        runID,
			TaskID:    spec.ID,
			Kind:      string(spec.Kind),
			Mode:      e.Runner.Name(),
			Command:   MaskedString(run),
			OutputDir: OutputDir(run),
		})
		if err != nil {
			logger.Warn("Failed to record run %s: %v", runID, err)
		}
	}

	if e.ScriptDir != "" {
		if err := e.saveScript(spec, run, runID); err != nil {
			logger.Warn("Failed to save launcher for run %s: %v", runID, err)
		}
	}

	logger.Info("Run %s: %s (%s)", shortID(runID), spec.ID, e.Runner.Name())
	result, runErr := e.Runner.Run(ctx, run, rio)

	out := &Outcome{RunID: runID, Result: result, Status: StatusOf(ctx, runErr)}
	exitCode := 0
	if result != nil {
		exitCode = result.ExitCode
		span.SetAttributes(attribute.Int("molft.exit_code", exitCode))
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, errMsg)
	}

	if e.History != nil {
		// The run context may already be cancelled.
		if err := e.History.RecordFinish(context.WithoutCancel(ctx), runID, out.Status, exitCode, errMsg); err != nil {
			logger.Warn("Failed to record result of run %s: %v", runID, err)
		}
	}

	if result != nil {
		logger.Info("Run %s %s after %s (exit %d)", shortID(runID), out.Status, result.Duration().Round(time.Second), exitCode)
	}
	return out, runErr
}

func (e *Executor) saveScript(spec *tasks.TaskSpec, cmd *Command, runID string) error {
	script := RenderScript(cmd, RenderOptions{Header: []string{
		"molft run " + runID,
		"task: " + spec.ID,
	}})
	return os.WriteFile(filepath.Join(e.ScriptDir, runID+".sh"), []byte(script), 0o755)
}

// StatusOf maps a runner error to a ledger status.
func StatusOf(ctx context.Context, err error) history.Status {
	switch {
	case err == nil:
		return history.StatusSucceeded
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return history.StatusCancelled
	default:
		return history.StatusFailed
	}
}

// MaskedString renders the command line prefixed by its exported variables,
// with secret values masked.
func MaskedString(cmd *Command) string {
	masked := cmd.MaskedEnv()
	parts := make([]string, 0, len(masked)+1)
	for _, k := range cmd.EnvKeys() {
		parts = append(parts, k+"="+ShellQuote(masked[k]))
	}
	parts = append(parts, cmd.String())
	return strings.Join(parts, " ")
}

// OutputDir returns the value of the --output_dir flag, if any.
func OutputDir(cmd *Command) string {
	for i := 0; i+1 < len(cmd.Args); i++ {
		if cmd.Args[i] == "--output_dir" {
			return cmd.Args[i+1]
		}
	}
	return ""
}

// withRunID copies cmd with the run id label set.
func withRunID(cmd *Command, runID string) *Command {
	c := *cmd
	c.Args = append([]string(nil), cmd.Args...)
	c.Env = make(map[string]string, len(cmd.Env))
	for k, v := range cmd.Env {
		c.Env[k] = v
	}
	c.Labels = make(map[string]string, len(cmd.Labels)+1)
	for k, v := range cmd.Labels {
		c.Labels[k] = v
	}
	c.Labels["molft.run_id"] = runID
	return &c
}
