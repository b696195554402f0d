package launch

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Mode selects where a command runs.
type Mode string

const (
	ModeNative Mode = "native" // host process
	ModeDocker Mode = "docker" // container
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNative, ModeDocker:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want native or docker)", s)
	}
}

// RunIO wires the child's standard streams.
type RunIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// TTY runs the child on a pseudo-terminal so progress bars render.
	// Stdout then carries both output streams.
	TTY bool
}

// Result describes a finished run.
type Result struct {
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock run time.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitError reports a child that ran and exited non-zero. It is returned
// together with a populated Result; molft never retries.
type ExitError struct {
	Program string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Program, e.Code)
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and blocks until it finishes or ctx is cancelled.
	Run(ctx context.Context, cmd *Command, rio RunIO) (*Result, error)

	// Name identifies the runner in logs and history.
	Name() string
}
