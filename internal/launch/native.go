package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/chzyer/readline"
	"github.com/creack/pty"

	"github.com/bioagent/molft/internal/logger"
)

// NativeRunner runs commands as host processes.
type NativeRunner struct {
	// GracePeriod is how long a cancelled child gets between SIGINT and
	// SIGKILL. Distributed trainers need time to tear down workers.
	GracePeriod time.Duration
}

// NewNativeRunner creates a host runner with a 30 second grace period.
func NewNativeRunner() *NativeRunner {
	return &NativeRunner{GracePeriod: 30 * time.Second}
}

// Name implements Runner.
func (r *NativeRunner) Name() string {
	return string(ModeNative)
}

// Run starts the program with the merged environment and waits for it.
//
// On context cancellation the child receives SIGINT, then SIGKILL after
// GracePeriod. A non-zero exit is reported as *ExitError alongside the
// Result; failure to start at all is returned as a plain error with a nil
// Result.
func (r *NativeRunner) Run(ctx context.Context, cmd *Command, rio RunIO) (*Result, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.WorkDir
	c.Env = cmd.Environ(os.Environ())
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = r.GracePeriod

	result := &Result{StartedAt: time.Now()}
	logger.Info("Starting %s", cmd.Describe())

	var err error
	if rio.TTY {
		err = r.runWithPTY(c, rio)
	} else {
		c.Stdin = rio.Stdin
		c.Stdout = rio.Stdout
		c.Stderr = rio.Stderr
		if startErr := c.Start(); startErr != nil {
			return nil, fmt.Errorf("failed to start %s: %w", cmd.Program, startErr)
		}
		err = c.Wait()
	}
	result.FinishedAt = time.Now()

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode < 0 {
			// Killed by a signal.
			result.ExitCode = 128 + int(signalOf(exitErr))
		}
		return result, &ExitError{Program: cmd.Program, Code: result.ExitCode}
	}
	if c.Process == nil {
		return nil, err
	}
	return result, fmt.Errorf("%s: %w", cmd.Program, err)
}

// runWithPTY attaches the child to a pseudo-terminal and copies its output
// to rio.Stdout.
//
// When rio.Stdin is a terminal it is switched to raw mode for the run so
// keys reach the child once, without local echo, and the pty takes the
// terminal's size. Stdin forwarding is best effort: the copy goroutine ends
// at its first read after the child exits, which consumes that input.
func (r *NativeRunner) runWithPTY(c *exec.Cmd, rio RunIO) error {
	ptmx, err := pty.Start(c)
	if err != nil {
		return fmt.Errorf("failed to start %s on a pty: %w", c.Path, err)
	}
	defer ptmx.Close()

	if f, ok := rio.Stdin.(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
		if err := pty.InheritSize(f, ptmx); err != nil {
			logger.Debug("Failed to copy terminal size: %v", err)
		}
		state, err := readline.MakeRaw(int(f.Fd()))
		if err != nil {
			logger.Debug("Failed to put terminal in raw mode: %v", err)
		} else {
			defer func() { _ = readline.Restore(int(f.Fd()), state) }()
		}
	}

	if rio.Stdin != nil {
		go func() {
			_, _ = io.Copy(ptmx, rio.Stdin)
		}()
	}

	out := rio.Stdout
	if out == nil {
		out = io.Discard
	}
	// Reading the pty master returns EIO once the child exits.
	_, _ = io.Copy(out, ptmx)

	return c.Wait()
}
