//go:build unix

package launch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNativeRunnerSuccess(t *testing.T) {
	var out bytes.Buffer
	cmd := &Command{
		Program: "sh",
		Args:    []string{"-c", `printf '%s' "$MOLFT_TEST_VALUE"`},
		Env:     map[string]string{"MOLFT_TEST_VALUE": "exported"},
		WorkDir: t.TempDir(),
	}
	res, err := NewNativeRunner().Run(context.Background(), cmd, RunIO{Stdout: &out})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 || out.String() != "exported" {
		t.Fatalf("exit=%d out=%q", res.ExitCode, out.String())
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Fatal("FinishedAt before StartedAt")
	}
}

func TestNativeRunnerExitCode(t *testing.T) {
	var stderr bytes.Buffer
	cmd := &Command{Program: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}}
	res, err := NewNativeRunner().Run(context.Background(), cmd, RunIO{Stderr: &stderr})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("err = %v, want ExitError 3", err)
	}
	if res == nil || res.ExitCode != 3 {
		t.Fatalf("result = %+v", res)
	}
	if strings.TrimSpace(stderr.String()) != "boom" {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestNativeRunnerMissingProgram(t *testing.T) {
	res, err := NewNativeRunner().Run(context.Background(), &Command{Program: "molft-no-such-program"}, RunIO{})
	if err == nil || res != nil {
		t.Fatalf("Run() = %+v, %v; want start error", res, err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Fatal("a program that never started must not report an exit status")
	}
}

func TestNativeRunnerCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := &NativeRunner{GracePeriod: time.Second}
	res, err := r.Run(ctx, &Command{Program: "sleep", Args: []string{"10"}}, RunIO{})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if res == nil || res.Duration() > 5*time.Second {
		t.Fatalf("result = %+v", res)
	}
	if res.ExitCode != 130 {
		t.Fatalf("ExitCode = %d, want 130 (SIGINT)", res.ExitCode)
	}
}

func TestNativeRunnerTTY(t *testing.T) {
	var out bytes.Buffer
	cmd := &Command{Program: "sh", Args: []string{"-c", "test -t 1 && echo tty; exit 4"}, WorkDir: t.TempDir()}
	res, err := NewNativeRunner().Run(context.Background(), cmd, RunIO{Stdout: &out, TTY: true})
	if res == nil && err != nil && strings.Contains(err.Error(), "pty") {
		t.Skipf("no pseudo-terminal available: %v", err)
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 4 {
		t.Fatalf("err = %v, want ExitError 4", err)
	}
	if res == nil || res.ExitCode != 4 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(out.String(), "tty") {
		t.Fatalf("output = %q, want the child to see a terminal on stdout", out.String())
	}
}
