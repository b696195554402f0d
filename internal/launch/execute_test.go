package launch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bioagent/molft/internal/history"
)

type fakeRunner struct {
	got    *Command
	result *Result
	err    error
	before func(ctx context.Context)
}

func (f *fakeRunner) Name() string { return "fake" }

func (f *fakeRunner) Run(ctx context.Context, cmd *Command, _ RunIO) (*Result, error) {
	f.got = cmd
	if f.before != nil {
		f.before(ctx)
	}
	return f.result, f.err
}

type finishCall struct {
	id       string
	status   history.Status
	exitCode int
	errMsg   string
}

type fakeRecorder struct {
	started  []history.Run
	finished []finishCall
}

func (f *fakeRecorder) RecordStart(_ context.Context, run history.Run) error {
	f.started = append(f.started, run)
	return nil
}

func (f *fakeRecorder) RecordFinish(_ context.Context, id string, status history.Status, exitCode int, errMsg string) error {
	f.finished = append(f.finished, finishCall{id, status, exitCode, errMsg})
	return nil
}

func TestExecuteRecordsSuccess(t *testing.T) {
	now := time.Now()
	runner := &fakeRunner{result: &Result{StartedAt: now, FinishedAt: now.Add(time.Second)}}
	rec := &fakeRecorder{}
	ex := &Executor{Runner: runner, History: rec}

	cmd := &Command{
		Program: "python",
		Args:    []string{"eval.py", "--output_dir", "results/x"},
		Env:     map[string]string{"OPENAI_API_KEY": "sk-0123456789"},
		Labels:  map[string]string{"molft.task": "eval-i2s"},
	}
	out, err := ex.Execute(context.Background(), evalSpec(), cmd, RunIO{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Status != history.StatusSucceeded {
		t.Errorf("Status = %s", out.Status)
	}
	if runner.got.Labels["molft.run_id"] != out.RunID {
		t.Errorf("run id label = %q, want %q", runner.got.Labels["molft.run_id"], out.RunID)
	}
	if _, ok := cmd.Labels["molft.run_id"]; ok {
		t.Error("Execute modified the caller's command")
	}

	if len(rec.started) != 1 || len(rec.finished) != 1 {
		t.Fatalf("recorded %d starts and %d finishes", len(rec.started), len(rec.finished))
	}
	start := rec.started[0]
	if start.ID != out.RunID || start.TaskID != "eval-i2s" || start.Mode != "fake" || start.OutputDir != "results/x" {
		t.Errorf("start record = %+v", start)
	}
	if strings.Contains(start.Command, "0123456789") {
		t.Errorf("recorded command leaks a secret: %s", start.Command)
	}
	if rec.finished[0].status != history.StatusSucceeded {
		t.Errorf("finish = %+v", rec.finished[0])
	}
}

func TestExecuteReportsExitCode(t *testing.T) {
	runner := &fakeRunner{
		result: &Result{ExitCode: 3},
		err:    &ExitError{Program: "deepspeed", Code: 3},
	}
	rec := &fakeRecorder{}
	out, err := (&Executor{Runner: runner, History: rec}).Execute(context.Background(), trainSpec(), &Command{Program: "deepspeed"}, RunIO{})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("err = %v, want ExitError with code 3", err)
	}
	if out.Status != history.StatusFailed {
		t.Errorf("Status = %s, want failed", out.Status)
	}
	got := rec.finished[0]
	if got.exitCode != 3 || got.errMsg != "deepspeed exited with status 3" {
		t.Errorf("finish = %+v", got)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{
		result: &Result{ExitCode: 130},
		err:    &ExitError{Program: "python", Code: 130},
		before: func(context.Context) { cancel() },
	}
	rec := &fakeRecorder{}
	out, _ := (&Executor{Runner: runner, History: rec}).Execute(ctx, evalSpec(), &Command{Program: "python"}, RunIO{})
	if out.Status != history.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", out.Status)
	}
	if rec.finished[0].status != history.StatusCancelled {
		t.Fatalf("recorded status = %s", rec.finished[0].status)
	}
}

func TestExecuteWithoutHistory(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exec: not found")}
	out, err := (&Executor{Runner: runner}).Execute(context.Background(), evalSpec(), &Command{Program: "nope"}, RunIO{})
	if err == nil || out.Result != nil || out.Status != history.StatusFailed {
		t.Fatalf("Execute() = %+v, %v", out, err)
	}
}

func TestExecuteRequiresRunner(t *testing.T) {
	if _, err := (&Executor{}).Execute(context.Background(), evalSpec(), &Command{}, RunIO{}); err == nil {
		t.Fatal("expected error without a runner")
	}
}

func TestMaskedString(t *testing.T) {
	cmd := &Command{
		Program: "python",
		Args:    []string{"eval.py"},
		Env:     map[string]string{"HF_HOME": "/c", "WANDB_API_KEY": "abc"},
	}
	if got, want := MaskedString(cmd), "HF_HOME=/c WANDB_API_KEY='****' python eval.py"; got != want {
		t.Fatalf("MaskedString() = %q, want %q", got, want)
	}
}

func TestExecuteSavesScript(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{result: &Result{}}
	ex := &Executor{Runner: runner, ScriptDir: dir}

	cmd := &Command{Program: "python", Args: []string{"eval.py"}, Env: map[string]string{"WANDB_API_KEY": "0123456789abc"}}
	out, err := ex.Execute(context.Background(), evalSpec(), cmd, RunIO{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, out.RunID+".sh"))
	if err != nil {
		t.Fatalf("launcher not saved: %v", err)
	}
	script := string(data)
	if !strings.Contains(script, "# task: eval-i2s") || !strings.Contains(script, "exec python") {
		t.Errorf("script =\n%s", script)
	}
	if strings.Contains(script, "0123456789abc") {
		t.Error("saved launcher leaks a secret")
	}
}
