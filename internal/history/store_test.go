package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	_ = second.Close()
}

func TestRecordLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:        NewRunID(),
		TaskID:    "molecule-lora-finetune",
		Kind:      "train",
		Mode:      "native",
		Command:   "deepspeed --num_gpus 8 scripts/train_model.py",
		OutputDir: "checkpoints/molecule-2d-lora",
		StartedAt: time.Now().Add(-time.Minute),
	}
	if err := store.RecordStart(ctx, run); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusRunning || !got.FinishedAt.IsZero() {
		t.Fatalf("unexpected running state: %+v", got)
	}

	if err := store.RecordFinish(ctx, run.ID, StatusFailed, 3, " boom "); err != nil {
		t.Fatalf("RecordFinish: %v", err)
	}

	got, err = store.Get(ctx, run.ID[:8])
	if err != nil {
		t.Fatalf("Get by prefix: %v", err)
	}
	if got.Status != StatusFailed || got.ExitCode != 3 || got.Error != "boom" {
		t.Fatalf("unexpected finished state: %+v", got)
	}
	if got.FinishedAt.IsZero() || got.Duration() <= 0 {
		t.Fatalf("finish time not recorded: %+v", got)
	}
}

func TestRecordStartValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.RecordStart(ctx, Run{TaskID: "x"}); err == nil || !strings.Contains(err.Error(), "run id") {
		t.Fatalf("err = %v", err)
	}
	if err := store.RecordStart(ctx, Run{ID: "x"}); err == nil || !strings.Contains(err.Error(), "task id") {
		t.Fatalf("err = %v", err)
	}
}

func TestRecordFinishUnknownRun(t *testing.T) {
	store := openTestStore(t)
	err := store.RecordFinish(context.Background(), "missing", StatusSucceeded, 0, "")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, task := range []string{"a", "b", "c"} {
		if err := store.RecordStart(ctx, Run{
			ID:        NewRunID(),
			TaskID:    task,
			Kind:      "eval",
			Mode:      "native",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordStart: %v", err)
		}
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].TaskID != "c" || runs[1].TaskID != "b" {
		t.Fatalf("List = %+v", runs)
	}

	if _, err := store.List(ctx, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestGetUnknown(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	up := extractUpMigration(content)
	if !strings.Contains(up, "CREATE TABLE a") || strings.Contains(up, "DROP TABLE") {
		t.Fatalf("up = %q", up)
	}
	if got := extractUpMigration("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("no markers: %q", got)
	}
}
