package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bioagent/molft/internal/dataset"
	"github.com/bioagent/molft/internal/launch"
	"github.com/bioagent/molft/internal/tasks"
)

// setupHome isolates the CLI from the caller's environment.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MOLFT_HOME", home)
	t.Setenv("MOLFT_NUM_GPUS", "0")
	t.Setenv("MOLFT_WORKDIR", ".")
	t.Setenv("MOLFT_PYTHON", "python")
	t.Setenv("MOLFT_DEEPSPEED", "deepspeed")
	t.Setenv("MOLFT_OTEL_ENDPOINT", "")
	for _, k := range []string{
		"HF_HOME", "HF_DATASETS_CACHE", "TRANSFORMERS_CACHE",
		"OPENAI_API_KEY", "WANDB_API_KEY", "WANDB_PROJECT", "CUDA_VISIBLE_DEVICES",
	} {
		t.Setenv(k, "")
	}
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewMolftCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTasksList(t *testing.T) {
	setupHome(t)
	out, err := execute(t, "tasks", "ls")
	if err != nil {
		t.Fatalf("tasks ls: %v", err)
	}
	for _, id := range []string{"molecule-projector-pretrain", "molecule-lora-finetune", "molecule-eval-i2s"} {
		if !strings.Contains(out, id) {
			t.Errorf("tasks ls output missing %s:\n%s", id, out)
		}
	}

	out, err = execute(t, "tasks", "ls", "--kind", "eval")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "molecule-lora-finetune") {
		t.Errorf("--kind eval listed a training task:\n%s", out)
	}

	if _, err := execute(t, "tasks", "ls", "--kind", "bogus"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTasksShow(t *testing.T) {
	setupHome(t)
	out, err := execute(t, "tasks", "show", "molecule-eval-i2s")
	if err != nil {
		t.Fatalf("tasks show: %v", err)
	}
	for _, want := range []string{"Kind:        eval", "--evaluator smiles", "--model_lora_path checkpoints/molecule-2d-lora"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "tasks", "show", "no-such-task"); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestTrainDryRun(t *testing.T) {
	setupHome(t)
	t.Setenv("WANDB_API_KEY", "wandb-secret-value")

	out, err := execute(t, "train", "molecule-lora-finetune", "--dry-run", "--gpus", "2", "--set", "num_train_epochs=1")
	if err != nil {
		t.Fatalf("train --dry-run: %v", err)
	}
	for _, want := range []string{
		"# task: molecule-lora-finetune (train, native)",
		"exec deepspeed",
		"--num_gpus 2",
		"--num_train_epochs 1",
		`export WANDB_API_KEY="${WANDB_API_KEY:?WANDB_API_KEY must be set}"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "wandb-secret-value") {
		t.Error("dry run printed a secret")
	}
}

func TestTrainRejectsEvalTask(t *testing.T) {
	setupHome(t)
	_, err := execute(t, "train", "molecule-eval-i2s", "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "evaluation task") {
		t.Fatalf("err = %v", err)
	}
}

func TestEvalDryRunMultiple(t *testing.T) {
	setupHome(t)
	out, err := execute(t, "eval", "molecule-eval-i2s", "molecule-eval-caption", "--dry-run", "--parallel", "2")
	if err != nil {
		t.Fatalf("eval --dry-run: %v", err)
	}
	if strings.Count(out, "exec python") != 2 {
		t.Errorf("expected two commands:\n%s", out)
	}

	if _, err := execute(t, "eval", "molecule-lora-finetune", "--dry-run"); err == nil {
		t.Error("expected error for a training task")
	}
	if _, err := execute(t, "eval", "molecule-eval-i2s", "--parallel", "0"); err == nil {
		t.Error("expected error for --parallel 0")
	}
}

func TestRenderToFile(t *testing.T) {
	setupHome(t)
	path := filepath.Join(t.TempDir(), "finetune.sh")
	if _, err := execute(t, "render", "molecule-lora-finetune", "-o", path, "--gpus", "8"); err != nil {
		t.Fatalf("render: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	script := string(data)
	if !strings.HasPrefix(script, "#!/usr/bin/env bash\n") || !strings.Contains(script, "--num_gpus 8") {
		t.Errorf("script =\n%s", script)
	}
	if info, _ := os.Stat(path); info.Mode()&0o100 == 0 {
		t.Error("script is not executable")
	}
}

func TestUserTasksFile(t *testing.T) {
	home := setupHome(t)
	yaml := `version: "1"
tasks:
  - id: my-i2s-greedy
    extends: molecule-eval-i2s
    description: Greedy decoding
    eval:
      temperature: 0
    params:
      - seed=1
`
	if err := os.WriteFile(filepath.Join(home, "tasks.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "tasks", "show", "my-i2s-greedy")
	if err != nil {
		t.Fatalf("tasks show: %v", err)
	}
	for _, want := range []string{"--temperature 0", "--seed 1", "Description: Greedy decoding"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("tasks:\n  - id: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--tasks", bad, "tasks", "ls"); err == nil {
		t.Error("expected error for a task without kind")
	}
}

func TestHistoryEmpty(t *testing.T) {
	setupHome(t)
	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("output = %q", out)
	}
	if _, err := execute(t, "history", "show", "deadbeef"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestDatasetBuild(t *testing.T) {
	setupHome(t)
	dataDir := t.TempDir()
	for _, split := range []string{"train", "dev", "test"} {
		dir := filepath.Join(dataDir, split)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		rows := `{"input":"CCO","output":"C2H6O"}` + "\n" + `{"input":"C","output":"CH4"}` + "\n"
		if err := os.WriteFile(filepath.Join(dir, "name_conversion-s2f.jsonl"), []byte(rows), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	outDir := filepath.Join(t.TempDir(), "s2f")

	out, err := execute(t, "dataset", "build", "--task", "s2f", "--data-dir", dataDir,
		"--output-dir", outDir, "--few-shot", "1", "--seed", "3")
	if err != nil {
		t.Fatalf("dataset build: %v", err)
	}
	if !strings.Contains(out, "train 2 records, 0 skipped") {
		t.Errorf("output =\n%s", out)
	}
	for _, name := range []string{"train.jsonl", "dev.jsonl", "test.jsonl"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing %s", name)
		}
	}
	train, err := os.ReadFile(filepath.Join(outDir, "train.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(train), dataset.MoleculeToken) {
		t.Errorf("default build should write the molecule token:\n%s", train)
	}

	// selfies needs the token; only an explicit --token=false inlines the text.
	if _, err := execute(t, "dataset", "build", "--task", "s2f", "--data-dir", dataDir,
		"--output-dir", outDir, "--format", "selfies"); err != nil {
		t.Errorf("selfies with the default token: %v", err)
	}
	_, err = execute(t, "dataset", "build", "--task", "s2f", "--data-dir", dataDir,
		"--output-dir", outDir, "--format", "selfies", "--token=false")
	if err == nil {
		t.Error("expected error for inline selfies")
	}
}

func TestVersion(t *testing.T) {
	setupHome(t)
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Version:    dev") {
		t.Errorf("output = %q", out)
	}
}

func TestResolveMode(t *testing.T) {
	plain := &tasks.TaskSpec{ID: "a"}
	boxed := &tasks.TaskSpec{ID: "b", Docker: &tasks.DockerSettings{Image: "img"}}

	tests := []struct {
		flag    string
		spec    *tasks.TaskSpec
		want    launch.Mode
		wantErr bool
	}{
		{"", plain, launch.ModeNative, false},
		{"", boxed, launch.ModeDocker, false},
		{"native", boxed, launch.ModeNative, false},
		{"docker", plain, "", true},
		{"podman", plain, "", true},
	}
	for _, tt := range tests {
		got, err := resolveMode(tt.flag, tt.spec)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("resolveMode(%q, %s) = %q, %v", tt.flag, tt.spec.ID, got, err)
		}
	}
}

func TestOutputDirHasFiles(t *testing.T) {
	work := t.TempDir()
	if outputDirHasFiles("ckpt", work) {
		t.Error("missing dir reported as non-empty")
	}
	if err := os.MkdirAll(filepath.Join(work, "ckpt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if outputDirHasFiles("ckpt", work) {
		t.Error("empty dir reported as non-empty")
	}
	if err := os.WriteFile(filepath.Join(work, "ckpt", "config.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !outputDirHasFiles("ckpt", work) {
		t.Error("non-empty dir not detected")
	}
	if outputDirHasFiles("", work) {
		t.Error("empty path reported as non-empty")
	}
}

func TestConfirmOverwriteWithoutTerminal(t *testing.T) {
	if err := confirmOverwrite("ckpt", true); err != nil {
		t.Fatalf("--yes should skip the prompt: %v", err)
	}
	if isTerminal(os.Stdin) {
		t.Skip("stdin is a terminal")
	}
	if err := confirmOverwrite("ckpt", false); err == nil {
		t.Fatal("expected refusal without a terminal")
	}
}

func TestParseYes(t *testing.T) {
	for in, want := range map[string]bool{"y": true, "YES": true, " yes\n": true, "": false, "n": false, "sure": false} {
		if got := parseYes(in); got != want {
			t.Errorf("parseYes(%q) = %v", in, got)
		}
	}
}

func TestPrefixWriter(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	w := newPrefixWriter(&buf, "eval", &mu)
	if _, err := w.Write([]byte("a\nb")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("c\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("tail")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "[eval] a\n[eval] bc\n[eval] tail\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
