package molecule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bioagent/molft/internal/dataset"
	"github.com/bioagent/molft/internal/tasks"
)

func TestBuiltinPresetsAreValid(t *testing.T) {
	specs := tasks.ListTaskSpecs()
	if len(specs) < 8 {
		t.Fatalf("expected the built-in presets to be registered, got %d", len(specs))
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			t.Errorf("%s: %v", spec.ID, err)
		}
		if spec.Source != "builtin" {
			t.Errorf("%s: source = %q", spec.ID, spec.Source)
		}
	}
}

func TestFinetuneUsesPretrainedProjector(t *testing.T) {
	spec, err := tasks.GetTaskSpec(LoRAFinetune.ID)
	if err != nil {
		t.Fatalf("GetTaskSpec: %v", err)
	}
	if !spec.Train.LoRA {
		t.Fatal("fine-tune preset should enable LoRA")
	}
	if spec.Train.ProjectorPath == "" {
		t.Fatal("fine-tune preset should load the pretrained projector")
	}
	if spec.Train.ModalityBuilder != tasks.ModalityMolecule2D {
		t.Fatalf("modality builder = %q", spec.Train.ModalityBuilder)
	}
}

func TestEvalPresetsShareAdapter(t *testing.T) {
	for _, spec := range tasks.ListTaskSpecs() {
		if spec.Kind != tasks.KindEval {
			continue
		}
		if spec.Eval.LoRAPath != loraCheckpoint {
			t.Errorf("%s: lora path = %q", spec.ID, spec.Eval.LoRAPath)
		}
		if spec.Eval.OutputDir != "results/"+spec.ID {
			t.Errorf("%s: output dir = %q", spec.ID, spec.Eval.OutputDir)
		}
	}
}

func TestNameConversionPresetsMatchBuildLayout(t *testing.T) {
	root := t.TempDir()
	for _, task := range []string{"i2s", "s2f"} {
		out := filepath.Join(root, NameConversionDir, task)
		if _, err := dataset.WriteResult(out, &dataset.Result{}, false); err != nil {
			t.Fatalf("WriteResult(%s): %v", task, err)
		}
	}

	paths := map[string]string{
		EvalNameConversionI2S.ID:  EvalNameConversionI2S.Eval.DatasetPath,
		EvalNameConversionS2F.ID:  EvalNameConversionS2F.Eval.DatasetPath,
		NameConversionFinetune.ID: NameConversionFinetune.Train.DatasetPath,
	}
	for id, p := range paths {
		info, err := os.Stat(filepath.Join(root, p))
		if err != nil {
			t.Errorf("%s: dataset %s not produced by dataset build: %v", id, p, err)
			continue
		}
		if info.IsDir() {
			t.Errorf("%s: dataset %s is a directory, want a split file", id, p)
		}
	}
}
