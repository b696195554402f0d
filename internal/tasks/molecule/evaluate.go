package molecule

import (
	"path/filepath"

	"github.com/bioagent/molft/internal/tasks"
)

// loraCheckpoint is the adapter produced by LoRAFinetune.
const loraCheckpoint = "checkpoints/molecule-2d-lora"

// NameConversionDir holds one `molft dataset build` output directory per
// conversion task, e.g. data/name-conversion/i2s/{train,dev,test}.jsonl.
const NameConversionDir = "data/name-conversion"

// nameConversionSplit returns the split file written by `molft dataset
// build --task <task> --output-dir data/name-conversion/<task>`.
func nameConversionSplit(task, split string) string {
	return filepath.Join(NameConversionDir, task, split+".jsonl")
}

func evalSpec(id, description, dataset, evaluator string, maxNewTokens int) *tasks.TaskSpec {
	return &tasks.TaskSpec{
		ID:          id,
		Description: description,
		Kind:        tasks.KindEval,
		Eval: &tasks.EvalSettings{
			Entry:        tasks.DefaultEvalEntry,
			ModelPath:    BaseModel,
			LoRAPath:     loraCheckpoint,
			DatasetPath:  dataset,
			Evaluator:    evaluator,
			OutputDir:    "results/" + id,
			MaxNewTokens: maxNewTokens,
			Temperature:  0.2,
		},
	}
}

var (
	// EvalNameConversionI2S scores IUPAC name to SMILES conversion.
	EvalNameConversionI2S = evalSpec("molecule-eval-i2s",
		"Evaluate IUPAC name to SMILES conversion",
		nameConversionSplit("i2s", "test"), tasks.EvaluatorSMILES, 256)

	// EvalNameConversionS2F scores SMILES to molecular formula conversion.
	EvalNameConversionS2F = evalSpec("molecule-eval-s2f",
		"Evaluate SMILES to molecular formula conversion",
		nameConversionSplit("s2f", "test"), tasks.EvaluatorClassification, 64)

	// EvalCaption scores molecule captioning.
	EvalCaption = evalSpec("molecule-eval-caption",
		"Evaluate molecule captioning",
		"data/molecule-caption/test", tasks.EvaluatorCaption, 512)

	// EvalPropertyClassification scores binary property prediction.
	EvalPropertyClassification = evalSpec("molecule-eval-property-classification",
		"Evaluate molecular property classification",
		"data/property-classification/test", tasks.EvaluatorClassification, 16)

	// EvalPropertyRegression scores numeric property prediction.
	EvalPropertyRegression = evalSpec("molecule-eval-property-regression",
		"Evaluate molecular property regression",
		"data/property-regression/test", tasks.EvaluatorRegression, 16)
)

func init() {
	for _, spec := range []*tasks.TaskSpec{
		EvalNameConversionI2S,
		EvalNameConversionS2F,
		EvalCaption,
		EvalPropertyClassification,
		EvalPropertyRegression,
	} {
		tasks.RegisterTaskSpec(spec)
	}
}
