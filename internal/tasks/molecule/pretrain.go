// Package molecule provides the built-in molecule instruction-tuning presets.
//
// The presets reproduce the launcher scripts used for the 2D-molecule
// multimodal model: projector pretraining, LoRA instruction fine-tuning and
// the evaluation suite. Paths are relative to MOLFT_WORKDIR and are meant to
// be overridden from tasks.yaml or with --set.
package molecule

import (
	"github.com/bioagent/molft/internal/tasks"
)

// BaseModel is the language model every preset starts from.
const BaseModel = "mistralai/Mistral-7B-Instruct-v0.1"

// ProjectorPretrain trains only the molecule projector on caption-style data.
var ProjectorPretrain = &tasks.TaskSpec{
	ID:          "molecule-projector-pretrain",
	Description: "Pretrain the 2D molecule projector with the language model frozen",
	Kind:        tasks.KindTrain,
	Train: &tasks.TrainSettings{
		Entry:                     tasks.DefaultTrainEntry,
		ModelPath:                 BaseModel,
		ModelClass:                tasks.ModelClassMistralLMM,
		ModalityBuilder:           tasks.ModalityMolecule2D,
		DatasetPath:               "data/molecule-pretrain",
		OutputDir:                 "checkpoints/molecule-2d-pretrain",
		LoRA:                      false,
		BF16:                      true,
		TF32:                      true,
		Epochs:                    1,
		TrainBatchSize:            8,
		EvalBatchSize:             4,
		GradientAccumulationSteps: 1,
		MaxLength:                 2048,
		EvalStrategy:              "no",
		SaveStrategy:              "steps",
		SaveSteps:                 1000,
		SaveTotalLimit:            1,
		LearningRate:              1e-3,
		WeightDecay:               0,
		WarmupRatio:               0.03,
		Scheduler:                 "cosine",
		LoggingSteps:              1,
		DataloaderWorkers:         2,
		ReportTo:                  "wandb",
		DeepSpeedConfig:           "configs/zero2.json",
	},
	Params: []string{"freeze_language_model=True"},
}

func init() {
	tasks.RegisterTaskSpec(ProjectorPretrain)
}
