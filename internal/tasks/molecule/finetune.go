package molecule

import (
	"github.com/bioagent/molft/internal/tasks"
)

// projectorWeights is where ProjectorPretrain leaves the trained projector.
const projectorWeights = "checkpoints/molecule-2d-pretrain/non_lora_trainables.bin"

func finetuneSettings(dataset, output string) *tasks.TrainSettings {
	return &tasks.TrainSettings{
		Entry:                     tasks.DefaultTrainEntry,
		ModelPath:                 BaseModel,
		ModelClass:                tasks.ModelClassMistralLMM,
		ModalityBuilder:           tasks.ModalityMolecule2D,
		DatasetPath:               dataset,
		OutputDir:                 output,
		ProjectorPath:             projectorWeights,
		LoRA:                      true,
		BF16:                      true,
		TF32:                      true,
		Epochs:                    3,
		TrainBatchSize:            8,
		EvalBatchSize:             4,
		GradientAccumulationSteps: 1,
		MaxLength:                 2048,
		EvalStrategy:              "no",
		SaveStrategy:              "steps",
		SaveSteps:                 1000,
		SaveTotalLimit:            1,
		LearningRate:              2e-5,
		WeightDecay:               0,
		WarmupRatio:               0.03,
		Scheduler:                 "cosine",
		LoggingSteps:              1,
		DataloaderWorkers:         2,
		ReportTo:                  "wandb",
		DeepSpeedConfig:           "configs/zero2.json",
	}
}

// LoRAFinetune fine-tunes on the mixed molecule instruction set.
var LoRAFinetune = &tasks.TaskSpec{
	ID:          "molecule-lora-finetune",
	Description: "LoRA fine-tune on the mixed molecule instruction datasets",
	Kind:        tasks.KindTrain,
	Train:       finetuneSettings("data/molecule-instructions", "checkpoints/molecule-2d-lora"),
}

// NameConversionFinetune fine-tunes on the IUPAC name to SMILES train split
// produced by `molft dataset build --task i2s`. Extend it in tasks.yaml with
// the s2f train split for formula conversion.
var NameConversionFinetune = &tasks.TaskSpec{
	ID:          "molecule-name-conversion-finetune",
	Description: "LoRA fine-tune on the IUPAC name to SMILES dataset",
	Kind:        tasks.KindTrain,
	Train:       finetuneSettings(nameConversionSplit("i2s", "train"), "checkpoints/molecule-2d-lora-name-conversion"),
}

func init() {
	tasks.RegisterTaskSpec(LoRAFinetune)
	tasks.RegisterTaskSpec(NameConversionFinetune)
}
