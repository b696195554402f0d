// Package tasks provides launch task specifications and registry management.
//
// A task is the Go form of one of the per-task launcher scripts: a named
// parameter block for either the deepspeed trainer or the python evaluator.
// Built-in presets live in family sub-packages (e.g., molecule/) and register
// themselves from init(); user presets from tasks.yaml are layered on top.
package tasks

import (
	"fmt"
	"sort"

	"github.com/bioagent/molft/internal/config"
)

// Kind aliases config.TaskKind so callers need only one import.
type Kind = config.TaskKind

const (
	KindTrain = config.TaskKindTrain
	KindEval  = config.TaskKindEval
)

// Evaluator names understood by the evaluation entry point.
const (
	EvaluatorSMILES         = "smiles"
	EvaluatorSELFIES        = "selfies"
	EvaluatorCaption        = "caption"
	EvaluatorClassification = "classification"
	EvaluatorRegression     = "regression"
)

// knownEvaluators mirrors the evaluator builders of the evaluation script.
var knownEvaluators = map[string]bool{
	EvaluatorSMILES:         true,
	EvaluatorSELFIES:        true,
	EvaluatorCaption:        true,
	EvaluatorClassification: true,
	EvaluatorRegression:     true,
}

// Evaluators returns the supported evaluator names, sorted.
func Evaluators() []string {
	names := make([]string, 0, len(knownEvaluators))
	for name := range knownEvaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TrainSettings is a training parameter block.
type TrainSettings struct {
	// Entry is the training script, relative to the work dir.
	Entry string

	// ModelPath is the base language model checkpoint or hub id.
	ModelPath string

	// ModelClass is the multimodal model class, e.g. "MistralLMMForCausalLM".
	ModelClass string

	// ModalityBuilder selects the non-text encoder, e.g. "molecule_2d".
	ModalityBuilder string

	DatasetPath string
	OutputDir   string

	// ProjectorPath points at pretrained projector weights. Empty when the
	// projector is trained from scratch.
	ProjectorPath string

	LoRA bool
	BF16 bool
	TF32 bool

	Epochs                    int
	TrainBatchSize            int
	EvalBatchSize             int
	GradientAccumulationSteps int
	MaxLength                 int

	EvalStrategy   string
	SaveStrategy   string
	SaveSteps      int
	SaveTotalLimit int

	LearningRate float64
	WeightDecay  float64
	WarmupRatio  float64
	Scheduler    string

	LoggingSteps      int
	DataloaderWorkers int
	ReportTo          string

	// DeepSpeedConfig is the ZeRO configuration file.
	DeepSpeedConfig string

	// NumGPUs is the worker count; zero defers to the environment.
	NumGPUs int

	// MasterPort is the rendezvous port; zero lets deepspeed choose.
	MasterPort int
}

// EvalSettings is an evaluation parameter block.
type EvalSettings struct {
	Entry        string
	ModelPath    string
	LoRAPath     string
	DatasetPath  string
	Evaluator    string
	OutputDir    string
	CacheDir     string
	MaxNewTokens int
	Temperature  float64
	Verbose      bool
}

// DockerSettings runs the task in a container.
type DockerSettings struct {
	Image   string
	Mounts  []string
	ShmSize string
	Ports   []string
	WorkDir string
}

// TaskSpec defines a complete launch task.
type TaskSpec struct {
	// ID is the unique task identifier (e.g., "molecule-lora-finetune").
	ID string

	Description string

	Kind Kind

	// Train is set for KindTrain tasks.
	Train *TrainSettings

	// Eval is set for KindEval tasks.
	Eval *EvalSettings

	// Env holds extra variables exported to the child process.
	Env map[string]string

	// Params are "key=value" flag overrides applied after the generated
	// flags.
	Params []string

	// Docker is set when the task should run in a container by default.
	Docker *DockerSettings

	// Source is "builtin" or the path of the file the task came from.
	Source string
}

// Clone returns a deep copy so callers can adjust a preset without touching
// the registry.
func (t *TaskSpec) Clone() *TaskSpec {
	out := *t
	if t.Train != nil {
		train := *t.Train
		out.Train = &train
	}
	if t.Eval != nil {
		eval := *t.Eval
		out.Eval = &eval
	}
	if t.Docker != nil {
		docker := *t.Docker
		docker.Mounts = append([]string(nil), t.Docker.Mounts...)
		docker.Ports = append([]string(nil), t.Docker.Ports...)
		out.Docker = &docker
	}
	if t.Env != nil {
		out.Env = make(map[string]string, len(t.Env))
		for k, v := range t.Env {
			out.Env[k] = v
		}
	}
	out.Params = append([]string(nil), t.Params...)
	return &out
}

// Validate checks that the task carries everything its entry point needs.
//
// Returns:
//   - Error describing the first missing or invalid field, nil otherwise
func (t *TaskSpec) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	switch t.Kind {
	case KindTrain:
		if t.Train == nil {
			return fmt.Errorf("task %s: train settings are required", t.ID)
		}
		return t.Train.validate(t.ID)
	case KindEval:
		if t.Eval == nil {
			return fmt.Errorf("task %s: eval settings are required", t.ID)
		}
		return t.Eval.validate(t.ID)
	default:
		return fmt.Errorf("task %s: unknown kind %q", t.ID, t.Kind)
	}
}

func (s *TrainSettings) validate(id string) error {
	required := []struct {
		name  string
		value string
	}{
		{"model_name_or_path", s.ModelPath},
		{"model_cls", s.ModelClass},
		{"modality_builder", s.ModalityBuilder},
		{"dataset_path", s.DatasetPath},
		{"output_dir", s.OutputDir},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("task %s: %s is required", id, r.name)
		}
	}

	if s.Epochs <= 0 {
		return fmt.Errorf("task %s: num_train_epochs must be positive", id)
	}
	if s.TrainBatchSize <= 0 || s.EvalBatchSize <= 0 {
		return fmt.Errorf("task %s: batch sizes must be positive", id)
	}
	if s.GradientAccumulationSteps <= 0 {
		return fmt.Errorf("task %s: gradient_accumulation_steps must be positive", id)
	}
	if s.LearningRate <= 0 {
		return fmt.Errorf("task %s: learning_rate must be positive", id)
	}
	if s.NumGPUs < 0 {
		return fmt.Errorf("task %s: num_gpus cannot be negative", id)
	}
	return nil
}

func (s *EvalSettings) validate(id string) error {
	if s.ModelPath == "" {
		return fmt.Errorf("task %s: model_name_or_path is required", id)
	}
	if s.DatasetPath == "" {
		return fmt.Errorf("task %s: dataset_path is required", id)
	}
	if !knownEvaluators[s.Evaluator] {
		return fmt.Errorf("task %s: unknown evaluator %q (supported: %v)", id, s.Evaluator, Evaluators())
	}
	if s.Temperature < 0 {
		return fmt.Errorf("task %s: temperature cannot be negative", id)
	}
	return nil
}
