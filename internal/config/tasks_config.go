package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bioagent/molft/internal/logger"
)

// TaskKind selects which external entry point a task invokes.
type TaskKind string

const (
	TaskKindTrain TaskKind = "train" // deepspeed trainer
	TaskKindEval  TaskKind = "eval"  // python evaluator
)

// TrainConfig is the YAML form of a training parameter block.
//
// Scalar fields are pointers so that a task extending another preset can
// leave a field unset and inherit the base value. Field names follow the
// trainer's own flag names.
type TrainConfig struct {
	Entry                     string   `yaml:"entry,omitempty"`
	ModelNameOrPath           string   `yaml:"model_name_or_path,omitempty"`
	ModelCls                  string   `yaml:"model_cls,omitempty"`
	ModalityBuilder           string   `yaml:"modality_builder,omitempty"`
	DatasetPath               string   `yaml:"dataset_path,omitempty"`
	OutputDir                 string   `yaml:"output_dir,omitempty"`
	PretrainedProjectorsPath  string   `yaml:"pretrained_projectors_path,omitempty"`
	LoraEnable                *bool    `yaml:"lora_enable,omitempty"`
	BF16                      *bool    `yaml:"bf16,omitempty"`
	TF32                      *bool    `yaml:"tf32,omitempty"`
	NumTrainEpochs            *int     `yaml:"num_train_epochs,omitempty"`
	PerDeviceTrainBatchSize   *int     `yaml:"per_device_train_batch_size,omitempty"`
	PerDeviceEvalBatchSize    *int     `yaml:"per_device_eval_batch_size,omitempty"`
	GradientAccumulationSteps *int     `yaml:"gradient_accumulation_steps,omitempty"`
	ModelMaxLength            *int     `yaml:"model_max_length,omitempty"`
	EvaluationStrategy        string   `yaml:"evaluation_strategy,omitempty"`
	SaveStrategy              string   `yaml:"save_strategy,omitempty"`
	SaveSteps                 *int     `yaml:"save_steps,omitempty"`
	SaveTotalLimit            *int     `yaml:"save_total_limit,omitempty"`
	LearningRate              *float64 `yaml:"learning_rate,omitempty"`
	WeightDecay               *float64 `yaml:"weight_decay,omitempty"`
	WarmupRatio               *float64 `yaml:"warmup_ratio,omitempty"`
	LRSchedulerType           string   `yaml:"lr_scheduler_type,omitempty"`
	LoggingSteps              *int     `yaml:"logging_steps,omitempty"`
	DataloaderNumWorkers      *int     `yaml:"dataloader_num_workers,omitempty"`
	ReportTo                  string   `yaml:"report_to,omitempty"`
	DeepSpeedConfig           string   `yaml:"deepspeed,omitempty"`
	NumGPUs                   *int     `yaml:"num_gpus,omitempty"`
	MasterPort                *int     `yaml:"master_port,omitempty"`
}

// EvalConfig is the YAML form of an evaluation parameter block.
type EvalConfig struct {
	Entry           string   `yaml:"entry,omitempty"`
	ModelNameOrPath string   `yaml:"model_name_or_path,omitempty"`
	ModelLoraPath   string   `yaml:"model_lora_path,omitempty"`
	DatasetPath     string   `yaml:"dataset_path,omitempty"`
	Evaluator       string   `yaml:"evaluator,omitempty"`
	OutputDir       string   `yaml:"output_dir,omitempty"`
	CacheDir        string   `yaml:"cache_dir,omitempty"`
	MaxNewTokens    *int     `yaml:"max_new_tokens,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	Verbose         *bool    `yaml:"verbose,omitempty"`
}

// DockerConfig runs a task inside a container instead of on the host.
type DockerConfig struct {
	// Image is the container image holding the training stack.
	Image string `yaml:"image"`

	// Mounts are bind mounts in "host:container[:ro]" form.
	Mounts []string `yaml:"mounts,omitempty"`

	// ShmSize is the /dev/shm size, e.g. "16g". Dataloader workers need it.
	ShmSize string `yaml:"shm_size,omitempty"`

	// Ports are container ports published on the same host port,
	// e.g. "6006" for TensorBoard.
	Ports []string `yaml:"ports,omitempty"`

	// WorkDir is the working directory inside the container.
	WorkDir string `yaml:"workdir,omitempty"`
}

// TaskConfig defines one user task preset.
type TaskConfig struct {
	// ID is the unique task identifier (lowercase, hyphen-separated).
	ID string `yaml:"id"`

	// Extends names a registered preset whose settings are inherited.
	Extends string `yaml:"extends,omitempty"`

	// Kind is "train" or "eval". Optional when Extends is set.
	Kind TaskKind `yaml:"kind,omitempty"`

	Description string `yaml:"description,omitempty"`

	Train *TrainConfig `yaml:"train,omitempty"`
	Eval  *EvalConfig  `yaml:"eval,omitempty"`

	// Env holds extra variables exported to the child process.
	Env map[string]string `yaml:"env,omitempty"`

	// Params are extra "key=value" flags appended to, or replacing, the
	// generated flag list.
	Params []string `yaml:"params,omitempty"`

	Docker *DockerConfig `yaml:"docker,omitempty"`
}

// TasksConfig is the root of tasks.yaml.
type TasksConfig struct {
	// Version specifies the configuration schema version.
	Version string `yaml:"version"`

	// Tasks contains all user presets.
	Tasks []TaskConfig `yaml:"tasks"`
}

// LoadTasksConfigFrom loads user task presets from a file.
//
// A missing file is not an error: molft works with built-in presets only.
//
// Parameters:
//   - configPath: Path to the tasks.yaml file
//
// Returns:
//   - Tasks configuration (empty if the file doesn't exist)
//   - Error if the file exists but cannot be read, parsed or validated
func LoadTasksConfigFrom(configPath string) (*TasksConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		logger.Debug("Tasks config not found at %s, using built-in presets only", configPath)
		return &TasksConfig{Version: "1", Tasks: []TaskConfig{}}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks config: %w", err)
	}

	return ParseTasksConfig(data)
}

// ParseTasksConfig parses and validates tasks.yaml content.
func ParseTasksConfig(data []byte) (*TasksConfig, error) {
	var cfg TasksConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tasks config: %w", err)
	}

	if err := validateTasksConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid tasks config: %w", err)
	}

	logger.Debug("Loaded tasks config with %d task(s)", len(cfg.Tasks))
	return &cfg, nil
}

func validateTasksConfig(cfg *TasksConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	seen := make(map[string]bool)
	for i, task := range cfg.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return fmt.Errorf("tasks[%d]: id cannot be empty", i)
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id: %s", task.ID)
		}
		seen[task.ID] = true

		switch task.Kind {
		case TaskKindTrain, TaskKindEval:
		case "":
			if task.Extends == "" {
				return fmt.Errorf("tasks[%d] (%s): kind is required unless extends is set", i, task.ID)
			}
		default:
			return fmt.Errorf("tasks[%d] (%s): unknown kind %q", i, task.ID, task.Kind)
		}

		if task.Kind == TaskKindTrain && task.Eval != nil {
			return fmt.Errorf("tasks[%d] (%s): train task cannot have an eval block", i, task.ID)
		}
		if task.Kind == TaskKindEval && task.Train != nil {
			return fmt.Errorf("tasks[%d] (%s): eval task cannot have a train block", i, task.ID)
		}

		for j, param := range task.Params {
			if err := ValidateParamFormat(param); err != nil {
				return fmt.Errorf("tasks[%d].params[%d]: %w", i, j, err)
			}
		}

		for key := range task.Env {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("tasks[%d] (%s): env key cannot be empty", i, task.ID)
			}
		}

		if task.Docker != nil {
			if task.Docker.Image == "" {
				return fmt.Errorf("tasks[%d] (%s): docker.image is required", i, task.ID)
			}
			for j, m := range task.Docker.Mounts {
				if _, _, _, err := ParseMount(m); err != nil {
					return fmt.Errorf("tasks[%d].docker.mounts[%d]: %w", i, j, err)
				}
			}
		}
	}

	return nil
}

// ValidateParamFormat validates that a parameter is in key=value format.
// The value may be empty.
func ValidateParamFormat(param string) error {
	param = strings.TrimSpace(param)
	if param == "" {
		return fmt.Errorf("parameter cannot be empty")
	}

	parts := strings.SplitN(param, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid format: expected 'key=value', got '%s'", param)
	}

	if strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("parameter key cannot be empty")
	}

	return nil
}

// ParseMount splits a "host:container[:ro]" mount specification.
func ParseMount(spec string) (source, target string, readOnly bool, err error) {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
	case 3:
		if parts[2] != "ro" && parts[2] != "rw" {
			return "", "", false, fmt.Errorf("invalid mount mode %q in %q (want ro or rw)", parts[2], spec)
		}
		readOnly = parts[2] == "ro"
	default:
		return "", "", false, fmt.Errorf("invalid mount %q: expected host:container[:ro]", spec)
	}

	source, target = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if source == "" || target == "" {
		return "", "", false, fmt.Errorf("invalid mount %q: empty path", spec)
	}
	return source, target, readOnly, nil
}
