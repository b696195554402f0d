package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvConfig is the launcher environment.
//
// These are the variables the per-task launcher scripts exported before
// invoking the trainer. Cache and key variables are passed through to the
// child process only when they are set; MOLFT_* variables configure molft
// itself.
type EnvConfig struct {
	// HFHome is the Hugging Face cache root.
	HFHome string `env:"HF_HOME"`

	// HFDatasetsCache overrides the datasets cache location.
	HFDatasetsCache string `env:"HF_DATASETS_CACHE"`

	// TransformersCache overrides the transformers model cache location.
	TransformersCache string `env:"TRANSFORMERS_CACHE"`

	// OpenAIAPIKey is used by evaluators that call the OpenAI API.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// WandbAPIKey enables Weights & Biases reporting in the trainer.
	WandbAPIKey string `env:"WANDB_API_KEY"`

	// WandbProject names the W&B project runs are logged to.
	WandbProject string `env:"WANDB_PROJECT"`

	// CUDAVisibleDevices restricts which GPUs the child process sees.
	CUDAVisibleDevices string `env:"CUDA_VISIBLE_DEVICES"`

	// NumGPUs is the default worker count for distributed training.
	// Zero means "detect".
	NumGPUs int `env:"MOLFT_NUM_GPUS" envDefault:"0"`

	// Python is the interpreter used for evaluation entry points.
	Python string `env:"MOLFT_PYTHON" envDefault:"python"`

	// DeepSpeed is the distributed launcher used for training entry points.
	DeepSpeed string `env:"MOLFT_DEEPSPEED" envDefault:"deepspeed"`

	// WorkDir is the checkout of the training repository; entry points and
	// relative preset paths are resolved against it.
	WorkDir string `env:"MOLFT_WORKDIR" envDefault:"."`
}

// secretKeys lists exported variables whose values must never be printed.
var secretKeys = map[string]bool{
	"OPENAI_API_KEY": true,
	"WANDB_API_KEY":  true,
}

// IsSecretKey reports whether an environment variable holds a credential.
//
// Besides the known API keys, any variable whose name ends in _KEY, _TOKEN
// or _SECRET is treated as a secret.
func IsSecretKey(key string) bool {
	if secretKeys[key] {
		return true
	}
	upper := strings.ToUpper(key)
	for _, suffix := range []string{"_KEY", "_TOKEN", "_SECRET", "_PASSWORD"} {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// LoadEnvConfig parses the launcher environment from the process environment.
func LoadEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadEnvConfigFrom parses the launcher environment from an explicit map.
// It does not consult the process environment.
func LoadEnvConfigFrom(vars map[string]string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Exports returns the pass-through variables that are set, keyed by name.
func (e EnvConfig) Exports() map[string]string {
	all := map[string]string{
		"HF_HOME":              e.HFHome,
		"HF_DATASETS_CACHE":    e.HFDatasetsCache,
		"TRANSFORMERS_CACHE":   e.TransformersCache,
		"OPENAI_API_KEY":       e.OpenAIAPIKey,
		"WANDB_API_KEY":        e.WandbAPIKey,
		"WANDB_PROJECT":        e.WandbProject,
		"CUDA_VISIBLE_DEVICES": e.CUDAVisibleDevices,
	}

	out := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// CacheDirs returns the configured cache directories in a stable order.
func (e EnvConfig) CacheDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, d := range []string{e.HFHome, e.HFDatasetsCache, e.TransformersCache} {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
