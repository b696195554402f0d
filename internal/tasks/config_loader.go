// Package tasks - config_loader.go converts tasks.yaml entries into TaskSpecs.
//
// A user task either stands alone (kind + full parameter block) or extends a
// preset that is already registered. Extension starts from a copy of the base
// and overlays only the fields the user set; env maps are merged and params
// are appended after the base params.
package tasks

import (
	"fmt"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/logger"
)

// LoadTasksFromConfig converts user presets into TaskSpecs.
//
// Parameters:
//   - cfg: parsed tasks.yaml
//   - base: registry used to resolve "extends"; user tasks defined earlier in
//     the same file can also be extended
//   - source: file path recorded on each spec
//
// Returns:
//   - Validated task specs in file order
//   - Error naming the first task that cannot be resolved or validated
func LoadTasksFromConfig(cfg *config.TasksConfig, base *Registry, source string) ([]*TaskSpec, error) {
	resolved := make(map[string]*TaskSpec)
	var specs []*TaskSpec

	for _, tc := range cfg.Tasks {
		spec, err := taskSpecFromConfig(tc, base, resolved)
		if err != nil {
			return nil, err
		}
		spec.Source = source
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		resolved[spec.ID] = spec
		specs = append(specs, spec)
	}

	logger.Debug("Converted %d task(s) from %s", len(specs), source)
	return specs, nil
}

func taskSpecFromConfig(tc config.TaskConfig, base *Registry, resolved map[string]*TaskSpec) (*TaskSpec, error) {
	var spec *TaskSpec

	if tc.Extends != "" {
		if parent, ok := resolved[tc.Extends]; ok {
			spec = parent.Clone()
		} else {
			parent, err := base.Get(tc.Extends)
			if err != nil {
				return nil, fmt.Errorf("task %s extends %s: %w", tc.ID, tc.Extends, err)
			}
			spec = parent
		}
		if tc.Kind != "" && tc.Kind != spec.Kind {
			return nil, fmt.Errorf("task %s: kind %s does not match base %s (%s)", tc.ID, tc.Kind, tc.Extends, spec.Kind)
		}
	} else {
		spec = &TaskSpec{Kind: tc.Kind}
	}

	spec.ID = tc.ID
	if tc.Description != "" {
		spec.Description = tc.Description
	}

	switch spec.Kind {
	case KindTrain:
		if spec.Train == nil {
			spec.Train = &TrainSettings{Entry: DefaultTrainEntry}
		}
		if tc.Train != nil {
			overlayTrain(spec.Train, tc.Train)
		}
		if tc.Eval != nil {
			return nil, fmt.Errorf("task %s: train task cannot have an eval block", tc.ID)
		}
	case KindEval:
		if spec.Eval == nil {
			spec.Eval = &EvalSettings{Entry: DefaultEvalEntry}
		}
		if tc.Eval != nil {
			overlayEval(spec.Eval, tc.Eval)
		}
		if tc.Train != nil {
			return nil, fmt.Errorf("task %s: eval task cannot have a train block", tc.ID)
		}
	}

	if len(tc.Env) > 0 {
		if spec.Env == nil {
			spec.Env = make(map[string]string, len(tc.Env))
		}
		for k, v := range tc.Env {
			spec.Env[k] = v
		}
	}
	spec.Params = append(spec.Params, tc.Params...)

	if tc.Docker != nil {
		spec.Docker = &DockerSettings{
			Image:   tc.Docker.Image,
			Mounts:  append([]string(nil), tc.Docker.Mounts...),
			ShmSize: tc.Docker.ShmSize,
			Ports:   append([]string(nil), tc.Docker.Ports...),
			WorkDir: tc.Docker.WorkDir,
		}
	}

	return spec, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func overlayTrain(dst *TrainSettings, src *config.TrainConfig) {
	setString(&dst.Entry, src.Entry)
	setString(&dst.ModelPath, src.ModelNameOrPath)
	setString(&dst.ModelClass, src.ModelCls)
	setString(&dst.ModalityBuilder, src.ModalityBuilder)
	setString(&dst.DatasetPath, src.DatasetPath)
	setString(&dst.OutputDir, src.OutputDir)
	setString(&dst.ProjectorPath, src.PretrainedProjectorsPath)
	setBool(&dst.LoRA, src.LoraEnable)
	setBool(&dst.BF16, src.BF16)
	setBool(&dst.TF32, src.TF32)
	setInt(&dst.Epochs, src.NumTrainEpochs)
	setInt(&dst.TrainBatchSize, src.PerDeviceTrainBatchSize)
	setInt(&dst.EvalBatchSize, src.PerDeviceEvalBatchSize)
	setInt(&dst.GradientAccumulationSteps, src.GradientAccumulationSteps)
	setInt(&dst.MaxLength, src.ModelMaxLength)
	setString(&dst.EvalStrategy, src.EvaluationStrategy)
	setString(&dst.SaveStrategy, src.SaveStrategy)
	setInt(&dst.SaveSteps, src.SaveSteps)
	setInt(&dst.SaveTotalLimit, src.SaveTotalLimit)
	setFloat(&dst.LearningRate, src.LearningRate)
	setFloat(&dst.WeightDecay, src.WeightDecay)
	setFloat(&dst.WarmupRatio, src.WarmupRatio)
	setString(&dst.Scheduler, src.LRSchedulerType)
	setInt(&dst.LoggingSteps, src.LoggingSteps)
	setInt(&dst.DataloaderWorkers, src.DataloaderNumWorkers)
	setString(&dst.ReportTo, src.ReportTo)
	setString(&dst.DeepSpeedConfig, src.DeepSpeedConfig)
	setInt(&dst.NumGPUs, src.NumGPUs)
	setInt(&dst.MasterPort, src.MasterPort)
}

func overlayEval(dst *EvalSettings, src *config.EvalConfig) {
	setString(&dst.Entry, src.Entry)
	setString(&dst.ModelPath, src.ModelNameOrPath)
	setString(&dst.LoRAPath, src.ModelLoraPath)
	setString(&dst.DatasetPath, src.DatasetPath)
	setString(&dst.Evaluator, src.Evaluator)
	setString(&dst.OutputDir, src.OutputDir)
	setString(&dst.CacheDir, src.CacheDir)
	setInt(&dst.MaxNewTokens, src.MaxNewTokens)
	setFloat(&dst.Temperature, src.Temperature)
	setBool(&dst.Verbose, src.Verbose)
}

// LoadAndRegisterTasksFromConfig loads tasks.yaml and registers its tasks
// with the global registry, overriding built-ins that share an ID.
//
// Parameters:
//   - configPath: path to tasks.yaml (a missing file registers nothing)
//
// Returns:
//   - Number of registered user tasks
//   - Error if the file cannot be parsed or a task is invalid
func LoadAndRegisterTasksFromConfig(configPath string) (int, error) {
	cfg, err := config.LoadTasksConfigFrom(configPath)
	if err != nil {
		return 0, err
	}

	specs, err := LoadTasksFromConfig(cfg, defaultRegistry, configPath)
	if err != nil {
		return 0, err
	}

	for _, spec := range specs {
		defaultRegistry.Register(spec)
	}

	if len(specs) > 0 {
		logger.Info("Loaded %d task preset(s) from %s", len(specs), configPath)
	}
	return len(specs), nil
}
