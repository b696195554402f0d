package launch

import (
	"fmt"
	"strings"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
)

// BuildOptions are per-invocation adjustments on top of a preset.
type BuildOptions struct {
	// NumGPUs overrides the worker count; zero means "not given".
	NumGPUs int

	// Overrides are extra "key=value" flags from --set, applied after the
	// preset's own params.
	Overrides []string

	// DetectGPUs counts local accelerators. Nil disables detection.
	DetectGPUs func() (int, error)
}

// ResolveNumGPUs picks the worker count.
//
// Priority: command-line flag, preset, MOLFT_NUM_GPUS, detected GPUs, 1.
func ResolveNumGPUs(flag, preset, env int, detect func() (int, error)) int {
	for _, n := range []int{flag, preset, env} {
		if n > 0 {
			return n
		}
	}
	if detect != nil {
		n, err := detect()
		if err != nil {
			logger.Debug("GPU detection failed: %v", err)
		} else if n > 0 {
			return n
		}
	}
	return 1
}

// BuildTrainCommand assembles the deepspeed invocation for a training task.
//
// The launcher part selects workers: with CUDA_VISIBLE_DEVICES set it is
// translated to "--include localhost:<ids>" (deepspeed ignores the variable
// otherwise), else "--num_gpus N". The script flags follow in a fixed order:
//
//	--model_name_or_path --model_cls --modality_builder --dataset_path
//	--output_dir [--pretrained_projectors_path] --lora_enable --bf16 --tf32
//	--num_train_epochs --per_device_train_batch_size
//	--per_device_eval_batch_size --gradient_accumulation_steps
//	[--model_max_length] [--evaluation_strategy] [--save_strategy]
//	[--save_steps] [--save_total_limit] --learning_rate --weight_decay
//	--warmup_ratio [--lr_scheduler_type] [--logging_steps]
//	--dataloader_num_workers [--report_to] [--deepspeed]
//
// followed by preset params and then command-line overrides.
//
// Parameters:
//   - spec: a validated train task
//   - env: launcher environment
//   - opts: per-invocation adjustments
//
// Returns:
//   - The assembled command
//   - Error if the task is invalid or an override is malformed
func BuildTrainCommand(spec *tasks.TaskSpec, env config.EnvConfig, opts BuildOptions) (*Command, error) {
	if spec.Kind != tasks.KindTrain {
		return nil, fmt.Errorf("task %s is a %s task, not a training task", spec.ID, spec.Kind)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s := spec.Train

	exports := BuildEnvironment(env, spec.Env)

	var launcher []string
	if devices := strings.TrimSpace(exports["CUDA_VISIBLE_DEVICES"]); devices != "" {
		if opts.NumGPUs > 0 {
			logger.Warn("Ignoring --gpus %d: CUDA_VISIBLE_DEVICES=%s selects the devices", opts.NumGPUs, devices)
		}
		launcher = append(launcher, "--include", "localhost:"+devices)
		delete(exports, "CUDA_VISIBLE_DEVICES")
	} else {
		n := ResolveNumGPUs(opts.NumGPUs, s.NumGPUs, env.NumGPUs, opts.DetectGPUs)
		launcher = append(launcher, "--num_gpus", fmt.Sprintf("%d", n))
	}
	if s.MasterPort > 0 {
		launcher = append(launcher, "--master_port", fmt.Sprintf("%d", s.MasterPort))
	}

	entry := s.Entry
	if entry == "" {
		entry = tasks.DefaultTrainEntry
	}

	flags := TrainFlags(s)
	if err := flags.ApplyOverrides(spec.Params); err != nil {
		return nil, fmt.Errorf("task %s: %w", spec.ID, err)
	}
	if err := flags.ApplyOverrides(opts.Overrides); err != nil {
		return nil, err
	}

	args := append(launcher, entry)
	args = append(args, flags.Args()...)

	cmd := &Command{
		Program: env.DeepSpeed,
		Args:    args,
		Env:     exports,
		WorkDir: env.WorkDir,
		Labels: map[string]string{
			"molft.task": spec.ID,
			"molft.kind": string(spec.Kind),
		},
	}
	logger.Debug("Built train command for %s: %s", spec.ID, cmd.Describe())
	return cmd, nil
}

// TrainFlags renders a training parameter block as trainer flags.
func TrainFlags(s *tasks.TrainSettings) *FlagList {
	f := &FlagList{}
	f.Set("model_name_or_path", s.ModelPath)
	f.Set("model_cls", s.ModelClass)
	f.Set("modality_builder", s.ModalityBuilder)
	f.Set("dataset_path", s.DatasetPath)
	f.Set("output_dir", s.OutputDir)
	f.SetIfNotEmpty("pretrained_projectors_path", s.ProjectorPath)
	f.SetBool("lora_enable", s.LoRA)
	f.SetBool("bf16", s.BF16)
	f.SetBool("tf32", s.TF32)
	f.SetInt("num_train_epochs", s.Epochs)
	f.SetInt("per_device_train_batch_size", s.TrainBatchSize)
	f.SetInt("per_device_eval_batch_size", s.EvalBatchSize)
	f.SetInt("gradient_accumulation_steps", s.GradientAccumulationSteps)
	f.SetIntIfPositive("model_max_length", s.MaxLength)
	f.SetIfNotEmpty("evaluation_strategy", s.EvalStrategy)
	f.SetIfNotEmpty("save_strategy", s.SaveStrategy)
	f.SetIntIfPositive("save_steps", s.SaveSteps)
	f.SetIntIfPositive("save_total_limit", s.SaveTotalLimit)
	f.SetFloat("learning_rate", s.LearningRate)
	f.SetFloat("weight_decay", s.WeightDecay)
	f.SetFloat("warmup_ratio", s.WarmupRatio)
	f.SetIfNotEmpty("lr_scheduler_type", s.Scheduler)
	f.SetIntIfPositive("logging_steps", s.LoggingSteps)
	f.SetInt("dataloader_num_workers", s.DataloaderWorkers)
	f.SetIfNotEmpty("report_to", s.ReportTo)
	f.SetIfNotEmpty("deepspeed", s.DeepSpeedConfig)
	return f
}
