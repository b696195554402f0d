package launch

import (
	"fmt"

	"github.com/bioagent/molft/internal/config"
	"github.com/bioagent/molft/internal/logger"
	"github.com/bioagent/molft/internal/tasks"
)

// BuildEvalCommand assembles the python invocation for an evaluation task.
//
// Flag order:
//
//	--model_name_or_path [--model_lora_path] --dataset_path --evaluator
//	[--output_dir] [--cache_dir] [--max_new_tokens] --temperature [--verbose]
//
// followed by preset params and command-line overrides. When the task does
// not set a cache dir, HF_HOME is used if exported.
func BuildEvalCommand(spec *tasks.TaskSpec, env config.EnvConfig, opts BuildOptions) (*Command, error) {
	if spec.Kind != tasks.KindEval {
		return nil, fmt.Errorf("task %s is a %s task, not an evaluation task", spec.ID, spec.Kind)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if opts.NumGPUs > 0 {
		logger.Debug("--gpus has no effect on evaluation task %s", spec.ID)
	}
	s := spec.Eval

	exports := BuildEnvironment(env, spec.Env)

	entry := s.Entry
	if entry == "" {
		entry = tasks.DefaultEvalEntry
	}

	flags := EvalFlags(s)
	if !hasFlag(flags, "cache_dir") && exports["HF_HOME"] != "" {
		flags.Set("cache_dir", exports["HF_HOME"])
	}
	if err := flags.ApplyOverrides(spec.Params); err != nil {
		return nil, fmt.Errorf("task %s: %w", spec.ID, err)
	}
	if err := flags.ApplyOverrides(opts.Overrides); err != nil {
		return nil, err
	}

	cmd := &Command{
		Program: env.Python,
		Args:    append([]string{entry}, flags.Args()...),
		Env:     exports,
		WorkDir: env.WorkDir,
		Labels: map[string]string{
			"molft.task": spec.ID,
			"molft.kind": string(spec.Kind),
		},
	}
	logger.Debug("Built eval command for %s: %s", spec.ID, cmd.Describe())
	return cmd, nil
}

// EvalFlags renders an evaluation parameter block as evaluator flags.
func EvalFlags(s *tasks.EvalSettings) *FlagList {
	f := &FlagList{}
	f.Set("model_name_or_path", s.ModelPath)
	f.SetIfNotEmpty("model_lora_path", s.LoRAPath)
	f.Set("dataset_path", s.DatasetPath)
	f.Set("evaluator", s.Evaluator)
	f.SetIfNotEmpty("output_dir", s.OutputDir)
	f.SetIfNotEmpty("cache_dir", s.CacheDir)
	f.SetIntIfPositive("max_new_tokens", s.MaxNewTokens)
	f.SetFloat("temperature", s.Temperature)
	if s.Verbose {
		f.Switch("verbose")
	}
	return f
}

func hasFlag(f *FlagList, name string) bool {
	_, ok := f.Get(name)
	return ok
}

// BuildCommand dispatches on the task kind.
func BuildCommand(spec *tasks.TaskSpec, env config.EnvConfig, opts BuildOptions) (*Command, error) {
	switch spec.Kind {
	case tasks.KindTrain:
		return BuildTrainCommand(spec, env, opts)
	case tasks.KindEval:
		return BuildEvalCommand(spec, env, opts)
	default:
		return nil, fmt.Errorf("task %s: unknown kind %q", spec.ID, spec.Kind)
	}
}
