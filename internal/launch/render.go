package launch

import (
	"fmt"
	"strings"
)

// RenderOptions control RenderScript output.
type RenderOptions struct {
	// Header is written as comment lines after the shebang.
	Header []string

	// RevealSecrets writes API keys verbatim. By default they are masked
	// and the script expects them from the caller's environment.
	RevealSecrets bool
}

// RenderScript renders cmd as a standalone bash launcher equivalent to what
// molft executes: export the environment, change to the work dir and exec
// the program.
//
// Masked secrets are rendered as "${NAME:?NAME must be set}" so the script
// fails fast instead of running with a placeholder key.
//
// Example output:
//
//	#!/usr/bin/env bash
//	set -euo pipefail
//
//	export HF_HOME=/cache/hf
//	export WANDB_API_KEY="${WANDB_API_KEY:?WANDB_API_KEY must be set}"
//
//	cd /work
//	exec deepspeed \
//	  --num_gpus 8 \
//	  scripts/train_model.py \
//	  --model_name_or_path mistralai/Mistral-7B-Instruct-v0.1 \
//	  ...
func RenderScript(cmd *Command, opts RenderOptions) string {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env bash\n")
	for _, line := range opts.Header {
		fmt.Fprintf(&b, "# %s\n", line)
	}
	b.WriteString("set -euo pipefail\n")

	if len(cmd.Env) > 0 {
		b.WriteString("\n")
		masked := cmd.MaskedEnv()
		for _, k := range cmd.EnvKeys() {
			if !opts.RevealSecrets && masked[k] != cmd.Env[k] {
				fmt.Fprintf(&b, "export %s=\"${%s:?%s must be set}\"\n", k, k, k)
				continue
			}
			fmt.Fprintf(&b, "export %s=%s\n", k, ShellQuote(cmd.Env[k]))
		}
	}

	b.WriteString("\n")
	if cmd.WorkDir != "" && cmd.WorkDir != "." {
		fmt.Fprintf(&b, "cd %s\n", ShellQuote(cmd.WorkDir))
	}

	b.WriteString("exec ")
	b.WriteString(ShellQuote(cmd.Program))
	for _, line := range groupArgs(cmd.Args) {
		b.WriteString(" \\\n  ")
		b.WriteString(line)
	}
	b.WriteString("\n")

	return b.String()
}

// groupArgs pairs each "--flag" with its value so every flag lands on its
// own continuation line.
func groupArgs(args []string) []string {
	var lines []string
	for i := 0; i < len(args); i++ {
		a := ShellQuote(args[i])
		if strings.HasPrefix(args[i], "--") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			a += " " + ShellQuote(args[i+1])
			i++
		}
		lines = append(lines, a)
	}
	return lines
}
