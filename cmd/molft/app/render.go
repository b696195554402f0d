package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/launch"
)

// RenderOptions holds options for the render command
type RenderOptions struct {
	LaunchOptions

	// Output is the script path; empty writes to stdout
	Output string

	// RevealSecrets writes API keys into the script
	RevealSecrets bool
}

// NewRenderCommand creates the render command.
//
// The render command writes the standalone bash launcher equivalent to a
// task, for use on machines without molft or for review.
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for rendering launchers
func NewRenderCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RenderOptions{
		LaunchOptions: LaunchOptions{GlobalOptions: globalOpts},
	}

	cmd := &cobra.Command{
		Use:   "render TASK",
		Short: "Print the shell launcher for a task",
		Long: `Print the bash script that exports the task environment and executes the
trainer or evaluator with the same flags molft would use.

API keys are not written unless --reveal-secrets is given; the script then
requires them from the caller's environment.`,
		Example: `  # Write a launcher script
  molft render molecule-lora-finetune -o finetune.sh

  # With overrides
  molft render molecule-eval-i2s --set temperature=0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.out = cmd.OutOrStdout()
			return runRender(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "",
		"write the script to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.RevealSecrets, "reveal-secrets", false,
		"write API key values into the script")
	cmd.Flags().IntVarP(&opts.GPUs, "gpus", "g", 0,
		"number of GPUs for training tasks")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil,
		"override a flag as key=value (repeatable)")

	return cmd
}

// runRender executes the render command logic.
func runRender(id string, opts *RenderOptions) error {
	spec, cmd, err := buildTaskCommand(id, &opts.LaunchOptions)
	if err != nil {
		return err
	}

	header := []string{
		fmt.Sprintf("Generated by %s for task %s", cliName, spec.ID),
		fmt.Sprintf("Generated at %s", time.Now().UTC().Format(time.RFC3339)),
	}
	if spec.Description != "" {
		header = append(header, spec.Description)
	}
	script := launch.RenderScript(cmd, launch.RenderOptions{
		Header:        header,
		RevealSecrets: opts.RevealSecrets,
	})

	if opts.Output == "" {
		_, err := fmt.Fprint(opts.out, script)
		return err
	}
	if err := os.WriteFile(opts.Output, []byte(script), 0o755); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.Output, err)
	}
	fmt.Fprintf(opts.out, "Wrote %s\n", opts.Output)
	return nil
}
