package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/launch"
	"github.com/bioagent/molft/internal/tasks"
)

// TrainOptions holds options for the train command
type TrainOptions struct {
	LaunchOptions

	// Yes skips the non-empty output directory confirmation
	Yes bool
}

// NewTrainCommand creates the train command.
//
// The train command runs the deepspeed trainer for one training task.
//
// Usage:
//
//	molft train TASK [--gpus N] [--set key=value]... [--mode native|docker]
//
// Examples:
//
//	# Fine-tune with LoRA on 4 GPUs
//	molft train molecule-lora-finetune --gpus 4
//
//	# Show the command without running it
//	molft train molecule-projector-pretrain --dry-run
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for training
func NewTrainCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &TrainOptions{
		LaunchOptions: LaunchOptions{GlobalOptions: globalOpts},
	}

	cmd := &cobra.Command{
		Use:   "train TASK",
		Short: "Run the trainer for a task",
		Long: `Run the deepspeed trainer with the parameter block of a training task.

The worker count comes from --gpus, the task, MOLFT_NUM_GPUS or the detected
GPUs, in that order. When CUDA_VISIBLE_DEVICES is set, exactly those devices
are used. The trainer's exit status becomes molft's exit status.`,
		Example: `  # Fine-tune with LoRA on 4 GPUs
  molft train molecule-lora-finetune --gpus 4

  # Override hyperparameters
  molft train molecule-lora-finetune --set learning_rate=1e-4 --set num_train_epochs=1

  # Show the command without running it
  molft train molecule-projector-pretrain --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.out = cmd.OutOrStdout()
			return runTrain(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.GPUs, "gpus", "g", 0,
		"number of GPUs (default: task, MOLFT_NUM_GPUS or detected)")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false,
		"do not ask before writing into a non-empty output directory")
	addLaunchFlags(cmd, &opts.LaunchOptions)

	return cmd
}

// runTrain executes the train command logic.
func runTrain(ctx context.Context, id string, opts *TrainOptions) error {
	spec, cmd, err := buildTaskCommand(id, &opts.LaunchOptions)
	if err != nil {
		return err
	}
	if spec.Kind != tasks.KindTrain {
		return fmt.Errorf("task %s is an evaluation task; use '%s eval %s'", id, cliName, id)
	}

	if !opts.DryRun {
		if dir := launch.OutputDir(cmd); outputDirHasFiles(dir, cmd.WorkDir) {
			if err := confirmOverwrite(dir, opts.Yes); err != nil {
				return err
			}
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := runTask(ctx, spec, cmd, &opts.LaunchOptions, launch.RunIO{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		TTY:    opts.TTY,
	})
	if out != nil {
		fmt.Fprintf(opts.out, "Run %s %s\n", out.RunID, recordedStatus(out))
	}
	return err
}
