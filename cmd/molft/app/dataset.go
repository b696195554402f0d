package app

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bioagent/molft/internal/dataset"
)

// DatasetBuildOptions holds options for the dataset build command
type DatasetBuildOptions struct {
	*GlobalOptions

	Task      string
	DataDir   string
	OutputDir string
	Format    string
	Token     bool
	FewShot   int
	Seed      int64
	Parquet   bool
}

// NewDatasetCommand creates the dataset command group.
func NewDatasetCommand(globalOpts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build instruction-tuning datasets",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newDatasetBuildCommand(globalOpts))
	return cmd
}

func newDatasetBuildCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &DatasetBuildOptions{GlobalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a name conversion dataset",
		Long: `Build a name conversion dataset in the chat format the trainer reads.

Source rows are read from <data-dir>/{train,dev,test}/name_conversion-<task>.jsonl,
one {"input": ..., "output": ...} object per line. Train and dev rows become
complete conversations; test rows end with the question and keep the answer
as ground_truth. Rows that cannot be converted are skipped and counted.

Tasks:
  i2s   IUPAC name to SMILES
  s2f   SMILES to molecular formula`,
		Example: `  # SMILES to formula with 3 few-shot examples
  molft dataset build --task s2f --data-dir raw/ --output-dir data/name-conversion/s2f --few-shot 3

  # Inline the SMILES text instead of the molecule token
  molft dataset build --task s2f --data-dir raw/ --output-dir data/name-conversion/s2f --token=false

  # Also write parquet files
  molft dataset build --task i2s --data-dir raw/ --output-dir data/name-conversion/i2s --parquet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetBuild(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Task, "task", "", "conversion task: i2s or s2f")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory with train/dev/test source files")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "directory for the built dataset")
	cmd.Flags().StringVar(&opts.Format, "format", string(dataset.FormatSMILES), "inline molecule format: smiles or selfies")
	cmd.Flags().BoolVar(&opts.Token, "token", true, "write the molecule token instead of the molecule text (--token=false inlines it)")
	cmd.Flags().IntVar(&opts.FewShot, "few-shot", 0, "few-shot examples per test prompt")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed for template selection")
	cmd.Flags().BoolVar(&opts.Parquet, "parquet", false, "also write parquet files")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("output-dir")

	return cmd
}

// runDatasetBuild executes the dataset build command logic.
func runDatasetBuild(w io.Writer, opts *DatasetBuildOptions) error {
	b, err := dataset.NewBuilder(dataset.Options{
		Task:    dataset.Task(opts.Task),
		Format:  dataset.Format(opts.Format),
		Token:   opts.Token,
		FewShot: opts.FewShot,
		Seed:    opts.Seed,
	})
	if err != nil {
		return err
	}

	res, err := b.Build(opts.DataDir)
	if err != nil {
		return err
	}

	paths, err := dataset.WriteResult(opts.OutputDir, res, opts.Parquet)
	if err != nil {
		return err
	}

	for _, split := range dataset.Splits {
		fmt.Fprintf(w, "%-5s %s records, %d skipped\n",
			split, humanize.Comma(int64(len(res.Splits[split]))), res.Skipped[split])
	}
	for _, p := range paths {
		size := "?"
		if info, err := os.Stat(p); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(w, "Wrote %s (%s)\n", p, size)
	}
	return nil
}
