package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/sfmbench/internal/config"
	"github.com/signalnine/sfmbench/internal/corpus"
	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/signalnine/sfmbench/internal/docker"
	"github.com/signalnine/sfmbench/internal/pipeline"
	"github.com/signalnine/sfmbench/internal/report"
	"github.com/signalnine/sfmbench/internal/stage"
	"github.com/spf13/cobra"
)

var (
	flagSoftware  string
	flagInput     string
	flagOutput    string
	flagResult    string
	flagLimit     int
	flagDatasets  []string
	flagVerbose   bool
	flagParallel  int
	flagOnFailure string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconstruct every dataset and evaluate it against ground truth",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVarP(&flagSoftware, "software", "s", "", "OpenMVG SfM software folder (like [...]/build/software/SfM)")
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "input datasets folder (each dataset holds images/, gt_dense_cameras/ and K.txt)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output folder for features, matches and reconstructions")
	cmd.Flags().StringVarP(&flagResult, "result", "r", "", "file to store the results")
	cmd.Flags().IntVarP(&flagLimit, "limit", "n", -1, "process at most this many datasets (-1 for all)")
	cmd.Flags().StringSliceVar(&flagDatasets, "dataset", nil, "only run the named datasets")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "show the output of every stage")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "datasets to process concurrently")
	cmd.Flags().StringVar(&flagOnFailure, "on-failure", "", "dataset failure policy (fail-fast, continue)")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Check(); err != nil {
		return err
	}

	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}

	_, runErr := driver.Run(cmd.Context())
	if _, statErr := os.Stat(driver.ResultPath); statErr == nil {
		fmt.Println("\n--- Results ---")
		if err := report.Generate(driver.ResultPath, "table", os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	return runErr
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("software") {
		cfg.Software = flagSoftware
	}
	if flags.Changed("input") {
		cfg.Input = flagInput
	}
	if flags.Changed("output") {
		cfg.Output = flagOutput
	}
	if flags.Changed("result") {
		cfg.Result = flagResult
	}
	if flags.Changed("limit") {
		cfg.Limit = flagLimit
	}
	if flags.Changed("verbose") {
		cfg.Verbose = flagVerbose
	}
	if flags.Changed("parallel") {
		cfg.Parallel = flagParallel
	}
	if flags.Changed("on-failure") {
		cfg.OnFailure = corpus.Policy(flagOnFailure)
	}
}

func newDriver(cfg *config.Config) (*corpus.Driver, error) {
	input, err := filepath.Abs(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("resolving input dir: %w", err)
	}
	output, err := filepath.Abs(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	env, err := cfg.StageEnv()
	if err != nil {
		return nil, err
	}
	profile, err := pipeline.LookupProfile(cfg.Tool.Profile)
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	return &corpus.Driver{
		Input: input,
		Sequencer: &pipeline.Sequencer{
			Runner:    newStageRunner(cfg, input, output),
			Software:  cfg.Software,
			Profile:   profile,
			Engine:    cfg.Tool.Engine,
			Output:    output,
			ExtraArgs: cfg.Tool.ExtraArgs,
			Env:       env,
			Timeout:   time.Duration(cfg.StageTimeoutMinutes) * time.Minute,
			Verbose:   cfg.Verbose,
		},
		Discover: dataset.DiscoverOpts{
			Order:  cfg.Order,
			Names:  flagDatasets,
			Limit:  cfg.Limit,
			Layout: cfg.Dataset,
		},
		Policy:     cfg.OnFailure,
		Parallel:   cfg.Parallel,
		ResultPath: cfg.Result,
	}, nil
}

func newStageRunner(cfg *config.Config, input, output string) stage.Runner {
	if cfg.Executor.Kind == config.ExecutorDocker {
		return &docker.Runner{
			Image: cfg.Executor.Image,
			Mounts: []docker.Mount{
				{Source: input, Target: input, ReadOnly: true},
				{Source: output, Target: output},
			},
			CPULimit:    cfg.Executor.CPULimit,
			MemoryLimit: cfg.Executor.MemoryLimit,
			UserID:      cfg.Executor.User,
			Tee:         cfg.Verbose,
		}
	}
	return &stage.LocalRunner{Tee: cfg.Verbose}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadOrDefault(cfgFile, cmd.Flags().Changed("config"))
}
