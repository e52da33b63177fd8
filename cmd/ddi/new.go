package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/models/ddi"
	"github.com/cnclabs/smore-ddi/internal/trainer"
)

// flagOverrides copies a flag value from the flag-bound config into the loaded one
var flagOverrides = map[string]func(dst, src *config.Config){
	"pkl-path":            func(d, s *config.Config) { d.Model.PklPath = s.Model.PklPath },
	"hidden-size":         func(d, s *config.Config) { d.Model.HiddenSize = s.Model.HiddenSize },
	"learning-rate":       func(d, s *config.Config) { d.Model.LearningRate = s.Model.LearningRate },
	"batch-size":          func(d, s *config.Config) { d.Model.BatchSize = s.Model.BatchSize },
	"min-sample-size":     func(d, s *config.Config) { d.Model.MinSampleSize = s.Model.MinSampleSize },
	"layers":              func(d, s *config.Config) { d.Model.Layers = s.Model.Layers },
	"negatives":           func(d, s *config.Config) { d.Model.Negatives = s.Model.Negatives },
	"seed":                func(d, s *config.Config) { d.Model.Seed = s.Model.Seed },
	"early-stop-patience": func(d, s *config.Config) { d.Trainer.EarlyStopPatience = s.Trainer.EarlyStopPatience },
	"min-delta":           func(d, s *config.Config) { d.Trainer.MinDelta = s.Trainer.MinDelta },
	"root-dir":            func(d, s *config.Config) { d.Trainer.RootDir = s.Trainer.RootDir },
	"replicas":            func(d, s *config.Config) { d.Trainer.Replicas = s.Trainer.Replicas },
	"max-epochs":          func(d, s *config.Config) { d.Trainer.MaxEpochs = s.Trainer.MaxEpochs },
	"test-fraction":       func(d, s *config.Config) { d.Trainer.TestFraction = s.Trainer.TestFraction },
}

func newNewCmd(root *rootOptions) *cobra.Command {
	var configPath string
	flags := config.Default()

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new training run",
		Long: `Start a new training run in a fresh run directory under --root-dir.

Settings come from the defaults, then --config, then explicit flags.

Examples:
  ddi new --pkl-path dataset.gob.gz
  ddi new --pkl-path dataset.gob.gz --hidden-size 256 --batch-size 4096 --replicas 4
  ddi new --config run.yaml --early-stop-patience 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			for name, apply := range flagOverrides {
				if cmd.Flags().Changed(name) {
					apply(&cfg, &flags)
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runNew(cmd, root, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&flags.Model.PklPath, "pkl-path", flags.Model.PklPath, "Path to the graph artifact (.gob, .json, .yaml, optionally .gz)")
	f.IntVar(&flags.Model.HiddenSize, "hidden-size", flags.Model.HiddenSize, "Embedding dimension")
	f.Float64Var(&flags.Model.LearningRate, "learning-rate", flags.Model.LearningRate, "Adam learning rate")
	f.IntVar(&flags.Model.BatchSize, "batch-size", flags.Model.BatchSize, "Positive pairs per batch (0 = whole split)")
	f.IntVar(&flags.Model.MinSampleSize, "min-sample-size", flags.Model.MinSampleSize, "Minimum interactions for a DDI type to be kept")
	f.IntVar(&flags.Model.Layers, "layers", flags.Model.Layers, "Graph convolution layers")
	f.StringVar(&flags.Model.Negatives, "negatives", flags.Model.Negatives, "Negative sampling: uniform or degree")
	f.Int64Var(&flags.Model.Seed, "seed", flags.Model.Seed, "Random seed for weights, split and sampling")
	f.IntVar(&flags.Trainer.EarlyStopPatience, "early-stop-patience", flags.Trainer.EarlyStopPatience, "Validation rounds without improvement before stopping")
	f.Float64Var(&flags.Trainer.MinDelta, "min-delta", flags.Trainer.MinDelta, "Minimum validation loss decrease counted as improvement")
	f.StringVar(&flags.Trainer.RootDir, "root-dir", flags.Trainer.RootDir, "Directory for run directories")
	f.IntVar(&flags.Trainer.Replicas, "replicas", flags.Trainer.Replicas, "Data-parallel replicas per optimization step")
	f.IntVar(&flags.Trainer.MaxEpochs, "max-epochs", flags.Trainer.MaxEpochs, "Stop after this many epochs (0 = until early stopping)")
	f.Float64Var(&flags.Trainer.TestFraction, "test-fraction", flags.Trainer.TestFraction, "Share of each DDI type held out for validation")
	return cmd
}

func runNew(cmd *cobra.Command, root *rootOptions, cfg config.Config) error {
	logger, err := root.logger(cmd, cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	model, err := ddi.Load(cfg.Model)
	if err != nil {
		return errors.Wrap(err, "failed to set up model")
	}
	model.PrintSettings(cmd.OutOrStdout())

	tr, err := trainer.New(cfg.Trainer, model, logger)
	if err != nil {
		return err
	}
	return fit(cmd, tr)
}

func fit(cmd *cobra.Command, tr *trainer.Trainer) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Start Training:")
	res, err := tr.Fit(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Training Complete!")
	fmt.Fprintf(out, "\tstop reason:\t\t%s\n", res.Reason)
	fmt.Fprintf(out, "\tepochs:\t\t\t%d\n", res.Epochs)
	fmt.Fprintf(out, "\trun directory:\t\t%s\n", tr.RunDir())
	if res.BestCheckpoint != "" {
		fmt.Fprintf(out, "\tbest val_loss:\t\t%.6f\n", res.BestLoss)
		fmt.Fprintf(out, "\tbest checkpoint:\t%s\n", res.BestCheckpoint)
	}
	return nil
}
