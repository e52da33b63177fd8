package main

import (
	"github.com/spf13/cobra"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/trainer"
)

// resumeOverride clears the epoch cap of the original run unless --max-epochs
// is given, and applies --early-stop-patience when set.
func resumeOverride(cmd *cobra.Command, patience, maxEpochs int) func(*config.TrainerConfig) {
	patienceSet := cmd.Flags().Changed("early-stop-patience")
	return func(c *config.TrainerConfig) {
		c.MaxEpochs = maxEpochs
		if patienceSet {
			c.EarlyStopPatience = patience
		}
	}
}

func newResumeCmd(root *rootOptions) *cobra.Command {
	var patience, maxEpochs int

	cmd := &cobra.Command{
		Use:   "resume <checkpoint>",
		Short: "Continue a run from one of its checkpoints",
		Long: `Continue a run from a checkpoint in its run directory. Model settings, the
data split, optimizer and early-stopping state come from the checkpoint; only the
early-stopping patience and the epoch cap may be changed. Without --max-epochs the
run continues until early stopping.

Example:
  ddi resume runs/20240101-120000_1a2b3c4d/checkpoints/epoch=7-step=84.gob.gz --early-stop-patience 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger(cmd, config.LogConfig{})
			if err != nil {
				return err
			}
			defer logger.Sync()

			tr, err := trainer.Resume(args[0], resumeOverride(cmd, patience, maxEpochs), logger)
			if err != nil {
				return err
			}
			tr.Model().PrintSettings(cmd.OutOrStdout())
			return fit(cmd, tr)
		},
	}
	cmd.Flags().IntVar(&patience, "early-stop-patience", config.DefaultEarlyStopPatience, "Validation rounds without improvement before stopping")
	cmd.Flags().IntVar(&maxEpochs, "max-epochs", 0, "Stop once this many epochs are done in total (0 = until early stopping)")
	return cmd
}
