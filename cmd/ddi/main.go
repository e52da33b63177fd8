// Command ddi trains a relational graph network that predicts drug-drug
// interaction types from a drug/protein interaction graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
	logJSON  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "ddi",
		Short: "DDI - drug-drug interaction type prediction",
		Long: `DDI trains a relational graph convolutional network over a graph of drugs and
proteins (DDI, DPI, PDI and PPI relations) and predicts the interaction type of
drug pairs. Training runs until validation loss stops improving.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Log as JSON")

	cmd.AddCommand(newNewCmd(opts), newResumeCmd(opts), newPackCmd())
	return cmd
}

// logger applies the persistent log flags over cfg
func (o *rootOptions) logger(cmd *cobra.Command, cfg config.LogConfig) (*zap.Logger, error) {
	if f := cmd.Flags().Lookup("log-level"); (f != nil && f.Changed) || cfg.Level == "" {
		cfg.Level = o.logLevel
	}
	if f := cmd.Flags().Lookup("log-json"); f != nil && f.Changed {
		cfg.JSON = o.logJSON
	}
	return logging.New(cfg)
}
