package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

func newPackCmd() *cobra.Command {
	var edges, drugFeatures, proteinFeatures, output string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Build a graph artifact from edge list and feature files",
		Long: `Build the graph artifact read by "ddi new" from text files.

Edge list: source source_type target target_type relation [subtype]
  DB00001 Drug DB00002 Drug DDI 7
  DB00001 Drug P00533 Protein DPI
  P00533 Protein P04626 Protein PPI

Features: name f1 f2 ... (one file per node type)

Example:
  ddi pack --edges graph.txt --drug-features drugs.txt --protein-features proteins.txt --output dataset.gob.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := hetero.NewBuilder()

			n, err := b.LoadEdgeListFile(edges)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\tinteractions:\t\t%s\n", humanize.Comma(int64(n)))
			for _, f := range []struct {
				t    hetero.NodeType
				path string
			}{{hetero.Drug, drugFeatures}, {hetero.Protein, proteinFeatures}} {
				n, err := b.LoadFeaturesFile(f.t, f.path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\t%s features:\t\t%s\n", f.t, humanize.Comma(int64(n)))
			}

			a, err := b.Artifact()
			if err != nil {
				return err
			}
			if err := hetero.WriteArtifact(output, a); err != nil {
				return errors.Wrap(err, "failed to write artifact")
			}
			if fi, err := os.Stat(output); err == nil {
				fmt.Fprintf(out, "\tSave to <%s> (%s)\n", output, humanize.Bytes(uint64(fi.Size())))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&edges, "edges", "", "Edge list file")
	f.StringVar(&drugFeatures, "drug-features", "", "Drug feature file")
	f.StringVar(&proteinFeatures, "protein-features", "", "Protein feature file")
	f.StringVar(&output, "output", "dataset.gob.gz", "Artifact path; the extension selects the format")
	for _, name := range []string{"edges", "drug-features", "protein-features"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
