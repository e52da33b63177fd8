package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/trainer"
	"github.com/cnclabs/smore-ddi/pkg/hetero"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// writeInputs writes an edge list with two DDI types over nine drugs and
// feature files for every node
func writeInputs(t *testing.T, dir string) (edges, drugs, proteins string) {
	t.Helper()
	var e, d, p strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&e, "D%d Drug D%d Drug DDI 1\n", i, i+1)
		fmt.Fprintf(&e, "D%d Drug D%d Drug DDI 2\n", i, i+3)
	}
	fmt.Fprintln(&e, "# targets")
	for i := 0; i < 9; i++ {
		fmt.Fprintf(&e, "D%d Drug P%d Protein DPI\n", i, i%3)
		fmt.Fprintf(&d, "D%d %d.5 %d\n", i, i, 9-i)
	}
	fmt.Fprintln(&e, "P0 Protein P1 Protein PPI")
	fmt.Fprintln(&e, "P2 Protein D4 Drug PDI")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&p, "P%d %d\n", i, i)
	}

	edges, drugs, proteins = filepath.Join(dir, "edges.txt"), filepath.Join(dir, "drugs.txt"), filepath.Join(dir, "proteins.txt")
	require.NoError(t, os.WriteFile(edges, []byte(e.String()), 0o644))
	require.NoError(t, os.WriteFile(drugs, []byte(d.String()), 0o644))
	require.NoError(t, os.WriteFile(proteins, []byte(p.String()), 0o644))
	return edges, drugs, proteins
}

func TestPackNewResume(t *testing.T) {
	dir := t.TempDir()
	edges, drugs, proteins := writeInputs(t, dir)
	artifact := filepath.Join(dir, "dataset.gob.gz")

	out, err := execute(t, "pack", "--edges", edges, "--drug-features", drugs, "--protein-features", proteins, "--output", artifact)
	require.NoError(t, err, out)
	a, err := hetero.ReadArtifact(artifact)
	require.NoError(t, err)
	assert.Equal(t, 9, a.NumDrugs())
	assert.Len(t, a.DDI, 10)
	assert.Len(t, a.DPI, 10)

	root := filepath.Join(dir, "runs")
	out, err = execute(t, "new",
		"--pkl-path", artifact,
		"--hidden-size", "4",
		"--learning-rate", "0.01",
		"--batch-size", "4",
		"--min-sample-size", "1",
		"--early-stop-patience", "2",
		"--root-dir", root,
		"--max-epochs", "2",
		"--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Model Setting:")
	assert.Contains(t, out, "Training Complete!")
	assert.Contains(t, out, "max_epochs")

	ckpts, err := filepath.Glob(filepath.Join(root, "*", "checkpoints", "*.gob.gz"))
	require.NoError(t, err)
	require.NotEmpty(t, ckpts)
	assert.LessOrEqual(t, len(ckpts), 3)

	out, err = execute(t, "resume", ckpts[0], "--early-stop-patience", "4", "--max-epochs", "3", "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Training Complete!")
}

func TestResumeContinuesPastTheEpochCapOfNew(t *testing.T) {
	dir := t.TempDir()
	edges, drugs, proteins := writeInputs(t, dir)
	artifact := filepath.Join(dir, "dataset.gob.gz")
	out, err := execute(t, "pack", "--edges", edges, "--drug-features", drugs, "--protein-features", proteins, "--output", artifact)
	require.NoError(t, err, out)

	root := filepath.Join(dir, "runs")
	out, err = execute(t, "new",
		"--pkl-path", artifact,
		"--hidden-size", "4",
		"--batch-size", "4",
		"--min-sample-size", "1",
		"--early-stop-patience", "50",
		"--root-dir", root,
		"--max-epochs", "2",
		"--log-level", "error")
	require.NoError(t, err, out)

	last, err := filepath.Glob(filepath.Join(root, "*", trainer.CheckpointDir, "epoch=2-*.gob.gz"))
	require.NoError(t, err)
	require.Len(t, last, 1)

	out, err = execute(t, "resume", last[0], "--early-stop-patience", "50", "--max-epochs", "4", "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "max_epochs")

	runDir := filepath.Dir(filepath.Dir(last[0]))
	log, err := trainer.OpenMetricsLog(filepath.Join(runDir, trainer.MetricsFile), -1)
	require.NoError(t, err)
	require.Len(t, log.Rows(), 4)
	assert.Equal(t, 4, log.Rows()[3].Epoch)
}

func TestResumeOverrideClearsEpochCap(t *testing.T) {
	cmd := newResumeCmd(&rootOptions{})
	require.NoError(t, cmd.ParseFlags(nil))
	c := config.TrainerConfig{MaxEpochs: 2, EarlyStopPatience: 3}
	resumeOverride(cmd, 9, 0)(&c)
	assert.Equal(t, 0, c.MaxEpochs)
	assert.Equal(t, 3, c.EarlyStopPatience)

	cmd = newResumeCmd(&rootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--early-stop-patience", "9", "--max-epochs", "6"}))
	resumeOverride(cmd, 9, 6)(&c)
	assert.Equal(t, 6, c.MaxEpochs)
	assert.Equal(t, 9, c.EarlyStopPatience)
}

func TestNewRejectsMissingDataset(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "new", "--pkl-path", filepath.Join(dir, "missing.gob.gz"), "--root-dir", dir, "--log-level", "error")
	assert.Error(t, err)
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := execute(t, "new", "--hidden-size", "0")
	assert.Error(t, err)
}

func TestNewReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("model:\n  negatives: sideways\n"), 0o644))
	_, err := execute(t, "new", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negatives")
}

func TestResumeRequiresCheckpoint(t *testing.T) {
	_, err := execute(t, "resume")
	assert.Error(t, err)
	_, err = execute(t, "resume", filepath.Join(t.TempDir(), "nope.gob.gz"), "--log-level", "error")
	assert.Error(t, err)
}
