package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Model.HiddenSize)
	assert.Equal(t, 1e-3, cfg.Model.LearningRate)
	assert.Equal(t, 10, cfg.Model.MinSampleSize)
	assert.Equal(t, 0, cfg.Model.BatchSize, "unset batch size")
	assert.Equal(t, 3, cfg.Trainer.EarlyStopPatience)
	assert.Equal(t, 3, cfg.Trainer.SaveTopK)
	assert.Equal(t, 0.0, cfg.Trainer.MinDelta)
	assert.Equal(t, 0, cfg.Trainer.MaxEpochs, "unbounded epochs")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	content := `
model:
  pkl_path: /data/ddi.gob.gz
  hidden_size: 64
  batch_size: 256
trainer:
  early_stop_patience: 5
  replicas: 4
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/ddi.gob.gz", cfg.Model.PklPath)
	assert.Equal(t, 64, cfg.Model.HiddenSize)
	assert.Equal(t, 256, cfg.Model.BatchSize)
	assert.Equal(t, DefaultLearningRate, cfg.Model.LearningRate)
	assert.Equal(t, 5, cfg.Trainer.EarlyStopPatience)
	assert.Equal(t, 4, cfg.Trainer.Replicas)
	assert.Equal(t, DefaultSaveTopK, cfg.Trainer.SaveTopK)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [1, 2"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"hidden":    func(c *Config) { c.Model.HiddenSize = 0 },
		"lr":        func(c *Config) { c.Model.LearningRate = -1 },
		"batch":     func(c *Config) { c.Model.BatchSize = -2 },
		"negatives": func(c *Config) { c.Model.Negatives = "hard" },
		"path":      func(c *Config) { c.Model.PklPath = "" },
		"patience":  func(c *Config) { c.Trainer.EarlyStopPatience = 0 },
		"delta":     func(c *Config) { c.Trainer.MinDelta = -0.1 },
		"fraction":  func(c *Config) { c.Trainer.TestFraction = 1 },
		"replicas":  func(c *Config) { c.Trainer.Replicas = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))
		})
	}
}
