// Package config holds the immutable settings of a training run.
//
// Hyperparameters describe the dataset and model architecture and travel inside
// every checkpoint; TrainerConfig describes how a run is driven and may change
// between a run and its resumption.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPklPath       = "../dataset.gob.gz"
	DefaultHiddenSize    = 512
	DefaultLearningRate  = 1e-3
	DefaultMinSampleSize = 10
	DefaultLayers        = 2
	DefaultSeed          = 42

	DefaultRootDir           = "runs"
	DefaultEarlyStopPatience = 3
	DefaultSaveTopK          = 3
	DefaultTestFraction      = 0.2
)

// Negative sampling strategies
const (
	NegativesUniform = "uniform"
	NegativesDegree  = "degree"
)

// ErrInvalid marks a configuration that fails validation
var ErrInvalid = errors.New("invalid configuration")

// Hyperparameters fully determine the dataset view and the model architecture.
type Hyperparameters struct {
	PklPath       string  `yaml:"pkl_path"`
	HiddenSize    int     `yaml:"hidden_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	MinSampleSize int     `yaml:"min_sample_size"`
	// BatchSize of 0 puts a whole split into one batch
	BatchSize int    `yaml:"batch_size"`
	Layers    int    `yaml:"layers"`
	Negatives string `yaml:"negatives"`
	Seed      int64  `yaml:"seed"`
}

// TrainerConfig drives the training loop
type TrainerConfig struct {
	RootDir           string  `yaml:"root_dir"`
	EarlyStopPatience int     `yaml:"early_stop_patience"`
	MinDelta          float64 `yaml:"min_delta"`
	SaveTopK          int     `yaml:"save_top_k"`
	TestFraction      float64 `yaml:"test_fraction"`
	// Replicas is the number of data-parallel workers per optimization step
	Replicas int `yaml:"replicas"`
	// MaxEpochs of 0 trains until early stopping
	MaxEpochs      int `yaml:"max_epochs"`
	LogEveryNSteps int `yaml:"log_every_n_steps"`
}

// LogConfig selects the logger output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the complete file layout
type Config struct {
	Model   Hyperparameters `yaml:"model"`
	Trainer TrainerConfig   `yaml:"trainer"`
	Log     LogConfig       `yaml:"log"`
}

// DefaultHyperparameters returns the default model settings
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		PklPath:       DefaultPklPath,
		HiddenSize:    DefaultHiddenSize,
		LearningRate:  DefaultLearningRate,
		MinSampleSize: DefaultMinSampleSize,
		Layers:        DefaultLayers,
		Negatives:     NegativesUniform,
		Seed:          DefaultSeed,
	}
}

// DefaultTrainerConfig returns the default loop settings
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		RootDir:           DefaultRootDir,
		EarlyStopPatience: DefaultEarlyStopPatience,
		SaveTopK:          DefaultSaveTopK,
		TestFraction:      DefaultTestFraction,
		Replicas:          1,
		LogEveryNSteps:    1,
	}
}

// Default returns the complete default configuration
func Default() Config {
	return Config{
		Model:   DefaultHyperparameters(),
		Trainer: DefaultTrainerConfig(),
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// Validate checks the model settings
func (h Hyperparameters) Validate() error {
	switch {
	case h.PklPath == "":
		return errors.Wrap(ErrInvalid, "pkl_path is required")
	case h.HiddenSize <= 0:
		return errors.Wrapf(ErrInvalid, "hidden_size must be positive, got %d", h.HiddenSize)
	case h.LearningRate <= 0:
		return errors.Wrapf(ErrInvalid, "learning_rate must be positive, got %g", h.LearningRate)
	case h.MinSampleSize < 0:
		return errors.Wrapf(ErrInvalid, "min_sample_size must not be negative, got %d", h.MinSampleSize)
	case h.BatchSize < 0:
		return errors.Wrapf(ErrInvalid, "batch_size must not be negative, got %d", h.BatchSize)
	case h.Layers <= 0:
		return errors.Wrapf(ErrInvalid, "layers must be positive, got %d", h.Layers)
	case h.Negatives != NegativesUniform && h.Negatives != NegativesDegree:
		return errors.Wrapf(ErrInvalid, "negatives must be %q or %q, got %q", NegativesUniform, NegativesDegree, h.Negatives)
	}
	return nil
}

// Validate checks the loop settings
func (c TrainerConfig) Validate() error {
	switch {
	case c.RootDir == "":
		return errors.Wrap(ErrInvalid, "root_dir is required")
	case c.EarlyStopPatience <= 0:
		return errors.Wrapf(ErrInvalid, "early_stop_patience must be positive, got %d", c.EarlyStopPatience)
	case c.MinDelta < 0:
		return errors.Wrapf(ErrInvalid, "min_delta must not be negative, got %g", c.MinDelta)
	case c.SaveTopK <= 0:
		return errors.Wrapf(ErrInvalid, "save_top_k must be positive, got %d", c.SaveTopK)
	case c.TestFraction <= 0 || c.TestFraction >= 1:
		return errors.Wrapf(ErrInvalid, "test_fraction must be in (0, 1), got %g", c.TestFraction)
	case c.Replicas <= 0:
		return errors.Wrapf(ErrInvalid, "replicas must be positive, got %d", c.Replicas)
	case c.MaxEpochs < 0:
		return errors.Wrapf(ErrInvalid, "max_epochs must not be negative, got %d", c.MaxEpochs)
	}
	return nil
}

// Validate checks every section
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	return c.Trainer.Validate()
}
