package trainer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/pkg/codec"
)

// CheckpointVersion is bumped whenever the Checkpoint layout changes
const CheckpointVersion = 1

// Checkpoint extension; the codec picks gob with gzip from it
const checkpointExt = ".gob.gz"

// ErrCheckpoint marks an unreadable or incompatible checkpoint
var ErrCheckpoint = errors.New("invalid checkpoint")

// Checkpoint is everything needed to continue a run where it left off
type Checkpoint struct {
	Version         int
	Hyperparameters config.Hyperparameters
	Trainer         config.TrainerConfig

	Params    []nn.NamedTensor
	Optimizer nn.AdamState

	// Epoch counts completed epochs
	Epoch      int
	GlobalStep int
	ValLoss    float64

	TrainIDs []int
	ValIDs   []int

	EarlyStop EarlyStopping
	TopK      TopK
}

func checkpointName(epoch, step int) string {
	return fmt.Sprintf("epoch=%d-step=%d%s", epoch, step, checkpointExt)
}

// SaveCheckpoint writes c to path
func SaveCheckpoint(path string, c *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create checkpoint directory")
	}
	return errors.Wrapf(codec.Encode(path, c), "failed to save checkpoint %s", path)
}

// LoadCheckpoint reads and sanity-checks a checkpoint
func LoadCheckpoint(path string) (*Checkpoint, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%v", err)
	}
	var c Checkpoint
	if err := codec.Decode(path, &c); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "failed to decode %s: %v", path, err)
	}
	if c.Version != CheckpointVersion {
		return nil, errors.Wrapf(ErrCheckpoint, "%s has version %d, want %d", path, c.Version, CheckpointVersion)
	}
	if len(c.Params) == 0 || len(c.TrainIDs) == 0 || len(c.ValIDs) == 0 {
		return nil, errors.Wrapf(ErrCheckpoint, "%s is incomplete", path)
	}
	if err := c.Hyperparameters.Validate(); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", path, err)
	}
	return &c, nil
}
