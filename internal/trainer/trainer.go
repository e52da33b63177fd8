// Package trainer drives a model through training and validation epochs,
// checkpointing the best rounds and stopping once validation loss stalls.
package trainer

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/cnclabs/smore-ddi/internal/config"
	"github.com/cnclabs/smore-ddi/internal/metrics"
	"github.com/cnclabs/smore-ddi/internal/models/ddi"
	"github.com/cnclabs/smore-ddi/internal/nn"
	"github.com/cnclabs/smore-ddi/internal/sampler"
	"github.com/cnclabs/smore-ddi/pkg/codec"
)

// Run directory layout
const (
	CheckpointDir   = "checkpoints"
	HparamsFile     = "hparams.yaml"
	MetricsFile     = "metrics.csv"
	runDirTimestamp = "20060102-150405"
)

// Stage is a step of the training state machine
type Stage int

const (
	StageSetup Stage = iota
	StageTrain
	StageValidate
	StageCheckpoint
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageSetup:
		return "setup"
	case StageTrain:
		return "train"
	case StageValidate:
		return "validate"
	case StageCheckpoint:
		return "checkpoint"
	default:
		return "done"
	}
}

// StopReason tells why Fit returned
type StopReason string

const (
	StopEarly       StopReason = "early_stop"
	StopMaxEpochs   StopReason = "max_epochs"
	StopInterrupted StopReason = "interrupted"
)

// Result summarizes a finished Fit
type Result struct {
	Reason StopReason
	// Epochs counts completed epochs, including those before a resume
	Epochs         int
	BestLoss       float64
	BestCheckpoint string
}

// Trainer owns the optimization state of one run directory
type Trainer struct {
	cfg     config.TrainerConfig
	model   *ddi.Model
	opt     *nn.Adam
	reducer Reducer
	logger  *zap.Logger

	runDir   string
	trainIDs []int
	valIDs   []int
	train    *sampler.Loader
	val      *sampler.Loader

	early   *EarlyStopping
	topk    *TopK
	metrics *MetricsLog

	epoch int
	step  int
	grads []*nn.Gradients
}

// New starts a fresh run under cfg.RootDir
func New(cfg config.TrainerConfig, model *ddi.Model, logger *zap.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hp := model.Hyperparameters()
	trainIDs, valIDs := model.DataSet().Split(cfg.TestFraction, rand.New(rand.NewSource(hp.Seed)))

	runDir := filepath.Join(cfg.RootDir, time.Now().Format(runDirTimestamp)+"_"+uuid.NewString()[:8])
	if err := os.MkdirAll(filepath.Join(runDir, CheckpointDir), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create run directory")
	}
	hparams := struct {
		Model   config.Hyperparameters `yaml:"model"`
		Trainer config.TrainerConfig   `yaml:"trainer"`
	}{hp, cfg}
	if err := codec.Encode(filepath.Join(runDir, HparamsFile), hparams); err != nil {
		return nil, errors.Wrap(err, "failed to write hyperparameters")
	}
	log, err := OpenMetricsLog(filepath.Join(runDir, MetricsFile), -1)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		cfg:      cfg,
		model:    model,
		opt:      nn.NewAdam(model.Params(), hp.LearningRate),
		reducer:  MeanReducer{},
		logger:   logger,
		runDir:   runDir,
		trainIDs: trainIDs,
		valIDs:   valIDs,
		early:    NewEarlyStopping(cfg.EarlyStopPatience, cfg.MinDelta),
		topk:     &TopK{K: cfg.SaveTopK},
		metrics:  log,
	}
	return t, t.setup()
}

// Resume restores a run from a checkpoint. The run continues in the run directory
// that holds the checkpoint; override may adjust the stored trainer settings.
func Resume(path string, override func(*config.TrainerConfig), logger *zap.Logger) (*Trainer, error) {
	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	cfg := ckpt.Trainer
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	model, err := ddi.Load(ckpt.Hyperparameters)
	if err != nil {
		return nil, err
	}
	if err := model.LoadState(ckpt.Params); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", path, err)
	}
	opt := nn.NewAdam(model.Params(), ckpt.Hyperparameters.LearningRate)
	if err := opt.LoadState(ckpt.Optimizer); err != nil {
		return nil, errors.Wrapf(ErrCheckpoint, "%s: %v", path, err)
	}

	runDir := filepath.Dir(filepath.Dir(path))
	ckptDir := filepath.Join(runDir, CheckpointDir)
	topk := ckpt.TopK
	topk.K = cfg.SaveTopK
	topk.Retain(func(e Entry) bool {
		_, err := os.Stat(filepath.Join(ckptDir, e.Name))
		return err == nil
	})

	early := ckpt.EarlyStop
	early.Patience = cfg.EarlyStopPatience
	early.MinDelta = cfg.MinDelta
	early.Stopped = early.Wait >= early.Patience

	log, err := OpenMetricsLog(filepath.Join(runDir, MetricsFile), ckpt.Epoch)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		cfg:      cfg,
		model:    model,
		opt:      opt,
		reducer:  MeanReducer{},
		logger:   logger,
		runDir:   runDir,
		trainIDs: ckpt.TrainIDs,
		valIDs:   ckpt.ValIDs,
		early:    &early,
		topk:     &topk,
		metrics:  log,
		epoch:    ckpt.Epoch,
		step:     ckpt.GlobalStep,
	}
	logger.Info("resuming run",
		zap.String("checkpoint", path),
		zap.Int("epoch", ckpt.Epoch),
		zap.Int("step", ckpt.GlobalStep),
		zap.Int("patience_wait", early.Wait))
	return t, t.setup()
}

func (t *Trainer) setup() error {
	ds := t.model.DataSet()
	var err error
	if t.train, err = sampler.NewLoader(ds, t.trainIDs, t.model.LoaderOptions(true)); err != nil {
		return errors.Wrap(err, "failed to build training loader")
	}
	if t.val, err = sampler.NewLoader(ds, t.valIDs, t.model.LoaderOptions(false)); err != nil {
		return errors.Wrap(err, "failed to build validation loader")
	}
	t.grads = make([]*nn.Gradients, t.cfg.Replicas)
	for i := range t.grads {
		t.grads[i] = nn.NewGradients(t.model.Params())
	}

	t.logger.Info("run ready",
		zap.Stringer("stage", StageSetup),
		zap.String("run_dir", t.runDir),
		zap.String("train_edges", humanize.Comma(int64(len(t.trainIDs)))),
		zap.String("val_edges", humanize.Comma(int64(len(t.valIDs)))),
		zap.Int("train_batches", t.train.NumBatches()),
		zap.Int("val_batches", t.val.NumBatches()),
		zap.Int("replicas", t.cfg.Replicas))
	return nil
}

// Model returns the model being trained
func (t *Trainer) Model() *ddi.Model {
	return t.model
}

// RunDir returns the directory holding checkpoints, hparams.yaml and metrics.csv
func (t *Trainer) RunDir() string {
	return t.runDir
}

// Epoch returns the number of completed epochs
func (t *Trainer) Epoch() int {
	return t.epoch
}

// EarlyStopping returns the monitor state
func (t *Trainer) EarlyStopping() EarlyStopping {
	return *t.early
}

// Checkpoints returns the retained checkpoints, best first
func (t *Trainer) Checkpoints() []Entry {
	return append([]Entry(nil), t.topk.Entries...)
}

// Fit trains until early stopping, the epoch cap or cancellation of ctx.
// Cancellation ends the run without error; the partial epoch is discarded.
func (t *Trainer) Fit(ctx context.Context) (Result, error) {
	reason := StopEarly
	for !t.early.Stopped {
		if t.cfg.MaxEpochs > 0 && t.epoch >= t.cfg.MaxEpochs {
			reason = StopMaxEpochs
			break
		}
		if ctx.Err() != nil {
			reason = StopInterrupted
			break
		}

		start := time.Now()
		trainLoss, err := t.trainEpoch(ctx)
		if err == nil {
			var report metrics.Report
			report, err = t.validate(ctx)
			if err == nil {
				err = t.endEpoch(trainLoss, report, time.Since(start))
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				reason = StopInterrupted
				break
			}
			return t.result(reason), err
		}
	}

	res := t.result(reason)
	t.logger.Info("training finished",
		zap.Stringer("stage", StageDone),
		zap.String("reason", string(res.Reason)),
		zap.Int("epochs", res.Epochs),
		zap.Float64("best_val_loss", res.BestLoss),
		zap.String("best_checkpoint", res.BestCheckpoint))
	return res, nil
}

func (t *Trainer) result(reason StopReason) Result {
	res := Result{Reason: reason, Epochs: t.epoch, BestLoss: t.early.Best}
	if best, ok := t.topk.Best(); ok {
		res.BestCheckpoint = filepath.Join(t.runDir, CheckpointDir, best.Name)
	}
	return res
}

// trainEpoch runs one pass over the training split, stepping the optimizer once
// per group of up to Replicas batches.
func (t *Trainer) trainEpoch(ctx context.Context) (float64, error) {
	it := t.train.Epoch(t.epoch)
	var losses []float64
	for {
		batches := make([]*sampler.Batch, 0, len(t.grads))
		for len(batches) < len(t.grads) && it.Next() {
			batches = append(batches, it.Batch())
		}
		if err := it.Err(); err != nil {
			return 0, errors.Wrapf(err, "epoch %d", t.epoch)
		}
		if len(batches) == 0 {
			break
		}

		stepLosses := make([]float64, len(batches))
		g, gctx := errgroup.WithContext(ctx)
		for i, b := range batches {
			i, b := i, b
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				t.grads[i].Zero()
				loss, err := t.model.TrainStep(b, t.grads[i])
				stepLosses[i] = loss
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return 0, errors.Wrapf(err, "epoch %d step %d", t.epoch, t.step)
		}

		reduced, err := t.reducer.AllReduce(ctx, t.grads[:len(batches)])
		if err != nil {
			return 0, err
		}
		t.opt.Step(reduced)
		t.step++

		loss := stat.Mean(stepLosses, nil)
		losses = append(losses, stepLosses...)
		if t.cfg.LogEveryNSteps > 0 && t.step%t.cfg.LogEveryNSteps == 0 {
			t.logger.Debug("train step",
				zap.Stringer("stage", StageTrain),
				zap.Int("epoch", t.epoch),
				zap.Int("step", t.step),
				zap.Float64("train_loss", loss))
		}
	}
	return stat.Mean(losses, nil), nil
}

// validate scores the fixed validation batches, up to Replicas at a time
func (t *Trainer) validate(ctx context.Context) (metrics.Report, error) {
	var batches []*sampler.Batch
	it := t.val.Epoch(0)
	for it.Next() {
		batches = append(batches, it.Batch())
	}
	if err := it.Err(); err != nil {
		return metrics.Report{}, errors.Wrap(err, "validation")
	}

	reports := make([]metrics.Report, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Replicas)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := t.model.EvalStep(b)
			if err != nil {
				return err
			}
			reports[i] = metrics.Classification(res.Labels, res.Predicted)
			reports[i].Loss = res.Loss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return metrics.Report{}, errors.Wrap(err, "validation")
	}

	var agg metrics.Aggregator
	for _, r := range reports {
		agg.Add(r)
	}
	return agg.Mean(), nil
}

// endEpoch updates early stopping, keeps the checkpoint if it ranks in the top k
// and appends the metrics row.
func (t *Trainer) endEpoch(trainLoss float64, val metrics.Report, elapsed time.Duration) error {
	t.epoch++
	improved, stop := t.early.Update(val.Loss)

	t.logger.Info("epoch done",
		zap.Stringer("stage", StageValidate),
		zap.Int("epoch", t.epoch),
		zap.Int("step", t.step),
		zap.Float64("train_loss", trainLoss),
		zap.Float64("val_loss", val.Loss),
		zap.Float64("val_acc", val.Accuracy),
		zap.Float64("val_f1", val.F1),
		zap.Float64("val_precision", val.Precision),
		zap.Float64("val_recall", val.Recall),
		zap.Bool("improved", improved),
		zap.Int("patience_wait", t.early.Wait),
		zap.Duration("elapsed", elapsed))

	if t.topk.Accepts(val.Loss) {
		if err := t.saveCheckpoint(val.Loss); err != nil {
			return err
		}
	}
	if stop {
		t.logger.Info("early stopping",
			zap.Int("epoch", t.epoch),
			zap.Float64("best_val_loss", t.early.Best),
			zap.Int("patience", t.early.Patience))
	}

	return t.metrics.Append(MetricsRow{
		Epoch:        t.epoch,
		Step:         t.step,
		TrainLoss:    trainLoss,
		ValLoss:      val.Loss,
		ValAccuracy:  val.Accuracy,
		ValF1:        val.F1,
		ValPrecision: val.Precision,
		ValRecall:    val.Recall,
		Improved:     improved,
		Seconds:      elapsed.Seconds(),
	})
}

func (t *Trainer) saveCheckpoint(loss float64) error {
	dir := filepath.Join(t.runDir, CheckpointDir)
	entry := Entry{Name: checkpointName(t.epoch, t.step), Loss: loss, Epoch: t.epoch}
	evicted := t.topk.Push(entry)

	ckpt := &Checkpoint{
		Version:         CheckpointVersion,
		Hyperparameters: t.model.Hyperparameters(),
		Trainer:         t.cfg,
		Params:          t.model.State(),
		Optimizer:       t.opt.State(),
		Epoch:           t.epoch,
		GlobalStep:      t.step,
		ValLoss:         loss,
		TrainIDs:        t.trainIDs,
		ValIDs:          t.valIDs,
		EarlyStop:       *t.early,
		TopK:            TopK{K: t.topk.K, Entries: append([]Entry(nil), t.topk.Entries...)},
	}
	path := filepath.Join(dir, entry.Name)
	if err := SaveCheckpoint(path, ckpt); err != nil {
		return err
	}
	for _, e := range evicted {
		if err := os.Remove(filepath.Join(dir, e.Name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to evict checkpoint")
		}
	}

	fields := []zap.Field{
		zap.Stringer("stage", StageCheckpoint),
		zap.String("path", path),
		zap.Float64("val_loss", loss),
		zap.Int("evicted", len(evicted)),
	}
	if fi, err := os.Stat(path); err == nil {
		fields = append(fields, zap.String("size", humanize.Bytes(uint64(fi.Size()))))
	}
	t.logger.Info("checkpoint saved", fields...)
	return nil
}
