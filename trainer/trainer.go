package trainer

import "context"

import "github.com/google/uuid"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/layer"

// DataModule provides the loaders of a run.
type DataModule interface {
	TrainLoader() (*datamodule.Loader, error)
	ValLoader() (*datamodule.Loader, error)
	TestLoader() (*datamodule.Loader, error)
	PredictLoader() (*datamodule.Loader, error)
}

// Metrics maps metric names (train_loss, val_top_k_accuracy, ...) to values.
type Metrics map[string]float64

// Callback hooks into the fit loop. Embed NopCallback to implement a subset.
type Callback interface {
	OnFitStart(ctx context.Context, t *Trainer) error
	OnValidationEnd(ctx context.Context, t *Trainer, m Metrics) error
	OnFitEnd(ctx context.Context, t *Trainer) error
}

// NopCallback ignores every hook.
type NopCallback struct{}

func (NopCallback) OnFitStart(context.Context, *Trainer) error               { return nil }
func (NopCallback) OnValidationEnd(context.Context, *Trainer, Metrics) error { return nil }
func (NopCallback) OnFitEnd(context.Context, *Trainer) error                 { return nil }

// Trainer fits a classification system.
type Trainer struct {
	Config

	System    *classification.System
	InShape   layer.Shape
	Loggers   []Logger
	Callbacks []Callback

	// HParams is written by the loggers at fit start.
	HParams any

	// RunID identifies the run in logs and checkpoints.
	RunID string

	// Epoch is the current (or next) epoch, Step the number of optimizer steps.
	Epoch, Step int

	// SpeciesIDs maps labels to species identifiers.
	SpeciesIDs []int

	// TrainFilter is the quaternary membership filter of the training and
	// validation observations.
	TrainFilter []byte

	// Resumed is the checkpoint the run continues from, if any.
	Resumed *Checkpoint

	// BestCheckpoint is the path of the best checkpoint written so far.
	BestCheckpoint string
	BestScore      float64

	fingerprint [32]byte
	stalled     int
}

// New creates a trainer for sys, whose inputs have shape in.
func New(cfg Config, sys *classification.System, in layer.Shape, loggers []Logger, callbacks ...Callback) *Trainer {
	t := &Trainer{
		Config:    cfg,
		System:    sys,
		InShape:   in,
		Loggers:   loggers,
		Callbacks: callbacks,
		RunID:     uuid.NewString(),
	}
	klog.InfoS("trainer created", "run", t.RunID, "maxEpochs", cfg.MaxEpochs, "threads", sys.Threads)
	return t
}

func (t *Trainer) log(m Metrics) {
	for _, l := range t.Loggers {
		l.LogMetrics(m, t.Step)
	}
}

func (t *Trainer) flush() error {
	for _, l := range t.Loggers {
		if err := l.Save(); err != nil {
			return err
		}
	}
	return nil
}
