package trainer

import "context"
import "time"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/datasets"

// epochMeans accumulates batch metrics weighted by their sample counts.
type epochMeans struct {
	loss, acc, topK float64
	n               int
}

func (e *epochMeans) add(m classification.Metrics) {
	e.loss += m.Loss * float64(m.Samples)
	e.acc += m.Accuracy * float64(m.Samples)
	e.topK += m.TopKAccuracy * float64(m.Samples)
	e.n += m.Samples
}

func (e *epochMeans) metrics(prefix, suffix string) Metrics {
	if e.n == 0 {
		return Metrics{}
	}
	n := float64(e.n)
	return Metrics{
		prefix + "loss" + suffix:           e.loss / n,
		prefix + "accuracy" + suffix:       e.acc / n,
		prefix + "top_k_accuracy" + suffix: e.topK / n,
	}
}

// Fit trains for the configured number of epochs, validating after each one.
// Cancelling ctx stops the loop between batches.
func (t *Trainer) Fit(ctx context.Context, dm DataModule) error {
	train, err := dm.TrainLoader()
	if err != nil {
		return err
	}
	val, err := dm.ValLoader()
	if err != nil {
		return err
	}
	t.SpeciesIDs = train.SpeciesIDs()
	t.TrainFilter = NewTrainFilter(train.IDs(), val.IDs())

	if t.ResumeFrom != "" {
		if err := t.Resume(t.ResumeFrom); err != nil {
			return err
		}
	}
	for _, l := range t.Loggers {
		if err := l.LogHyperparams(t.HParams); err != nil {
			return err
		}
	}
	for _, c := range t.Callbacks {
		if err := c.OnFitStart(ctx, t); err != nil {
			return err
		}
	}
	klog.InfoS("fit", "run", t.RunID, "train", train.Size(), "val", val.Size(), "classes", len(t.SpeciesIDs),
		"startEpoch", t.Epoch)

	for ; t.Epoch < t.MaxEpochs; t.Epoch++ {
		start := time.Now()
		m, err := t.trainEpoch(ctx, train)
		if err != nil {
			return errors.Wrapf(err, "epoch %d", t.Epoch)
		}
		vm, err := t.validate(ctx, val)
		if err != nil {
			return errors.Wrapf(err, "epoch %d validation", t.Epoch)
		}
		for k, v := range vm {
			m[k] = v
		}
		m["epoch"] = float64(t.Epoch)
		t.log(m)
		if err := t.flush(); err != nil {
			return err
		}
		klog.InfoS("epoch done", "epoch", t.Epoch, "step", t.Step, "duration", time.Since(start).Round(time.Millisecond),
			"trainLoss", m["train_loss_epoch"], "valLoss", m["val_loss"], "valTopK", m["val_top_k_accuracy"])
		for _, c := range t.Callbacks {
			if err := c.OnValidationEnd(ctx, t, m); err != nil {
				return err
			}
		}
	}
	for _, c := range t.Callbacks {
		if err := c.OnFitEnd(ctx, t); err != nil {
			return err
		}
	}
	return t.flush()
}

func (t *Trainer) trainEpoch(ctx context.Context, train *datamodule.Loader) (Metrics, error) {
	var epoch epochMeans
	total := train.Len()
	if t.LimitTrainBatches > 0 && t.LimitTrainBatches < total {
		total = t.LimitTrainBatches
	}
	err := train.Each(ctx, t.Epoch, t.LimitTrainBatches, func(b datasets.Batch) error {
		m, err := t.System.TrainBatch(ctx, b)
		if err != nil {
			return err
		}
		if m.Samples == 0 {
			return nil
		}
		t.Step++
		epoch.add(m)
		if t.LogEveryNSteps > 0 && t.Step%t.LogEveryNSteps == 0 {
			step := Metrics{
				"epoch":                     float64(t.Epoch),
				"train_loss_step":           m.Loss,
				"train_accuracy_step":       m.Accuracy,
				"train_top_k_accuracy_step": m.TopKAccuracy,
			}
			t.log(step)
			klog.V(1).InfoS("step", "epoch", t.Epoch, "batch", b.Index+1, "of", total, "loss", m.Loss)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return epoch.metrics("train_", "_epoch"), nil
}
