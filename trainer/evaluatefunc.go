package trainer

import "context"
import "fmt"
import "math"

import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/parallel"

// sampleSize calculates the statistically sufficient sample size
// for a given dataset size N and significance level (0–100).
func sampleSize(N int, significance byte) int {

	// Convert significance level to Z-score
	z := zScoreFromAlpha(100 - significance)

	// Assume worst-case proportion p = 0.5 for max variability
	p := 0.5
	e := float64(100-significance) * 0.01 // margin of error

	numerator := math.Pow(z, 2) * p * (1 - p)
	denominator := math.Pow(e, 2)

	// Initial sample size without population correction
	ss := numerator / denominator

	// Apply finite population correction
	correctedSS := ss * float64(N) / (float64(N) - 1 + ss)

	if int(correctedSS) > N {
		return N
	}

	return int(correctedSS)
}

// zScoreFromAlpha returns the Z-score for a given alpha level
// Common: 90% => 1.645, 95% => 1.96, 99% => 2.576
func zScoreFromAlpha(alpha byte) float64 {
	switch {
	case alpha <= 1:
		return 2.576 // 99% confidence
	case alpha <= 5:
		return 1.96 // 95% confidence
	case alpha <= 10:
		return 1.645 // 90% confidence
	default:
		return 1.96 // default fallback
	}
}

// valSample returns the loader and number of batches validation evaluates.
// val_significance spreads the statistically sufficient sample evenly over
// the split, then limit_val_batches caps the batches.
func (t *Trainer) valSample(val *datamodule.Loader) (*datamodule.Loader, int) {
	if t.ValSignificance > 0 {
		val = val.Spread(sampleSize(val.Size(), byte(t.ValSignificance)))
	}
	n := val.Len()
	if t.LimitValBatches > 0 && t.LimitValBatches < n {
		n = t.LimitValBatches
	}
	return val, n
}

// evaluate runs the system over the first batches of loader, calling each
// for every prediction. It returns the mean metrics and a fingerprint of the
// top-1 predictions.
func (t *Trainer) evaluate(ctx context.Context, loader *datamodule.Loader, batches int,
	each func(classification.Prediction) error) (epochMeans, [32]byte, error) {

	var means epochMeans
	samples := batches * loader.BatchSize
	if samples > loader.Size() {
		samples = loader.Size()
	}
	h := parallel.NewUint16Hasher(samples)
	err := loader.Each(ctx, 0, batches, func(b datasets.Batch) error {
		preds, m, err := t.System.EvalBatch(ctx, b)
		if err != nil {
			return err
		}
		means.add(m)
		for i, p := range preds {
			var top uint16
			if len(p.Top) > 0 {
				top = uint16(p.Top[0])
			}
			h.MustPutUint16(b.Index*loader.BatchSize+i, top)
			if each != nil {
				if err := each(p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return means, [32]byte{}, err
	}
	return means, h.Sum(), nil
}

// validate evaluates the validation split and reports when the predictions
// did not change since the previous epoch.
func (t *Trainer) validate(ctx context.Context, val *datamodule.Loader) (Metrics, error) {
	val, batches := t.valSample(val)
	if batches == 0 {
		return Metrics{}, nil
	}
	means, sum, err := t.evaluate(ctx, val, batches, nil)
	if err != nil {
		return nil, err
	}
	if sum == t.fingerprint {
		t.stalled++
		klog.InfoS("validation predictions unchanged", "epoch", t.Epoch, "epochs", t.stalled)
	} else {
		t.stalled = 0
	}
	t.fingerprint = sum
	klog.V(1).InfoS("validated", "epoch", t.Epoch, "samples", means.n, "fingerprint", fmt.Sprintf("%x", sum[:8]))
	return means.metrics("val_", ""), nil
}
