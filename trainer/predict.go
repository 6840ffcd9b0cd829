package trainer

import "context"
import "encoding/csv"
import "io"
import "os"
import "strconv"
import "strings"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"

// Test evaluates the test split with the current weights, or with the best
// checkpoint of Fit when TestCkpt is TestCkptBest. An unlabelled split
// produces a predictions file instead of metrics.
func (t *Trainer) Test(ctx context.Context, dm DataModule) (Metrics, error) {
	if t.TestCkpt == TestCkptBest {
		if t.BestCheckpoint == "" {
			return nil, errors.New("trainer: test_ckpt is best but no checkpoint was written")
		}
		ck, err := ReadCheckpoint(t.BestCheckpoint)
		if err != nil {
			return nil, err
		}
		if err := t.restore(ck); err != nil {
			return nil, errors.Wrap(err, t.BestCheckpoint)
		}
		klog.InfoS("testing best checkpoint", "path", t.BestCheckpoint, "score", ck.Score)
	}
	test, err := dm.TestLoader()
	if err != nil {
		return nil, err
	}
	if t.SpeciesIDs == nil {
		t.SpeciesIDs = test.SpeciesIDs()
	}

	var preds []classification.Prediction
	means, _, err := t.evaluate(ctx, test, test.Len(), func(p classification.Prediction) error {
		preds = append(preds, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if means.n == 0 {
		return Metrics{}, t.writePredictions(preds)
	}
	m := means.metrics("test_", "")
	m["epoch"] = float64(t.Epoch)
	t.log(m)
	klog.InfoS("test", "loss", m["test_loss"], "accuracy", m["test_accuracy"], "topK", m["test_top_k_accuracy"])
	return m, t.flush()
}

func (t *Trainer) writePredictions(preds []classification.Prediction) error {
	name := t.PredictionsFile
	if name == "" {
		name = "predictions.csv"
	}
	file, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "trainer")
	}
	w := NewPredictionWriter(file, t.SpeciesIDs)
	for _, p := range preds {
		if err = w.Write(p); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, name)
	}
	klog.InfoS("test split is unlabelled, wrote predictions", "path", name, "samples", len(preds))
	return nil
}

// Predict writes the ranked species of every sample of the predict loader.
func (t *Trainer) Predict(ctx context.Context, loader *datamodule.Loader, out io.Writer) error {
	w := NewPredictionWriter(out, t.SpeciesIDs)
	if _, _, err := t.evaluate(ctx, loader, loader.Len(), w.Write); err != nil {
		return err
	}
	return w.Flush()
}

// PredictionWriter writes the submission format: a header "Id,Predicted"
// then one row per observation with space separated species identifiers.
type PredictionWriter struct {
	w          *csv.Writer
	speciesIDs []int
	header     bool
}

// NewPredictionWriter maps labels through speciesIDs; nil writes labels.
func NewPredictionWriter(w io.Writer, speciesIDs []int) *PredictionWriter {
	return &PredictionWriter{w: csv.NewWriter(w), speciesIDs: speciesIDs}
}

// Write appends one prediction.
func (p *PredictionWriter) Write(pred classification.Prediction) error {
	if !p.header {
		if err := p.w.Write([]string{"Id", "Predicted"}); err != nil {
			return err
		}
		p.header = true
	}
	species := make([]string, len(pred.Top))
	for i, label := range pred.Top {
		if p.speciesIDs != nil && label < len(p.speciesIDs) {
			label = p.speciesIDs[label]
		}
		species[i] = strconv.Itoa(label)
	}
	return p.w.Write([]string{strconv.FormatUint(pred.ID, 10), strings.Join(species, " ")})
}

// Flush writes buffered rows.
func (p *PredictionWriter) Flush() error {
	p.w.Flush()
	return p.w.Error()
}
