package trainer

import "compress/zlib"
import "encoding/json"
import "fmt"
import "os"
import "strconv"
import "strings"

import "github.com/neurlang/quaternary"
import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/net/feedforward"
import "github.com/neurlang/geoclassifier/optim"

// Checkpoint is everything needed to resume training or run inference.
type Checkpoint struct {
	RunID   string  `json:"run_id"`
	Epoch   int     `json:"epoch"`
	Step    int     `json:"step"`
	Monitor string  `json:"monitor"`
	Score   float64 `json:"score"`

	Model      classification.Config      `json:"model"`
	InShape    layer.Shape                `json:"in_shape"`
	SpeciesIDs []int                      `json:"species_ids"`
	Weights    []feedforward.LayerWeights `json:"weights"`
	Optimizer  optim.State                `json:"optimizer"`

	// TrainFilter is the quaternary filter of the train/val membership the
	// run was fitted on.
	TrainFilter []byte `json:"train_filter,omitempty"`
}

// NewTrainFilter encodes which observations were used for training (true)
// and validation (false).
func NewTrainFilter(train, val []uint64) []byte {
	return []byte(quaternary.Make(map[uint32]bool(datasets.NewMembership(train, val))))
}

// Checkpoint captures the current state of the trainer.
func (t *Trainer) Checkpoint(monitor string, score float64) *Checkpoint {
	return &Checkpoint{
		RunID:       t.RunID,
		Epoch:       t.Epoch,
		Step:        t.Step,
		Monitor:     monitor,
		Score:       score,
		Model:       t.System.Config,
		InShape:     t.InShape,
		SpeciesIDs:  t.SpeciesIDs,
		Weights:     t.System.Net.Weights(),
		Optimizer:   t.System.Optimizer.State(),
		TrainFilter: t.TrainFilter,
	}
}

// WriteFile stores the checkpoint as zlib compressed JSON.
func (c *Checkpoint) WriteFile(name string) error {
	file, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	zw := zlib.NewWriter(file)
	err = json.NewEncoder(zw).Encode(c)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "checkpoint %s", name)
}

// ReadCheckpoint loads a checkpoint written by WriteFile.
func ReadCheckpoint(name string) (*Checkpoint, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}
	defer file.Close()
	zr, err := zlib.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", name)
	}
	defer zr.Close()
	c := new(Checkpoint)
	if err := json.NewDecoder(zr).Decode(c); err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", name)
	}
	return c, nil
}

// NewSystem rebuilds the classification system stored in c.
func (c *Checkpoint) NewSystem(threads int) (*classification.System, error) {
	sys, err := classification.New(c.Model, c.InShape, 0, threads)
	if err != nil {
		return nil, err
	}
	if err := sys.Net.SetWeights(c.Weights); err != nil {
		return nil, err
	}
	if err := sys.Optimizer.SetState(c.Optimizer); err != nil {
		return nil, err
	}
	return sys, nil
}

// FormatCheckpointName renders a filename template in which {name} and
// {name:fmt} are replaced by metric values, formatted as name=value. The
// format is a Python style format such as 02d or .4f.
func FormatCheckpointName(template string, values map[string]float64) (string, error) {
	var b strings.Builder
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			b.WriteString(template)
			return b.String(), nil
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			return "", errors.Errorf("checkpoint: unterminated field in %q", template)
		}
		b.WriteString(template[:open])
		field := template[open+1 : open+end]
		template = template[open+end+1:]

		name, layout, _ := strings.Cut(field, ":")
		v, ok := values[name]
		if !ok {
			return "", errors.Errorf("checkpoint: unknown field %q", name)
		}
		s, err := formatValue(v, layout)
		if err != nil {
			return "", err
		}
		b.WriteString(name + "=" + s)
	}
}

func formatValue(v float64, layout string) (string, error) {
	if layout == "" {
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	}
	verb := layout[len(layout)-1]
	switch verb {
	case 'd':
		return fmt.Sprintf("%"+layout, int64(v)), nil
	case 'f', 'e', 'g':
		return fmt.Sprintf("%"+layout, v), nil
	}
	return "", errors.Errorf("checkpoint: unsupported format %q", layout)
}
