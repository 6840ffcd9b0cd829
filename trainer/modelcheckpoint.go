package trainer

import "context"
import "math"
import "os"
import "path/filepath"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

// DefaultCheckpointFilename names checkpoints by epoch, step and score.
const DefaultCheckpointFilename = "checkpoint-{epoch:02d}-{step}-{val_top_k_accuracy:.4f}"

// ModelCheckpoint saves the system whenever the monitored metric improves
// and deletes the previous best, so a single checkpoint is kept.
type ModelCheckpoint struct {
	NopCallback

	Dir      string
	Filename string
	Monitor  string

	// Mode is "max" or "min".
	Mode string
}

// NewModelCheckpoint monitors val_top_k_accuracy, keeping the maximum.
func NewModelCheckpoint(dir string) *ModelCheckpoint {
	return &ModelCheckpoint{
		Dir:      dir,
		Filename: DefaultCheckpointFilename,
		Monitor:  "val_top_k_accuracy",
		Mode:     "max",
	}
}

func (c *ModelCheckpoint) better(score, best float64) bool {
	if math.IsNaN(best) {
		return true
	}
	if c.Mode == "min" {
		return score < best
	}
	return score > best
}

// OnFitStart restores the best score of a resumed run.
func (c *ModelCheckpoint) OnFitStart(_ context.Context, t *Trainer) error {
	if c.Mode != "max" && c.Mode != "min" {
		return errors.Errorf("model checkpoint: mode %q is neither max nor min", c.Mode)
	}
	t.BestScore = math.NaN()
	if r := t.Resumed; r != nil && r.Monitor == c.Monitor {
		t.BestScore = r.Score
	}
	return os.MkdirAll(c.dir(), 0o755)
}

func (c *ModelCheckpoint) dir() string {
	if c.Dir == "" {
		return "."
	}
	return c.Dir
}

// OnValidationEnd writes a checkpoint when the monitored metric improved.
func (c *ModelCheckpoint) OnValidationEnd(_ context.Context, t *Trainer, m Metrics) error {
	score, ok := m[c.Monitor]
	if !ok || math.IsNaN(score) {
		klog.V(1).InfoS("monitored metric missing, no checkpoint", "monitor", c.Monitor, "epoch", t.Epoch)
		return nil
	}
	if !c.better(score, t.BestScore) {
		return nil
	}
	values := Metrics{"epoch": float64(t.Epoch), "step": float64(t.Step)}
	for k, v := range m {
		if k != "epoch" {
			values[k] = v
		}
	}
	base, err := FormatCheckpointName(c.Filename, values)
	if err != nil {
		return err
	}
	name := filepath.Join(c.dir(), base+".ckpt")
	if err := t.Checkpoint(c.Monitor, score).WriteFile(name); err != nil {
		return err
	}
	if prev := t.BestCheckpoint; prev != "" && prev != name {
		if err := os.Remove(prev); err != nil && !os.IsNotExist(err) {
			klog.ErrorS(err, "removing previous checkpoint", "path", prev)
		}
	}
	klog.InfoS("saved checkpoint", "path", name, c.Monitor, score, "previous", t.BestScore)
	t.BestCheckpoint, t.BestScore = name, score
	return nil
}
