package trainer

import "bytes"

import "github.com/pkg/errors"
import "k8s.io/klog/v2"

// restore loads the network weights of ck.
func (t *Trainer) restore(ck *Checkpoint) error {
	if ck.InShape != t.InShape {
		return errors.Errorf("checkpoint input %v, trainer input %v", ck.InShape, t.InShape)
	}
	return t.System.Net.SetWeights(ck.Weights)
}

// Resume continues training from the checkpoint at name: weights, optimizer
// state and counters are restored and the next epoch follows the stored one.
func (t *Trainer) Resume(name string) error {
	ck, err := ReadCheckpoint(name)
	if err != nil {
		return err
	}
	if err := t.restore(ck); err != nil {
		return errors.Wrap(err, name)
	}
	if err := t.System.Optimizer.SetState(ck.Optimizer); err != nil {
		return errors.Wrap(err, name)
	}
	if t.TrainFilter != nil && ck.TrainFilter != nil && !bytes.Equal(t.TrainFilter, ck.TrainFilter) {
		klog.InfoS("training split differs from the resumed checkpoint", "checkpoint", name)
	}
	t.Epoch = ck.Epoch + 1
	t.Step = ck.Step
	t.Resumed = ck
	klog.InfoS("resumed", "checkpoint", name, "run", ck.RunID, "epoch", t.Epoch, "step", t.Step,
		ck.Monitor, ck.Score)
	return nil
}
