// Package classification couples the convolutional network with the
// cross-entropy objective, the SGD optimizer and the top-k metrics.
package classification

import "context"
import "sync"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/layer/avgpool2d"
import "github.com/neurlang/geoclassifier/layer/conv2d"
import "github.com/neurlang/geoclassifier/layer/full"
import "github.com/neurlang/geoclassifier/layer/relu"
import "github.com/neurlang/geoclassifier/metrics"
import "github.com/neurlang/geoclassifier/net/feedforward"
import "github.com/neurlang/geoclassifier/optim"
import "github.com/neurlang/geoclassifier/parallel"

// Config is the model section of the run configuration. NumClasses 0 takes
// the class count of the training dataset.
type Config struct {
	NumClasses  int     `yaml:"num_classes"`
	Filters     int     `yaml:"filters"`
	Kernel      int     `yaml:"kernel"`
	Stride      int     `yaml:"stride"`
	PoolGrid    int     `yaml:"pool_grid"`
	LR          float64 `yaml:"lr"`
	Momentum    float64 `yaml:"momentum"`
	Nesterov    bool    `yaml:"nesterov"`
	WeightDecay float64 `yaml:"weight_decay"`
	TopK        int     `yaml:"top_k"`
}

// DefaultConfig is SGD with Nesterov momentum and top-30 accuracy.
func DefaultConfig() Config {
	return Config{
		Filters:  16,
		Kernel:   3,
		Stride:   2,
		PoolGrid: 4,
		LR:       1e-2,
		Momentum: 0.9,
		Nesterov: true,
		TopK:     30,
	}
}

// HyperParameters returns the optimizer settings.
func (c Config) HyperParameters() optim.HyperParameters {
	return optim.HyperParameters{
		LearningRate: c.LR,
		Momentum:     c.Momentum,
		Nesterov:     c.Nesterov,
		WeightDecay:  c.WeightDecay,
	}
}

// Validate checks the architecture and optimizer settings.
func (c Config) Validate() error {
	switch {
	case c.NumClasses < 0:
		return errors.Errorf("model: num_classes %d is negative", c.NumClasses)
	case c.Filters <= 0 || c.Kernel <= 0 || c.Stride <= 0 || c.PoolGrid <= 0:
		return errors.Errorf("model: filters %d, kernel %d, stride %d and pool_grid %d must be positive",
			c.Filters, c.Kernel, c.Stride, c.PoolGrid)
	case c.TopK <= 0:
		return errors.Errorf("model: top_k %d must be positive", c.TopK)
	}
	return errors.Wrap(c.HyperParameters().Validate(), "model")
}

// Metrics summarises a batch or an epoch. Accuracies count labelled samples only.
type Metrics struct {
	Loss         float64
	Accuracy     float64
	TopKAccuracy float64
	Samples      int
}

// Prediction is the ranked class list of one sample.
type Prediction struct {
	ID       uint64
	Top      []int
	Label    int
	Labelled bool
}

// System is a trainable classifier.
type System struct {
	Config

	Net       *feedforward.FeedforwardNetwork
	Optimizer *optim.SGD

	// Threads bounds the per-sample fan-out of a batch.
	Threads int

	pool sync.Pool
}

// NewNetwork builds conv2d, relu, avgpool2d and full layers for inputs of shape in.
func NewNetwork(cfg Config, in layer.Shape) (*feedforward.FeedforwardNetwork, error) {
	conv, err := conv2d.New(in, cfg.Filters, cfg.Kernel, cfg.Stride)
	if err != nil {
		return nil, err
	}
	pool, err := avgpool2d.New(conv.OutShape(), cfg.PoolGrid)
	if err != nil {
		return nil, err
	}
	head, err := full.New(pool.OutShape(), cfg.NumClasses)
	if err != nil {
		return nil, err
	}
	// each layer is built from the output shape of the previous one
	net := new(feedforward.FeedforwardNetwork)
	net.MustNewLayer(conv)
	net.MustNewLayer(relu.New(conv.OutShape()))
	net.MustNewLayer(pool)
	net.MustNewLayer(head)
	return net, nil
}

// New creates a system for inputs of shape in, initialised from seed.
func New(cfg Config, in layer.Shape, seed int64, threads int) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.NumClasses == 0 {
		return nil, errors.New("model: num_classes is unknown")
	}
	net, err := NewNetwork(cfg, in)
	if err != nil {
		return nil, errors.Wrap(err, "model")
	}
	net.Init(seed)
	opt, err := optim.NewSGD(net.Params(), cfg.HyperParameters())
	if err != nil {
		return nil, err
	}
	if threads <= 0 {
		threads = 1
	}
	s := &System{Config: cfg, Net: net, Optimizer: opt, Threads: threads}
	s.pool.New = func() any { return net.NewGrads() }
	return s, nil
}

func (s *System) checkLabel(smp datasets.Sample) error {
	if smp.Label < 0 || smp.Label >= s.NumClasses {
		return errors.Errorf("model: observation %d label %d outside [0, %d)", smp.ID, smp.Label, s.NumClasses)
	}
	return nil
}

// gradShard is the number of consecutive samples whose gradients one worker
// sums. Shards are reduced in index order, so the update does not depend on
// Threads or on scheduling.
const gradShard = 4

type shard struct {
	grads  feedforward.Grads
	losses []float64
	tops   [][]int
	labels []int
}

// TrainBatch performs one optimizer step on the mean loss of the labelled
// samples of b.
func (s *System) TrainBatch(ctx context.Context, b datasets.Batch) (Metrics, error) {
	samples := b.Samples
	shards := make([]shard, (len(samples)+gradShard-1)/gradShard)
	err := parallel.ForEachContext(ctx, len(shards), s.Threads, func(n int) error {
		sh := &shards[n]
		lo, hi := n*gradShard, (n+1)*gradShard
		if hi > len(samples) {
			hi = len(samples)
		}
		for _, smp := range samples[lo:hi] {
			if !smp.Labelled {
				continue
			}
			if err := s.checkLabel(smp); err != nil {
				return err
			}
			acts, err := s.Net.Forward(smp.Input)
			if err != nil {
				return errors.Wrapf(err, "observation %d", smp.ID)
			}
			out := acts[len(acts)-1]
			l, grad := metrics.CrossEntropy(out.Data, smp.Label)
			sh.losses = append(sh.losses, l)
			sh.tops = append(sh.tops, metrics.TopK(out.Data, s.TopK))
			sh.labels = append(sh.labels, smp.Label)

			if sh.grads == nil {
				sh.grads = s.pool.Get().(feedforward.Grads)
			}
			gradOut := out.Clone()
			copy(gradOut.Data, grad)
			s.Net.Backward(acts, gradOut, sh.grads)
		}
		return nil
	})
	defer func() {
		for _, sh := range shards {
			if sh.grads != nil {
				zero(sh.grads)
				s.pool.Put(sh.grads)
			}
		}
	}()
	if err != nil {
		return Metrics{}, err
	}

	var (
		total            feedforward.Grads
		loss, top1, topK metrics.Mean
	)
	for _, sh := range shards {
		if sh.grads == nil {
			continue
		}
		if total == nil {
			total = sh.grads
		} else {
			total.Add(sh.grads)
		}
		for i, l := range sh.losses {
			record(&loss, &top1, &topK, l, sh.tops[i], sh.labels[i])
		}
	}
	n := loss.Count()
	if n == 0 {
		return Metrics{}, nil
	}
	total.Scale(1 / float32(n))
	s.Optimizer.Step(total.Flatten())
	return Metrics{Loss: loss.Value(), Accuracy: top1.Value(), TopKAccuracy: topK.Value(), Samples: n}, nil
}

func record(loss, top1, topK *metrics.Mean, l float64, top []int, label int) {
	loss.Add(l, 1)
	var hit1, hitK float64
	if len(top) > 0 && top[0] == label {
		hit1 = 1
	}
	if metrics.Contains(top, label) {
		hitK = 1
	}
	top1.Add(hit1, 1)
	topK.Add(hitK, 1)
}

func zero(g feedforward.Grads) {
	for _, l := range g {
		for _, p := range l {
			for k := range p {
				p[k] = 0
			}
		}
	}
}

// EvalBatch ranks the classes of every sample of b without updating the
// network. Metrics cover the labelled samples.
func (s *System) EvalBatch(ctx context.Context, b datasets.Batch) ([]Prediction, Metrics, error) {
	var loss, top1, topK metrics.Mean
	preds := make([]Prediction, len(b.Samples))
	err := parallel.ForEachContext(ctx, len(b.Samples), s.Threads, func(i int) error {
		smp := b.Samples[i]
		out, err := s.Net.Infer(smp.Input)
		if err != nil {
			return errors.Wrapf(err, "observation %d", smp.ID)
		}
		top := metrics.TopK(out.Data, s.TopK)
		preds[i] = Prediction{ID: smp.ID, Top: top, Label: smp.Label, Labelled: smp.Labelled}
		if !smp.Labelled {
			return nil
		}
		if err := s.checkLabel(smp); err != nil {
			return err
		}
		l, _ := metrics.CrossEntropy(out.Data, smp.Label)
		record(&loss, &top1, &topK, l, top, smp.Label)
		return nil
	})
	if err != nil {
		return nil, Metrics{}, err
	}
	m := Metrics{Samples: loss.Count()}
	if m.Samples > 0 {
		m.Loss, m.Accuracy, m.TopKAccuracy = loss.Value(), top1.Value(), topK.Value()
	}
	return preds, m, nil
}
