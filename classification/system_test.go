package classification

import "context"
import "math/rand"
import "testing"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumClasses = 3
	cfg.Filters = 4
	cfg.PoolGrid = 2
	cfg.TopK = 2
	cfg.LR = 0.1
	return cfg
}

// toyBatch encodes the class as the sign pattern of the three channels.
func toyBatch(rng *rand.Rand, n int) datasets.Batch {
	var b datasets.Batch
	for i := 0; i < n; i++ {
		label := i % 3
		t := tensor.New(3, 6, 6)
		for c := 0; c < 3; c++ {
			v := float32(-1)
			if c == label {
				v = 1
			}
			for k := range t.Channel(c) {
				t.Channel(c)[k] = v + 0.1*float32(rng.NormFloat64())
			}
		}
		b.Samples = append(b.Samples, datasets.Sample{ID: uint64(i), Input: t, Label: label, Labelled: true})
	}
	return b
}

func TestTrainingReducesLoss(t *testing.T) {
	s, err := New(testConfig(), layer.Shape{3, 6, 6}, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(2))
	eval := toyBatch(rng, 30)
	_, before, err := s.EvalBatch(context.Background(), eval)
	if err != nil {
		t.Fatal(err)
	}
	for step := 0; step < 60; step++ {
		if _, err := s.TrainBatch(context.Background(), toyBatch(rng, 12)); err != nil {
			t.Fatal(err)
		}
	}
	_, after, err := s.EvalBatch(context.Background(), eval)
	if err != nil {
		t.Fatal(err)
	}
	if after.Loss >= before.Loss {
		t.Fatalf("loss %v -> %v", before.Loss, after.Loss)
	}
	if after.Accuracy < 0.6 {
		t.Fatalf("accuracy %v", after.Accuracy)
	}
	if after.TopKAccuracy < after.Accuracy {
		t.Fatalf("top-k %v below top-1 %v", after.TopKAccuracy, after.Accuracy)
	}
	if s.Optimizer.Steps() != 60 {
		t.Fatal(s.Optimizer.Steps())
	}
}

func TestThreadsDoNotChangeStep(t *testing.T) {
	b := toyBatch(rand.New(rand.NewSource(5)), 18)
	var nets [][][]float32
	for _, threads := range []int{1, 3, 8} {
		s, err := New(testConfig(), layer.Shape{3, 6, 6}, 1, threads)
		if err != nil {
			t.Fatal(err)
		}
		for step := 0; step < 3; step++ {
			if _, err := s.TrainBatch(context.Background(), b); err != nil {
				t.Fatal(err)
			}
		}
		var params [][]float32
		for _, p := range s.Net.Params() {
			params = append(params, p.Data)
		}
		nets = append(nets, params)
	}
	for n := 1; n < len(nets); n++ {
		for p := range nets[0] {
			for i := range nets[0][p] {
				if nets[0][p][i] != nets[n][p][i] {
					t.Fatalf("run %d param %d[%d]: %v vs %v", n, p, i, nets[0][p][i], nets[n][p][i])
				}
			}
		}
	}
}

func TestEvalBatchUnlabelled(t *testing.T) {
	s, err := New(testConfig(), layer.Shape{3, 6, 6}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	b := toyBatch(rand.New(rand.NewSource(1)), 4)
	for i := range b.Samples {
		b.Samples[i].Labelled = false
	}
	preds, m, err := s.EvalBatch(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Samples != 0 || len(preds) != 4 {
		t.Fatalf("%+v, %d predictions", m, len(preds))
	}
	for _, p := range preds {
		if len(p.Top) != 2 {
			t.Fatal(p.Top)
		}
	}
	m, err = s.TrainBatch(context.Background(), b)
	if err != nil || m.Samples != 0 || s.Optimizer.Steps() != 0 {
		t.Fatal("unlabelled batch trained", err)
	}
}

func TestLabelOutOfRange(t *testing.T) {
	s, err := New(testConfig(), layer.Shape{3, 6, 6}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	b := toyBatch(rand.New(rand.NewSource(1)), 2)
	b.Samples[1].Label = 7
	if _, err := s.TrainBatch(context.Background(), b); err == nil {
		t.Fatal("label 7 accepted with 3 classes")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.Nesterov, cfg.Momentum = true, 0
	if cfg.Validate() == nil {
		t.Fatal("nesterov without momentum accepted")
	}
	cfg = testConfig()
	cfg.NumClasses = 0
	if _, err := New(cfg, layer.Shape{3, 6, 6}, 1, 1); err == nil {
		t.Fatal("unknown class count accepted")
	}
}
