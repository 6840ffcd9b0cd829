package datamodule

import "context"
import "math/rand"
import "reflect"
import "sync/atomic"
import "testing"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/datasets/geolifeclef"
import "github.com/neurlang/geoclassifier/tensor"
import "github.com/neurlang/geoclassifier/transform"

type rampPatches struct{}

func (*rampPatches) Extract(lat, lon float64) (*tensor.Tensor, error) {
	t := tensor.New(3, 20, 20)
	for i := range t.Data {
		t.Data[i] = float32(lat) + float32(i%17)
	}
	return t, nil
}

func (*rampPatches) Len() int { return 3 }

type call struct {
	root  string
	split datasets.Split
	opts  geolifeclef.Options
}

func recording(calls *[]call) geolifeclef.Constructor {
	return func(root string, split datasets.Split, opts geolifeclef.Options) (*datasets.Dataset, error) {
		*calls = append(*calls, call{root, split, opts})
		return &datasets.Dataset{Split: split, Patches: opts.Patches, Transform: opts.Transform}, nil
	}
}

func testModule(mini bool) (*DataModule, *[]call, *[]call) {
	cfg := DefaultConfig()
	cfg.DatasetPath = "/data/geolifeclef"
	cfg.MiniGeoLifeCLEF = mini
	cfg.Seed = 7
	d := New(cfg)
	d.patches = &rampPatches{}
	var full, small []call
	d.newFull = recording(&full)
	d.newMini = recording(&small)
	return d, &full, &small
}

func TestVariantRouting(t *testing.T) {
	var got [2]call
	for i, mini := range []bool{false, true} {
		d, full, small := testModule(mini)
		if _, err := d.GetDataset(datasets.Train, d.TestTransform()); err != nil {
			t.Fatal(err)
		}
		want, other := full, small
		if mini {
			want, other = small, full
		}
		if len(*want) != 1 || len(*other) != 0 {
			t.Fatalf("mini=%v: full called %d times, mini called %d times", mini, len(*full), len(*small))
		}
		got[i] = (*want)[0]
	}
	a, b := got[0], got[1]
	if a.root != b.root || a.split != b.split {
		t.Fatalf("arguments differ: %q %s vs %q %s", a.root, a.split, b.root, b.split)
	}
	if a.opts.ValFraction != b.opts.ValFraction || a.opts.Salt != b.opts.Salt {
		t.Fatalf("options differ: %+v vs %+v", a.opts, b.opts)
	}
	if !reflect.DeepEqual(a.opts.Transform, b.opts.Transform) {
		t.Fatal("transforms differ")
	}
	if _, ok := a.opts.Patches.(*rampPatches); !ok {
		t.Fatalf("patches %T not passed through", a.opts.Patches)
	}
}

func TestVariantName(t *testing.T) {
	d, _, _ := testModule(true)
	if name, _ := d.Variant(); name != "MiniGeoLifeCLEF2022" {
		t.Fatal(name)
	}
	d, _, _ = testModule(false)
	if name, _ := d.Variant(); name != "GeoLifeCLEF2022" {
		t.Fatal(name)
	}
}

func TestTransformsDeterminism(t *testing.T) {
	d, _, _ := testModule(false)
	in, _ := (&rampPatches{}).Extract(1, 2)

	rng := rand.New(rand.NewSource(1))
	var outs []*tensor.Tensor
	for i := 0; i < 4; i++ {
		out, err := d.TrainTransform().Apply(in, rng)
		if err != nil {
			t.Fatal(err)
		}
		if out.Height != d.CropSize || out.Width != d.CropSize {
			t.Fatalf("train shape %v", out.Shape())
		}
		outs = append(outs, out)
	}
	differ := false
	for _, o := range outs[1:] {
		if !o.Equal(outs[0]) {
			differ = true
		}
	}
	if !differ {
		t.Fatal("training pipeline returned identical outputs")
	}

	a, err := d.TestTransform().Apply(in, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.TestTransform().Apply(in, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatal("evaluation pipeline is not deterministic")
	}
	if a.Height != d.CropSize || a.Width != d.CropSize {
		t.Fatalf("test shape %v", a.Shape())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty dataset path accepted")
	}
	cfg.DatasetPath = "x"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.CropSize = 300
	if err := cfg.Validate(); err == nil {
		t.Fatal("crop larger than resize accepted")
	}
}

func TestLoadersAreCached(t *testing.T) {
	d, full, _ := testModule(false)
	a, err := d.TrainLoader()
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.TrainLoader()
	if err != nil {
		t.Fatal(err)
	}
	if a.Dataset != b.Dataset || len(*full) != 1 {
		t.Fatalf("dataset built %d times", len(*full))
	}
	if !a.Shuffle || a.BatchSize != 32 {
		t.Fatalf("train loader %+v", a)
	}
	v, err := d.ValLoader()
	if err != nil {
		t.Fatal(err)
	}
	if v.Shuffle || v.BatchSize != 256 {
		t.Fatalf("val loader %+v", v)
	}
}

func testLoader(n, batch, workers int, shuffle bool) *Loader {
	ds := &datasets.Dataset{
		Patches: &rampPatches{},
		Transform: transform.Func(func(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
			out := in.Clone()
			out.Data[0] = float32(rng.Intn(1000))
			return out, nil
		}),
	}
	for i := 0; i < n; i++ {
		ds.Occurrences = append(ds.Occurrences, datasets.Occurrence{ID: uint64(i), Latitude: float64(i), Label: i % 3, Labelled: true})
	}
	return &Loader{Dataset: ds, BatchSize: batch, Workers: workers, Shuffle: shuffle, Seed: 5}
}

func TestLoaderOrder(t *testing.T) {
	l := testLoader(103, 10, 4, false)
	if l.Len() != 11 {
		t.Fatalf("len %d", l.Len())
	}
	next := 0
	err := l.Each(context.Background(), 0, 0, func(b datasets.Batch) error {
		for _, s := range b.Samples {
			if s.ID != uint64(next) {
				t.Fatalf("batch %d: id %d, want %d", b.Index, s.ID, next)
			}
			next++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if next != 103 {
		t.Fatalf("saw %d samples", next)
	}
}

func TestLoaderSpread(t *testing.T) {
	l := testLoader(100, 8, 2, false)
	if l.Spread(100) != l || l.Spread(500) != l {
		t.Fatal("spread over every sample copied the loader")
	}
	s := l.Spread(10)
	if s.Size() != 10 || s.Len() != 2 || l.Size() != 100 {
		t.Fatalf("spread size %d len %d, source size %d", s.Size(), s.Len(), l.Size())
	}
	var ids []uint64
	err := s.Each(context.Background(), 0, 0, func(b datasets.Batch) error {
		for _, smp := range b.Samples {
			ids = append(ids, smp.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		if id != uint64(10*i) {
			t.Fatalf("sample %d is observation %d, want %d", i, id, 10*i)
		}
	}
	if got := s.Spread(5).IDs(); len(got) != 5 || got[1] != 20 || got[4] != 80 {
		t.Fatalf("nested spread %v", got)
	}

	s.Shuffle = true
	seen := make(map[uint64]bool)
	err = s.Each(context.Background(), 1, 0, func(b datasets.Batch) error {
		for _, smp := range b.Samples {
			if smp.ID%10 != 0 || seen[smp.ID] {
				t.Fatalf("shuffled spread visited %d", smp.ID)
			}
			seen[smp.ID] = true
		}
		return nil
	})
	if err != nil || len(seen) != 10 {
		t.Fatal(len(seen), err)
	}
}

func TestLoaderShuffleReproducible(t *testing.T) {
	collect := func(workers, epoch int) (ids []uint64, first []float32) {
		l := testLoader(50, 7, workers, true)
		err := l.Each(context.Background(), epoch, 0, func(b datasets.Batch) error {
			for _, s := range b.Samples {
				ids = append(ids, s.ID)
				first = append(first, s.Input.Data[0])
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return
	}
	a, fa := collect(1, 1)
	b, fb := collect(8, 1)
	if !reflect.DeepEqual(a, b) || !reflect.DeepEqual(fa, fb) {
		t.Fatal("worker count changed the epoch")
	}
	c, _ := collect(3, 2)
	if reflect.DeepEqual(a, c) {
		t.Fatal("epochs share an order")
	}
	seen := make(map[uint64]bool)
	for _, id := range a {
		seen[id] = true
	}
	if len(seen) != 50 {
		t.Fatalf("permutation covers %d ids", len(seen))
	}
}

func TestLoaderLimitAndStop(t *testing.T) {
	l := testLoader(100, 10, 3, false)
	batches := 0
	if err := l.Each(context.Background(), 0, 4, func(datasets.Batch) error {
		batches++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if batches != 4 {
		t.Fatalf("limit 4 gave %d batches", batches)
	}

	stop := errors.New("stop")
	var calls int32
	err := l.Each(context.Background(), 0, 0, func(datasets.Batch) error {
		if atomic.AddInt32(&calls, 1) == 2 {
			return stop
		}
		return nil
	})
	if err != stop || calls != 2 {
		t.Fatalf("err %v after %d calls", err, calls)
	}
}

func TestLoaderCancel(t *testing.T) {
	l := testLoader(100, 10, 2, false)
	ctx, cancel := context.WithCancel(context.Background())
	batches := 0
	err := l.Each(ctx, 0, 0, func(datasets.Batch) error {
		batches++
		if batches == 3 {
			cancel()
		}
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("err %v", err)
	}
	if batches != 3 {
		t.Fatalf("%d batches after cancel", batches)
	}
}
