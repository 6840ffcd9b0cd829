package datamodule

import "context"
import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/hash"
import "github.com/neurlang/geoclassifier/parallel"

// Loader groups dataset samples into batches. Batches are materialised by
// Workers goroutines, at most Prefetch batches ahead of the consumer, and are
// delivered in order.
type Loader struct {
	Dataset   *datasets.Dataset
	BatchSize int
	Shuffle   bool
	Workers   int
	Seed      int64

	// Prefetch defaults to twice the worker count.
	Prefetch int

	// Subset restricts the loader to these dataset positions. Nil selects
	// the whole dataset.
	Subset []int
}

// Len is the number of batches; the last batch may be short.
func (l *Loader) Len() int {
	if l.BatchSize <= 0 {
		return 0
	}
	return (l.Size() + l.BatchSize - 1) / l.BatchSize
}

// Size is the number of samples.
func (l *Loader) Size() int {
	if l.Subset != nil {
		return len(l.Subset)
	}
	return l.Dataset.Len()
}

// SpeciesIDs maps labels to species identifiers.
func (l *Loader) SpeciesIDs() []int {
	return l.Dataset.SpeciesIDs
}

// IDs lists the observation identifiers the loader visits.
func (l *Loader) IDs() []uint64 {
	if l.Subset == nil {
		return l.Dataset.IDs()
	}
	ids := make([]uint64, len(l.Subset))
	for i, n := range l.Subset {
		ids[i] = l.Dataset.Occurrences[n].ID
	}
	return ids
}

// Spread returns a copy of l visiting n samples evenly spaced over the
// current ones, keeping their order. It returns l when n covers them all.
func (l *Loader) Spread(n int) *Loader {
	size := l.Size()
	if n >= size || n < 0 {
		return l
	}
	o := *l
	o.Subset = make([]int, n)
	for i := range o.Subset {
		k := i * size / n
		if l.Subset != nil {
			k = l.Subset[k]
		}
		o.Subset[i] = k
	}
	return &o
}

// order returns the dataset positions of epoch in visiting order.
func (l *Loader) order(epoch int) []int {
	o := make([]int, l.Size())
	for i := range o {
		o[i] = i
		if l.Subset != nil {
			o[i] = l.Subset[i]
		}
	}
	if l.Shuffle {
		rng := rand.New(rand.NewSource(hash.Seed(l.Seed, uint32(epoch))))
		perm := rng.Perm(len(o))
		shuffled := make([]int, len(o))
		for i, p := range perm {
			shuffled[i] = o[p]
		}
		return shuffled
	}
	return o
}

// batch materialises batch i of order. Every batch owns a random source
// derived from the seed, epoch and batch index.
func (l *Loader) batch(order []int, i, epoch int) (datasets.Batch, error) {
	lo := i * l.BatchSize
	hi := lo + l.BatchSize
	if hi > len(order) {
		hi = len(order)
	}
	rng := rand.New(rand.NewSource(hash.Seed(l.Seed, uint32(epoch), uint32(i))))
	b := datasets.Batch{Index: i, Samples: make([]datasets.Sample, 0, hi-lo)}
	for _, n := range order[lo:hi] {
		s, err := l.Dataset.Get(n, rng)
		if err != nil {
			return b, err
		}
		b.Samples = append(b.Samples, s)
	}
	return b, nil
}

type loaded struct {
	batch datasets.Batch
	err   error
}

// Each calls fn with every batch of epoch in order. A positive limit caps the
// number of batches. Iteration stops at the first error from loading or fn,
// or when ctx is done.
func (l *Loader) Each(ctx context.Context, epoch, limit int, fn func(datasets.Batch) error) error {
	n := l.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}
	workers := l.Workers
	if workers <= 0 {
		workers = 1
	}
	prefetch := l.Prefetch
	if prefetch <= 0 {
		prefetch = 2 * workers
	}

	ctx, cancel := context.WithCancel(ctx)
	order := l.order(epoch)

	// gates[i] opens once the consumer is within prefetch batches of i
	slots := make([]chan loaded, n)
	gates := make([]chan struct{}, n)
	for i := range slots {
		slots[i] = make(chan loaded, 1)
		gates[i] = make(chan struct{})
		if i < prefetch {
			close(gates[i])
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		parallel.Loop(workers).LoopUntil(func(i uint32, _ parallel.LoopStopper) bool {
			if int(i) >= n {
				return true
			}
			select {
			case <-gates[i]:
			case <-ctx.Done():
				return true
			}
			b, err := l.batch(order, int(i), epoch)
			slots[i] <- loaded{batch: b, err: err}
			return err != nil
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r loaded
		select {
		case r = <-slots[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.err != nil {
			return errors.Wrapf(r.err, "batch %d", i)
		}
		if i+prefetch < n {
			close(gates[i+prefetch])
		}
		if err := fn(r.batch); err != nil {
			return err
		}
	}
	return nil
}
