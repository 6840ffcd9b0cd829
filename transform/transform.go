// Package transform implements the per-sample patch transforms: channel
// normalisation, resizing, and the random rotation/crop/flip augmentations.
//
// Transforms never modify their input and keep no state between calls.
// Stochastic transforms draw exclusively from the *rand.Rand passed to Apply,
// so concurrent workers only need their own source.
package transform

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/tensor"

// ErrNoRandomness is returned by a stochastic transform called with a nil source.
var ErrNoRandomness = errors.New("transform: stochastic transform needs a random source")

// Transform maps one patch tensor to a new tensor.
type Transform interface {
	Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error)
}

// Func adapts a function to Transform.
type Func func(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error)

// Apply calls f.
func (f Func) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	return f(in, rng)
}

// Compose applies transforms in order.
type Compose []Transform

// Apply runs every transform, feeding each the previous output.
func (c Compose) Apply(in *tensor.Tensor, rng *rand.Rand) (out *tensor.Tensor, err error) {
	out = in
	for i, t := range c {
		out, err = t.Apply(out, rng)
		if err != nil {
			return nil, errors.Wrapf(err, "transform %d (%T)", i, t)
		}
	}
	return out, nil
}
