package transform

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/tensor"

// BioTempMean and BioTempScale standardise the bio_1, bio_2 and bio_7 channels.
var (
	BioTempMean  = []float32{-12.0, 1.0, 1.0}
	BioTempScale = []float32{40.0, 22.0, 51.0}
)

// ImageNetMean and ImageNetStd are the per-channel statistics applied after augmentation.
var (
	ImageNetMean = []float32{0.485, 0.456, 0.406}
	ImageNetStd  = []float32{0.229, 0.224, 0.225}
)

// Normalize computes (x - Mean[c]) / Std[c] per channel. The input must have
// exactly len(Mean) channels.
type Normalize struct {
	Mean, Std []float32
}

func (n Normalize) check(in *tensor.Tensor) error {
	if len(n.Mean) != len(n.Std) {
		return errors.Errorf("normalize: %d means but %d scales", len(n.Mean), len(n.Std))
	}
	if in.Channels != len(n.Mean) {
		return errors.Errorf("normalize: input has %d channels, want %d", in.Channels, len(n.Mean))
	}
	for c, s := range n.Std {
		if s == 0 {
			return errors.Errorf("normalize: zero scale for channel %d", c)
		}
	}
	return nil
}

// Apply normalizes a copy of in.
func (n Normalize) Apply(in *tensor.Tensor, _ *rand.Rand) (*tensor.Tensor, error) {
	if err := n.check(in); err != nil {
		return nil, err
	}
	out := tensor.New(in.Channels, in.Height, in.Width)
	for c := 0; c < in.Channels; c++ {
		src, dst := in.Channel(c), out.Channel(c)
		mu, sigma := n.Mean[c], n.Std[c]
		for i, v := range src {
			dst[i] = (v - mu) / sigma
		}
	}
	return out, nil
}

// Invert computes x*Std[c] + Mean[c], undoing Apply.
func (n Normalize) Invert(in *tensor.Tensor) (*tensor.Tensor, error) {
	if err := n.check(in); err != nil {
		return nil, err
	}
	out := tensor.New(in.Channels, in.Height, in.Width)
	for c := 0; c < in.Channels; c++ {
		src, dst := in.Channel(c), out.Channel(c)
		mu, sigma := n.Mean[c], n.Std[c]
		for i, v := range src {
			dst[i] = v*sigma + mu
		}
	}
	return out, nil
}

// BioTemp replaces raw bioclimatic temperature channels by standardised ones
// and resizes the patch to Size x Size.
type BioTemp struct {
	Normalize
	Size int
}

// NewBioTemp uses BioTempMean and BioTempScale.
func NewBioTemp(size int) BioTemp {
	return BioTemp{
		Normalize: Normalize{Mean: BioTempMean, Std: BioTempScale},
		Size:      size,
	}
}

// Apply normalizes then resizes.
func (b BioTemp) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	out, err := b.Normalize.Apply(in, rng)
	if err != nil {
		return nil, err
	}
	return Resize{Height: b.Size, Width: b.Size}.Apply(out, rng)
}
