package transform

import "math"
import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/tensor"

// crop copies the Height x Width window starting at (top, left); positions
// outside the input are zero.
func crop(in *tensor.Tensor, top, left, height, width int) *tensor.Tensor {
	out := tensor.New(in.Channels, height, width)
	for c := 0; c < in.Channels; c++ {
		for y := 0; y < height; y++ {
			sy := top + y
			if sy < 0 || sy >= in.Height {
				continue
			}
			for x := 0; x < width; x++ {
				sx := left + x
				if sx < 0 || sx >= in.Width {
					continue
				}
				out.Set(c, y, x, in.At(c, sy, sx))
			}
		}
	}
	return out
}

// RandomCrop cuts a Size x Size window at a uniformly random position.
type RandomCrop struct {
	Size int
}

// Apply crops a copy of in. The input must be at least Size on both sides.
func (r RandomCrop) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if rng == nil {
		return nil, ErrNoRandomness
	}
	if r.Size <= 0 {
		return nil, errors.Errorf("random crop: invalid size %d", r.Size)
	}
	if in.Height < r.Size || in.Width < r.Size {
		return nil, errors.Errorf("random crop: size %d larger than input %dx%d", r.Size, in.Height, in.Width)
	}
	top := rng.Intn(in.Height - r.Size + 1)
	left := rng.Intn(in.Width - r.Size + 1)
	return crop(in, top, left, r.Size, r.Size), nil
}

// CenterCrop cuts the central Size x Size window, zero padding inputs
// smaller than Size.
type CenterCrop struct {
	Size int
}

func centerOffset(in, size int) int {
	if size > in {
		return -((size - in) / 2)
	}
	return int(math.RoundToEven(float64(in-size) / 2))
}

// Apply crops a copy of in.
func (r CenterCrop) Apply(in *tensor.Tensor, _ *rand.Rand) (*tensor.Tensor, error) {
	if r.Size <= 0 {
		return nil, errors.Errorf("center crop: invalid size %d", r.Size)
	}
	return crop(in, centerOffset(in.Height, r.Size), centerOffset(in.Width, r.Size), r.Size, r.Size), nil
}
