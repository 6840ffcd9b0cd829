package transform

import "math/rand"

import "github.com/neurlang/geoclassifier/tensor"

// RandomHorizontalFlip mirrors the patch left to right with probability P.
type RandomHorizontalFlip struct {
	P float64
}

// Apply flips a copy of in.
func (f RandomHorizontalFlip) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if rng == nil {
		return nil, ErrNoRandomness
	}
	out := in.Clone()
	if rng.Float64() >= f.P {
		return out, nil
	}
	for c := 0; c < out.Channels; c++ {
		for y := 0; y < out.Height; y++ {
			row := out.Channel(c)[y*out.Width : (y+1)*out.Width]
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
	return out, nil
}

// RandomVerticalFlip mirrors the patch top to bottom with probability P.
type RandomVerticalFlip struct {
	P float64
}

// Apply flips a copy of in.
func (f RandomVerticalFlip) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if rng == nil {
		return nil, ErrNoRandomness
	}
	out := in.Clone()
	if rng.Float64() >= f.P {
		return out, nil
	}
	for c := 0; c < out.Channels; c++ {
		plane := out.Channel(c)
		for i, j := 0, out.Height-1; i < j; i, j = i+1, j-1 {
			a := plane[i*out.Width : (i+1)*out.Width]
			b := plane[j*out.Width : (j+1)*out.Width]
			for x := range a {
				a[x], b[x] = b[x], a[x]
			}
		}
	}
	return out, nil
}
