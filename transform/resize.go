package transform

import "math"
import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/tensor"

// Resize scales every channel to Height x Width with bilinear interpolation
// (half-pixel centres, edge clamping, no antialiasing).
type Resize struct {
	Height, Width int
}

// Apply resizes a copy of in.
func (r Resize) Apply(in *tensor.Tensor, _ *rand.Rand) (*tensor.Tensor, error) {
	if r.Height <= 0 || r.Width <= 0 {
		return nil, errors.Errorf("resize: invalid target %dx%d", r.Height, r.Width)
	}
	if in.Height == 0 || in.Width == 0 {
		return nil, errors.Errorf("resize: empty input %dx%d", in.Height, in.Width)
	}
	out := tensor.New(in.Channels, r.Height, r.Width)
	if in.Height == r.Height && in.Width == r.Width {
		copy(out.Data, in.Data)
		return out, nil
	}

	ys := axis(in.Height, r.Height)
	xs := axis(in.Width, r.Width)

	for c := 0; c < in.Channels; c++ {
		src, dst := in.Channel(c), out.Channel(c)
		for y, ay := range ys {
			row0 := src[ay.lo*in.Width:]
			row1 := src[ay.hi*in.Width:]
			for x, ax := range xs {
				top := lerp(row0[ax.lo], row0[ax.hi], ax.frac)
				bottom := lerp(row1[ax.lo], row1[ax.hi], ax.frac)
				dst[y*r.Width+x] = lerp(top, bottom, ay.frac)
			}
		}
	}
	return out, nil
}

// lerp is exact when a == b, so constant regions stay constant.
func lerp(a, b, f float32) float32 {
	return a + (b-a)*f
}

type sample struct {
	lo, hi int
	frac   float32
}

// axis precomputes source neighbours and weights for every output coordinate.
func axis(in, out int) []sample {
	var s = make([]sample, out)
	scale := float64(in) / float64(out)
	for i := range s {
		src := (float64(i)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		lo := int(math.Floor(src))
		if lo > in-1 {
			lo = in - 1
		}
		hi := lo + 1
		if hi > in-1 {
			hi = in - 1
		}
		s[i] = sample{lo: lo, hi: hi, frac: float32(src - float64(lo))}
		if lo == hi {
			s[i].frac = 0
		}
	}
	return s
}
