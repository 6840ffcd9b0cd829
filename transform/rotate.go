package transform

import "math"
import "math/rand"

import "github.com/neurlang/geoclassifier/tensor"

// RandomRotation rotates the patch about its centre by an angle drawn
// uniformly from [-Degrees, Degrees], using nearest neighbour sampling.
// Pixels rotated in from outside the patch get Fill.
type RandomRotation struct {
	Degrees float64
	Fill    float32
}

// Apply rotates a copy of in.
func (r RandomRotation) Apply(in *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, error) {
	if rng == nil {
		return nil, ErrNoRandomness
	}
	angle := (2*rng.Float64() - 1) * r.Degrees
	return Rotate(in, angle, r.Fill), nil
}

// Rotate rotates in counter-clockwise by angle degrees.
func Rotate(in *tensor.Tensor, angle float64, fill float32) *tensor.Tensor {
	out := tensor.New(in.Channels, in.Height, in.Width)
	theta := angle * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx, cy := float64(in.Width)/2, float64(in.Height)/2

	for y := 0; y < in.Height; y++ {
		py := float64(y) + 0.5 - cy
		for x := 0; x < in.Width; x++ {
			px := float64(x) + 0.5 - cx
			sx := int(math.Floor(cos*px - sin*py + cx))
			sy := int(math.Floor(sin*px + cos*py + cy))
			inside := sx >= 0 && sx < in.Width && sy >= 0 && sy < in.Height
			for c := 0; c < in.Channels; c++ {
				if inside {
					out.Set(c, y, x, in.At(c, sy, sx))
				} else {
					out.Set(c, y, x, fill)
				}
			}
		}
	}
	return out
}
