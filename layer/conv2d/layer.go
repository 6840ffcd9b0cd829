// Package conv2d implements a 2D convolution layer with zero padding
package conv2d

import "math"
import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// Conv2DLayer convolves every input channel with Filters kernels of size
// Kernel x Kernel, stepping by Stride and padding by Padding on each side.
type Conv2DLayer struct {
	in, out                 layer.Shape
	filters, kernel, stride int
	padding                 int
	weight, bias            layer.Param
}

// MustNew creates a new Conv2D layer, panicking on invalid geometry
func MustNew(in layer.Shape, filters, kernel, stride int) *Conv2DLayer {
	o, err := New(in, filters, kernel, stride)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Conv2D layer with "same" style padding of kernel/2
func New(in layer.Shape, filters, kernel, stride int) (*Conv2DLayer, error) {
	return New2(in, filters, kernel, stride, kernel/2)
}

// New2 creates a new Conv2D layer with explicit padding
func New2(in layer.Shape, filters, kernel, stride, padding int) (o *Conv2DLayer, err error) {
	switch {
	case in[0] <= 0 || in[1] <= 0 || in[2] <= 0:
		return nil, errors.Errorf("New Conv2D: invalid input shape %v", in)
	case filters <= 0:
		return nil, errors.Errorf("New Conv2D: Filters %d must be positive", filters)
	case kernel <= 0 || stride <= 0 || padding < 0:
		return nil, errors.Errorf("New Conv2D: Kernel %d, Stride %d, Padding %d", kernel, stride, padding)
	case in[1]+2*padding < kernel || in[2]+2*padding < kernel:
		return nil, errors.Errorf("New Conv2D: Kernel %d exceeds padded input %dx%d", kernel, in[1]+2*padding, in[2]+2*padding)
	}
	o = &Conv2DLayer{
		in:      in,
		filters: filters,
		kernel:  kernel,
		stride:  stride,
		padding: padding,
	}
	o.out = layer.Shape{
		filters,
		(in[1]+2*padding-kernel)/stride + 1,
		(in[2]+2*padding-kernel)/stride + 1,
	}
	o.weight = layer.Param{Name: "weight", Data: make([]float32, filters*in[0]*kernel*kernel)}
	o.bias = layer.Param{Name: "bias", Data: make([]float32, filters)}
	return o, nil
}

func (c *Conv2DLayer) Kind() string          { return "Conv2D" }
func (c *Conv2DLayer) InShape() layer.Shape  { return c.in }
func (c *Conv2DLayer) OutShape() layer.Shape { return c.out }

// Params returns the weight (filters x channels x kernel x kernel) and bias.
func (c *Conv2DLayer) Params() []*layer.Param {
	return []*layer.Param{&c.weight, &c.bias}
}

// Init draws weights and biases uniformly from +-1/sqrt(fan in).
func (c *Conv2DLayer) Init(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(c.in[0]*c.kernel*c.kernel))
	for i := range c.weight.Data {
		c.weight.Data[i] = float32((2*rng.Float64() - 1) * bound)
	}
	for i := range c.bias.Data {
		c.bias.Data[i] = float32((2*rng.Float64() - 1) * bound)
	}
}

func (c *Conv2DLayer) w(f, ch, ky, kx int) int {
	return ((f*c.in[0]+ch)*c.kernel+ky)*c.kernel + kx
}

// Forward convolves in.
func (c *Conv2DLayer) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	if err := layer.CheckInput(c, in); err != nil {
		return nil, err
	}
	out := tensor.New(c.out[0], c.out[1], c.out[2])
	for f := 0; f < c.filters; f++ {
		for oy := 0; oy < c.out[1]; oy++ {
			for ox := 0; ox < c.out[2]; ox++ {
				sum := float64(c.bias.Data[f])
				for ch := 0; ch < c.in[0]; ch++ {
					for ky := 0; ky < c.kernel; ky++ {
						iy := oy*c.stride + ky - c.padding
						if iy < 0 || iy >= c.in[1] {
							continue
						}
						for kx := 0; kx < c.kernel; kx++ {
							ix := ox*c.stride + kx - c.padding
							if ix < 0 || ix >= c.in[2] {
								continue
							}
							sum += float64(c.weight.Data[c.w(f, ch, ky, kx)]) * float64(in.At(ch, iy, ix))
						}
					}
				}
				out.Set(f, oy, ox, float32(sum))
			}
		}
	}
	return out, nil
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (c *Conv2DLayer) Backward(in, _, gradOut *tensor.Tensor, grads [][]float32) *tensor.Tensor {
	gradIn := tensor.New(c.in[0], c.in[1], c.in[2])
	gw, gb := grads[0], grads[1]
	for f := 0; f < c.filters; f++ {
		for oy := 0; oy < c.out[1]; oy++ {
			for ox := 0; ox < c.out[2]; ox++ {
				g := gradOut.At(f, oy, ox)
				if g == 0 {
					continue
				}
				gb[f] += g
				for ch := 0; ch < c.in[0]; ch++ {
					for ky := 0; ky < c.kernel; ky++ {
						iy := oy*c.stride + ky - c.padding
						if iy < 0 || iy >= c.in[1] {
							continue
						}
						for kx := 0; kx < c.kernel; kx++ {
							ix := ox*c.stride + kx - c.padding
							if ix < 0 || ix >= c.in[2] {
								continue
							}
							wi := c.w(f, ch, ky, kx)
							gw[wi] += g * in.At(ch, iy, ix)
							ii := gradIn.Index(ch, iy, ix)
							gradIn.Data[ii] += g * c.weight.Data[wi]
						}
					}
				}
			}
		}
	}
	return gradIn
}
