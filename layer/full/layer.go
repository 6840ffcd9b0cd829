// Package full implements a fully connected (linear) layer
package full

import "math"
import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// FullLayer maps the flattened input to size outputs.
type FullLayer struct {
	in           layer.Shape
	inputs, size int
	weight, bias layer.Param
}

// MustNew creates a new full layer with size outputs
func MustNew(in layer.Shape, size int) *FullLayer {
	o, err := New(in, size)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new full layer with size outputs
func New(in layer.Shape, size int) (o *FullLayer, err error) {
	inputs := in[0] * in[1] * in[2]
	if inputs <= 0 || size <= 0 {
		return nil, errors.Errorf("New Full: input %v and size %d must be positive", in, size)
	}
	o = &FullLayer{in: in, inputs: inputs, size: size}
	o.weight = layer.Param{Name: "weight", Data: make([]float32, size*inputs)}
	o.bias = layer.Param{Name: "bias", Data: make([]float32, size)}
	return o, nil
}

func (f *FullLayer) Kind() string          { return "Full" }
func (f *FullLayer) InShape() layer.Shape  { return f.in }
func (f *FullLayer) OutShape() layer.Shape { return layer.Shape{f.size, 1, 1} }

// Params returns the weight (size x inputs) and bias.
func (f *FullLayer) Params() []*layer.Param {
	return []*layer.Param{&f.weight, &f.bias}
}

// Init draws weights and biases uniformly from +-1/sqrt(inputs).
func (f *FullLayer) Init(rng *rand.Rand) {
	bound := 1 / math.Sqrt(float64(f.inputs))
	for i := range f.weight.Data {
		f.weight.Data[i] = float32((2*rng.Float64() - 1) * bound)
	}
	for i := range f.bias.Data {
		f.bias.Data[i] = float32((2*rng.Float64() - 1) * bound)
	}
}

func (f *FullLayer) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	if err := layer.CheckInput(f, in); err != nil {
		return nil, err
	}
	out := tensor.New(f.size, 1, 1)
	for o := 0; o < f.size; o++ {
		row := f.weight.Data[o*f.inputs : (o+1)*f.inputs]
		sum := float64(f.bias.Data[o])
		for i, v := range in.Data {
			sum += float64(row[i]) * float64(v)
		}
		out.Data[o] = float32(sum)
	}
	return out, nil
}

func (f *FullLayer) Backward(in, _, gradOut *tensor.Tensor, grads [][]float32) *tensor.Tensor {
	gradIn := tensor.New(f.in[0], f.in[1], f.in[2])
	gw, gb := grads[0], grads[1]
	for o := 0; o < f.size; o++ {
		g := gradOut.Data[o]
		if g == 0 {
			continue
		}
		gb[o] += g
		row := f.weight.Data[o*f.inputs : (o+1)*f.inputs]
		grow := gw[o*f.inputs : (o+1)*f.inputs]
		for i, v := range in.Data {
			grow[i] += g * v
			gradIn.Data[i] += g * row[i]
		}
	}
	return gradIn
}
