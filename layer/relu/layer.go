// Package relu implements the rectified linear activation
package relu

import "math/rand"

import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// ReLULayer clamps negative values to zero.
type ReLULayer struct {
	shape layer.Shape
}

// New creates a ReLU over inputs of shape in
func New(in layer.Shape) *ReLULayer {
	return &ReLULayer{shape: in}
}

func (r *ReLULayer) Kind() string           { return "ReLU" }
func (r *ReLULayer) InShape() layer.Shape   { return r.shape }
func (r *ReLULayer) OutShape() layer.Shape  { return r.shape }
func (r *ReLULayer) Params() []*layer.Param { return nil }
func (r *ReLULayer) Init(*rand.Rand)        {}

func (r *ReLULayer) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	if err := layer.CheckInput(r, in); err != nil {
		return nil, err
	}
	out := tensor.New(r.shape[0], r.shape[1], r.shape[2])
	for i, v := range in.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out, nil
}

func (r *ReLULayer) Backward(in, _, gradOut *tensor.Tensor, _ [][]float32) *tensor.Tensor {
	gradIn := tensor.New(r.shape[0], r.shape[1], r.shape[2])
	for i, v := range in.Data {
		if v > 0 {
			gradIn.Data[i] = gradOut.Data[i]
		}
	}
	return gradIn
}
