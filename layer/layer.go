// Package layer defines the differentiable layer interface shared by the
// layer implementations in the subpackages.
package layer

import "fmt"
import "math/rand"

import "github.com/neurlang/geoclassifier/tensor"

// Shape is a channels, height, width triple.
type Shape = [3]int

// Param is a named trainable buffer owned by a layer.
type Param struct {
	Name string
	Data []float32
}

// Layer is one stage of a feedforward network. Forward and Backward never
// modify the parameters, so one layer may be evaluated by many goroutines.
type Layer interface {

	// Kind names the layer type, e.g. "Conv2D".
	Kind() string

	// InShape and OutShape are fixed at construction.
	InShape() Shape
	OutShape() Shape

	// Params lists the trainable buffers; nil for parameterless layers.
	Params() []*Param

	// Init draws initial parameters from rng.
	Init(rng *rand.Rand)

	// Forward computes the layer output.
	Forward(in *tensor.Tensor) (*tensor.Tensor, error)

	// Backward returns the gradient with respect to in, given the output
	// gradient. Parameter gradients are added to grads, which is aligned
	// with Params.
	Backward(in, out, gradOut *tensor.Tensor, grads [][]float32) *tensor.Tensor
}

// NumParams counts the scalars in l.
func NumParams(l Layer) (n int) {
	for _, p := range l.Params() {
		n += len(p.Data)
	}
	return
}

// NewGrads allocates a zeroed gradient buffer for every parameter of l.
func NewGrads(l Layer) [][]float32 {
	params := l.Params()
	grads := make([][]float32, len(params))
	for i, p := range params {
		grads[i] = make([]float32, len(p.Data))
	}
	return grads
}

// CheckInput validates the input shape of a forward call.
func CheckInput(l Layer, in *tensor.Tensor) error {
	if in.Shape() != l.InShape() {
		return &ShapeError{Kind: l.Kind(), Want: l.InShape(), Got: in.Shape()}
	}
	return nil
}

// ShapeError reports an input whose shape differs from the layer's.
type ShapeError struct {
	Kind      string
	Want, Got Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: input shape %dx%dx%d, want %dx%dx%d", e.Kind,
		e.Got[0], e.Got[1], e.Got[2], e.Want[0], e.Want[1], e.Want[2])
}
