// Package feedforward implements a feedforward network type
package feedforward

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/hash"
import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// FeedforwardNetwork is the feedforward network: a chain of layers where the
// output shape of each layer is the input shape of the next.
type FeedforwardNetwork struct {
	layers []layer.Layer
}

// Grads holds one gradient buffer per parameter, indexed by layer then
// parameter.
type Grads [][][]float32

// NewLayer appends a layer to the end of the network.
func (f *FeedforwardNetwork) NewLayer(l layer.Layer) error {
	if n := len(f.layers); n > 0 && f.layers[n-1].OutShape() != l.InShape() {
		return errors.Errorf("feedforward: %s input %v does not match %s output %v",
			l.Kind(), l.InShape(), f.layers[n-1].Kind(), f.layers[n-1].OutShape())
	}
	f.layers = append(f.layers, l)
	return nil
}

// MustNewLayer appends a layer, panicking on a shape mismatch.
func (f *FeedforwardNetwork) MustNewLayer(l layer.Layer) {
	if err := f.NewLayer(l); err != nil {
		panic(err.Error())
	}
}

// LenLayers returns the number of layers.
func (f FeedforwardNetwork) LenLayers() int {
	return len(f.layers)
}

// GetLayer returns the n-th layer, or nil.
func (f FeedforwardNetwork) GetLayer(n int) layer.Layer {
	if n < 0 || n >= len(f.layers) {
		return nil
	}
	return f.layers[n]
}

// Len returns the number of trainable scalars in the network.
func (f FeedforwardNetwork) Len() (o int) {
	for _, l := range f.layers {
		o += layer.NumParams(l)
	}
	return
}

// InShape is the input shape of the first layer.
func (f FeedforwardNetwork) InShape() layer.Shape {
	if len(f.layers) == 0 {
		return layer.Shape{}
	}
	return f.layers[0].InShape()
}

// OutShape is the output shape of the last layer.
func (f FeedforwardNetwork) OutShape() layer.Shape {
	if len(f.layers) == 0 {
		return layer.Shape{}
	}
	return f.layers[len(f.layers)-1].OutShape()
}

// Init initialises every layer from its own random source derived from seed.
func (f *FeedforwardNetwork) Init(seed int64) {
	for i, l := range f.layers {
		l.Init(rand.New(rand.NewSource(hash.Seed(seed, uint32(i)))))
	}
}

// Params lists the trainable buffers of all layers in order.
func (f FeedforwardNetwork) Params() (o []*layer.Param) {
	for _, l := range f.layers {
		o = append(o, l.Params()...)
	}
	return
}

// Forward runs the network and returns every activation: the input followed
// by the output of each layer.
func (f FeedforwardNetwork) Forward(in *tensor.Tensor) ([]*tensor.Tensor, error) {
	acts := make([]*tensor.Tensor, 1, len(f.layers)+1)
	acts[0] = in
	for i, l := range f.layers {
		out, err := l.Forward(acts[i])
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		acts = append(acts, out)
	}
	return acts, nil
}

// Infer runs the network and returns the final output.
func (f FeedforwardNetwork) Infer(in *tensor.Tensor) (*tensor.Tensor, error) {
	acts, err := f.Forward(in)
	if err != nil {
		return nil, err
	}
	return acts[len(acts)-1], nil
}

// NewGrads allocates zeroed gradients matching the network parameters.
func (f FeedforwardNetwork) NewGrads() Grads {
	g := make(Grads, len(f.layers))
	for i, l := range f.layers {
		g[i] = layer.NewGrads(l)
	}
	return g
}

// Backward propagates gradOut, the gradient of the final output, through
// the activations returned by Forward and adds parameter gradients to grads.
func (f FeedforwardNetwork) Backward(acts []*tensor.Tensor, gradOut *tensor.Tensor, grads Grads) {
	g := gradOut
	for i := len(f.layers) - 1; i >= 0; i-- {
		g = f.layers[i].Backward(acts[i], acts[i+1], g, grads[i])
	}
}

// Flatten lists the gradient buffers in the order of Params.
func (g Grads) Flatten() (o [][]float32) {
	for _, l := range g {
		o = append(o, l...)
	}
	return
}

// Add accumulates o into g.
func (g Grads) Add(o Grads) {
	for i := range g {
		for j := range g[i] {
			dst, src := g[i][j], o[i][j]
			for k := range dst {
				dst[k] += src[k]
			}
		}
	}
}

// Scale multiplies every gradient by s.
func (g Grads) Scale(s float32) {
	for _, l := range g {
		for _, p := range l {
			for k := range p {
				p[k] *= s
			}
		}
	}
}
