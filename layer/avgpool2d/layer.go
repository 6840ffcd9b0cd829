// Package avgpool2d implements adaptive 2D average pooling
package avgpool2d

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/layer"
import "github.com/neurlang/geoclassifier/tensor"

// AvgPool2DLayer averages every channel over a Grid x Grid partition of the
// plane. Cell i spans rows floor(i*H/Grid) to ceil((i+1)*H/Grid), so cells
// may overlap when H is not a multiple of Grid.
type AvgPool2DLayer struct {
	in   layer.Shape
	grid int
	rows []span
	cols []span
}

type span struct{ lo, hi int }

func spans(size, grid int) []span {
	s := make([]span, grid)
	for i := range s {
		s[i] = span{
			lo: i * size / grid,
			hi: ((i+1)*size + grid - 1) / grid,
		}
	}
	return s
}

// MustNew creates a new AvgPool2D layer, panicking on invalid sizes
func MustNew(in layer.Shape, grid int) *AvgPool2DLayer {
	o, err := New(in, grid)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new AvgPool2D layer pooling to grid x grid cells
func New(in layer.Shape, grid int) (*AvgPool2DLayer, error) {
	if grid <= 0 || grid > in[1] || grid > in[2] {
		return nil, errors.Errorf("New AvgPool2D: Grid %d does not fit input %dx%d", grid, in[1], in[2])
	}
	return &AvgPool2DLayer{
		in:   in,
		grid: grid,
		rows: spans(in[1], grid),
		cols: spans(in[2], grid),
	}, nil
}

func (p *AvgPool2DLayer) Kind() string           { return "AvgPool2D" }
func (p *AvgPool2DLayer) InShape() layer.Shape   { return p.in }
func (p *AvgPool2DLayer) OutShape() layer.Shape  { return layer.Shape{p.in[0], p.grid, p.grid} }
func (p *AvgPool2DLayer) Params() []*layer.Param { return nil }
func (p *AvgPool2DLayer) Init(*rand.Rand)        {}

func (p *AvgPool2DLayer) Forward(in *tensor.Tensor) (*tensor.Tensor, error) {
	if err := layer.CheckInput(p, in); err != nil {
		return nil, err
	}
	out := tensor.New(p.in[0], p.grid, p.grid)
	for c := 0; c < p.in[0]; c++ {
		for i, r := range p.rows {
			for j, k := range p.cols {
				var sum float64
				for y := r.lo; y < r.hi; y++ {
					for x := k.lo; x < k.hi; x++ {
						sum += float64(in.At(c, y, x))
					}
				}
				out.Set(c, i, j, float32(sum/float64((r.hi-r.lo)*(k.hi-k.lo))))
			}
		}
	}
	return out, nil
}

func (p *AvgPool2DLayer) Backward(_, _, gradOut *tensor.Tensor, _ [][]float32) *tensor.Tensor {
	gradIn := tensor.New(p.in[0], p.in[1], p.in[2])
	for c := 0; c < p.in[0]; c++ {
		for i, r := range p.rows {
			for j, k := range p.cols {
				g := gradOut.At(c, i, j) / float32((r.hi-r.lo)*(k.hi-k.lo))
				for y := r.lo; y < r.hi; y++ {
					for x := k.lo; x < k.hi; x++ {
						gradIn.Data[gradIn.Index(c, y, x)] += g
					}
				}
			}
		}
	}
	return gradIn
}
