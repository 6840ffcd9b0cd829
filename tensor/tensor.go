// Package tensor implements the dense float32 channel-height-width array
// passed between raster patches, transforms and network layers.
package tensor

import "math"

import "github.com/pkg/errors"

// Tensor is a dense CHW float32 array.
type Tensor struct {
	Channels, Height, Width int
	Data                    []float32
}

// New allocates a zeroed tensor.
func New(channels, height, width int) *Tensor {
	return &Tensor{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

// FromSlice wraps data (not copied) as a tensor of the given shape.
func FromSlice(channels, height, width int, data []float32) (*Tensor, error) {
	if channels < 0 || height < 0 || width < 0 {
		return nil, errors.Errorf("tensor: negative shape %dx%dx%d", channels, height, width)
	}
	if len(data) != channels*height*width {
		return nil, errors.Errorf("tensor: %d values do not fit shape %dx%dx%d",
			len(data), channels, height, width)
	}
	return &Tensor{Channels: channels, Height: height, Width: width, Data: data}, nil
}

// Shape returns channels, height and width.
func (t *Tensor) Shape() [3]int {
	return [3]int{t.Channels, t.Height, t.Width}
}

// Len is the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Plane is the number of elements in a single channel.
func (t *Tensor) Plane() int {
	return t.Height * t.Width
}

// Index is the offset of element (c, y, x) in Data.
func (t *Tensor) Index(c, y, x int) int {
	return (c*t.Height+y)*t.Width + x
}

// At reads element (c, y, x).
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[t.Index(c, y, x)]
}

// Set writes element (c, y, x).
func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[t.Index(c, y, x)] = v
}

// Channel returns the slice backing channel c.
func (t *Tensor) Channel(c int) []float32 {
	return t.Data[c*t.Plane() : (c+1)*t.Plane()]
}

// Clone deep copies the tensor.
func (t *Tensor) Clone() *Tensor {
	o := New(t.Channels, t.Height, t.Width)
	copy(o.Data, t.Data)
	return o
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Equal reports whether both tensors have the same shape and bit-identical values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.Shape() != o.Shape() {
		return false
	}
	for i := range t.Data {
		if math.Float32bits(t.Data[i]) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}
