package raster

import "os"
import "path/filepath"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/tensor"

// layer is one queried variable of a PatchExtractor.
type layer struct {
	name string
	grid *Grid
	fill float32
}

// PatchExtractor extracts Size x Size windows centred on a point, one
// channel per appended raster. After the rasters are appended it is read only
// and safe for concurrent use.
type PatchExtractor struct {
	Root string
	Size int

	layers []layer
}

// NewPatchExtractor creates an extractor reading rasters below root.
func NewPatchExtractor(root string, size int) (*PatchExtractor, error) {
	if size <= 0 {
		return nil, errors.Errorf("raster: invalid patch size %d", size)
	}
	return &PatchExtractor{Root: root, Size: size}, nil
}

// Lookup finds the file holding raster name below root. Both
// <root>/<name>/<name>.asc and <root>/<name>.asc are accepted, optionally gzipped.
func Lookup(root, name string) (string, error) {
	for _, candidate := range []string{
		filepath.Join(root, name, name+".asc"),
		filepath.Join(root, name, name+".asc.gz"),
		filepath.Join(root, name+".asc"),
		filepath.Join(root, name+".asc.gz"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Errorf("raster: no file for %q below %s", name, root)
}

// Append loads raster name from Root as the next channel. Missing data is
// replaced by fill.
func (p *PatchExtractor) Append(name string, fill float32) error {
	file, err := Lookup(p.Root, name)
	if err != nil {
		return err
	}
	g, err := Open(file)
	if err != nil {
		return err
	}
	p.AppendGrid(name, g, fill)
	return nil
}

// AppendGrid adds an already loaded grid as the next channel.
func (p *PatchExtractor) AppendGrid(name string, g *Grid, fill float32) {
	p.layers = append(p.layers, layer{name: name, grid: g, fill: fill})
}

// Len is the number of channels.
func (p *PatchExtractor) Len() int {
	return len(p.layers)
}

// Names lists the channel variables in order.
func (p *PatchExtractor) Names() []string {
	names := make([]string, len(p.layers))
	for i, l := range p.layers {
		names[i] = l.name
	}
	return names
}

// Extract returns the Len() x Size x Size patch centred on (lat, lon). For
// even sizes the centre cell is the one after the middle.
func (p *PatchExtractor) Extract(lat, lon float64) (*tensor.Tensor, error) {
	if len(p.layers) == 0 {
		return nil, errors.New("raster: patch extractor has no rasters")
	}
	out := tensor.New(len(p.layers), p.Size, p.Size)
	half := p.Size / 2
	for c, l := range p.layers {
		row, col := l.grid.Locate(lat, lon)
		plane := out.Channel(c)
		for y := 0; y < p.Size; y++ {
			for x := 0; x < p.Size; x++ {
				v, ok := l.grid.At(row-half+y, col-half+x)
				if !ok {
					v = l.fill
				}
				plane[y*p.Size+x] = v
			}
		}
	}
	return out, nil
}
