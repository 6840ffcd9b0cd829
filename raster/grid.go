// Package raster reads georeferenced environmental rasters and extracts
// fixed-size patches around geographic points.
package raster

import "bufio"
import "compress/gzip"
import "io"
import "math"
import "os"
import "strconv"
import "strings"

import "github.com/pkg/errors"

// Grid is a north-up raster in geographic coordinates. Row 0 is the
// northernmost row.
type Grid struct {
	Cols, Rows int

	// West and South are the longitude and latitude of the lower left corner.
	West, South float64
	CellSize    float64

	NoData    float64
	HasNoData bool

	Values []float32
}

// Locate returns the row and column containing (lat, lon). The result may lie
// outside the grid.
func (g *Grid) Locate(lat, lon float64) (row, col int) {
	col = int(math.Floor((lon - g.West) / g.CellSize))
	row = g.Rows - 1 - int(math.Floor((lat-g.South)/g.CellSize))
	return
}

// At returns the value at (row, col). ok is false outside the grid, on the
// NoData value and on NaN.
func (g *Grid) At(row, col int) (v float32, ok bool) {
	if row < 0 || row >= g.Rows || col < 0 || col >= g.Cols {
		return 0, false
	}
	v = g.Values[row*g.Cols+col]
	if v != v {
		return 0, false
	}
	if g.HasNoData && v == float32(g.NoData) {
		return 0, false
	}
	return v, true
}

// Open reads an ESRI ASCII grid file; names ending in .gz are decompressed.
func Open(name string) (*Grid, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "raster: open")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "raster: gzip %s", name)
		}
		defer gz.Close()
		r = gz
	}
	g, err := ReadASCIIGrid(r)
	if err != nil {
		return nil, errors.Wrapf(err, "raster: %s", name)
	}
	return g, nil
}

// ReadASCIIGrid parses the ESRI ASCII grid format: a header of ncols, nrows,
// xllcorner|xllcenter, yllcorner|yllcenter, cellsize and optional
// NODATA_value lines, followed by nrows*ncols whitespace separated values.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	var (
		g                = Grid{}
		header           = make(map[string]float64)
		centerX, centerY bool
		first            string
		haveFirst        bool
	)
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if key == "" {
			continue
		}
		if key[0] == '-' || key[0] == '.' || key[0] == '+' || (key[0] >= '0' && key[0] <= '9') || key == "nan" {
			first, haveFirst = sc.Text(), true
			break
		}
		if !sc.Scan() {
			return nil, errors.Errorf("header key %q without value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "header %s", key)
		}
		switch key {
		case "xllcenter":
			centerX = true
			key = "xllcorner"
		case "yllcenter":
			centerY = true
			key = "yllcorner"
		}
		header[key] = v
	}
	for _, key := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := header[key]; !ok {
			return nil, errors.Errorf("header misses %s", key)
		}
	}

	g.Cols = int(header["ncols"])
	g.Rows = int(header["nrows"])
	g.CellSize = header["cellsize"]
	if g.Cols <= 0 || g.Rows <= 0 || g.CellSize <= 0 {
		return nil, errors.Errorf("invalid dimensions %dx%d cell %g", g.Cols, g.Rows, g.CellSize)
	}
	g.West = header["xllcorner"]
	g.South = header["yllcorner"]
	if centerX {
		g.West -= g.CellSize / 2
	}
	if centerY {
		g.South -= g.CellSize / 2
	}
	g.NoData, g.HasNoData = header["nodata_value"]

	g.Values = make([]float32, 0, g.Cols*g.Rows)
	parse := func(s string) error {
		if len(g.Values) == cap(g.Values) {
			return errors.Errorf("more than %d values", cap(g.Values))
		}
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return errors.Wrapf(err, "value %d", len(g.Values))
		}
		g.Values = append(g.Values, float32(v))
		return nil
	}
	if haveFirst {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	if len(g.Values) != g.Cols*g.Rows {
		return nil, errors.Errorf("got %d values, want %d", len(g.Values), g.Cols*g.Rows)
	}
	return &g, nil
}
