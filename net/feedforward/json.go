package feedforward

import "compress/zlib"
import "encoding/json"
import "io"
import "os"

import "github.com/pkg/errors"

// LayerWeights is the serialised form of one layer.
type LayerWeights struct {
	Kind   string               `json:"kind"`
	Params map[string][]float32 `json:"params,omitempty"`
}

// Weights copies the parameters of every layer.
func (f FeedforwardNetwork) Weights() []LayerWeights {
	o := make([]LayerWeights, len(f.layers))
	for i, l := range f.layers {
		o[i].Kind = l.Kind()
		for _, p := range l.Params() {
			if o[i].Params == nil {
				o[i].Params = make(map[string][]float32)
			}
			o[i].Params[p.Name] = append([]float32(nil), p.Data...)
		}
	}
	return o
}

// SetWeights loads parameters produced by Weights into a network of the same
// architecture.
func (f *FeedforwardNetwork) SetWeights(w []LayerWeights) error {
	if len(w) != len(f.layers) {
		return errors.Errorf("feedforward: %d layers in weights, network has %d", len(w), len(f.layers))
	}
	for i, l := range f.layers {
		if w[i].Kind != l.Kind() {
			return errors.Errorf("feedforward: layer %d is %s, weights are for %s", i, l.Kind(), w[i].Kind)
		}
		for _, p := range l.Params() {
			data, ok := w[i].Params[p.Name]
			if !ok {
				return errors.Errorf("feedforward: layer %d misses %s", i, p.Name)
			}
			if len(data) != len(p.Data) {
				return errors.Errorf("feedforward: layer %d %s has %d values, want %d", i, p.Name, len(data), len(p.Data))
			}
		}
	}
	for i, l := range f.layers {
		for _, p := range l.Params() {
			copy(p.Data, w[i].Params[p.Name])
		}
	}
	return nil
}

// WriteJson writes model weights as JSON
func (f FeedforwardNetwork) WriteJson(w io.Writer) error {
	return json.NewEncoder(w).Encode(f.Weights())
}

// ReadJson reads model weights from JSON
func (f *FeedforwardNetwork) ReadJson(r io.Reader) error {
	var w []LayerWeights
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return errors.Wrap(err, "feedforward")
	}
	return f.SetWeights(w)
}

// WriteZlibWeights writes model weights to a writer
func (f FeedforwardNetwork) WriteZlibWeights(w io.Writer) error {
	zw := zlib.NewWriter(w)
	if err := f.WriteJson(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// ReadZlibWeights reads model weights from a reader
func (f *FeedforwardNetwork) ReadZlibWeights(r io.Reader) error {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "feedforward")
	}
	defer zr.Close()
	return f.ReadJson(zr)
}

// WriteZlibWeightsToFile writes model weights to a zlib file
func (f FeedforwardNetwork) WriteZlibWeightsToFile(name string) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	err = f.WriteZlibWeights(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadZlibWeightsFromFile reads model weights from a zlib file
func (f *FeedforwardNetwork) ReadZlibWeightsFromFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return f.ReadZlibWeights(file)
}
