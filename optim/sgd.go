// Package optim implements stochastic gradient descent with momentum.
package optim

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/layer"

// HyperParameters configure SGD.
type HyperParameters struct {
	LearningRate float64 // step size
	Momentum     float64 // velocity decay, 0 disables momentum
	Dampening    float64 // fraction of the gradient withheld from the velocity
	Nesterov     bool    // look-ahead momentum, requires Momentum > 0 and Dampening == 0
	WeightDecay  float64 // L2 penalty
}

// Validate checks the hyperparameters.
func (h HyperParameters) Validate() error {
	switch {
	case h.LearningRate <= 0:
		return errors.Errorf("optim: learning rate %v must be positive", h.LearningRate)
	case h.Momentum < 0 || h.WeightDecay < 0:
		return errors.Errorf("optim: momentum %v and weight decay %v must not be negative", h.Momentum, h.WeightDecay)
	case h.Nesterov && (h.Momentum <= 0 || h.Dampening != 0):
		return errors.New("optim: nesterov momentum requires a momentum and zero dampening")
	}
	return nil
}

// SGD updates parameters in place. The first step seeds the velocity with
// the gradient itself.
type SGD struct {
	HyperParameters

	params   []*layer.Param
	velocity [][]float32
	steps    int
}

// NewSGD creates an optimizer over params.
func NewSGD(params []*layer.Param, h HyperParameters) (*SGD, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &SGD{HyperParameters: h, params: params}, nil
}

// Steps is the number of updates applied so far.
func (o *SGD) Steps() int {
	return o.steps
}

// Step applies one update. grads is aligned with the parameters.
func (o *SGD) Step(grads [][]float32) {
	lr := float32(o.LearningRate)
	mu := float32(o.Momentum)
	wd := float32(o.WeightDecay)
	damp := 1 - float32(o.Dampening)
	if o.Momentum > 0 && o.velocity == nil {
		o.velocity = make([][]float32, len(o.params))
		for i, p := range o.params {
			o.velocity[i] = make([]float32, len(p.Data))
		}
	}
	for i, p := range o.params {
		w, g := p.Data, grads[i]
		for k := range w {
			d := g[k] + wd*w[k]
			if o.Momentum > 0 {
				v := o.velocity[i]
				if o.steps == 0 {
					v[k] = d
				} else {
					v[k] = mu*v[k] + damp*d
				}
				if o.Nesterov {
					d += mu * v[k]
				} else {
					d = v[k]
				}
			}
			w[k] -= lr * d
		}
	}
	o.steps++
}

// State is the serialisable optimizer state.
type State struct {
	Steps    int         `json:"steps"`
	Velocity [][]float32 `json:"velocity,omitempty"`
}

// State copies the velocity buffers.
func (o *SGD) State() State {
	s := State{Steps: o.steps}
	for _, v := range o.velocity {
		s.Velocity = append(s.Velocity, append([]float32(nil), v...))
	}
	return s
}

// SetState restores a state produced by State for the same parameters.
func (o *SGD) SetState(s State) error {
	if s.Velocity != nil {
		if len(s.Velocity) != len(o.params) {
			return errors.Errorf("optim: state has %d buffers, want %d", len(s.Velocity), len(o.params))
		}
		for i, p := range o.params {
			if len(s.Velocity[i]) != len(p.Data) {
				return errors.Errorf("optim: buffer %d has %d values, want %d", i, len(s.Velocity[i]), len(p.Data))
			}
		}
	}
	o.steps = s.Steps
	o.velocity = nil
	for _, v := range s.Velocity {
		o.velocity = append(o.velocity, append([]float32(nil), v...))
	}
	return nil
}
