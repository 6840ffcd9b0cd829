// Package metrics implements the classification loss and the accuracy
// metrics reported during training.
package metrics

import "math"
import "sync"

// Softmax returns the class probabilities of logits.
func Softmax(logits []float32) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		max = math.Max(max, float64(v))
	}
	p := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		p[i] = math.Exp(float64(v) - max)
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// CrossEntropy returns the negative log likelihood of label and its gradient
// with respect to the logits.
func CrossEntropy(logits []float32, label int) (float64, []float32) {
	p := Softmax(logits)
	grad := make([]float32, len(p))
	for i, v := range p {
		grad[i] = float32(v)
	}
	grad[label]--
	return -math.Log(math.Max(p[label], 1e-300)), grad
}

// TopK returns the indices of the k largest logits, largest first. Ties keep
// the lower index first.
func TopK(logits []float32, k int) []int {
	if k > len(logits) {
		k = len(logits)
	}
	if k <= 0 {
		return nil
	}
	top := make([]int, 0, k)
	for i, v := range logits {
		if len(top) == k && v <= logits[top[k-1]] {
			continue
		}
		j := len(top)
		if j < k {
			top = append(top, i)
		} else {
			j = k - 1
		}
		for j > 0 && logits[top[j-1]] < v {
			top[j] = top[j-1]
			j--
		}
		top[j] = i
	}
	return top
}

// Contains reports whether label is among the predicted classes.
func Contains(predicted []int, label int) bool {
	for _, p := range predicted {
		if p == label {
			return true
		}
	}
	return false
}

// Mean is a concurrency safe running mean.
type Mean struct {
	mut sync.Mutex
	sum float64
	n   int
}

// Add records v with weight n.
func (m *Mean) Add(v float64, n int) {
	m.mut.Lock()
	m.sum += v * float64(n)
	m.n += n
	m.mut.Unlock()
}

// Value is the mean so far, NaN when empty.
func (m *Mean) Value() float64 {
	m.mut.Lock()
	defer m.mut.Unlock()
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

// Count is the total weight recorded.
func (m *Mean) Count() int {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.n
}
