package metrics

import "math"
import "math/rand"
import "reflect"
import "sort"
import "testing"

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{1000, 1000, 1000, 1000})
	for _, v := range p {
		if math.Abs(v-0.25) > 1e-12 {
			t.Fatal(p)
		}
	}
}

func TestCrossEntropy(t *testing.T) {
	loss, grad := CrossEntropy([]float32{0, 0}, 1)
	if math.Abs(loss-math.Ln2) > 1e-9 {
		t.Fatal(loss)
	}
	if grad[0] != 0.5 || grad[1] != -0.5 {
		t.Fatal(grad)
	}
}

func TestTopK(t *testing.T) {
	for _, tc := range []struct {
		logits []float32
		k      int
		want   []int
	}{
		{[]float32{0.1, 0.9, 0.5, 0.7}, 2, []int{1, 3}},
		{[]float32{1, 1, 1}, 2, []int{0, 1}},
		{[]float32{3, 1}, 5, []int{0, 1}},
		{[]float32{-1, 2, 2, 5}, 3, []int{3, 1, 2}},
	} {
		if got := TopK(tc.logits, tc.k); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("TopK(%v, %d) = %v, want %v", tc.logits, tc.k, got, tc.want)
		}
	}
}

func TestTopKMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		logits := make([]float32, 1+rng.Intn(100))
		for i := range logits {
			logits[i] = float32(rng.Intn(20))
		}
		k := 1 + rng.Intn(40)
		idx := make([]int, len(logits))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return logits[idx[a]] > logits[idx[b]] })
		if k > len(idx) {
			k = len(idx)
		}
		if got := TopK(logits, k); !reflect.DeepEqual(got, idx[:k]) {
			t.Fatalf("TopK(%v, %d) = %v, want %v", logits, k, got, idx[:k])
		}
	}
}

func TestMean(t *testing.T) {
	var m Mean
	if !math.IsNaN(m.Value()) {
		t.Fatal("empty mean")
	}
	m.Add(1, 1)
	m.Add(4, 3)
	if m.Value() != 13.0/4 || m.Count() != 4 {
		t.Fatal(m.Value(), m.Count())
	}
	if !Contains([]int{4, 2}, 2) || Contains([]int{4, 2}, 3) {
		t.Fatal("contains")
	}
}
