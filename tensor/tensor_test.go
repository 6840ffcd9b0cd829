package tensor

import "testing"

func TestIndexLayout(t *testing.T) {
	x := New(2, 3, 4)
	x.Set(1, 2, 3, 5)
	if x.Data[len(x.Data)-1] != 5 {
		t.Errorf("last element not at (1,2,3)")
	}
	x.Set(0, 1, 0, 7)
	if x.Data[4] != 7 {
		t.Errorf("row stride wrong")
	}
	if len(x.Channel(1)) != 12 || x.Channel(1)[11] != 5 {
		t.Errorf("channel slice wrong")
	}
}

func TestFromSliceShape(t *testing.T) {
	if _, err := FromSlice(3, 2, 2, make([]float32, 11)); err == nil {
		t.Errorf("expected shape error")
	}
	x, err := FromSlice(3, 2, 2, make([]float32, 12))
	if err != nil {
		t.Fatal(err)
	}
	if x.Shape() != [3]int{3, 2, 2} {
		t.Errorf("shape %v", x.Shape())
	}
}

func TestCloneEqual(t *testing.T) {
	x := New(1, 2, 2)
	x.Fill(1.5)
	y := x.Clone()
	if !x.Equal(y) {
		t.Fatal("clone differs")
	}
	y.Data[0] = 2
	if x.Equal(y) || x.Data[0] != 1.5 {
		t.Errorf("clone shares storage")
	}
}
