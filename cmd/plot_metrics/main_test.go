package main

import "math"
import "path/filepath"
import "testing"

func TestSeriesSkipsMissing(t *testing.T) {
	header := []string{"epoch", "step", "train_loss_step", "val_loss"}
	nan := math.NaN()
	rows := [][]float64{
		{0, 50, 2.5, nan},
		{0, 100, 2.0, nan},
		{0, 100, nan, 1.75},
	}
	pts, err := series(header, rows, "step", "val_loss")
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0].X != 100 || pts[0].Y != 1.75 {
		t.Fatal(pts)
	}
	pts, _ = series(header, rows, "step", "train_loss_step")
	if len(pts) != 2 {
		t.Fatal(pts)
	}
	if _, err := series(header, rows, "step", "test_loss"); err == nil {
		t.Fatal("missing column accepted")
	}
}

func TestRender(t *testing.T) {
	header := []string{"step", "val_loss"}
	rows := [][]float64{{1, 3}, {2, 2}, {3, 1.5}}
	pts, err := series(header, rows, "step", "val_loss")
	if err != nil {
		t.Fatal(err)
	}
	if err := render(pts, "step", "val_loss", filepath.Join(t.TempDir(), "val_loss.png")); err != nil {
		t.Fatal(err)
	}
}
