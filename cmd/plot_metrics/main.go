package main

import "flag"
import "image/color"
import "math"
import "os"
import "path/filepath"

import "github.com/pkg/errors"
import "gonum.org/v1/plot"
import "gonum.org/v1/plot/plotter"
import "gonum.org/v1/plot/vg"
import "k8s.io/klog/v2"

import "github.com/neurlang/geoclassifier/trainer"

// series extracts the points of column metric against column x, skipping
// rows where either is missing.
func series(header []string, rows [][]float64, x, metric string) (plotter.XYs, error) {
	xi, mi := -1, -1
	for i, h := range header {
		switch h {
		case x:
			xi = i
		case metric:
			mi = i
		}
	}
	if xi < 0 || mi < 0 {
		return nil, errors.Errorf("metrics: columns %q and %q required", x, metric)
	}
	var pts plotter.XYs
	for _, r := range rows {
		if xi >= len(r) || mi >= len(r) || math.IsNaN(r[xi]) || math.IsNaN(r[mi]) {
			continue
		}
		pts = append(pts, plotter.XY{X: r[xi], Y: r[mi]})
	}
	return pts, nil
}

func render(pts plotter.XYs, x, metric, name string) error {
	p := plot.New()
	p.Title.Text = metric
	p.X.Label.Text = x
	p.Y.Label.Text = metric

	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Color = color.RGBA{R: 50, G: 50, B: 255, A: 255}
	l.LineStyle.Width = vg.Points(1.5)
	p.Add(l)
	if len(pts) < 50 {
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		s.Color = l.Color
		p.Add(s)
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, name)
}

func main() {
	klog.InitFlags(nil)
	metrics := flag.String("metrics", trainer.MetricsFile, "metrics .csv file written by training")
	out := flag.String("out", "plots", "output directory")
	x := flag.String("x", "step", "x axis column")
	flag.Parse()
	defer klog.Flush()

	header, rows, err := trainer.ReadMetrics(*metrics)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		klog.Fatalf("%v", err)
	}
	for _, metric := range header {
		if metric == "epoch" || metric == "step" || metric == *x {
			continue
		}
		pts, err := series(header, rows, *x, metric)
		if err != nil {
			klog.Fatalf("%v", err)
		}
		if len(pts) == 0 {
			continue
		}
		name := filepath.Join(*out, metric+".png")
		if err := render(pts, *x, metric, name); err != nil {
			klog.Fatalf("%s: %v", name, err)
		}
		klog.InfoS("plotted", "metric", metric, "points", len(pts), "path", name)
	}
}
