// Package main renders the curves of a training run's metrics.csv into one
// PNG per metric.
package main
