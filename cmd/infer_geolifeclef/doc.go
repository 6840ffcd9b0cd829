// Package main writes a GeoLifeCLEF submission file with the top-k species
// predicted by a trained checkpoint for every test observation.
package main
