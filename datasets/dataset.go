// Package datasets implements the occurrence dataset type shared by the
// GeoLifeCLEF variants: occurrence records, their raster patches and the
// per-sample transform.
package datasets

import "math/rand"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/hash"
import "github.com/neurlang/geoclassifier/tensor"
import "github.com/neurlang/geoclassifier/transform"

// Split names a partition of the observations.
type Split string

const (
	Train    Split = "train"
	Val      Split = "val"
	TrainVal Split = "train+val"
	Test     Split = "test"
)

// ParseSplit validates a split name.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case Train, Val, TrainVal, Test:
		return Split(s), nil
	}
	return "", errors.Errorf("datasets: unknown split %q", s)
}

// Occurrence is one georeferenced observation. Label is the encoded class
// (0..Classes-1) and is only meaningful when Labelled.
type Occurrence struct {
	ID        uint64
	Latitude  float64
	Longitude float64
	Species   int
	Label     int
	Labelled  bool
	Subset    string
}

// Patcher extracts the raster patch around a point.
type Patcher interface {
	Extract(lat, lon float64) (*tensor.Tensor, error)
	Len() int
}

// Dataset is an indexable collection of occurrences whose samples are raster
// patches passed through Transform.
type Dataset struct {
	Name        string
	Split       Split
	Occurrences []Occurrence

	// SpeciesIDs maps an encoded label back to the species identifier.
	SpeciesIDs []int

	Patches   Patcher
	Transform transform.Transform
}

// Sample is a transformed patch with its label.
type Sample struct {
	ID       uint64
	Input    *tensor.Tensor
	Label    int
	Labelled bool
}

// Batch is a group of consecutive samples produced by a loader.
type Batch struct {
	Index   int
	Samples []Sample
}

// Len is the number of occurrences.
func (d *Dataset) Len() int {
	return len(d.Occurrences)
}

// Classes is the number of encoded labels.
func (d *Dataset) Classes() int {
	return len(d.SpeciesIDs)
}

// Get extracts and transforms the n-th sample. rng drives stochastic transforms.
func (d *Dataset) Get(n int, rng *rand.Rand) (Sample, error) {
	if n < 0 || n >= len(d.Occurrences) {
		return Sample{}, errors.Errorf("datasets: index %d out of range [0, %d)", n, len(d.Occurrences))
	}
	o := d.Occurrences[n]
	patch, err := d.Patches.Extract(o.Latitude, o.Longitude)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "observation %d", o.ID)
	}
	if d.Transform != nil {
		patch, err = d.Transform.Apply(patch, rng)
		if err != nil {
			return Sample{}, errors.Wrapf(err, "observation %d", o.ID)
		}
	}
	return Sample{ID: o.ID, Input: patch, Label: o.Label, Labelled: o.Labelled}, nil
}

// IDs lists the observation identifiers in order.
func (d *Dataset) IDs() []uint64 {
	ids := make([]uint64, len(d.Occurrences))
	for i, o := range d.Occurrences {
		ids[i] = o.ID
	}
	return ids
}

// Membership maps hashed observation identifiers to true for training and
// false for validation occurrences.
type Membership map[uint32]bool

// NewMembership builds the membership of train and val identifiers. An
// identifier hashing into both sets keeps the training vote.
func NewMembership(train, val []uint64) Membership {
	m := make(Membership, len(train)+len(val))
	for _, id := range val {
		m[MembershipKey(id)] = false
	}
	for _, id := range train {
		m[MembershipKey(id)] = true
	}
	return m
}

// MembershipKey folds an observation identifier into 32 bits.
func MembershipKey(id uint64) uint32 {
	return hash.Hash64(id, 0, 0xffffffff)
}
