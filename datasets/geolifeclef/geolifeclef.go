// Package geolifeclef builds GeoLifeCLEF 2022 datasets (full and mini) from
// the observation files below the dataset root.
package geolifeclef

import "fmt"
import "path/filepath"
import "sort"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/transform"

// Regions of the full dataset.
var Regions = []string{"fr", "us"}

// Options are passed to every dataset constructor.
type Options struct {
	// Patches extracts the raster channels of each occurrence.
	Patches datasets.Patcher

	// Transform is applied to every extracted patch.
	Transform transform.Transform

	// ValFraction is the share of occurrences assigned to validation when a
	// training file has no subset column.
	ValFraction float64

	// Salt varies the hash based validation assignment.
	Salt uint32
}

// Constructor builds the dataset of a split.
type Constructor func(root string, split datasets.Split, opts Options) (*datasets.Dataset, error)

func observationFile(root, region string, split datasets.Split) string {
	kind := "train"
	if split == datasets.Test {
		kind = "test"
	}
	return filepath.Join(root, "observations", fmt.Sprintf("observations_%s_%s.csv", region, kind))
}

// New builds a split of the full GeoLifeCLEF 2022 dataset covering both
// regions. Labels are the species identifiers themselves.
func New(root string, split datasets.Split, opts Options) (*datasets.Dataset, error) {
	if _, err := datasets.ParseSplit(string(split)); err != nil {
		return nil, err
	}
	var train []datasets.Occurrence
	for _, region := range Regions {
		t, err := openObservations(observationFile(root, region, datasets.Train))
		if err != nil {
			return nil, err
		}
		if !t.hasSpecies {
			return nil, errors.Errorf("geolifeclef: %s training file has no species_id", region)
		}
		if err := assignSubsets(t, opts); err != nil {
			return nil, err
		}
		train = append(train, t.rows...)
	}

	var maxSpecies = -1
	for _, o := range train {
		if o.Species > maxSpecies {
			maxSpecies = o.Species
		}
	}
	speciesIDs := make([]int, maxSpecies+1)
	for i := range speciesIDs {
		speciesIDs[i] = i
	}

	var rows []datasets.Occurrence
	if split == datasets.Test {
		for _, region := range Regions {
			t, err := openObservations(observationFile(root, region, datasets.Test))
			if err != nil {
				return nil, err
			}
			rows = append(rows, t.rows...)
		}
	} else {
		rows = train
	}
	for i := range rows {
		rows[i].Label = rows[i].Species
	}
	return build("GeoLifeCLEF2022", split, rows, speciesIDs, opts)
}

// MiniSpecies is the number of most frequent species kept by the mini dataset.
const MiniSpecies = 100

// MiniSpeciesFile lists the species eligible for the mini dataset.
const MiniSpeciesFile = "minigeolifeclef2022_species_details.csv"

// NewMini builds a split of MiniGeoLifeCLEF 2022: French observations of
// the MiniSpecies most frequent species listed in MiniSpeciesFile, with labels
// re-encoded to 0..n-1 in increasing species identifier order.
func NewMini(root string, split datasets.Split, opts Options) (*datasets.Dataset, error) {
	if _, err := datasets.ParseSplit(string(split)); err != nil {
		return nil, err
	}
	eligible, err := readSpeciesList(filepath.Join(root, MiniSpeciesFile))
	if err != nil {
		return nil, err
	}
	t, err := openObservations(observationFile(root, "fr", datasets.Train))
	if err != nil {
		return nil, err
	}
	if !t.hasSpecies {
		return nil, errors.New("geolifeclef: fr training file has no species_id")
	}
	if err := assignSubsets(t, opts); err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, o := range t.rows {
		if _, ok := eligible[o.Species]; ok {
			counts[o.Species]++
		}
	}
	speciesIDs := topSpecies(counts, MiniSpecies)
	labels := make(map[int]int, len(speciesIDs))
	for i, s := range speciesIDs {
		labels[s] = i
	}

	var rows []datasets.Occurrence
	if split == datasets.Test {
		test, err := openObservations(observationFile(root, "fr", datasets.Test))
		if err != nil {
			return nil, err
		}
		for _, o := range test.rows {
			if o.Labelled {
				label, ok := labels[o.Species]
				if !ok {
					continue
				}
				o.Label = label
			}
			rows = append(rows, o)
		}
	} else {
		for _, o := range t.rows {
			label, ok := labels[o.Species]
			if !ok {
				continue
			}
			o.Label = label
			rows = append(rows, o)
		}
	}
	return build("MiniGeoLifeCLEF2022", split, rows, speciesIDs, opts)
}

// topSpecies returns the n most observed species, ties broken by identifier,
// sorted by identifier.
func topSpecies(counts map[int]int, n int) []int {
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	sort.Ints(ids)
	return ids
}

// build keeps the rows of split and wires patches and transform.
func build(name string, split datasets.Split, rows []datasets.Occurrence, speciesIDs []int,
	opts Options) (*datasets.Dataset, error) {
	if opts.Patches == nil {
		return nil, errors.New("geolifeclef: no patch extractor")
	}
	d := &datasets.Dataset{
		Name:       name,
		Split:      split,
		SpeciesIDs: speciesIDs,
		Patches:    opts.Patches,
		Transform:  opts.Transform,
	}
	for _, o := range rows {
		switch split {
		case datasets.Train, datasets.Val:
			if o.Subset != string(split) {
				continue
			}
		}
		d.Occurrences = append(d.Occurrences, o)
	}
	return d, nil
}
