package geolifeclef

import "encoding/csv"
import "io"
import "os"
import "strconv"
import "strings"

import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"

// table is a parsed observation file.
type table struct {
	rows       []datasets.Occurrence
	hasSpecies bool
	hasSubset  bool
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

// readObservations parses a ';' separated observation file with the columns
// observation_id, latitude, longitude and optionally species_id and subset.
func readObservations(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "header")
	}
	idx := columnIndex(header)
	for _, required := range []string{"observation_id", "latitude", "longitude"} {
		if _, ok := idx[required]; !ok {
			return nil, errors.Errorf("missing column %s", required)
		}
	}
	species, hasSpecies := idx["species_id"]
	subset, hasSubset := idx["subset"]

	t := &table{hasSpecies: hasSpecies, hasSubset: hasSubset}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		var o datasets.Occurrence
		if o.ID, err = strconv.ParseUint(rec[idx["observation_id"]], 10, 64); err != nil {
			return nil, errors.Wrapf(err, "line %d observation_id", line)
		}
		if o.Latitude, err = strconv.ParseFloat(rec[idx["latitude"]], 64); err != nil {
			return nil, errors.Wrapf(err, "line %d latitude", line)
		}
		if o.Longitude, err = strconv.ParseFloat(rec[idx["longitude"]], 64); err != nil {
			return nil, errors.Wrapf(err, "line %d longitude", line)
		}
		if hasSpecies {
			if o.Species, err = strconv.Atoi(rec[species]); err != nil {
				return nil, errors.Wrapf(err, "line %d species_id", line)
			}
			o.Labelled = true
		}
		if hasSubset {
			o.Subset = rec[subset]
		}
		t.rows = append(t.rows, o)
	}
	return t, nil
}

func openObservations(name string) (*table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "geolifeclef")
	}
	defer f.Close()
	t, err := readObservations(f)
	if err != nil {
		return nil, errors.Wrapf(err, "geolifeclef: %s", name)
	}
	return t, nil
}

// readSpeciesList parses a ';' separated file with a species_id column.
func readSpeciesList(name string) (map[int]struct{}, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "geolifeclef")
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = ';'
	cr.ReuseRecord = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "geolifeclef: %s header", name)
	}
	col, ok := columnIndex(header)["species_id"]
	if !ok {
		return nil, errors.Errorf("geolifeclef: %s has no species_id column", name)
	}
	out := make(map[int]struct{})
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "geolifeclef: %s", name)
		}
		id, err := strconv.Atoi(rec[col])
		if err != nil {
			return nil, errors.Wrapf(err, "geolifeclef: %s species_id", name)
		}
		out[id] = struct{}{}
	}
}
