package geolifeclef

import "sync"

import "github.com/jbarham/primegen"
import "github.com/pkg/errors"

import "github.com/neurlang/geoclassifier/datasets"
import "github.com/neurlang/geoclassifier/hash"

// DefaultValFraction is used when Options.ValFraction is zero.
const DefaultValFraction = 0.05

var (
	modulusOnce sync.Once
	modulus     uint32
)

// valModulus is the first prime above 2^20; hashing identifiers modulo a
// prime spreads sequential identifiers evenly over the residues.
func valModulus() uint32 {
	modulusOnce.Do(func() {
		pg := primegen.New()
		pg.SkipTo(1 << 20)
		modulus = uint32(pg.Next())
	})
	return modulus
}

// InValidation reports whether observation id falls into the validation
// fraction under salt.
func InValidation(id uint64, fraction float64, salt uint32) bool {
	m := valModulus()
	return hash.Hash64(id, salt, m) < uint32(fraction*float64(m))
}

// assignSubsets fills the subset of every row when the file has none.
func assignSubsets(t *table, opts Options) error {
	if t.hasSubset {
		return nil
	}
	fraction := opts.ValFraction
	if fraction == 0 {
		fraction = DefaultValFraction
	}
	if fraction < 0 || fraction >= 1 {
		return errors.Errorf("geolifeclef: validation fraction %g outside [0, 1)", fraction)
	}
	for i := range t.rows {
		if InValidation(t.rows[i].ID, fraction, opts.Salt) {
			t.rows[i].Subset = string(datasets.Val)
		} else {
			t.rows[i].Subset = string(datasets.Train)
		}
	}
	t.hasSubset = true
	return nil
}
