// Package weights implements the optional per-k-mer abundance sidecar
// named in SPEC_FULL's external interfaces section: a vector of counts
// aligned 1:1 with dictionary k-mer ids, attached at build time with
// --store-abundances and read back through Dictionary.Abundance(id) without
// ever being consulted by Lookup/Access. Grounded on bitvec.CompactVector,
// the same fixed-width packing src/pool and src/buckets already use; a true
// Golomb-Rice code (as the original tool uses for its skewed abundance
// distributions) is noted as dropped in DESIGN.md rather than faked.
package weights

import (
	"math/bits"

	"github.com/NPSDC/sshash-go/src/bitvec"
)

// Weights is a read-only, fixed-width vector of per-k-mer abundance counts.
type Weights struct {
	data *bitvec.CompactVector
}

// Build packs abundances, one entry per k-mer id, using the smallest fixed
// width that fits the largest value present.
func Build(abundances []uint64) *Weights {
	var max uint64
	for _, a := range abundances {
		if a > max {
			max = a
		}
	}
	width := uint8(1)
	if max > 0 {
		width = uint8(bits.Len64(max))
	}
	cv := bitvec.NewCompactVector(uint64(len(abundances)), width)
	for i, a := range abundances {
		cv.Set(uint64(i), a)
	}
	return &Weights{data: cv}
}

// Get returns the abundance recorded for k-mer id.
func (w *Weights) Get(id uint64) uint64 { return w.data.Get(id) }

// Len returns the number of k-mer ids covered.
func (w *Weights) Len() uint64 { return w.data.Size() }

// MarshalBinary serialises the underlying compact vector.
func (w *Weights) MarshalBinary() ([]byte, error) { return w.data.MarshalBinary() }

// UnmarshalBinary restores a Weights vector previously produced by
// MarshalBinary.
func (w *Weights) UnmarshalBinary(data []byte) error {
	cv := &bitvec.CompactVector{}
	if err := cv.UnmarshalBinary(data); err != nil {
		return err
	}
	w.data = cv
	return nil
}
