// Package contigtable implements the optional contig table sidecar named
// in SPEC_FULL's external interfaces section: a second MPHF, keyed on
// contig id rather than minimizer, built from a second input file supplied
// with build --contig-file. It is wired from the CLI but never imported by
// src/dictionary - same shape as src/buckets' C4 MPHF usage (C4/C6),
// repurposed for a key space the core dictionary doesn't know about.
package contigtable

import (
	"encoding/binary"
	"io"

	"github.com/NPSDC/sshash-go/src/eliasfano"
	"github.com/NPSDC/sshash-go/src/mphf"
)

// ContigTable maps a contig id to the half-open range of dictionary k-mer
// ids that make it up.
type ContigTable struct {
	h       *mphf.MPHF
	extents *eliasfano.EliasFano // size numContigs+1, monotone cumulative k-mer counts
}

// Build constructs a contig table from parallel slices: contigIDs[i] is
// the external id of the i-th contig, and lengths[i] is how many k-mers it
// contains. Contigs are assigned internal slots in the MPHF's id space;
// extents[slot] gives the cumulative k-mer count up to that slot, the same
// prefix-sum convention src/pool uses for piece boundaries.
func Build(contigIDs []uint64, lengths []uint64, seed uint64) (*ContigTable, error) {
	h, err := mphf.Build(contigIDs, seed)
	if err != nil {
		return nil, err
	}

	cumulative := make([]uint64, len(contigIDs)+1)
	running := uint64(0)
	bySlot := make([]uint64, len(contigIDs))
	for i, id := range contigIDs {
		bySlot[h.Lookup(id)] = lengths[i]
	}
	for slot, length := range bySlot {
		cumulative[slot] = running
		running += length
	}
	cumulative[len(contigIDs)] = running

	return &ContigTable{h: h, extents: eliasfano.Encode(cumulative)}, nil
}

// Range returns the half-open range of k-mer ids belonging to contigID.
// ok is false only when the table is empty: the MPHF stores no keys, so a
// contigID that was never added is not detected and yields the range of
// whichever contig its hash slot belongs to.
func (t *ContigTable) Range(contigID uint64) (start, end uint64, ok bool) {
	slot := t.h.Lookup(contigID)
	if slot >= t.h.NumKeys() {
		return 0, 0, false
	}
	return t.extents.Access(slot), t.extents.Access(slot + 1), true
}

// NumContigs returns how many contigs the table covers.
func (t *ContigTable) NumContigs() uint64 { return t.h.NumKeys() }

// MarshalBinary serialises the MPHF and the extents, each length-prefixed.
func (t *ContigTable) MarshalBinary() ([]byte, error) {
	hData, err := t.h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	eData, err := t.extents.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 16+len(hData)+len(eData))
	buf = appendFramed(buf, hData)
	buf = appendFramed(buf, eData)
	return buf, nil
}

// UnmarshalBinary restores a ContigTable previously produced by
// MarshalBinary.
func (t *ContigTable) UnmarshalBinary(data []byte) error {
	hData, offset, err := readFramed(data, 0)
	if err != nil {
		return err
	}
	eData, _, err := readFramed(data, offset)
	if err != nil {
		return err
	}
	h := &mphf.MPHF{}
	if err := h.UnmarshalBinary(hData); err != nil {
		return err
	}
	ef := &eliasfano.EliasFano{}
	if _, err := ef.UnmarshalBinary(eData); err != nil {
		return err
	}
	t.h = h
	t.extents = ef
	return nil
}

func appendFramed(buf, data []byte) []byte {
	lenBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenBuf, uint64(len(data)))
	buf = append(buf, lenBuf...)
	return append(buf, data...)
}

func readFramed(data []byte, offset int) ([]byte, int, error) {
	if len(data) < offset+8 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	n := int(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8
	if len(data) < offset+n {
		return nil, 0, io.ErrUnexpectedEOF
	}
	return data[offset : offset+n], offset + n, nil
}
