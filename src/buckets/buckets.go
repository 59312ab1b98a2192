// Package buckets implements the bucket table (C5): for every minimizer,
// the contiguous run of super-k-mer strings that share it. Grounded on
// build_index()'s two-pass construction in the original build.cpp - a first
// pass counts how many strings fall in each minimizer's bucket (via the C4
// MPHF) and prefix-sums those counts, a second pass writes every string's
// pool offset and k-mer count into the position that prefix sum assigns it.
package buckets

import (
	"math/bits"

	"github.com/NPSDC/sshash-go/src/bitvec"
	"github.com/NPSDC/sshash-go/src/eliasfano"
	"github.com/NPSDC/sshash-go/src/minimizers"
	"github.com/NPSDC/sshash-go/src/mphf"
)

func widthFor(maxValue uint64) uint8 {
	if maxValue == 0 {
		return 1
	}
	return uint8(bits.Len64(maxValue))
}

// Buckets holds, for every minimizer bucket (identified by its C4 MPHF
// id), the strings assigned to it.
type Buckets struct {
	numBuckets             uint64
	numStringsBeforeBucket *eliasfano.EliasFano // size numBuckets+1, monotone
	offsets                *bitvec.CompactVector // one entry per string, in bucket order
	numKmers               *bitvec.CompactVector // parallel to offsets
}

// Build groups stream's minimizer runs by their C4 MPHF bucket id and lays
// out their pool offsets and k-mer counts contiguously per bucket.
// poolLength is the total number of bases in the compact string pool, used
// only to size the offsets vector's bit width.
func Build(stream *minimizers.Stream, h *mphf.MPHF, poolLength uint64) *Buckets {
	numBuckets := h.NumKeys()
	perBucket := make([][]minimizers.Tuple, numBuckets)

	it := minimizers.NewGroupIterator(stream)
	for it.HasNext() {
		g := it.Next()
		b := h.Lookup(g.Minimizer)
		perBucket[b] = append(perBucket[b], g.Tuples...)
	}

	numStringsBeforeBucket := make([]uint64, numBuckets+1)
	total := uint64(0)
	for b := uint64(0); b < numBuckets; b++ {
		numStringsBeforeBucket[b] = total
		total += uint64(len(perBucket[b]))
	}
	numStringsBeforeBucket[numBuckets] = total

	offsetWidth := widthFor(poolLength)
	numKmersWidth := uint8(16)
	offsets := bitvec.NewCompactVector(total, offsetWidth)
	numKmers := bitvec.NewCompactVector(total, numKmersWidth)

	idx := uint64(0)
	for b := uint64(0); b < numBuckets; b++ {
		for _, tup := range perBucket[b] {
			offsets.Set(idx, tup.Offset)
			numKmers.Set(idx, uint64(tup.NumKmers))
			idx++
		}
	}

	return &Buckets{
		numBuckets:             numBuckets,
		numStringsBeforeBucket: eliasfano.Encode(numStringsBeforeBucket),
		offsets:                offsets,
		numKmers:               numKmers,
	}
}

// NumBuckets returns the number of minimizer buckets.
func (b *Buckets) NumBuckets() uint64 { return b.numBuckets }

// NumStrings returns the total number of super-k-mer strings indexed.
func (b *Buckets) NumStrings() uint64 { return b.offsets.Size() }

// Range returns the half-open range [start, end) of global string ids
// assigned to bucket id.
func (b *Buckets) Range(bucketID uint64) (start, end uint64) {
	return b.numStringsBeforeBucket.Access(bucketID), b.numStringsBeforeBucket.Access(bucketID + 1)
}

// BucketSize returns how many strings are assigned to bucket id.
func (b *Buckets) BucketSize(bucketID uint64) uint64 {
	start, end := b.Range(bucketID)
	return end - start
}

// Offset returns the pool offset of the string with the given global id.
func (b *Buckets) Offset(stringID uint64) uint64 {
	return b.offsets.Get(stringID)
}

// NumKmers returns the k-mer count of the string with the given global id.
func (b *Buckets) NumKmers(stringID uint64) uint64 {
	return b.numKmers.Get(stringID)
}

// MarshalBinary serialises as: numBuckets(8) + numStringsBeforeBucket blob
// length-prefixed + offsets blob length-prefixed + numKmers blob
// length-prefixed.
func (b *Buckets) MarshalBinary() ([]byte, error) {
	nsbb, err := b.numStringsBeforeBucket.MarshalBinary()
	if err != nil {
		return nil, err
	}
	off, err := b.offsets.MarshalBinary()
	if err != nil {
		return nil, err
	}
	nk, err := b.numKmers.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return concatFramed(b.numBuckets, nsbb, off, nk), nil
}

func concatFramed(numBuckets uint64, parts ...[]byte) []byte {
	size := 8
	for _, p := range parts {
		size += 8 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, le64(numBuckets)...)
	for _, p := range parts {
		buf = append(buf, le64(uint64(len(p)))...)
		buf = append(buf, p...)
	}
	return buf
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(8*i))
	}
	return b
}

func readFramed(data []byte, offset int) ([]byte, int, error) {
	if len(data) < offset+8 {
		return nil, 0, errShortBuffer
	}
	n := 0
	for i := 0; i < 8; i++ {
		n |= int(data[offset+i]) << uint(8*i)
	}
	offset += 8
	if len(data) < offset+n {
		return nil, 0, errShortBuffer
	}
	return data[offset : offset+n], offset + n, nil
}

var errShortBuffer = shortBufferError{}

type shortBufferError struct{}

func (shortBufferError) Error() string { return "buckets: truncated serialized data" }

// UnmarshalBinary restores a Buckets previously produced by MarshalBinary.
func (b *Buckets) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errShortBuffer
	}
	numBuckets := uint64(0)
	for i := 0; i < 8; i++ {
		numBuckets |= uint64(data[i]) << uint(8*i)
	}
	offset := 8

	nsbbData, offset, err := readFramed(data, offset)
	if err != nil {
		return err
	}
	offData, offset, err := readFramed(data, offset)
	if err != nil {
		return err
	}
	nkData, _, err := readFramed(data, offset)
	if err != nil {
		return err
	}

	nsbb := &eliasfano.EliasFano{}
	if _, err := nsbb.UnmarshalBinary(nsbbData); err != nil {
		return err
	}
	off := &bitvec.CompactVector{}
	if err := off.UnmarshalBinary(offData); err != nil {
		return err
	}
	nk := &bitvec.CompactVector{}
	if err := nk.UnmarshalBinary(nkData); err != nil {
		return err
	}

	b.numBuckets = numBuckets
	b.numStringsBeforeBucket = nsbb
	b.offsets = off
	b.numKmers = nk
	return nil
}
