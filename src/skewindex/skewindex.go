// Package skewindex implements the skew index (C6): a secondary structure
// over "crowded" minimizer buckets, i.e. buckets whose string count so
// outnumbers the rest that a linear scan to find the right string would
// dominate lookup cost. Grounded on build_skew_index()'s construction in
// the original build.cpp: buckets whose string count exceeds 2^l are
// sorted by size and sliced into log-spaced partitions anchored at l
// (min_log2) and a fixed ceiling (max_log2); each partition gets its own
// MPHF over the exact k-mers of its member buckets, and a parallel
// compact vector records, for every k-mer, the bucket-local rank of the
// string it came from (list_id in the original), not a global string id -
// a query that lands on a rank outside its own bucket's string count is
// rejected without ever touching the string pool.
package skewindex

import (
	"encoding/binary"
	"io"
	"math/bits"
	"sort"

	"github.com/pkg/errors"

	"github.com/NPSDC/sshash-go/src/bitvec"
	"github.com/NPSDC/sshash-go/src/buckets"
	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/kmer"
	"github.com/NPSDC/sshash-go/src/mphf"
	"github.com/NPSDC/sshash-go/src/pool"
)

// maxLog2Size is the ceiling on the log-spaced partition scheme: the last
// partition always absorbs every bucket larger than 2^maxLog2Size,
// up to the largest bucket actually observed. Mirrors the fixed max_log2
// the original tool's skew_index carries independently of the
// configurable min_log2 (l).
const maxLog2Size = 11

func log2ceil(x uint64) int {
	if x == 0 {
		return 0
	}
	return bits.Len64(x - 1)
}

func widthFor(maxValue uint64) uint8 {
	if maxValue == 0 {
		return 1
	}
	return uint8(bits.Len64(maxValue))
}

func canonicalKmer(x uint64, k int) uint64 {
	rc := kmer.RevComp(x, k)
	if rc < x {
		return rc
	}
	return x
}

// partition holds one log-spaced size class: every k-mer belonging to a
// bucket whose string count falls in this class's window, keyed by an
// MPHF over the k-mer (its canonical form when Build was called with
// canonical set), with the matching bucket-local string rank recorded at
// the MPHF's own id. A key repeated within the partition keeps the rank
// of its first occurrence.
type partition struct {
	upper   uint64 // inclusive bucket-size upper bound of this partition's window
	h       *mphf.MPHF
	listIDs *bitvec.CompactVector
}

// SkewIndex answers "which string (within its own bucket) holds this
// k-mer" in O(1) for the subset of minimizer buckets deemed crowded at
// build time, instead of the O(bucket size) linear scan the dictionary
// otherwise falls back to.
type SkewIndex struct {
	minLog2       int
	maxBucketSize uint64
	numCovered    uint64
	partitions    []*partition // ascending by upper bound
}

// Threshold returns the bucket-size threshold (2^l) above which a bucket
// is considered crowded and folded into the skew index.
func (s *SkewIndex) Threshold() uint64 { return uint64(1) << uint(s.minLog2) }

// Covers reports whether bucketSize would have been folded into the skew
// index at build time.
func (s *SkewIndex) Covers(bucketSize uint64) bool {
	return len(s.partitions) > 0 && bucketSize > s.Threshold()
}

// NumCoveredBuckets returns how many buckets were crowded enough to be
// folded into the skew index.
func (s *SkewIndex) NumCoveredBuckets() uint64 { return s.numCovered }

// Build constructs a skew index over every bucket whose string count
// exceeds 2^l. k is the k-mer length; seed mixes with the partition
// number to keep each partition's MPHF independent of the others.
// canonical must match the dictionary's own parsing mode: when true,
// every partition is keyed by min(kmer, revcomp(kmer)) instead of the
// raw encoded k-mer, so Lookup can match either orientation later.
func Build(pl *pool.Pool, bk *buckets.Buckets, k int, seed uint64, l int, canonical bool) (*SkewIndex, error) {
	threshold := uint64(1) << uint(l)
	numBuckets := bk.NumBuckets()

	type crowdedBucket struct {
		id   uint64
		size uint64
	}
	var crowded []crowdedBucket
	maxBucketSize := uint64(0)
	for b := uint64(0); b < numBuckets; b++ {
		sz := bk.BucketSize(b)
		if sz > maxBucketSize {
			maxBucketSize = sz
		}
		if sz > threshold {
			crowded = append(crowded, crowdedBucket{id: b, size: sz})
		}
	}
	if len(crowded) == 0 {
		return &SkewIndex{minLog2: l, maxBucketSize: maxBucketSize}, nil
	}
	sort.Slice(crowded, func(i, j int) bool { return crowded[i].size < crowded[j].size })

	numPartitions := maxLog2Size - l + 1
	if maxBucketSize < (uint64(1) << uint(maxLog2Size)) {
		numPartitions = log2ceil(maxBucketSize) - l
	}
	if numPartitions < 1 {
		numPartitions = 1
	}

	bounds := make([]uint64, numPartitions)
	lower := threshold
	upper := 2 * lower
	for p := 0; p < numPartitions; p++ {
		if p == numPartitions-1 {
			upper = maxBucketSize
		}
		bounds[p] = upper
		lower = upper
		upper = 2 * lower
	}

	bucketsByPartition := make([][]uint64, numPartitions)
	p := 0
	for _, c := range crowded {
		for c.size > bounds[p] {
			p++
			if p >= numPartitions {
				return nil, errors.Wrapf(config.ErrEmptyPartition, "skew index: bucket size %d exceeds every partition bound, try a different l or seed", c.size)
			}
		}
		bucketsByPartition[p] = append(bucketsByPartition[p], c.id)
	}
	for idx, ids := range bucketsByPartition {
		if len(ids) == 0 {
			return nil, errors.Wrapf(config.ErrEmptyPartition, "skew index partition %d (bucket size <= %d) has no members, try a different l or seed", idx, bounds[idx])
		}
	}

	partitions := make([]*partition, numPartitions)
	var numCovered uint64
	for idx, ids := range bucketsByPartition {
		var keys []uint64
		var ranks []uint64
		seen := make(map[uint64]bool)
		for _, bucketID := range ids {
			numCovered++
			start, end := bk.Range(bucketID)
			for sid := start; sid < end; sid++ {
				rank := sid - start
				offset := bk.Offset(sid)
				n := bk.NumKmers(sid)
				for i := uint64(0); i < n; i++ {
					x := pl.KmerAt(offset+i, k)
					key := x
					if canonical {
						key = canonicalKmer(x, k)
					}
					if seen[key] {
						continue
					}
					seen[key] = true
					keys = append(keys, key)
					ranks = append(ranks, rank)
				}
			}
		}

		h, err := mphf.Build(keys, seed^uint64(idx))
		if err != nil {
			return nil, errors.Wrapf(err, "skew index: building MPHF for partition %d", idx)
		}
		width := widthFor(bounds[idx])
		listIDs := bitvec.NewCompactVector(uint64(len(keys)), width)
		for i, key := range keys {
			id := h.Lookup(key)
			listIDs.Set(id, ranks[i])
		}
		partitions[idx] = &partition{upper: bounds[idx], h: h, listIDs: listIDs}
	}

	return &SkewIndex{
		minLog2:       l,
		maxBucketSize: maxBucketSize,
		numCovered:    numCovered,
		partitions:    partitions,
	}, nil
}

// partitionFor returns the index of the partition whose window covers
// bucketSize, or -1 if none does (bucketSize larger than anything seen at
// build time, or the skew index has no partitions at all).
func (s *SkewIndex) partitionFor(bucketSize uint64) int {
	for i, part := range s.partitions {
		if bucketSize <= part.upper {
			return i
		}
	}
	return -1
}

// Lookup looks up k-mer x within bucket (the minimizer bucket the caller
// already resolved x to), and returns the owning string id and the
// k-mer's offset within it (its first occurrence in that string, when it
// repeats). canonical must match the mode Build was
// called with: when true, x's reverse complement is also accepted as a
// match. ok is false if bucket was not crowded enough to be covered, or
// x is not present in it.
func (s *SkewIndex) Lookup(pl *pool.Pool, bk *buckets.Buckets, k int, bucket, x uint64, canonical bool) (stringID, posInString uint64, ok bool) {
	size := bk.BucketSize(bucket)
	if size <= s.Threshold() {
		return 0, 0, false
	}
	pIdx := s.partitionFor(size)
	if pIdx < 0 {
		return 0, 0, false
	}
	part := s.partitions[pIdx]

	var rc uint64
	key := x
	if canonical {
		rc = kmer.RevComp(x, k)
		if rc < key {
			key = rc
		}
	}

	id := part.h.Lookup(key)
	if id >= part.h.NumKeys() {
		return 0, 0, false
	}
	listID := part.listIDs.Get(id)
	if listID >= size {
		return 0, 0, false
	}

	start, _ := bk.Range(bucket)
	sid := start + listID
	offset := bk.Offset(sid)
	n := bk.NumKmers(sid)
	for i := uint64(0); i < n; i++ {
		candidate := pl.KmerAt(offset+i, k)
		if candidate == x || (canonical && candidate == rc) {
			return sid, i, true
		}
	}
	return 0, 0, false
}

// MarshalBinary serialises minLog2, maxBucketSize, numCovered and every
// partition in ascending window order: upper bound(8) + MPHF blob +
// listIDs blob, each length-prefixed.
func (s *SkewIndex) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf = append(buf, le64(uint64(s.minLog2))...)
	buf = append(buf, le64(s.maxBucketSize)...)
	buf = append(buf, le64(s.numCovered)...)
	buf = append(buf, le64(uint64(len(s.partitions)))...)

	for _, p := range s.partitions {
		hData, err := p.h.MarshalBinary()
		if err != nil {
			return nil, err
		}
		lData, err := p.listIDs.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf = append(buf, le64(p.upper)...)
		buf = append(buf, le64(uint64(len(hData)))...)
		buf = append(buf, hData...)
		buf = append(buf, le64(uint64(len(lData)))...)
		buf = append(buf, lData...)
	}
	return buf, nil
}

// UnmarshalBinary restores a SkewIndex previously produced by
// MarshalBinary.
func (s *SkewIndex) UnmarshalBinary(data []byte) error {
	if len(data) < 32 {
		return io.ErrUnexpectedEOF
	}
	s.minLog2 = int(binary.LittleEndian.Uint64(data[0:8]))
	s.maxBucketSize = binary.LittleEndian.Uint64(data[8:16])
	s.numCovered = binary.LittleEndian.Uint64(data[16:24])
	numPartitions := binary.LittleEndian.Uint64(data[24:32])
	offset := 32

	s.partitions = make([]*partition, numPartitions)
	for i := uint64(0); i < numPartitions; i++ {
		if len(data) < offset+8 {
			return io.ErrUnexpectedEOF
		}
		upper := binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8

		hData, next, err := readFramed(data, offset)
		if err != nil {
			return err
		}
		offset = next
		h := &mphf.MPHF{}
		if err := h.UnmarshalBinary(hData); err != nil {
			return err
		}

		lData, next, err := readFramed(data, offset)
		if err != nil {
			return err
		}
		offset = next
		listIDs := &bitvec.CompactVector{}
		if err := listIDs.UnmarshalBinary(lData); err != nil {
			return err
		}

		s.partitions[i] = &partition{upper: upper, h: h, listIDs: listIDs}
	}
	return nil
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

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
