// Package minimizers implements the minimizer tuple stream (C3): the
// intermediate representation produced while scanning input sequences,
// consumed while building buckets. Organised the way the teacher organises
// its own intermediate sketch/result types (lshForest's sortable key lists,
// minhash's bottom-k slices) - a plain slice with a sort method and a
// cursor-based grouping iterator, rather than a channel pipeline, since the
// whole stream must be sorted before buckets can be built.
package minimizers

import (
	"sort"

	"github.com/NPSDC/sshash-go/src/config"
)

// Tuple is one entry of the minimizer tuple stream: a minimizer value, the
// offset (in bases) into the compact string pool where its super-k-mer
// starts, and how many k-mers that super-k-mer contains.
type Tuple struct {
	Minimizer uint64
	Offset    uint64
	NumKmers  uint16
}

// MaxNumKmers is the largest super-k-mer length NumKmers can represent.
const MaxNumKmers = ^uint16(0)

// Stream is an accumulating, sortable collection of tuples.
type Stream struct {
	tuples []Tuple
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Add appends a tuple to the stream. It returns config.ErrWidth if numKmers
// does not fit the stream's fixed-width encoding.
func (s *Stream) Add(minimizer, offset uint64, numKmers int) error {
	if numKmers <= 0 || uint(numKmers) > uint(MaxNumKmers) {
		return config.ErrWidth
	}
	s.tuples = append(s.tuples, Tuple{
		Minimizer: minimizer,
		Offset:    offset,
		NumKmers:  uint16(numKmers),
	})
	return nil
}

// Len returns the number of tuples accumulated so far.
func (s *Stream) Len() int { return len(s.tuples) }

// Tuples returns the underlying (sorted, once Sort has been called) slice.
func (s *Stream) Tuples() []Tuple { return s.tuples }

// Sort orders the stream first by minimizer value, then by offset, the
// order buckets.Build requires: every tuple sharing a minimizer ends up
// contiguous, and within a minimizer group, in the order the strings were
// appended to the pool.
func (s *Stream) Sort() {
	sort.Slice(s.tuples, func(i, j int) bool {
		if s.tuples[i].Minimizer != s.tuples[j].Minimizer {
			return s.tuples[i].Minimizer < s.tuples[j].Minimizer
		}
		return s.tuples[i].Offset < s.tuples[j].Offset
	})
}

// Group is a run of tuples sharing the same minimizer value.
type Group struct {
	Minimizer uint64
	Tuples    []Tuple
}

// GroupIterator walks a sorted tuple slice one minimizer group at a time.
type GroupIterator struct {
	tuples []Tuple
	cursor int
}

// NewGroupIterator builds an iterator over a stream's sorted tuples. The
// caller must have called Stream.Sort first.
func NewGroupIterator(s *Stream) *GroupIterator {
	return &GroupIterator{tuples: s.tuples}
}

// HasNext reports whether another group remains.
func (it *GroupIterator) HasNext() bool {
	return it.cursor < len(it.tuples)
}

// Next returns the next minimizer group and advances the cursor past it.
func (it *GroupIterator) Next() Group {
	start := it.cursor
	minimizer := it.tuples[start].Minimizer
	end := start + 1
	for end < len(it.tuples) && it.tuples[end].Minimizer == minimizer {
		end++
	}
	it.cursor = end
	return Group{Minimizer: minimizer, Tuples: it.tuples[start:end]}
}

// DistinctMinimizers returns the number of distinct minimizer values present
// in a sorted stream, i.e. the number of keys the C4 MPHF must be built over.
func DistinctMinimizers(s *Stream) uint64 {
	if len(s.tuples) == 0 {
		return 0
	}
	count := uint64(1)
	for i := 1; i < len(s.tuples); i++ {
		if s.tuples[i].Minimizer != s.tuples[i-1].Minimizer {
			count++
		}
	}
	return count
}
