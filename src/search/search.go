// Package search implements a small external consumer of
// Dictionary.Lookup: given a read (a DNA string possibly much longer than
// k), it streaks together consecutive k-mer lookups into hits, mirroring
// hit_searcher.hpp's behaviour in the original tool. It only calls the
// dictionary's public API, the same way the teacher's src/lshForest and
// src/stream packages only call into src/graph and src/minhash through
// their exported methods.
package search

import "github.com/NPSDC/sshash-go/src/kmer"

// Dictionary is the subset of dictionary.Dictionary this package needs;
// declared locally so search has no import-time dependency beyond the
// query surface it actually calls.
type Dictionary interface {
	K() int
	LookupEncoded(x uint64) (id uint64, found bool, err error)
}

// Hit is a maximal run of consecutive dictionary ids matched by a read:
// read positions [ReadStart, ReadStart+Len) matched dictionary ids
// [DictStart, DictStart+Len), walking in the direction Forward indicates.
type Hit struct {
	ReadStart uint64
	DictStart uint64
	Len       uint64
	Forward   bool
}

// Search scans every k-mer window of read against d, coalescing
// consecutive matches whose dictionary ids step by exactly one - upward
// (Forward) or downward, as a reverse-complement read walks them - into a
// single Hit.
func Search(d Dictionary, read string) ([]Hit, error) {
	k := d.K()
	if len(read) < k {
		return nil, nil
	}

	var hits []Hit
	var current *Hit

	flush := func() {
		if current != nil {
			hits = append(hits, *current)
			current = nil
		}
	}

	for i := 0; i+k <= len(read); i++ {
		if !kmer.IsValid(read[i : i+k]) {
			flush()
			continue
		}
		x := kmer.Encode(read[i:i+k], k)
		id, found, err := d.LookupEncoded(x)
		if err != nil {
			return nil, err
		}
		if !found {
			flush()
			continue
		}

		if current != nil && current.Len == 1 && id+1 == current.DictStart {
			current.Forward = false
		}
		if current != nil && extendsHit(*current, id, current.Forward) {
			if !current.Forward {
				current.DictStart = id
			}
			current.Len++
			continue
		}

		flush()
		current = &Hit{ReadStart: uint64(i), DictStart: id, Len: 1, Forward: true}
	}
	flush()
	return hits, nil
}

func extendsHit(h Hit, id uint64, forward bool) bool {
	last := h.DictStart + h.Len - 1
	if forward {
		return id == last+1
	}
	return id+1 == h.DictStart
}
