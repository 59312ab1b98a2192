// Package mphf implements a minimal perfect hash function over a set of
// uint64 keys using the compress-hash-displace (CHD) algorithm, grounded on
// the two CHD reference implementations in the examples pack
// (keegancsmith/mph, Jille/uint64mph). Those two vendor only the lookup
// half of a key/value hash table (hasher, bucket index, displaced slot);
// the builder is reconstructed here from the same algorithm, and the
// two-level "hash function table + per-bucket index" scheme they use is
// collapsed to a single per-bucket displacement value, so the structure
// serializes as the flat displacement table the dictionary's on-disk
// layout calls for and never stores the keys themselves - callers only
// ever look up keys they already know are members, verifying the match by
// re-reading the string the returned id points to.
package mphf

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/NPSDC/sshash-go/src/config"
)

// bucketLoadFactor is the target average number of keys per bucket; lower
// values leave more slack for the displacement search to succeed quickly,
// at the cost of a larger displacement table.
const bucketLoadFactor = 4

// maxDisplacement bounds how many candidate displacement values a bucket
// may try before Build gives up on it. Displacements are stored as
// uint16, so this is also their natural ceiling.
const maxDisplacement = 65535

// splitmix64 is used here as a self-contained, independent hash mix so the
// package has no dependency on src/kmer; the finalizer itself is the same
// one the teacher uses in src/minhash/minhash.go.
func splitmix64(key uint64) uint64 {
	key = (key ^ (key >> 31) ^ (key >> 62)) * uint64(0x319642b2d24d8ec3)
	key = (key ^ (key >> 27) ^ (key >> 54)) * uint64(0x96de1b173f119089)
	key = key ^ (key >> 30) ^ (key >> 60)
	return key
}

func baseHash(key, seed uint64) uint64 {
	return splitmix64(key ^ seed)
}

// MPHF is a built minimal perfect hash: Lookup(key) returns a distinct
// value in [0, NumKeys()) for every key it was built from.
type MPHF struct {
	numKeys       uint64
	numBuckets    uint64
	seed          uint64
	displacements []uint16
}

// Build constructs an MPHF over keys. keys must contain no duplicates;
// duplicates will make Build fail as if two distinct keys collided forever.
func Build(keys []uint64, seed uint64) (*MPHF, error) {
	n := uint64(len(keys))
	if n == 0 {
		return &MPHF{seed: seed}, nil
	}

	numBuckets := n/bucketLoadFactor + 1
	buckets := make([][]uint64, numBuckets)
	for _, key := range keys {
		h := baseHash(key, seed)
		b := h % numBuckets
		buckets[b] = append(buckets[b], h)
	}

	// Classic CHD heuristic: place the largest buckets first, since they
	// are the hardest to fit and benefit most from a clean slate.
	order := make([]int, numBuckets)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return len(buckets[order[i]]) > len(buckets[order[j]])
	})

	occupied := make([]bool, n)
	displacements := make([]uint16, numBuckets)
	slots := make([]uint64, 0, 16)

	for _, b := range order {
		hs := buckets[b]
		if len(hs) == 0 {
			continue
		}
		assigned := false
		seen := make(map[uint64]struct{}, len(hs))
		for d := uint64(0); d <= maxDisplacement; d++ {
			slots = slots[:0]
			for k := range seen {
				delete(seen, k)
			}
			ok := true
			for _, h := range hs {
				slot := splitmix64(h^d) % n
				if occupied[slot] {
					ok = false
					break
				}
				if _, dup := seen[slot]; dup {
					ok = false
					break
				}
				seen[slot] = struct{}{}
				slots = append(slots, slot)
			}
			if ok {
				for _, slot := range slots {
					occupied[slot] = true
				}
				displacements[b] = uint16(d)
				assigned = true
				break
			}
		}
		if !assigned {
			return nil, errors.Wrapf(config.ErrConfig, "mphf: bucket of size %d could not be placed within %d displacement attempts, retry the build with a different seed", len(hs), maxDisplacement+1)
		}
	}

	return &MPHF{
		numKeys:       n,
		numBuckets:    numBuckets,
		seed:          seed,
		displacements: displacements,
	}, nil
}

// Lookup returns the slot assigned to key. The result is only meaningful
// for keys the MPHF was built from; callers querying an unknown key will
// get back some value in range and must verify it themselves.
func (m *MPHF) Lookup(key uint64) uint64 {
	if m.numKeys == 0 {
		return 0
	}
	h := baseHash(key, m.seed)
	b := h % m.numBuckets
	d := uint64(m.displacements[b])
	return splitmix64(h^d) % m.numKeys
}

// NumKeys returns the number of keys the MPHF was built over.
func (m *MPHF) NumKeys() uint64 { return m.numKeys }

// NumBuckets returns the size of the displacement table.
func (m *MPHF) NumBuckets() uint64 { return m.numBuckets }

// Seed returns the seed the MPHF was built with.
func (m *MPHF) Seed() uint64 { return m.seed }

// MarshalBinary serialises as: num_keys(8) + num_buckets(8) + seed(8) +
// len(displacements)(8) + displacements (2 bytes each), the on-disk layout
// SPEC_FULL's MPHF contract calls for.
func (m *MPHF) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+2*len(m.displacements))
	binary.LittleEndian.PutUint64(buf[0:8], m.numKeys)
	binary.LittleEndian.PutUint64(buf[8:16], m.numBuckets)
	binary.LittleEndian.PutUint64(buf[16:24], m.seed)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(len(m.displacements)))
	for i, d := range m.displacements {
		binary.LittleEndian.PutUint16(buf[32+2*i:34+2*i], d)
	}
	return buf, nil
}

// UnmarshalBinary restores an MPHF previously produced by MarshalBinary.
func (m *MPHF) UnmarshalBinary(data []byte) error {
	if len(data) < 32 {
		return io.ErrUnexpectedEOF
	}
	m.numKeys = binary.LittleEndian.Uint64(data[0:8])
	m.numBuckets = binary.LittleEndian.Uint64(data[8:16])
	m.seed = binary.LittleEndian.Uint64(data[16:24])
	numDisplacements := binary.LittleEndian.Uint64(data[24:32])
	if uint64(len(data)) < 32+2*numDisplacements {
		return io.ErrUnexpectedEOF
	}
	m.displacements = make([]uint16, numDisplacements)
	for i := uint64(0); i < numDisplacements; i++ {
		m.displacements[i] = binary.LittleEndian.Uint16(data[32+2*i : 34+2*i])
	}
	return nil
}
