package buckets

import (
	"testing"

	"github.com/NPSDC/sshash-go/src/minimizers"
	"github.com/NPSDC/sshash-go/src/mphf"
)

func buildStream(t *testing.T) *minimizers.Stream {
	t.Helper()
	s := minimizers.NewStream()
	entries := []struct {
		minimizer, offset uint64
		numKmers          int
	}{
		{10, 0, 5},
		{20, 10, 3},
		{10, 20, 7},
		{30, 30, 2},
	}
	for _, e := range entries {
		if err := s.Add(e.minimizer, e.offset, e.numKmers); err != nil {
			t.Fatal(err)
		}
	}
	s.Sort()
	return s
}

func TestBuildAndRange(t *testing.T) {
	s := buildStream(t)
	minimizerValues := []uint64{10, 20, 30}
	h, err := mphf.Build(minimizerValues, 1)
	if err != nil {
		t.Fatal(err)
	}

	b := Build(s, h, 100)
	if b.NumStrings() != 4 {
		t.Fatalf("NumStrings() = %d, want 4", b.NumStrings())
	}

	total := uint64(0)
	for bucket := uint64(0); bucket < b.NumBuckets(); bucket++ {
		total += b.BucketSize(bucket)
	}
	if total != 4 {
		t.Fatalf("sum of bucket sizes = %d, want 4", total)
	}

	bucket10 := h.Lookup(10)
	start, end := b.Range(bucket10)
	if end-start != 2 {
		t.Fatalf("bucket for minimizer 10 has %d strings, want 2", end-start)
	}
	seenOffsets := map[uint64]bool{}
	for id := start; id < end; id++ {
		seenOffsets[b.Offset(id)] = true
	}
	if !seenOffsets[0] || !seenOffsets[20] {
		t.Fatalf("bucket for minimizer 10 missing expected offsets, got %v", seenOffsets)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := buildStream(t)
	minimizerValues := []uint64{10, 20, 30}
	h, err := mphf.Build(minimizerValues, 1)
	if err != nil {
		t.Fatal(err)
	}
	b := Build(s, h, 100)

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var b2 Buckets
	if err := b2.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if b2.NumStrings() != b.NumStrings() || b2.NumBuckets() != b.NumBuckets() {
		t.Fatal("metadata mismatch after round trip")
	}
	for id := uint64(0); id < b.NumStrings(); id++ {
		if b2.Offset(id) != b.Offset(id) || b2.NumKmers(id) != b.NumKmers(id) {
			t.Fatalf("string %d mismatch after round trip", id)
		}
	}
}
