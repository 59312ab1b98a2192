package skewindex

import (
	"testing"

	"github.com/NPSDC/sshash-go/src/buckets"
	"github.com/NPSDC/sshash-go/src/kmer"
	"github.com/NPSDC/sshash-go/src/minimizers"
	"github.com/NPSDC/sshash-go/src/mphf"
	"github.com/NPSDC/sshash-go/src/pool"
)

// buildFixture lays out three strings behind one crowded minimizer bucket
// (sharing minimizer value 1, two strings) and one quiet bucket (minimizer
// value 2, one string), so the skew index has exactly one crowded bucket
// to partition.
func buildFixture(t *testing.T, k int) (*pool.Pool, *buckets.Buckets, *mphf.MPHF) {
	t.Helper()
	pb := pool.NewBuilder()
	pb.Append("ACGTACGTAC", false) // 10 bases -> string 0, crowded bucket
	pb.Append("TTTTGGGGCC", false) // 10 bases -> string 1, crowded bucket
	pb.Append("AAACCCGGGT", false) // 10 bases -> string 2, quiet bucket
	pl := pb.Build()

	s := minimizers.NewStream()
	mustAdd(t, s, 1, 0, int(pl.NumKmersInPiece(0, k)))
	mustAdd(t, s, 1, 10, int(pl.NumKmersInPiece(1, k)))
	mustAdd(t, s, 2, 20, int(pl.NumKmersInPiece(2, k)))
	s.Sort()

	h, err := mphf.Build([]uint64{1, 2}, 5)
	if err != nil {
		t.Fatal(err)
	}
	bk := buckets.Build(s, h, pl.Length())
	return pl, bk, h
}

func mustAdd(t *testing.T, s *minimizers.Stream, minimizer, offset uint64, numKmers int) {
	t.Helper()
	if err := s.Add(minimizer, offset, numKmers); err != nil {
		t.Fatal(err)
	}
}

func TestBuildAndLookup(t *testing.T) {
	k := 4
	pl, bk, h := buildFixture(t, k)

	crowdedBucket := h.Lookup(1)
	quietBucket := h.Lookup(2)
	// bucket size 2 > threshold 2^0=1, so l=0 folds the crowded bucket in.
	l := 0

	si, err := Build(pl, bk, k, 99, l, true)
	if err != nil {
		t.Fatal(err)
	}
	if !si.Covers(bk.BucketSize(crowdedBucket)) {
		t.Fatal("expected the crowded bucket to be covered by the skew index")
	}
	if si.Covers(bk.BucketSize(quietBucket)) {
		t.Fatal("the quiet bucket (one string) should not be covered")
	}
	if si.NumCoveredBuckets() != 1 {
		t.Fatalf("NumCoveredBuckets() = %d, want 1", si.NumCoveredBuckets())
	}

	// every k-mer of both strings in the crowded bucket must be findable
	// via the skew index, reporting its owning string and the position of
	// its first occurrence (either orientation) within that string.
	start, end := bk.Range(crowdedBucket)
	for sid := start; sid < end; sid++ {
		offset := bk.Offset(sid)
		n := bk.NumKmers(sid)
		for i := uint64(0); i < n; i++ {
			x := pl.KmerAt(offset+i, k)
			wantPos := i
			for j := uint64(0); j < i; j++ {
				if y := pl.KmerAt(offset+j, k); y == x || y == kmer.RevComp(x, k) {
					wantPos = j
					break
				}
			}
			gotString, gotPos, ok := si.Lookup(pl, bk, k, crowdedBucket, x, true)
			if !ok {
				t.Fatalf("Lookup did not find k-mer at string %d offset %d", sid, i)
			}
			if gotString != sid || gotPos != wantPos {
				t.Fatalf("Lookup(%d) = (string %d, pos %d), want (string %d, pos %d)", x, gotString, gotPos, sid, wantPos)
			}
		}
	}
}

func TestLookupRejectsUncoveredBucket(t *testing.T) {
	k := 4
	pl, bk, h := buildFixture(t, k)
	quietBucket := h.Lookup(2)
	l := 0

	si, err := Build(pl, bk, k, 99, l, true)
	if err != nil {
		t.Fatal(err)
	}

	quietStart, _ := bk.Range(quietBucket) // the quiet bucket's only string
	offset := bk.Offset(quietStart)
	x := pl.KmerAt(offset, k)
	if _, _, ok := si.Lookup(pl, bk, k, quietBucket, x, true); ok {
		t.Fatal("Lookup should reject a bucket the skew index does not cover")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	k := 4
	pl, bk, h := buildFixture(t, k)
	crowdedBucket := h.Lookup(1)
	l := 0

	si, err := Build(pl, bk, k, 99, l, true)
	if err != nil {
		t.Fatal(err)
	}
	data, err := si.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var si2 SkewIndex
	if err := si2.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if si2.Threshold() != si.Threshold() {
		t.Fatal("threshold mismatch after round trip")
	}
	if si2.NumCoveredBuckets() != si.NumCoveredBuckets() {
		t.Fatal("numCovered mismatch after round trip")
	}

	crowdedStart, _ := bk.Range(crowdedBucket)
	offset := bk.Offset(crowdedStart)
	x := pl.KmerAt(offset, k)
	sid1, pos1, ok1 := si.Lookup(pl, bk, k, crowdedBucket, x, true)
	sid2, pos2, ok2 := si2.Lookup(pl, bk, k, crowdedBucket, x, true)
	if ok1 != ok2 || sid1 != sid2 || pos1 != pos2 {
		t.Fatal("lookup mismatch after round trip")
	}
}
