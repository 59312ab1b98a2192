package contigtable

import "testing"

func TestBuildAndRange(t *testing.T) {
	contigIDs := []uint64{100, 200, 300}
	lengths := []uint64{5, 3, 7}

	tbl, err := Build(contigIDs, lengths, 11)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.NumContigs() != 3 {
		t.Fatalf("NumContigs() = %d, want 3", tbl.NumContigs())
	}

	total := uint64(0)
	for i, id := range contigIDs {
		start, end, ok := tbl.Range(id)
		if !ok {
			t.Fatalf("Range(%d) not found", id)
		}
		if end-start != lengths[i] {
			t.Fatalf("Range(%d) spans %d k-mers, want %d", id, end-start, lengths[i])
		}
		total += end - start
	}
	want := uint64(5 + 3 + 7)
	if total != want {
		t.Fatalf("total k-mers covered = %d, want %d", total, want)
	}

	if _, _, ok := tbl.Range(9999); ok {
		t.Fatal("expected Range for an unknown contig id to report not found")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	contigIDs := []uint64{1, 2, 3, 4}
	lengths := []uint64{2, 4, 6, 8}
	tbl, err := Build(contigIDs, lengths, 3)
	if err != nil {
		t.Fatal(err)
	}
	data, err := tbl.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var tbl2 ContigTable
	if err := tbl2.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	for i, id := range contigIDs {
		s1, e1, _ := tbl.Range(id)
		s2, e2, _ := tbl2.Range(id)
		if s1 != s2 || e1 != e2 {
			t.Fatalf("contig %d range mismatch after round trip", lengths[i])
		}
	}
}
