package search

import (
	"testing"

	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/dictionary"
)

func buildDict(t *testing.T, seq string, k, m int) *dictionary.Dictionary {
	t.Helper()
	cfg := config.NewDefault()
	cfg.K = k
	cfg.M = m
	d, err := dictionary.Build([]string{seq}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSearchFindsWholeReadAsOneHit(t *testing.T) {
	seq := "ACGTACGTTGCATTAGGCATGCAAACCCGGGTTTAGGCTAGCTAGGCATT"
	d := buildDict(t, seq, 15, 6)

	hits, err := Search(d, seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1: %+v", len(hits), hits)
	}
	wantLen := uint64(len(seq) - 15 + 1)
	if hits[0].Len != wantLen {
		t.Fatalf("hit length = %d, want %d", hits[0].Len, wantLen)
	}
	if hits[0].ReadStart != 0 {
		t.Fatalf("hit read start = %d, want 0", hits[0].ReadStart)
	}
}

func TestSearchBreaksOnMismatch(t *testing.T) {
	seq := "ACGTACGTTGCATTAGGCATGCAAACCCGGGTTTAGGCTAGCTAGGCATT"
	d := buildDict(t, seq, 15, 6)

	read := seq[:20] + "TTTTTTTTTTTTTTTTTTTT" + seq[20:]
	hits, err := Search(d, read)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) < 2 {
		t.Fatalf("expected the inserted junk to split the read into at least 2 hits, got %d", len(hits))
	}
}

func TestSearchEmptyOnShortRead(t *testing.T) {
	seq := "ACGTACGTTGCATTAGGCATGCAAACCCGGGTTTAGGCTAGCTAGGCATT"
	d := buildDict(t, seq, 15, 6)

	hits, err := Search(d, "ACGT")
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Fatalf("expected no hits for a read shorter than k, got %+v", hits)
	}
}
