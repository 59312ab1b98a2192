package dictionary

import (
	"testing"

	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/kmer"
)

func testConfig(k, m int, canonical bool) *config.BuildConfiguration {
	cfg := config.NewDefault()
	cfg.K = k
	cfg.M = m
	cfg.Canonical = canonical
	return cfg
}

// bruteForceKmers is an independent, non-incremental re-implementation of
// the dictionary's own folding rule: every k-mer substring of sequences,
// keyed on itself when canonical is false, or on min(kmer, revcomp(kmer))
// when it is true. Used as an oracle for NumKmers() and Lookup() in the
// tests below, so it must stay a literal restatement of the rule, not a
// call into the package under test.
func bruteForceKmers(sequences []string, k int, canonical bool) map[string]bool {
	set := make(map[string]bool)
	for _, seq := range sequences {
		for i := 0; i+k <= len(seq); i++ {
			kmerStr := seq[i : i+k]
			key := kmerStr
			if canonical {
				rc := kmer.String(kmer.RevComp(kmer.Encode(kmerStr, k), k), k)
				if rc < key {
					key = rc
				}
			}
			set[key] = true
		}
	}
	return set
}

func TestBuildLookupAccessRoundTrip(t *testing.T) {
	sequences := []string{
		"ACGTACGTTGCATTAGGCATGCAAACCCGGGTTTAGGCTAGCTAGGCATTACGATCGATCG",
		"TTTTGGGGCCCCAAAAGGGGCCCCTTTTAAAACCCCGGGGTTTTAAAAGGGGCCCC",
	}
	cfg := testConfig(15, 6, true)
	d, err := Build(sequences, cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := bruteForceKmers(sequences, cfg.K, cfg.Canonical)
	if uint64(len(want)) == 0 {
		t.Fatal("test fixture produced no k-mers")
	}
	if d.NumKmers() != uint64(len(want)) {
		t.Fatalf("NumKmers() = %d, want %d", d.NumKmers(), len(want))
	}

	seenIDs := make(map[uint64]bool)
	for kmerStr := range want {
		id, found, err := d.Lookup(kmerStr)
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatalf("Lookup(%s) not found, want found", kmerStr)
		}
		if id >= d.NumKmers() {
			t.Fatalf("Lookup(%s) = %d, out of range [0, %d)", kmerStr, id, d.NumKmers())
		}
		if seenIDs[id] {
			t.Fatalf("id %d assigned to more than one distinct k-mer", id)
		}
		seenIDs[id] = true

		got, err := d.Access(id)
		if err != nil {
			t.Fatal(err)
		}
		gotRC := kmer.String(kmer.RevComp(kmer.Encode(got, cfg.K), cfg.K), cfg.K)
		if got != kmerStr && gotRC != kmerStr {
			t.Fatalf("Access(Lookup(%s)) = %s, neither it nor its reverse complement match", kmerStr, got)
		}
	}
}

func TestLookupRejectsWrongLength(t *testing.T) {
	cfg := testConfig(11, 4, false)
	d, err := Build([]string{"ACGTACGTACGTACGTACGT"}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := d.Lookup("ACGT"); err == nil {
		t.Fatal("expected an error for a query of the wrong length")
	}
}

func TestLookupMissingKmerNotFound(t *testing.T) {
	cfg := testConfig(11, 4, false)
	d, err := Build([]string{"ACGTACGTACGTACGTACGT"}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, found, err := d.Lookup("TTTTTTTTTTT")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected a k-mer absent from the input to not be found")
	}
}

func TestIterateCoversEveryID(t *testing.T) {
	cfg := testConfig(9, 4, false)
	d, err := Build([]string{"ACGTACGTTGCATTAGGCATGCAAACCC"}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	it := d.Iterate()
	count := uint64(0)
	seen := make(map[uint64]bool)
	for it.HasNext() {
		id, s := it.Next()
		if len(s) != cfg.K {
			t.Fatalf("iterated k-mer %q has length %d, want %d", s, len(s), cfg.K)
		}
		seen[id] = true
		count++
	}
	if count != d.NumKmers() {
		t.Fatalf("iterated %d k-mers, want %d", count, d.NumKmers())
	}
	if uint64(len(seen)) != d.NumKmers() {
		t.Fatal("iterator produced duplicate ids")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	sequences := []string{"ACGTACGTTGCATTAGGCATGCAAACCCGGGTTTAGGCTAGCTAGGCATTACGATCGATCG"}
	cfg := testConfig(13, 5, true)
	d, err := Build(sequences, cfg)
	if err != nil {
		t.Fatal(err)
	}

	data, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var d2 Dictionary
	if err := d2.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if d2.NumKmers() != d.NumKmers() || d2.K() != d.K() || d2.M() != d.M() || d2.Seed() != d.Seed() || d2.Canonical() != d.Canonical() {
		t.Fatal("metadata mismatch after round trip")
	}

	for kmerStr := range bruteForceKmers(sequences, cfg.K, cfg.Canonical) {
		id1, found1, err := d.Lookup(kmerStr)
		if err != nil {
			t.Fatal(err)
		}
		id2, found2, err := d2.Lookup(kmerStr)
		if err != nil {
			t.Fatal(err)
		}
		if found1 != found2 || id1 != id2 {
			t.Fatalf("Lookup(%s) mismatch after round trip: (%d,%v) vs (%d,%v)", kmerStr, id1, found1, id2, found2)
		}
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(4, 6, false) // m > k
	if _, err := Build([]string{"ACGTACGT"}, cfg); err == nil {
		t.Fatal("expected an error when m > k")
	}
}

// TestEndToEndScenarios runs the dictionary through six worked scenarios,
// each exercising one named invariant or edge case end to end: repeated
// k-mers within one record, a record made of a single repeated base,
// reverse-complement folding across records, the super-k-mer window
// bound, skew-index transparency across l, and a negative one-base
// mismatch. The first three subtests would have failed against a build
// pipeline that never deduplicates k-mers.
func TestEndToEndScenarios(t *testing.T) {
	t.Run("repeated k-mer within one record folds onto one id", func(t *testing.T) {
		// "ACGTACGTA", k=5: windows are ACGTA, CGTAC, GTACG, TACGT, ACGTA -
		// five physical windows, but ACGTA repeats, so only 4 are distinct.
		seq := "ACGTACGTA"
		cfg := testConfig(5, 3, false)
		d, err := Build([]string{seq}, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if d.NumKmers() != 4 {
			t.Fatalf("NumKmers() = %d, want 4", d.NumKmers())
		}
		id, found, err := d.Lookup("ACGTA")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("ACGTA not found")
		}
		got, err := d.Access(id)
		if err != nil {
			t.Fatal(err)
		}
		if got != "ACGTA" {
			t.Fatalf("Access(Lookup(ACGTA)) = %s, want ACGTA", got)
		}
	})

	t.Run("a record of one repeated base collapses to a single k-mer", func(t *testing.T) {
		// "AAAAAAAA", k=4: five overlapping AAAA windows, all identical.
		seq := "AAAAAAAA"
		cfg := testConfig(4, 2, false)
		d, err := Build([]string{seq}, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if d.NumKmers() != 1 {
			t.Fatalf("NumKmers() = %d, want 1", d.NumKmers())
		}
		id, found, err := d.Lookup("AAAA")
		if err != nil {
			t.Fatal(err)
		}
		if !found || id != 0 {
			t.Fatalf("Lookup(AAAA) = (%d, %v), want (0, true)", id, found)
		}
		got, err := d.Access(0)
		if err != nil {
			t.Fatal(err)
		}
		if got != "AAAA" {
			t.Fatalf("Access(0) = %s, want AAAA", got)
		}
	})

	t.Run("canonical parsing folds reverse-complement pairs across records", func(t *testing.T) {
		// GTGTGT is the reverse complement of ACACAC, so these two
		// periodic records index the same canonical k-mer set once
		// folded, even though they share no literal forward substring.
		sequences := []string{"ACACACACAC", "GTGTGTGTGT"}
		k, m := 6, 3
		want := bruteForceKmers(sequences, k, true)

		cfg := testConfig(k, m, true)
		d, err := Build(sequences, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if d.NumKmers() != uint64(len(want)) {
			t.Fatalf("NumKmers() = %d, want %d", d.NumKmers(), len(want))
		}
		id1, found1, err := d.Lookup("ACACAC")
		if err != nil {
			t.Fatal(err)
		}
		id2, found2, err := d.Lookup("GTGTGT")
		if err != nil {
			t.Fatal(err)
		}
		if !found1 || !found2 || id1 != id2 {
			t.Fatalf("Lookup(ACACAC)=(%d,%v) Lookup(GTGTGT)=(%d,%v), want equal ids", id1, found1, id2, found2)
		}

		nonCanonical := testConfig(k, m, false)
		d2, err := Build(sequences, nonCanonical)
		if err != nil {
			t.Fatal(err)
		}
		wantForward := bruteForceKmers(sequences, k, false)
		if d2.NumKmers() != uint64(len(wantForward)) {
			t.Fatalf("forward-only NumKmers() = %d, want %d", d2.NumKmers(), len(wantForward))
		}
		if d2.NumKmers() <= d.NumKmers() {
			t.Fatalf("forward-only NumKmers() = %d should exceed canonical NumKmers() = %d", d2.NumKmers(), d.NumKmers())
		}
	})

	t.Run("super-k-mer runs never exceed the window bound", func(t *testing.T) {
		k, m := 3, 2 // W = k - m + 1 = 2
		seq := "ACGTACGATCGGATCGTAGCTAGCATCGATCGTAGCATCG" // 40 bases
		cfg := testConfig(k, m, false)
		d, err := Build([]string{seq}, cfg)
		if err != nil {
			t.Fatal(err)
		}
		w := uint64(k - m + 1)
		for sid := uint64(0); sid < d.NumStrings(); sid++ {
			if n := d.bk.NumKmers(sid); n > w {
				t.Fatalf("string %d holds %d k-mers, want at most %d (W)", sid, n, w)
			}
		}
	})

	t.Run("skew index coverage is transparent to the result", func(t *testing.T) {
		seq := "ACGTACGATCGGATCGTAGCTAGCATCGATCGTAGCATCGGTACGATCGATCGGCATCGAGGTTCCAAGGTTCCAA"
		k, m := 10, 4
		want := bruteForceKmers([]string{seq}, k, false)

		crowded := testConfig(k, m, false)
		crowded.L = 2 // small threshold: most buckets get folded into the skew index
		dCrowded, err := Build([]string{seq}, crowded)
		if err != nil {
			t.Fatal(err)
		}

		quiet := testConfig(k, m, false)
		quiet.L = config.MaxSkewMinLog2 // threshold unreachable: skew index empty
		dQuiet, err := Build([]string{seq}, quiet)
		if err != nil {
			t.Fatal(err)
		}

		if dCrowded.NumKmers() != dQuiet.NumKmers() || dCrowded.NumKmers() != uint64(len(want)) {
			t.Fatalf("NumKmers() differs across l (%d vs %d), want %d", dCrowded.NumKmers(), dQuiet.NumKmers(), len(want))
		}
		for kmerStr := range want {
			id1, found1, err := dCrowded.Lookup(kmerStr)
			if err != nil {
				t.Fatal(err)
			}
			id2, found2, err := dQuiet.Lookup(kmerStr)
			if err != nil {
				t.Fatal(err)
			}
			if !found1 || !found2 || id1 != id2 {
				t.Fatalf("Lookup(%s) differs across l: (%d,%v) vs (%d,%v)", kmerStr, id1, found1, id2, found2)
			}
		}
	})

	t.Run("a single base mismatch is rejected", func(t *testing.T) {
		seq := "ACGTACGATCGGATCGTAGCTAGCATCGATCGTAGCATCGGTACG"
		k, m := 11, 5
		cfg := testConfig(k, m, false)
		d, err := Build([]string{seq}, cfg)
		if err != nil {
			t.Fatal(err)
		}
		indexed := seq[:k]
		mismatched := "T" + indexed[1:]
		want := bruteForceKmers([]string{seq}, k, false)
		if want[mismatched] {
			t.Fatalf("test fixture invalid: %s is itself present in the input", mismatched)
		}
		if _, found, err := d.Lookup(mismatched); err != nil {
			t.Fatal(err)
		} else if found {
			t.Fatalf("Lookup(%s) unexpectedly found, differs from indexed k-mer %s by one base", mismatched, indexed)
		}
	})
}
