// Package parse reads the dictionary's input format: one sequence per
// record, each record a header line starting with '>' followed by one
// sequence line, the same two-line convention the teacher's own FASTQ
// reader (src/seqio) uses for its four-line records. Gzip detection lives
// at the CLI layer (cmd/ wraps the file handle with
// github.com/mholt/archiver before handing this package a plain
// io.Reader), matching src/stream/stream.go's ".gz suffix -> gzip.Reader"
// pattern one level up the call stack.
package parse

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/will-rowe/ntHash"

	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/kmer"
)

// ReadSequences scans r for sequence records, skipping header lines and
// blank lines, and returns the sequence lines upper-cased (core package
// case is always upper-case; this is the one place normalisation
// happens). Exact duplicate
// sequences are folded into a single record, the same way the teacher's
// minhash sketches use ntHash's rolling hash (src/minhash/bottomk.go) as a
// cheap stand-in for comparing the underlying bytes.
func ReadSequences(r io.Reader) ([]string, error) {
	sequences, _, err := readSequences(r)
	return sequences, err
}

// ReadSequencesWithAbundances is ReadSequences, but also returns, for
// every returned sequence, how many input records folded into it during
// de-duplication - the abundance count build --store-abundances packs
// into the dictionary's optional weights sidecar.
func ReadSequencesWithAbundances(r io.Reader) (sequences []string, abundances []uint64, err error) {
	return readSequences(r)
}

func readSequences(r io.Reader) ([]string, []uint64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var sequences []string
	var abundances []uint64
	index := make(map[uint64]int)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == '>' {
			continue
		}
		seq := strings.ToUpper(line)
		if !kmer.IsValid(seq) {
			return nil, nil, errors.Wrapf(config.ErrConfig, "input contains a non-ACGT base: %q", seq)
		}

		h, err := sequenceHash(seq)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse: hashing sequence for de-duplication")
		}
		if i, ok := index[h]; ok {
			abundances[i]++
			continue
		}
		index[h] = len(sequences)
		sequences = append(sequences, seq)
		abundances = append(abundances, 1)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "parse: reading input")
	}
	return sequences, abundances, nil
}

// sequenceHash hashes the whole of seq as a single ntHash window, giving a
// cheap fingerprint for exact-duplicate detection without ever needing to
// compare the raw bytes of two sequences directly.
func sequenceHash(seq string) (uint64, error) {
	b := []byte(seq)
	hasher, err := ntHash.New(&b, uint(len(b)))
	if err != nil {
		return 0, err
	}
	var h uint64
	for hv := range hasher.Hash(false) {
		h = hv
	}
	return h, nil
}
