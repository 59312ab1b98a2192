// Package dictionary implements the dictionary (C7): the top-level
// structure that orchestrates every other component into the two
// operations the whole module exists for - kmer -> id (Lookup) and
// id -> kmer (Access) - plus a forward iterator over every k-mer it holds.
// Grounded on dictionary::build()'s four-stage pipeline in the original
// build.cpp (parse -> sort tuples -> build minimizer MPHF -> build buckets
// -> build skew index), reproduced here stage for stage.
package dictionary

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/NPSDC/sshash-go/src/bitvec"
	"github.com/NPSDC/sshash-go/src/buckets"
	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/contigtable"
	"github.com/NPSDC/sshash-go/src/kmer"
	"github.com/NPSDC/sshash-go/src/minimizers"
	"github.com/NPSDC/sshash-go/src/mphf"
	"github.com/NPSDC/sshash-go/src/pipeline"
	"github.com/NPSDC/sshash-go/src/pool"
	"github.com/NPSDC/sshash-go/src/skewindex"
	"github.com/NPSDC/sshash-go/src/weights"
)

// Dictionary is the built, read-only, queryable k-mer dictionary.
type Dictionary struct {
	cfg *config.BuildConfiguration
	pl  *pool.Pool
	mm  *mphf.MPHF
	bk  *buckets.Buckets
	si  *skewindex.SkewIndex
	wt  *weights.Weights // optional, built only when cfg.StoreAbundances is set

	// n is the number of distinct dictionary k-mers after folding
	// duplicates (and, in canonical mode, reverse-complement pairs) onto
	// one id - the dictionary's actual N, as opposed to the pool's raw
	// physical k-mer count.
	n uint64
	// physicalToLogical maps a physical pool k-mer id (pool.KmerID's
	// space, one entry per overlapping window, duplicates included) to
	// its dictionary id.
	physicalToLogical *bitvec.CompactVector
	// logicalOffset maps a dictionary id to the pool offset of that
	// k-mer's first physical occurrence, the representative Access reads
	// back through.
	logicalOffset *bitvec.CompactVector
}

// Build runs the full pipeline over a set of raw input sequences: append
// every sequence to the compact string pool as its own piece, scan each
// piece into minimizer-run tuples, sort the tuple stream, build the
// minimizer MPHF (C4), lay out the bucket table (C5), fold crowded
// buckets into the skew index (C6), and finally collapse repeated k-mers
// onto a single id each.
func Build(sequences []string, cfg *config.BuildConfiguration) (*Dictionary, error) {
	return BuildWithAbundances(sequences, nil, cfg)
}

// BuildWithAbundances is Build, plus an optional per-sequence abundance
// count (e.g. the number of identical raw records a deduplication pass
// folded together). When cfg.StoreAbundances is set, the abundance of
// every dictionary k-mer is the sum of the abundances of every physical
// occurrence that folded onto it, packed into the optional weights
// sidecar (src/weights) and readable back through Dictionary.Abundance.
// abundances may be nil or shorter than sequences; any sequence missing
// an entry defaults to an abundance of 1.
func BuildWithAbundances(sequences []string, abundances []uint64, cfg *config.BuildConfiguration) (*Dictionary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pb := pool.NewBuilder()
	var pieceAbundances []uint64
	for i, seq := range sequences {
		if !kmer.IsValid(seq) {
			return nil, errors.Wrapf(config.ErrConfig, "sequence contains a non-ACGT base")
		}
		if len(seq) < cfg.K {
			continue
		}
		pb.Append(seq, false)
		a := uint64(1)
		if i < len(abundances) {
			a = abundances[i]
		}
		pieceAbundances = append(pieceAbundances, a)
	}
	pl := pb.Build()
	if pl.NumPieces() == 0 {
		return nil, errors.Wrap(config.ErrConfig, "no sequence long enough to contain a k-mer was supplied")
	}

	numPieces := int(pl.NumPieces())
	perPiece := make([][]minimizers.Tuple, numPieces)
	err := pipeline.RunWorkers(numPieces, cfg.NumThreads, func(i int) error {
		local := minimizers.NewStream()
		if err := scanPiece(pl, local, uint64(i), cfg.K, cfg.M, cfg.Seed, cfg.Canonical); err != nil {
			return err
		}
		perPiece[i] = local.Tuples()
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning input into minimizer runs")
	}

	stream := minimizers.NewStream()
	for _, tuples := range perPiece {
		for _, t := range tuples {
			if err := stream.Add(t.Minimizer, t.Offset, int(t.NumKmers)); err != nil {
				return nil, errors.Wrap(err, "merging per-piece minimizer runs")
			}
		}
	}
	stream.Sort()

	mm, err := mphf.Build(distinctMinimizers(stream), cfg.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "building minimizer MPHF")
	}

	bk := buckets.Build(stream, mm, pl.Length())

	si, err := skewindex.Build(pl, bk, cfg.K, cfg.Seed, cfg.L, cfg.Canonical)
	if err != nil {
		return nil, errors.Wrap(err, "building skew index")
	}

	physicalToLogical, firstOffsets := foldDuplicates(pl, cfg.K, cfg.Canonical)
	n := uint64(len(firstOffsets))
	logicalOffset := bitvec.NewCompactVector(n, widthFor(pl.Length()-1))
	for id, offset := range firstOffsets {
		logicalOffset.Set(uint64(id), offset)
	}

	dict := &Dictionary{
		cfg:               cfg,
		pl:                pl,
		mm:                mm,
		bk:                bk,
		si:                si,
		n:                 n,
		physicalToLogical: physicalToLogical,
		logicalOffset:     logicalOffset,
	}

	if cfg.StoreAbundances {
		dict.wt = weights.Build(foldAbundances(physicalToLogical, n, expandPerKmer(pl, cfg.K, pieceAbundances)))
	}

	return dict, nil
}

// foldDuplicates walks every physical k-mer (pool.KmerID's space, in
// increasing id order, duplicates included) and assigns it the dictionary
// id of the first physical occurrence of the same k-mer - or, in
// canonical mode, of min(kmer, revcomp(kmer)). It returns the per-physical-
// id remap and, for every assigned dictionary id, the pool offset of that
// id's first physical occurrence (the representative Access decodes).
// Walking ids in increasing physical order, rather than hashing the whole
// pool at once, is what keeps a dictionary id's value equal to its plain
// physical id whenever the input has no internal duplicates - the common
// case - so builds without repeated k-mers see no change in numbering.
func foldDuplicates(pl *pool.Pool, k int, canonical bool) (*bitvec.CompactVector, []uint64) {
	total := pl.TotalKmers(k)
	physicalToLogical := make([]uint64, total)
	seen := make(map[uint64]uint64, total)
	var firstOffsets []uint64

	numPieces := pl.NumPieces()
	physicalID := uint64(0)
	for piece := uint64(0); piece < numPieces; piece++ {
		numKmers := pl.NumKmersInPiece(piece, k)
		if numKmers == 0 {
			continue
		}
		pieceStart := pl.PieceStart(piece)
		for pos := uint64(0); pos < numKmers; pos++ {
			offset := pieceStart + pos
			x := pl.KmerAt(offset, k)
			key := x
			if canonical {
				if rc := kmer.RevComp(x, k); rc < key {
					key = rc
				}
			}
			id, ok := seen[key]
			if !ok {
				id = uint64(len(firstOffsets))
				seen[key] = id
				firstOffsets = append(firstOffsets, offset)
			}
			physicalToLogical[physicalID] = id
			physicalID++
		}
	}

	n := uint64(len(firstOffsets))
	remap := bitvec.NewCompactVector(total, widthFor(n-1))
	for i, id := range physicalToLogical {
		remap.Set(uint64(i), id)
	}
	return remap, firstOffsets
}

// foldAbundances sums perPhysical (one entry per physical k-mer id) onto
// dictionary ids via physicalToLogical, giving the per-id abundance vector
// weights.Build expects.
func foldAbundances(physicalToLogical *bitvec.CompactVector, n uint64, perPhysical []uint64) []uint64 {
	perLogical := make([]uint64, n)
	for physicalID, a := range perPhysical {
		id := physicalToLogical.Get(uint64(physicalID))
		perLogical[id] += a
	}
	return perLogical
}

// expandPerKmer replicates each piece's single abundance value across every
// physical k-mer id that piece contains, giving the flat per-physical-id
// vector foldAbundances expects. Piece i's k-mer ids are contiguous (the
// same closed-form mapping pool.KmerID relies on), so each piece's span
// can be filled in one pass.
func expandPerKmer(pl *pool.Pool, k int, pieceAbundances []uint64) []uint64 {
	perKmer := make([]uint64, pl.TotalKmers(k))
	for i, a := range pieceAbundances {
		piece := uint64(i)
		n := pl.NumKmersInPiece(piece, k)
		if n == 0 {
			continue
		}
		start := pl.KmerID(pl.PieceStart(piece), k)
		for id := start; id < start+n; id++ {
			perKmer[id] = a
		}
	}
	return perKmer
}

// BuildContigTable constructs the optional contig table sidecar (C-CT) from
// a second set of raw contig sequences, independent of the sequences the
// dictionary itself was built from: contigIDs are assigned sequentially in
// input order, and each contig's length is its own k-mer count.
func BuildContigTable(contigSequences []string, k int, seed uint64) (*contigtable.ContigTable, error) {
	contigIDs := make([]uint64, 0, len(contigSequences))
	lengths := make([]uint64, 0, len(contigSequences))
	for i, seq := range contigSequences {
		if len(seq) < k {
			continue
		}
		contigIDs = append(contigIDs, uint64(i))
		lengths = append(lengths, uint64(len(seq)-k+1))
	}
	return contigtable.Build(contigIDs, lengths, seed)
}

// scanPiece walks piece i k-mer by k-mer, computing each k-mer's minimizer
// (canonical if cfg.Canonical, forward-only otherwise) and collapsing
// consecutive k-mers that share one into a single super-k-mer tuple. A run
// is also cut once it reaches W = k - m + 1 k-mers, the same bound
// append_string's num_blocks computation enforces in the original
// build.cpp, so a single super-k-mer never holds more k-mers than its
// minimizer window guarantees - independent of the uint16 tuple-width
// ceiling, which just backstops pathological m.
func scanPiece(pl *pool.Pool, stream *minimizers.Stream, piece uint64, k, m int, seed uint64, canonical bool) error {
	numKmers := pl.NumKmersInPiece(piece, k)
	if numKmers == 0 {
		return nil
	}
	pieceStart := pl.PieceStart(piece)

	w := k - m + 1
	maxRunLen := uint(w)
	if uint(minimizers.MaxNumKmers) < maxRunLen {
		maxRunLen = uint(minimizers.MaxNumKmers)
	}

	runStart := uint64(0)
	runMinimizer := canonicalMinimizer(pl, pieceStart, k, m, seed, canonical)

	flush := func(end uint64) error {
		return stream.Add(runMinimizer, pieceStart+runStart, int(end-runStart))
	}

	for pos := uint64(1); pos < numKmers; pos++ {
		mm := canonicalMinimizer(pl, pieceStart+pos, k, m, seed, canonical)
		runLen := pos - runStart
		if mm != runMinimizer || uint(runLen) >= maxRunLen {
			if err := flush(pos); err != nil {
				return err
			}
			runStart = pos
			runMinimizer = mm
		}
	}
	return flush(numKmers)
}

func canonicalMinimizer(pl *pool.Pool, offset uint64, k, m int, seed uint64, canonical bool) uint64 {
	x := pl.KmerAt(offset, k)
	key := x
	if canonical {
		if rc := kmer.RevComp(x, k); rc < key {
			key = rc
		}
	}
	return kmer.Minimizer(key, k, m, seed)
}

// distinctMinimizers returns the distinct minimizer values of a sorted
// stream, in ascending order - the key set the C4 MPHF is built over.
func distinctMinimizers(stream *minimizers.Stream) []uint64 {
	it := minimizers.NewGroupIterator(stream)
	var keys []uint64
	for it.HasNext() {
		keys = append(keys, it.Next().Minimizer)
	}
	return keys
}

// K returns the dictionary's k-mer length.
func (d *Dictionary) K() int { return d.cfg.K }

// M returns the dictionary's minimizer length.
func (d *Dictionary) M() int { return d.cfg.M }

// Seed returns the seed the dictionary was built with.
func (d *Dictionary) Seed() uint64 { return d.cfg.Seed }

// Canonical reports whether the dictionary was built with canonical
// parsing (a k-mer and its reverse complement share one id).
func (d *Dictionary) Canonical() bool { return d.cfg.Canonical }

// NumKmers returns N, the number of distinct dictionary k-mers, i.e. the
// exclusive upper bound of every valid id.
func (d *Dictionary) NumKmers() uint64 { return d.n }

// NumPieces returns the number of input records at least k bases long,
// i.e. the pieces the compact string pool was built from.
func (d *Dictionary) NumPieces() uint64 { return d.pl.NumPieces() }

// NumStrings returns the total number of super-k-mer strings indexed
// across every minimizer bucket.
func (d *Dictionary) NumStrings() uint64 { return d.bk.NumStrings() }

// NumBuckets returns the number of distinct minimizer buckets (C4 MPHF
// keys) the dictionary indexes.
func (d *Dictionary) NumBuckets() uint64 { return d.bk.NumBuckets() }

// NumSkewed returns how many buckets were crowded enough to be folded
// into the skew index (C6).
func (d *Dictionary) NumSkewed() uint64 {
	if d.si == nil {
		return 0
	}
	return d.si.NumCoveredBuckets()
}

// Abundance returns the abundance recorded for dictionary id, or
// ok=false if the dictionary was built without --store-abundances.
func (d *Dictionary) Abundance(id uint64) (count uint64, ok bool) {
	if d.wt == nil {
		return 0, false
	}
	return d.wt.Get(id), true
}

// Lookup returns the id assigned to kmerStr, which must be exactly K valid
// bases. found is false if the k-mer (in either orientation, when the
// dictionary is canonical) is not part of the dictionary.
func (d *Dictionary) Lookup(kmerStr string) (id uint64, found bool, err error) {
	if len(kmerStr) != d.cfg.K || !kmer.IsValid(kmerStr) {
		return 0, false, errors.Wrapf(config.ErrConfig, "lookup: query must be exactly %d valid bases", d.cfg.K)
	}
	return d.LookupEncoded(kmer.Encode(kmerStr, d.cfg.K))
}

// LookupEncoded is Lookup for a k-mer already packed into a uint64.
func (d *Dictionary) LookupEncoded(x uint64) (id uint64, found bool, err error) {
	k := d.cfg.K
	canonical := d.cfg.Canonical

	var rc uint64
	key := x
	if canonical {
		rc = kmer.RevComp(x, k)
		if rc < key {
			key = rc
		}
	}
	matches := func(candidate uint64) bool {
		return candidate == x || (canonical && candidate == rc)
	}

	mm := kmer.Minimizer(key, k, d.cfg.M, d.cfg.Seed)

	bucket := d.mm.Lookup(mm)
	if bucket >= d.mm.NumKeys() {
		return 0, false, nil
	}

	if d.si != nil && d.si.Covers(d.bk.BucketSize(bucket)) {
		sid, pos, ok := d.si.Lookup(d.pl, d.bk, k, bucket, x, canonical)
		if !ok {
			return 0, false, nil
		}
		physicalID := d.pl.KmerID(d.bk.Offset(sid)+pos, k)
		return d.physicalToLogical.Get(physicalID), true, nil
	}

	start, end := d.bk.Range(bucket)
	for sid := start; sid < end; sid++ {
		offset := d.bk.Offset(sid)
		n := d.bk.NumKmers(sid)
		for i := uint64(0); i < n; i++ {
			candidate := d.pl.KmerAt(offset+i, k)
			if matches(candidate) {
				physicalID := d.pl.KmerID(offset+i, k)
				return d.physicalToLogical.Get(physicalID), true, nil
			}
		}
	}
	return 0, false, nil
}

// Access reconstructs the k-mer assigned to id, as it first appeared in
// the input (the orientation of any folded duplicate's later occurrences
// is not recoverable, matching "up to reverse complement" in canonical
// mode).
func (d *Dictionary) Access(id uint64) (string, error) {
	if id >= d.n {
		return "", errors.Wrapf(config.ErrConfig, "access: id %d out of range [0, %d)", id, d.n)
	}
	offset := d.logicalOffset.Get(id)
	return kmer.String(d.pl.KmerAt(offset, d.cfg.K), d.cfg.K), nil
}

// Iterator walks every k-mer the dictionary holds, in id order.
type Iterator struct {
	d     *Dictionary
	id    uint64
	total uint64
}

// Iterate returns a fresh forward iterator over the dictionary.
func (d *Dictionary) Iterate() *Iterator {
	return &Iterator{d: d, total: d.NumKmers()}
}

// HasNext reports whether another k-mer remains.
func (it *Iterator) HasNext() bool { return it.id < it.total }

// Next returns the next (id, k-mer) pair and advances the iterator.
func (it *Iterator) Next() (uint64, string) {
	s, err := it.d.Access(it.id)
	if err != nil {
		panic(err) // unreachable: it.id < it.total is checked by HasNext
	}
	id := it.id
	it.id++
	return id, s
}

func widthFor(maxValue uint64) uint8 {
	if maxValue == 0 {
		return 1
	}
	return uint8(bits.Len64(maxValue))
}

// MarshalBinary serialises the dictionary as a scalar header (k, m, seed,
// canonical flag, sparsity, l, n) followed by the pool, minimizer MPHF,
// bucket table, skew index, duplicate-fold tables and optional weights
// blobs, each length-prefixed, matching the on-disk layout SPEC_FULL calls
// for. The weights blob is preceded by a one-byte presence flag since it
// is only built when --store-abundances was requested.
func (d *Dictionary) MarshalBinary() ([]byte, error) {
	plData, err := d.pl.MarshalBinary()
	if err != nil {
		return nil, err
	}
	mmData, err := d.mm.MarshalBinary()
	if err != nil {
		return nil, err
	}
	bkData, err := d.bk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	siData, err := d.si.MarshalBinary()
	if err != nil {
		return nil, err
	}
	p2lData, err := d.physicalToLogical.MarshalBinary()
	if err != nil {
		return nil, err
	}
	loData, err := d.logicalOffset.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var wtData []byte
	if d.wt != nil {
		wtData, err = d.wt.MarshalBinary()
		if err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, 56+len(plData)+len(mmData)+len(bkData)+len(siData)+len(p2lData)+len(loData)+len(wtData))
	header := make([]byte, 56)
	binary.LittleEndian.PutUint64(header[0:8], uint64(d.cfg.K))
	binary.LittleEndian.PutUint64(header[8:16], uint64(d.cfg.M))
	binary.LittleEndian.PutUint64(header[16:24], d.cfg.Seed)
	binary.LittleEndian.PutUint64(header[24:32], boolBits(d.cfg.Canonical))
	binary.LittleEndian.PutUint64(header[32:40], sparsityBits(d.cfg.Sparsity))
	binary.LittleEndian.PutUint64(header[40:48], uint64(d.cfg.L))
	binary.LittleEndian.PutUint64(header[48:56], d.n)
	buf = append(buf, header...)

	for _, blob := range [][]byte{plData, mmData, bkData, siData, p2lData, loData} {
		lenBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenBuf, uint64(len(blob)))
		buf = append(buf, lenBuf...)
		buf = append(buf, blob...)
	}

	if d.wt != nil {
		buf = append(buf, 1)
		lenBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(lenBuf, uint64(len(wtData)))
		buf = append(buf, lenBuf...)
		buf = append(buf, wtData...)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func sparsityBits(f float64) uint64 {
	return uint64(f * 1e6)
}

func sparsityFromBits(v uint64) float64 {
	return float64(v) / 1e6
}

// UnmarshalBinary restores a Dictionary previously produced by
// MarshalBinary.
func (d *Dictionary) UnmarshalBinary(data []byte) error {
	if len(data) < 56 {
		return io.ErrUnexpectedEOF
	}
	cfg := &config.BuildConfiguration{
		K:         int(binary.LittleEndian.Uint64(data[0:8])),
		M:         int(binary.LittleEndian.Uint64(data[8:16])),
		Seed:      binary.LittleEndian.Uint64(data[16:24]),
		Canonical: binary.LittleEndian.Uint64(data[24:32]) != 0,
		Sparsity:  sparsityFromBits(binary.LittleEndian.Uint64(data[32:40])),
		L:         int(binary.LittleEndian.Uint64(data[40:48])),
	}
	n := binary.LittleEndian.Uint64(data[48:56])
	offset := 56

	pl := &pool.Pool{}
	next, offset, err := readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := pl.UnmarshalBinary(next); err != nil {
		return err
	}

	mm := &mphf.MPHF{}
	next, offset, err = readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := mm.UnmarshalBinary(next); err != nil {
		return err
	}

	bk := &buckets.Buckets{}
	next, offset, err = readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := bk.UnmarshalBinary(next); err != nil {
		return err
	}

	si := &skewindex.SkewIndex{}
	next, offset, err = readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := si.UnmarshalBinary(next); err != nil {
		return err
	}

	p2l := &bitvec.CompactVector{}
	next, offset, err = readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := p2l.UnmarshalBinary(next); err != nil {
		return err
	}

	lo := &bitvec.CompactVector{}
	next, offset, err = readFramed(data, offset)
	if err != nil {
		return err
	}
	if err := lo.UnmarshalBinary(next); err != nil {
		return err
	}

	var wt *weights.Weights
	if len(data) > offset {
		hasWeights := data[offset]
		offset++
		if hasWeights == 1 {
			next, _, err = readFramed(data, offset)
			if err != nil {
				return err
			}
			wt = &weights.Weights{}
			if err := wt.UnmarshalBinary(next); err != nil {
				return err
			}
		}
	}

	d.cfg = cfg
	d.pl = pl
	d.mm = mm
	d.bk = bk
	d.si = si
	d.n = n
	d.physicalToLogical = p2l
	d.logicalOffset = lo
	d.wt = wt
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
