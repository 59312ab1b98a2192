// Package pool implements the compact string pool (C2): every base from
// every input piece packed at 2 bits each into one flat vector, with piece
// boundaries recorded separately so the original pieces can be recovered
// and so id -> k-mer lookups can find which piece (and which offset within
// it) an id belongs to. Grounded on build_index's two-pass
// "append_string"/prefix-sum construction in the original build.cpp, and on
// bitvec.CompactVector for the 2-bit packing itself.
package pool

import (
	"encoding/binary"
	"io"

	"github.com/NPSDC/sshash-go/src/bitvec"
	"github.com/NPSDC/sshash-go/src/eliasfano"
	"github.com/NPSDC/sshash-go/src/kmer"
)

// Builder accumulates bases and piece boundaries while the input is parsed.
type Builder struct {
	bases      []byte // raw ACGT bytes, packed only once Build is called
	boundaries []uint64
}

// NewBuilder returns an empty pool builder. boundaries always starts at 0:
// the first piece begins at base offset 0.
func NewBuilder() *Builder {
	return &Builder{boundaries: []uint64{0}}
}

// Append adds bases to the pool. If glue is true, bases is concatenated
// directly onto the previous piece (no new boundary is recorded) - this is
// how a single input sequence that had to be split across multiple
// super-k-mer runs still ends up as one contiguous piece. If glue is
// false, a new piece boundary is recorded first, so bases starts a piece
// of its own.
func (b *Builder) Append(bases string, glue bool) {
	if !glue && len(b.bases) > 0 {
		b.boundaries = append(b.boundaries, uint64(len(b.bases)))
	}
	b.bases = append(b.bases, bases...)
}

// Build finalises the pool: packs the accumulated bases at 2 bits each and
// Elias-Fano encodes the piece boundaries (plus a trailing sentinel at the
// pool's total length, so NumKmersInPiece never needs a special case for
// the last piece).
func (b *Builder) Build() *Pool {
	data := bitvec.NewCompactVector(uint64(len(b.bases)), 2)
	for i, c := range b.bases {
		code, ok := kmer.EncodeBase(c)
		if !ok {
			panic("pool: invalid base in accumulated sequence")
		}
		data.Set(uint64(i), code)
	}

	boundaries := b.boundaries
	if len(boundaries) == 0 || boundaries[len(boundaries)-1] != uint64(len(b.bases)) {
		boundaries = append(boundaries, uint64(len(b.bases)))
	}

	return &Pool{
		data:   data,
		pieces: eliasfano.Encode(boundaries),
	}
}

// Pool is the built, read-only compact string pool.
type Pool struct {
	data   *bitvec.CompactVector
	pieces *eliasfano.EliasFano
}

// Length returns the total number of bases stored in the pool.
func (p *Pool) Length() uint64 { return p.data.Size() }

// NumPieces returns the number of distinct pieces in the pool.
func (p *Pool) NumPieces() uint64 { return p.pieces.Size() - 1 }

// Base returns the base at offset i.
func (p *Pool) Base(i uint64) byte {
	return kmer.DecodeBase(p.data.Get(i))
}

// KmerAt reads the k bases starting at offset and packs them into a uint64
// using the same low-base-first convention as kmer.Encode.
func (p *Pool) KmerAt(offset uint64, k int) uint64 {
	var x uint64
	for i := 0; i < k; i++ {
		x |= p.data.Get(offset+uint64(i)) << uint(2*i)
	}
	return x
}

// PieceStart returns the base offset where piece i begins.
func (p *Pool) PieceStart(i uint64) uint64 {
	return p.pieces.Access(i)
}

// PieceLength returns the number of bases in piece i.
func (p *Pool) PieceLength(i uint64) uint64 {
	return p.pieces.Access(i+1) - p.pieces.Access(i)
}

// NumKmersInPiece returns how many k-mers piece i contains: its length
// minus k-1, the number of (k-1)-overlaps it takes to slide a window of
// length k across it.
func (p *Pool) NumKmersInPiece(i uint64, k int) uint64 {
	length := p.PieceLength(i)
	overlap := uint64(k - 1)
	if length < overlap {
		return 0
	}
	return length - overlap
}

// PieceIndexForOffset returns the index of the piece containing the base
// at the given pool offset, found by binary search over the monotone piece
// boundaries.
func (p *Pool) PieceIndexForOffset(offset uint64) uint64 {
	lo, hi := uint64(0), p.NumPieces()-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if p.PieceStart(mid) <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// KmerID returns the global k-mer id (an index in [0, TotalKmers(k))) for
// the k-mer whose first base sits at the given pool offset. Because every
// piece boundary in the pool falls at input-record granularity, the
// cumulative k-mer count before piece p telescopes to
// PieceStart(p) - p*(k-1), so the id is just offset - piece*(k-1).
func (p *Pool) KmerID(offset uint64, k int) uint64 {
	piece := p.PieceIndexForOffset(offset)
	return offset - piece*uint64(k-1)
}

// OffsetForKmerID inverts KmerID: given a global k-mer id, it returns the
// pool offset where that k-mer's bases start. It binary searches for the
// piece whose cumulative k-mer count (PieceStart(p) - p*(k-1), itself
// monotone in p) is the largest one not exceeding id.
func (p *Pool) OffsetForKmerID(id uint64, k int) uint64 {
	numPieces := p.NumPieces()
	lo, hi := uint64(0), numPieces-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		cumBefore := p.PieceStart(mid) - mid*uint64(k-1)
		if cumBefore <= id {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return id + lo*uint64(k-1)
}

// TotalKmers returns the total number of k-mers stored across every piece:
// the closed-form pieces[last] - numPieces*(k-1) used by the dictionary's
// id -> piece mapping, since every piece boundary in the pool is at input
// record granularity.
func (p *Pool) TotalKmers(k int) uint64 {
	numPieces := p.NumPieces()
	total := p.PieceStart(numPieces) // == pool length
	return total - numPieces*uint64(k-1)
}

// MarshalBinary serialises as: data blob length-prefixed + pieces blob
// length-prefixed.
func (p *Pool) MarshalBinary() ([]byte, error) {
	dataBlob, err := p.data.MarshalBinary()
	if err != nil {
		return nil, err
	}
	piecesBlob, err := p.pieces.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 16+len(dataBlob)+len(piecesBlob))
	buf = append(buf, le64(uint64(len(dataBlob)))...)
	buf = append(buf, dataBlob...)
	buf = append(buf, le64(uint64(len(piecesBlob)))...)
	buf = append(buf, piecesBlob...)
	return buf, nil
}

// UnmarshalBinary restores a Pool previously produced by MarshalBinary.
func (p *Pool) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return io.ErrUnexpectedEOF
	}
	dataLen := int(binary.LittleEndian.Uint64(data[0:8]))
	offset := 8
	if len(data) < offset+dataLen {
		return io.ErrUnexpectedEOF
	}
	cv := &bitvec.CompactVector{}
	if err := cv.UnmarshalBinary(data[offset : offset+dataLen]); err != nil {
		return err
	}
	offset += dataLen

	if len(data) < offset+8 {
		return io.ErrUnexpectedEOF
	}
	piecesLen := int(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8
	if len(data) < offset+piecesLen {
		return io.ErrUnexpectedEOF
	}
	ef := &eliasfano.EliasFano{}
	if _, err := ef.UnmarshalBinary(data[offset : offset+piecesLen]); err != nil {
		return err
	}

	p.data = cv
	p.pieces = ef
	return nil
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
