// Package eliasfano implements the Elias-Fano encoding of a monotone
// non-decreasing sequence of integers, used by the dictionary to compress
// the compact string pool's piece boundaries and the buckets' cumulative
// string counts. Grounded on the Elias-Fano encoder/decoder reference
// implementation in the examples pack, rewritten against bitvec.BitVector
// and given a proper binary serialisation so it can be embedded in the
// dictionary's on-disk layout.
package eliasfano

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/NPSDC/sshash-go/src/bitvec"
)

// EliasFano holds a compressed monotone non-decreasing sequence of n values,
// each strictly less than universe (the sequence's upper bound).
type EliasFano struct {
	universe uint64
	n        uint64
	lowWidth uint8
	low      *bitvec.CompactVector
	high     *bitvec.BitVector
}

// log2ceil returns ceil(log2(x)), with log2ceil(0) = 0.
func log2ceil(x uint64) uint8 {
	if x == 0 {
		return 0
	}
	return uint8(bits.Len64(x - 1))
}

// Encode builds an EliasFano structure over a monotone non-decreasing
// sequence. The caller guarantees sequence[i] <= sequence[i+1].
func Encode(sequence []uint64) *EliasFano {
	n := uint64(len(sequence))
	var universe uint64
	if n > 0 {
		universe = sequence[n-1] + 1
	}

	lowWidth := uint8(0)
	if n > 0 && universe > n {
		lowWidth = log2ceil(universe / n)
	}

	ef := &EliasFano{
		universe: universe,
		n:        n,
		lowWidth: lowWidth,
		low:      bitvec.NewCompactVector(n, lowWidth),
	}

	highUniverse := universe >> lowWidth
	highSize := n + highUniverse + 1
	ef.high = bitvec.New(highSize)

	for i, v := range sequence {
		if lowWidth > 0 {
			ef.low.Set(uint64(i), v&((uint64(1)<<lowWidth)-1))
		}
		ef.high.SetBit((v >> lowWidth) + uint64(i))
	}
	return ef
}

// Size returns the number of encoded values.
func (ef *EliasFano) Size() uint64 { return ef.n }

// Universe returns the exclusive upper bound of the encoded sequence.
func (ef *EliasFano) Universe() uint64 { return ef.universe }

// Access decodes the i-th value without decoding the whole sequence.
func (ef *EliasFano) Access(i uint64) uint64 {
	if i >= ef.n {
		panic(fmt.Sprintf("eliasfano: index %d out of range (%d)", i, ef.n))
	}
	highPart := ef.high.Select(i) - i
	if ef.lowWidth == 0 {
		return highPart
	}
	lowPart := ef.low.Get(i)
	return (highPart << ef.lowWidth) | lowPart
}

// MarshalBinary serialises as: universe(8) + n(8) + lowWidth(1) +
// low CompactVector blob + high BitVector blob, each self-describing its
// own length so the reader never needs external framing.
func (ef *EliasFano) MarshalBinary() ([]byte, error) {
	lowData, err := ef.low.MarshalBinary()
	if err != nil {
		return nil, err
	}
	highData, err := ef.high.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 8+8+1+8+len(lowData)+8+len(highData))
	tmp := make([]byte, 8)

	binary.LittleEndian.PutUint64(tmp, ef.universe)
	buf = append(buf, tmp...)
	binary.LittleEndian.PutUint64(tmp, ef.n)
	buf = append(buf, tmp...)
	buf = append(buf, ef.lowWidth)

	binary.LittleEndian.PutUint64(tmp, uint64(len(lowData)))
	buf = append(buf, tmp...)
	buf = append(buf, lowData...)

	binary.LittleEndian.PutUint64(tmp, uint64(len(highData)))
	buf = append(buf, tmp...)
	buf = append(buf, highData...)

	return buf, nil
}

// UnmarshalBinary restores an EliasFano previously produced by MarshalBinary.
func (ef *EliasFano) UnmarshalBinary(data []byte) (int, error) {
	if len(data) < 17 {
		return 0, io.ErrUnexpectedEOF
	}
	ef.universe = binary.LittleEndian.Uint64(data[0:8])
	ef.n = binary.LittleEndian.Uint64(data[8:16])
	ef.lowWidth = data[16]
	offset := 17

	if len(data) < offset+8 {
		return 0, io.ErrUnexpectedEOF
	}
	lowLen := int(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8
	if len(data) < offset+lowLen {
		return 0, io.ErrUnexpectedEOF
	}
	ef.low = &bitvec.CompactVector{}
	if err := ef.low.UnmarshalBinary(data[offset : offset+lowLen]); err != nil {
		return 0, err
	}
	offset += lowLen

	if len(data) < offset+8 {
		return 0, io.ErrUnexpectedEOF
	}
	highLen := int(binary.LittleEndian.Uint64(data[offset : offset+8]))
	offset += 8
	if len(data) < offset+highLen {
		return 0, io.ErrUnexpectedEOF
	}
	ef.high = &bitvec.BitVector{}
	if err := ef.high.UnmarshalBinary(data[offset : offset+highLen]); err != nil {
		return 0, err
	}
	offset += highLen

	return offset, nil
}
