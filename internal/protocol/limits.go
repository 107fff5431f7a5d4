package protocol

import (
	"encoding/binary"
	"math"
)

// MaxIdentityLength caps a login name in bytes. Every owner in a BOARD
// snapshot is a logged-in identity, so this also caps the size of a cell.
const MaxIdentityLength = 64

// maxCellBytes is the largest encoding of one BOARD cell: color byte, a
// one-byte owner length (MaxIdentityLength < 128), the owner and a full-width
// timestamp varint.
const maxCellBytes = 1 + 1 + MaxIdentityLength + binary.MaxVarintLen64

// maxBoundedDimension keeps dim² × maxCellBytes inside uint64.
const maxBoundedDimension = 1 << 24

// ValidIdentity reports whether name may be used to log in.
func ValidIdentity(name string) bool {
	return name != "" && len(name) <= MaxIdentityLength
}

// MaxBoardPayload returns the largest BOARD payload a dim x dim board can
// produce while every owner respects MaxIdentityLength.
func MaxBoardPayload(dim int) uint64 {
	if dim < 1 {
		return 0
	}
	if dim > maxBoundedDimension {
		return math.MaxUint64
	}
	d := uint64(dim)
	return uint64(uvarintLen(d)) + d*d*maxCellBytes
}

// MaxBoardDimension returns the largest dimension whose worst-case BOARD
// payload fits in maxFrameSize, or 0 if not even one cell fits.
func MaxBoardDimension(maxFrameSize int) int {
	if maxFrameSize < 1 {
		return 0
	}
	limit := uint64(maxFrameSize)
	dim := int(math.Sqrt(float64(maxFrameSize) / maxCellBytes))
	for dim > 0 && MaxBoardPayload(dim) > limit {
		dim--
	}
	for dim < maxBoundedDimension && MaxBoardPayload(dim+1) <= limit {
		dim++
	}
	return dim
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
