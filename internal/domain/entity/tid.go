package entity

import (
	"math/rand/v2"
	"time"

	domainerrors "lens/internal/domain/errors"
)

// base32Sort is the sortable base32 alphabet used for TIDs. The digits are
// in ASCII order and exclude 0, 1, 8 and 9, so lexicographic comparison of
// encoded strings matches numeric comparison of the underlying values.
const base32Sort = "234567abcdefghijklmnopqrstuvwxyz"

// TID layout, most significant bit first: 1 reserved zero bit, 53 bits of
// microsecond UNIX timestamp, 10 bits of clock discriminator.
const (
	tidLength    = 13
	clockIDBits  = 10
	clockIDMask  = 0x3FF
	microsMask   = 0x1F_FFFF_FFFF_FFFF
	integerMask  = 0x7FFF_FFFF_FFFF_FFFF
	charBitWidth = 5
)

// TID is a time-sortable record key. The zero value is not a valid TID.
type TID uint64

// NewTID composes a TID from a microsecond UNIX timestamp and a clock
// discriminator. Out-of-range inputs are masked into range.
func NewTID(unixMicros int64, clockID uint16) TID {
	v := (uint64(unixMicros)&microsMask)<<clockIDBits | uint64(clockID)&clockIDMask

	return TID(v & integerMask)
}

// GenerateTID returns a TID for the current wall clock with a random
// clock discriminator, used to avoid collisions between concurrent
// writers within the same timestamp.
func GenerateTID() TID {
	return GenerateTIDAt(time.Now(), uint16(rand.IntN(clockIDMask+1)))
}

// GenerateTIDAt returns the TID for the given instant and clock discriminator.
func GenerateTIDAt(t time.Time, clockID uint16) TID {
	return NewTID(t.UnixMicro(), clockID)
}

// ParseTID decodes the canonical 13-character textual form. It fails with
// ErrInvalidFormat when the length is wrong or any character falls outside
// the sortable alphabet.
func ParseTID(s string) (TID, error) {
	if len(s) != tidLength {
		return 0, domainerrors.ErrInvalidFormat.WrapMessage("tid must be exactly 13 characters")
	}

	var v uint64
	for _, c := range []byte(s) {
		digit := base32SortIndex(c)
		if digit < 0 {
			return 0, domainerrors.ErrInvalidFormat.WrapMessage("tid contains characters outside the sortable alphabet")
		}
		v = v<<charBitWidth | uint64(digit)
	}

	return TID(v & integerMask), nil
}

// String encodes the TID as exactly 13 sortable base32 characters, most
// significant digit first, zero padded.
func (t TID) String() string {
	var buf [tidLength]byte
	v := uint64(t) & integerMask
	for i := tidLength - 1; i >= 0; i-- {
		buf[i] = base32Sort[v&(1<<charBitWidth-1)]
		v >>= charBitWidth
	}

	return string(buf[:])
}

// UnixMicros recovers the microsecond timestamp carried by the TID.
func (t TID) UnixMicros() int64 {
	return int64(uint64(t) >> clockIDBits & microsMask)
}

// Time recovers the timestamp as a time.Time, at microsecond precision.
func (t TID) Time() time.Time {
	return time.UnixMicro(t.UnixMicros()).UTC()
}

// ClockID recovers the 10-bit clock discriminator.
func (t TID) ClockID() uint16 {
	return uint16(uint64(t) & clockIDMask)
}

func base32SortIndex(c byte) int {
	switch {
	case c >= '2' && c <= '7':
		return int(c - '2')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 6
	default:
		return -1
	}
}
