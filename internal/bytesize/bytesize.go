// Package bytesize provides a byte count type for configuration values such
// as the SMB maximum message size, written either as plain integers or in
// human units ("64Ki", "8MiB", "1 MB").
package bytesize

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a number of bytes.
type ByteSize uint64

const (
	KiB ByteSize = 1 << 10
	MiB ByteSize = 1 << 20
	GiB ByteSize = 1 << 30
)

// Parse reads a byte count. Units follow go-humanize: "Ki"/"KiB" are powers
// of 1024, "K"/"KB" powers of 1000, and a bare number is bytes.
func Parse(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText lets viper and yaml decode a ByteSize from a string.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalText writes the value in binary units so that it reads back exactly
// when it is a whole number of KiB, MiB or GiB.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.Compact()), nil
}

// Compact renders b with the largest binary unit that divides it evenly,
// e.g. "8Mi" or "1500".
func (b ByteSize) Compact() string {
	switch {
	case b == 0:
		return "0"
	case b%GiB == 0:
		return fmt.Sprintf("%dGi", b/GiB)
	case b%MiB == 0:
		return fmt.Sprintf("%dMi", b/MiB)
	case b%KiB == 0:
		return fmt.Sprintf("%dKi", b/KiB)
	default:
		return fmt.Sprintf("%d", uint64(b))
	}
}

// String is the human reading, e.g. "8.0 MiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Uint32 returns b clamped to the uint32 range used by SMB2 size fields.
func (b ByteSize) Uint32() uint32 {
	if b > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(b)
}
