package ntlm

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/wire"
)

// field is a payload descriptor: Len (2 bytes), MaxLen (2 bytes), Offset (4 bytes).
// [MS-NLMP] Section 2.2.1
type field struct {
	Len    uint16
	MaxLen uint16
	Offset uint32
}

const fieldSize = 8

func readField(r *wire.Reader, at int) field {
	return field{
		Len:    r.Uint16At(at),
		MaxLen: r.Uint16At(at + 2),
		Offset: r.Uint32At(at + 4),
	}
}

// extract copies the bytes a descriptor points to. A descriptor reaching
// past the end of buf is malformed, even when its length is zero.
func (f field) extract(buf []byte, name string) ([]byte, error) {
	end := uint64(f.Offset) + uint64(f.Len)
	if end > uint64(len(buf)) {
		return nil, malformed("%s field [%d, %d) exceeds message of %d bytes", name, f.Offset, end, len(buf))
	}
	if f.Len == 0 {
		return nil, nil
	}
	out := make([]byte, f.Len)
	copy(out, buf[f.Offset:end])
	return out, nil
}

func writeField(w *wire.Writer, length, offset int) {
	w.WriteUint16(uint16(length))
	w.WriteUint16(uint16(length))
	w.WriteUint32(uint32(offset))
}

// =============================================================================
// Version
// =============================================================================

// NTLMRevisionCurrent is the NTLMSSP revision advertised in VERSION fields.
const NTLMRevisionCurrent = 0x0F

const versionSize = 8

// Version is the optional OS version block of NTLM messages.
// [MS-NLMP] Section 2.2.2.10
type Version struct {
	Major    uint8
	Minor    uint8
	Build    uint16
	Revision uint8
}

// DefaultVersion is the version the server reports: Windows 7 / 2008 R2.
var DefaultVersion = Version{Major: 6, Minor: 1, Build: 7600, Revision: NTLMRevisionCurrent}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d (NTLM rev %d)", v.Major, v.Minor, v.Build, v.Revision)
}

func (v Version) write(w *wire.Writer) {
	w.WriteUint8(v.Major)
	w.WriteUint8(v.Minor)
	w.WriteUint16(v.Build)
	w.WriteZeros(3)
	w.WriteUint8(v.Revision)
}

func readVersion(r *wire.Reader, at int) *Version {
	b := r.BytesAt(at, versionSize)
	if b == nil {
		return nil
	}
	return &Version{
		Major:    b[0],
		Minor:    b[1],
		Build:    uint16(b[2]) | uint16(b[3])<<8,
		Revision: b[7],
	}
}
