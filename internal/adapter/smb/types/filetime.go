package types

import "time"

// Offset between the Windows epoch (1601-01-01 UTC) and the Unix epoch in
// 100-nanosecond intervals.
const filetimeUnixDiff = 116444736000000000

// Filetime is a Windows FILETIME: 100-nanosecond intervals since 1601-01-01 UTC.
type Filetime uint64

// NewFiletime converts t. The zero time maps to 0, the "unspecified" value
// used for ServerStartTime in NEGOTIATE.
func NewFiletime(t time.Time) Filetime {
	if t.IsZero() {
		return 0
	}
	return Filetime(uint64(t.UnixNano()/100) + filetimeUnixDiff)
}

// Time converts ft back to a time.Time in UTC. Values before the Unix epoch
// yield the zero time.
func (ft Filetime) Time() time.Time {
	if ft < filetimeUnixDiff {
		return time.Time{}
	}
	return time.Unix(0, int64(ft-filetimeUnixDiff)*100).UTC()
}
