package output

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Timestamp renders an RFC 3339 time in local time followed by its distance
// from now, e.g. "2026-10-19 09:12:44 (3 hours ago)". Unparseable input is
// returned unchanged.
func Timestamp(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.Time(t))
}

// Uptime renders a number of seconds as "3d 4h 5m", dropping leading zero
// units. Under a minute it prints seconds.
func Uptime(seconds int64) string {
	if seconds < 60 {
		if seconds < 0 {
			seconds = 0
		}
		return fmt.Sprintf("%ds", seconds)
	}
	d := seconds / 86400
	h := seconds % 86400 / 3600
	m := seconds % 3600 / 60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm", d, h, m)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
