package logger

import (
	"context"
	"time"
)

type logContextKey struct{}

// LogContext carries the per-request attributes that every log line of an
// SMB request repeats. Values are immutable once attached to a context; the
// With* methods return modified copies.
type LogContext struct {
	TraceID   string
	SpanID    string
	Command   string // NEGOTIATE, SESSION_SETUP, ...
	ClientIP  string // without port
	SessionID uint64
	MessageID uint64
	Username  string
	StartTime time.Time
}

func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext returns the LogContext attached to ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts the request clock for a client.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{ClientIP: clientIP, StartTime: time.Now()}
}

func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

func (lc *LogContext) with(set func(*LogContext)) *LogContext {
	c := lc.Clone()
	if c != nil {
		set(c)
	}
	return c
}

// WithCommand sets the command name and the SMB2 header identifiers.
func (lc *LogContext) WithCommand(command string, sessionID, messageID uint64) *LogContext {
	return lc.with(func(c *LogContext) {
		c.Command, c.SessionID, c.MessageID = command, sessionID, messageID
	})
}

func (lc *LogContext) WithUser(username string) *LogContext {
	return lc.with(func(c *LogContext) { c.Username = username })
}

func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	return lc.with(func(c *LogContext) { c.TraceID, c.SpanID = traceID, spanID })
}

// DurationMs is the time since StartTime in fractional milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000
}
