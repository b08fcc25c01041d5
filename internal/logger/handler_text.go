package logger

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

const textTimeLayout = "2006-01-02 15:04:05"

// ColorTextHandler writes one line per record:
//
//	[2006-01-02 15:04:05] [INFO] message key=value group.key=value
//
// Attributes bound with WithAttrs are rendered once and reused.
type ColorTextHandler struct {
	level  slog.Leveler
	color  bool
	mu     *sync.Mutex
	w      io.Writer
	bound  []byte // pre-rendered WithAttrs output
	prefix string // open groups, dot-terminated
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *ColorTextHandler {
	var lv slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		lv = opts.Level
	}
	return &ColorTextHandler{level: lv, color: color, mu: new(sync.Mutex), w: w}
}

func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	line := make([]byte, 0, 256)
	line = append(line, '[')
	line = r.Time.AppendFormat(line, textTimeLayout)
	line = append(line, "] ["...)
	line = append(line, h.levelTag(r.Level)...)
	line = append(line, "] "...)
	line = append(line, r.Message...)
	line = append(line, h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		line = h.appendAttr(line, h.prefix, a)
		return true
	})
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line)
	return err
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.bound = append([]byte(nil), h.bound...)
	for _, a := range attrs {
		c.bound = h.appendAttr(c.bound, h.prefix, a)
	}
	return &c
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix += name + "."
	return &c
}

func (h *ColorTextHandler) levelTag(l slog.Level) string {
	name, color := "ERROR", colorRed
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", colorGray
	case l < slog.LevelWarn:
		name, color = "INFO", colorGreen
	case l < slog.LevelError:
		name, color = "WARN", colorYellow
	}
	if !h.color {
		return name
	}
	return color + name + colorReset
}

// appendAttr renders " key=value", flattening groups into dotted keys.
// Empty attributes are dropped.
func (h *ColorTextHandler) appendAttr(b []byte, prefix string, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return b
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range v.Group() {
			b = h.appendAttr(b, prefix, ga)
		}
		return b
	}

	b = append(b, ' ')
	if h.color {
		b = append(b, colorCyan...)
	}
	b = append(b, prefix...)
	b = append(b, a.Key...)
	if h.color {
		b = append(b, colorReset...)
	}
	b = append(b, '=')
	return append(b, textValue(v)...)
}

// textValue quotes strings that would break key=value parsing and hex
// encodes byte slices.
func textValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case []byte:
			return hex.EncodeToString(x)
		case error:
			return strconv.Quote(x.Error())
		default:
			return fmt.Sprint(x)
		}
	default:
		// Int64, Uint64, Bool and Duration render the same way via String.
		return v.String()
	}
}
