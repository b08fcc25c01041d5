// Package logger is the process-wide structured logger: log/slog behind a
// package-level API, with a level and format that can change while the
// server runs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}
var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l Level) toSlog() slog.Level {
	if l < LevelDebug || l > LevelError {
		return slog.LevelInfo
	}
	return slogLevels[l]
}

// ParseLevel maps a case-insensitive level name, accepting WARNING for
// WARN. Unknown names return LevelInfo and false.
func ParseLevel(s string) (Level, bool) {
	s = strings.ToUpper(s)
	if s == "WARNING" {
		return LevelWarn, true
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Config is the logging section of the server configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text or json
	Output string // stdout, stderr or a file path
}

// sink is where records go and how they are rendered.
type sink struct {
	w     io.Writer
	file  *os.File // non-nil when w is a log file we opened
	color bool
	json  bool
}

var (
	minLevel slog.LevelVar
	current  atomic.Pointer[slog.Logger]

	mu  sync.Mutex // serializes sink changes
	out sink
)

func init() {
	minLevel.Set(slog.LevelInfo)
	setSink(sink{w: os.Stdout, color: isTerminal(os.Stdout)})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// setSink swaps the output and rebuilds the handler. A log file that is no
// longer the output is closed.
func setSink(s sink) {
	mu.Lock()
	defer mu.Unlock()
	if out.file != nil && out.file != s.file {
		_ = out.file.Close()
	}
	out = s
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	opts := &slog.HandlerOptions{Level: &minLevel}
	var h slog.Handler
	if out.json {
		h = slog.NewJSONHandler(out.w, opts)
	} else {
		h = NewColorTextHandler(out.w, opts, out.color)
	}
	current.Store(slog.New(h))
}

// Init applies cfg. Empty fields keep their current value.
func Init(cfg Config) error {
	mu.Lock()
	next := out
	mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "":
	case "stdout":
		next = sink{w: os.Stdout, color: isTerminal(os.Stdout), json: next.json}
	case "stderr":
		next = sink{w: os.Stderr, color: isTerminal(os.Stderr), json: next.json}
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		next = sink{w: f, file: f, json: next.json}
	}
	if f := strings.ToLower(cfg.Format); f == "json" || f == "text" {
		next.json = f == "json"
	}
	setSink(next)

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	return nil
}

// InitWithWriter sends output to w. Tests use it to capture records.
func InitWithWriter(w io.Writer, level, format string, color bool) {
	mu.Lock()
	json := out.json
	mu.Unlock()
	if f := strings.ToLower(format); f == "json" || f == "text" {
		json = f == "json"
	}
	setSink(sink{w: w, color: color, json: json})
	if level != "" {
		SetLevel(level)
	}
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		minLevel.Set(l.toSlog())
	}
}

func GetLevel() Level {
	switch l := minLevel.Level(); {
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}

// SetFormat switches between "text" and "json"; anything else is ignored.
func SetFormat(format string) {
	f := strings.ToLower(format)
	if f != "json" && f != "text" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	out.json = f == "json"
	rebuild()
}

// With returns a logger carrying args on every record.
func With(args ...any) *slog.Logger {
	return current.Load().With(args...)
}

func emit(ctx context.Context, l slog.Level, msg string, args []any) {
	lg := current.Load()
	if !lg.Enabled(ctx, l) {
		return
	}
	lg.Log(ctx, l, msg, withContextFields(ctx, args)...)
}

// Debug and friends take alternating key/value pairs or slog.Attr values.
func Debug(msg string, args ...any) { emit(context.Background(), slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)  { emit(context.Background(), slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any)  { emit(context.Background(), slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { emit(context.Background(), slog.LevelError, msg, args) }

// The *Ctx variants put the LogContext fields of ctx ahead of args.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelError, msg, args)
}

func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	fields := make([]any, 0, 14+len(args))
	str := func(k, v string) {
		if v != "" {
			fields = append(fields, k, v)
		}
	}
	num := func(k string, v uint64) {
		if v != 0 {
			fields = append(fields, k, v)
		}
	}
	str(KeyTraceID, lc.TraceID)
	str(KeySpanID, lc.SpanID)
	str(KeyCommand, lc.Command)
	str(KeyClientIP, lc.ClientIP)
	num(KeySessionID, lc.SessionID)
	num(KeyMessageID, lc.MessageID)
	str(KeyUsername, lc.Username)
	return append(fields, args...)
}
