package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use them consistently so logs
// can be aggregated and queried by field.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Protocol
	KeyCommand    = "command"     // SMB2 command name
	KeyMessageID  = "message_id"  // SMB2 MessageId
	KeyDialect    = "dialect"     // negotiated dialect, e.g. 3.1.1
	KeyStatus     = "status"      // NT status code
	KeyStatusMsg  = "status_msg"  // NT status name
	KeyCredits    = "credits"     // credits granted in a response
	KeySize       = "size"        // message or buffer size in bytes
	KeyMechanism  = "mechanism"   // SPNEGO mechanism (ntlm, kerberos)
	KeyNTLMFlags  = "ntlm_flags"  // negotiated NTLM flags
	KeyNTLMPhase  = "ntlm_phase"  // negotiate, authenticate
	KeyGuest      = "guest"       // guest session indicator
	KeyAnonymous  = "anonymous"   // anonymous session indicator
	KeyCompound   = "compound"    // number of commands in a compound request
	KeyProtocol   = "protocol"    // smb1, smb2
	KeyListenAddr = "listen_addr" // listener address

	// Client identification
	KeyClientIP    = "client_ip"
	KeyClientAddr  = "client_addr"
	KeyUsername    = "username"
	KeyDomain      = "domain"
	KeyWorkstation = "workstation"

	// Session and connection
	KeySessionID    = "session_id"
	KeyConnectionID = "connection_id"
	KeyConnections  = "connections"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyOperation  = "operation"
	KeyStore      = "store" // user store backend: sqlite, postgres
)

// ----------------------------------------------------------------------------
// Field constructors
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Command returns a slog.Attr for the SMB2 command name
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// MessageID returns a slog.Attr for the SMB2 MessageId
func MessageID(id uint64) slog.Attr {
	return slog.Uint64(KeyMessageID, id)
}

// Dialect returns a slog.Attr for a negotiated dialect.
func Dialect(d fmt.Stringer) slog.Attr {
	return slog.String(KeyDialect, d.String())
}

// Status returns a slog.Attr rendering an NT status as hex.
func Status(code uint32) slog.Attr {
	return slog.String(KeyStatus, fmt.Sprintf("0x%08x", code))
}

// StatusMsg returns a slog.Attr for a human-readable status
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Credits returns a slog.Attr for credits granted
func Credits(n uint16) slog.Attr {
	return slog.Int(KeyCredits, int(n))
}

// Size returns a slog.Attr for a size in bytes
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

func Mechanism(name string) slog.Attr {
	return slog.String(KeyMechanism, name)
}

// NTLMFlags returns a slog.Attr rendering NTLM negotiate flags as hex.
func NTLMFlags(flags uint32) slog.Attr {
	return slog.String(KeyNTLMFlags, fmt.Sprintf("0x%08x", flags))
}

func NTLMPhase(phase string) slog.Attr {
	return slog.String(KeyNTLMPhase, phase)
}

func Guest(guest bool) slog.Attr {
	return slog.Bool(KeyGuest, guest)
}

func Anonymous(anon bool) slog.Attr {
	return slog.Bool(KeyAnonymous, anon)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientAddr returns a slog.Attr for the client ip:port
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// Username returns a slog.Attr for username
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Domain returns a slog.Attr for domain name
func Domain(name string) slog.Attr {
	return slog.String(KeyDomain, name)
}

// Workstation returns a slog.Attr for the client workstation name
func Workstation(name string) slog.Attr {
	return slog.String(KeyWorkstation, name)
}

// SessionID returns a slog.Attr for an SMB session ID
func SessionID(id uint64) slog.Attr {
	return slog.Uint64(KeySessionID, id)
}

// ConnectionID returns a slog.Attr for connection identifier
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for error. A nil error yields an empty attr,
// which the handlers skip.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Operation returns a slog.Attr for sub-operation type
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
