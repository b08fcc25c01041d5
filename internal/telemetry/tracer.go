package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Client keys follow the OpenTelemetry semantic conventions;
// protocol keys use the smb./ntlm. prefixes.
const (
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	AttrProtocol = "protocol.name"

	AttrSMBCommand   = "smb.command"
	AttrSMBMessageID = "smb.message_id"
	AttrSMBSessionID = "smb.session_id"
	AttrSMBStatus    = "smb.status"
	AttrSMBDialect   = "smb.dialect"
	AttrSMBCredits   = "smb.credits"
	AttrSMBCompound  = "smb.compound"

	AttrAuthMechanism = "auth.mechanism"
	AttrAuthOutcome   = "auth.outcome"
	AttrNTLMPhase     = "ntlm.phase"
	AttrNTLMFlags     = "ntlm.flags"

	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
)

// Span names.
const (
	SpanSMBRequest = "smb.request"
	SpanSMBAuth    = "smb.authenticate"
	SpanNTLM       = "ntlm"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for client address (ip:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Protocol returns an attribute for protocol name
func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

// SMBCommand returns an attribute for the SMB2 command name.
func SMBCommand(name string) attribute.KeyValue {
	return attribute.String(AttrSMBCommand, name)
}

// SMBMessageID returns an attribute for the SMB2 message ID.
func SMBMessageID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrSMBMessageID, int64(id))
}

// SMBSessionID returns an attribute for the session ID, in hex as clients
// and packet captures show it.
func SMBSessionID(id uint64) attribute.KeyValue {
	return attribute.String(AttrSMBSessionID, fmt.Sprintf("0x%016x", id))
}

// SMBStatus returns an attribute for the NT status of a response.
func SMBStatus(status uint32) attribute.KeyValue {
	return attribute.String(AttrSMBStatus, fmt.Sprintf("0x%08x", status))
}

// SMBDialect returns an attribute for the negotiated dialect.
func SMBDialect(d fmt.Stringer) attribute.KeyValue {
	return attribute.String(AttrSMBDialect, d.String())
}

// SMBCredits returns an attribute for credits granted.
func SMBCredits(n uint16) attribute.KeyValue {
	return attribute.Int(AttrSMBCredits, int(n))
}

// SMBCompound marks a request that is part of a compound chain.
func SMBCompound(b bool) attribute.KeyValue {
	return attribute.Bool(AttrSMBCompound, b)
}

// AuthMechanism returns an attribute for the security mechanism (ntlm, spnego).
func AuthMechanism(m string) attribute.KeyValue {
	return attribute.String(AttrAuthMechanism, m)
}

// AuthOutcome returns an attribute for the authentication result.
func AuthOutcome(o string) attribute.KeyValue {
	return attribute.String(AttrAuthOutcome, o)
}

// NTLMPhase returns an attribute for the NTLM message being processed.
func NTLMPhase(p string) attribute.KeyValue {
	return attribute.String(AttrNTLMPhase, p)
}

// NTLMFlags returns an attribute for negotiated NTLM flags.
func NTLMFlags(f uint32) attribute.KeyValue {
	return attribute.String(AttrNTLMFlags, fmt.Sprintf("0x%08x", f))
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for domain name
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// StartSMBSpan starts a span for one SMB2 command.
func StartSMBSpan(ctx context.Context, command string, messageID, sessionID uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, 4+len(attrs))
	all = append(all,
		Protocol("smb2"),
		SMBCommand(command),
		SMBMessageID(messageID),
		SMBSessionID(sessionID),
	)
	all = append(all, attrs...)

	return StartSpan(ctx, "smb."+command, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindServer))
}

// StartAuthSpan starts a span around one authentication leg.
func StartAuthSpan(ctx context.Context, mechanism string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{AuthMechanism(mechanism)}, attrs...)
	return StartSpan(ctx, SpanSMBAuth, trace.WithAttributes(all...))
}
