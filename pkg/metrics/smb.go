package metrics

import (
	"time"
)

// SMBMetrics provides observability for the SMB adapter.
//
// Pass nil to disable metrics collection with zero overhead; the package
// level helpers below are nil-safe.
//
//	m := prometheus.NewSMBMetrics() // nil unless InitRegistry was called
//	adapter := smb.New(cfg, deps, m)
type SMBMetrics interface {
	// RecordRequest records a completed SMB2 command with its NT status.
	RecordRequest(command string, status string, duration time.Duration)

	// RecordAuthentication records the outcome of one SESSION_SETUP leg.
	//
	// Parameters:
	//   - mechanism: "spnego" or "ntlm" (raw NTLMSSP)
	//   - outcome: "challenge", "success", "guest", "failure", "invalid", "unsupported"
	RecordAuthentication(mechanism string, outcome string)

	// SetActiveSessions updates the number of sessions in the session table.
	SetActiveSessions(count int)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	RecordConnectionAccepted()
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed after the
	// shutdown timeout expired.
	RecordConnectionForceClosed()
}

// RecordRequest is a nil-safe wrapper around SMBMetrics.RecordRequest.
func RecordRequest(m SMBMetrics, command, status string, duration time.Duration) {
	if m != nil {
		m.RecordRequest(command, status, duration)
	}
}

// RecordAuthentication is a nil-safe wrapper around SMBMetrics.RecordAuthentication.
func RecordAuthentication(m SMBMetrics, mechanism, outcome string) {
	if m != nil {
		m.RecordAuthentication(mechanism, outcome)
	}
}

// SetActiveSessions is a nil-safe wrapper around SMBMetrics.SetActiveSessions.
func SetActiveSessions(m SMBMetrics, count int) {
	if m != nil {
		m.SetActiveSessions(count)
	}
}
