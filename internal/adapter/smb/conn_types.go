package smb

import (
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// LockedWriter serializes frame writes on one connection. Responses to a
// compound chain and to parallel requests share it.
type LockedWriter struct {
	sync.Mutex
}

// ConnInfo is what request processing needs from the owning connection.
type ConnInfo struct {
	Conn           net.Conn
	Handler        *handlers.Handler
	SessionManager *session.Manager
	WriteMu        *LockedWriter
	WriteTimeout   time.Duration // 0 disables the write deadline

	// SessionTracker is told about sessions created and destroyed on this
	// connection, so they can be dropped when it closes.
	SessionTracker SessionTracker

	// CryptoState holds the negotiated dialect and the connection-level
	// preauth integrity hash.
	CryptoState *ConnectionCryptoState

	Metrics metrics.SMBMetrics // nil disables per-command metrics
}

// ClientAddr returns the peer "ip:port", or "" when unknown.
func (ci *ConnInfo) ClientAddr() string {
	if ci.Conn == nil || ci.Conn.RemoteAddr() == nil {
		return ""
	}
	return ci.Conn.RemoteAddr().String()
}

// SessionTracker is implemented by the connection that owns a ConnInfo.
type SessionTracker interface {
	TrackSession(sessionID uint64)
	UntrackSession(sessionID uint64)
}
