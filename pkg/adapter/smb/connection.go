package smb

import (
	"context"
	"errors"
	"io"
	"maps"
	"net"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	smb "github.com/marmos91/dittosmb/internal/adapter/smb"
	"github.com/marmos91/dittosmb/internal/logger"
)

// sessionCleanupTimeout bounds the teardown of the sessions a closed
// connection leaves behind.
const sessionCleanupTimeout = 10 * time.Second

// Connection serves one client socket.
//
// Frames are read one at a time. Until NEGOTIATE has picked a dialect each
// request runs inline; afterwards requests run concurrently, at most
// MaxRequestsPerConnection of them, and replies are serialized by writeMu.
type Connection struct {
	server *Adapter
	conn   net.Conn
	addr   string
	ci     *smb.ConnInfo

	slots     chan struct{}
	inflight  sync.WaitGroup
	writeMu   smb.LockedWriter
	closeOnce sync.Once

	cryptoState *smb.ConnectionCryptoState

	// sessions created on this connection, logged off when it closes
	sessionsMu sync.Mutex
	sessions   map[uint64]struct{}
}

func NewConnection(server *Adapter, conn net.Conn) *Connection {
	c := &Connection{
		server:      server,
		conn:        conn,
		addr:        conn.RemoteAddr().String(),
		slots:       make(chan struct{}, server.config.MaxRequestsPerConnection),
		cryptoState: smb.NewConnectionCryptoState(),
		sessions:    make(map[uint64]struct{}),
	}
	c.ci = &smb.ConnInfo{
		Conn:           conn,
		Handler:        server.handler,
		SessionManager: server.sessionManager,
		WriteMu:        &c.writeMu,
		WriteTimeout:   server.config.Timeouts.Write,
		SessionTracker: c,
		CryptoState:    c.cryptoState,
		Metrics:        server.metrics,
	}
	return c
}

func (c *Connection) TrackSession(sessionID uint64) {
	c.sessionsMu.Lock()
	c.sessions[sessionID] = struct{}{}
	c.sessionsMu.Unlock()
}

func (c *Connection) UntrackSession(sessionID uint64) {
	c.sessionsMu.Lock()
	delete(c.sessions, sessionID)
	c.sessionsMu.Unlock()
}

// Serve reads and dispatches requests until the client goes away, a
// deadline passes, framing breaks, a handler asks for a disconnect, or the
// adapter shuts down.
func (c *Connection) Serve(ctx context.Context) {
	defer c.teardown()

	log := logger.With(logger.ClientAddr(c.addr))
	log.Debug("SMB connection opened")
	c.touch()

	handleSMB1 := func(_ context.Context, msg []byte) error {
		return smb.HandleSMB1Negotiate(c.ci, msg)
	}
	cfg := c.server.config

	for c.running(ctx) {
		req, err := smb.ReadRequest(ctx, c.conn, int(cfg.MaxMessageSize), cfg.Timeouts.Read, handleSMB1)
		if err != nil {
			c.logReadError(err)
			return
		}
		c.touch()

		if !c.cryptoState.Negotiated() {
			if !c.process(ctx, req) {
				return
			}
			continue
		}

		c.slots <- struct{}{}
		c.inflight.Add(1)
		go func() {
			defer c.release(req.Header.MessageID)
			if !c.process(ctx, req) {
				c.close()
			}
		}()
	}
}

func (c *Connection) running(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		logger.Debug("SMB connection cancelled", logger.ClientAddr(c.addr))
		return false
	case <-c.server.Shutdown:
		logger.Debug("SMB connection closed by shutdown", logger.ClientAddr(c.addr))
		return false
	default:
		return true
	}
}

// process runs one request or compound chain; false ends the connection.
func (c *Connection) process(ctx context.Context, req *smb.Request) bool {
	run := smb.ProcessSingleRequest
	if len(req.Remaining) > 0 {
		run = smb.ProcessCompoundRequest
	}
	err := run(ctx, req, c.ci)
	switch {
	case err == nil:
		return true
	case errors.Is(err, smb.ErrDisconnect):
		logger.Info("Dropping SMB connection on protocol violation",
			logger.ClientAddr(c.addr),
			logger.Command(req.Header.Command.String()),
			logger.MessageID(req.Header.MessageID))
	default:
		logger.Debug("SMB request failed",
			logger.ClientAddr(c.addr),
			logger.MessageID(req.Header.MessageID),
			logger.Err(err))
	}
	return false
}

func (c *Connection) logReadError(err error) {
	attrs := []any{logger.ClientAddr(c.addr)}
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("SMB client disconnected", attrs...)
	case errors.Is(err, smb.ErrMessageTooLarge), errors.Is(err, smb.ErrUnknownProtocol):
		logger.Warn("Dropping SMB connection on framing error", append(attrs, logger.Err(err))...)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("SMB connection timed out", append(attrs, logger.Err(err))...)
	default:
		logger.Debug("SMB read ended", append(attrs, logger.Err(err))...)
	}
}

// touch pushes the idle deadline forward.
func (c *Connection) touch() {
	idle := c.server.config.Timeouts.Idle
	if idle <= 0 {
		return
	}
	if err := c.conn.SetDeadline(time.Now().Add(idle)); err != nil {
		logger.Debug("Failed to set deadline", logger.ClientAddr(c.addr), logger.Err(err))
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })
}

func (c *Connection) release(messageID uint64) {
	<-c.slots
	c.inflight.Done()
	if r := recover(); r != nil {
		logger.Error("Panic in SMB request handler",
			logger.ClientAddr(c.addr),
			logger.MessageID(messageID),
			"panic", r,
			"stack", string(debug.Stack()))
		c.close()
	}
}

// teardown waits for in-flight requests, then logs off every session the
// connection created.
func (c *Connection) teardown() {
	if r := recover(); r != nil {
		logger.Error("Panic in SMB connection handler",
			logger.ClientAddr(c.addr),
			"panic", r,
			"stack", string(debug.Stack()))
	}
	c.close()
	c.inflight.Wait()

	c.sessionsMu.Lock()
	ids := slices.Collect(maps.Keys(c.sessions))
	clear(c.sessions)
	c.sessionsMu.Unlock()

	if len(ids) > 0 {
		logger.Debug("Logging off sessions of closed connection", logger.ClientAddr(c.addr), "sessions", len(ids))
		ctx, cancel := context.WithTimeout(context.Background(), sessionCleanupTimeout)
		for _, id := range ids {
			c.server.handler.CleanupSession(ctx, id)
		}
		cancel()
	}
	logger.Debug("SMB connection closed", logger.ClientAddr(c.addr))
}
