package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
)

// ConnectionHandler serves one accepted connection until it closes or ctx
// is cancelled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory wraps accepted TCP connections in a protocol handler.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// OnConnectionClose runs after a connection handler returns, with the peer
// address of the connection.
type OnConnectionClose func(addr string)

// MetricsRecorder records connection lifecycle metrics. metrics.SMBMetrics
// satisfies it.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()
	SetActiveConnections(count int32)
}

// BaseConfig holds the listener settings shared by protocol adapters.
type BaseConfig struct {
	BindAddress        string        // "" listens on all interfaces
	Port               int           // 0 picks a free port
	MaxConnections     int           // 0 is unlimited
	ShutdownTimeout    time.Duration // grace period before force-closing
	MetricsLogInterval time.Duration // 0 disables the periodic count log
}

// shutdownReadDeadline is how soon blocked reads are interrupted once
// shutdown starts.
const shutdownReadDeadline = 100 * time.Millisecond

// connSet tracks live connections by peer address.
type connSet struct {
	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
	n     atomic.Int32
}

func (s *connSet) add(addr string, c net.Conn) int32 {
	s.mu.Lock()
	s.conns[addr] = c
	s.mu.Unlock()
	s.wg.Add(1)
	return s.n.Add(1)
}

func (s *connSet) remove(addr string) int32 {
	s.mu.Lock()
	delete(s.conns, addr)
	s.mu.Unlock()
	s.wg.Done()
	return s.n.Add(-1)
}

func (s *connSet) each(fn func(addr string, c net.Conn)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, c := range s.conns {
		fn(addr, c)
	}
}

// drained is closed once every tracked connection has been removed.
func (s *connSet) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	return done
}

// BaseAdapter is the TCP side of a protocol server: it listens, enforces
// the connection limit, runs one goroutine per connection and shuts down
// gracefully, force-closing whatever outlives the grace period.
//
// Stop and Serve may be called concurrently; shutdown happens once.
type BaseAdapter struct {
	Config  BaseConfig
	Metrics MetricsRecorder // optional

	protocol string

	// Shutdown is closed when shutdown begins. Connections watch it to stop
	// reading new requests.
	Shutdown chan struct{}
	// ShutdownCtx is passed to every connection and cancelled on shutdown,
	// aborting in-flight requests.
	ShutdownCtx context.Context
	cancel      context.CancelFunc

	once     sync.Once
	ready    chan struct{}
	listener net.Listener
	slots    chan struct{} // nil when unlimited
	conns    connSet
}

// NewBaseAdapter returns a stopped adapter; ServeWithFactory starts it.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	ctx, cancel := context.WithCancel(context.Background())
	b := &BaseAdapter{
		Config:      config,
		protocol:    protocol,
		Shutdown:    make(chan struct{}),
		ShutdownCtx: ctx,
		cancel:      cancel,
		ready:       make(chan struct{}),
		conns:       connSet{conns: make(map[string]net.Conn)},
	}
	if config.MaxConnections > 0 {
		b.slots = make(chan struct{}, config.MaxConnections)
	}
	return b
}

// ServeWithFactory accepts connections until ctx is cancelled or Stop is
// called, serving each with a handler from factory. onClose is optional.
//
// It returns nil after a graceful shutdown and an error when the listener
// cannot be opened or connections had to be force-closed.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory, onClose OnConnectionClose) error {
	addr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on %s: %w", b.protocol, addr, err)
	}
	defer func() { _ = ln.Close() }()
	b.listener = ln
	close(b.ready)

	logger.Info(b.protocol+" server listening",
		"address", ln.Addr().String(),
		"max_connections", b.Config.MaxConnections)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info(b.protocol+" shutdown signal received", logger.Err(ctx.Err()))
			b.beginShutdown()
		case <-b.Shutdown:
		}
	}()
	if b.Config.MetricsLogInterval > 0 {
		go b.logConnectionCount()
	}

	for {
		if !b.acquireSlot() {
			return b.drain()
		}
		conn, err := ln.Accept()
		if err != nil {
			b.releaseSlot()
			select {
			case <-b.Shutdown:
				return b.drain()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Debug("Error accepting "+b.protocol+" connection", logger.Err(err))
			continue
		}
		b.serveConn(conn, factory, onClose)
	}
}

func (b *BaseAdapter) serveConn(conn net.Conn, factory ConnectionFactory, onClose OnConnectionClose) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	addr := conn.RemoteAddr().String()
	active := b.conns.add(addr, conn)
	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(active)
	}
	logger.Debug(b.protocol+" connection accepted", logger.ClientAddr(addr), "active", active)

	handler := factory.NewConnection(conn)
	go func() {
		defer func() {
			if onClose != nil {
				onClose(addr)
			}
			left := b.conns.remove(addr)
			b.releaseSlot()
			if b.Metrics != nil {
				b.Metrics.RecordConnectionClosed()
				b.Metrics.SetActiveConnections(left)
			}
			logger.Debug(b.protocol+" connection closed", logger.ClientAddr(addr), "active", left)
		}()
		handler.Serve(b.ShutdownCtx)
	}()
}

// acquireSlot blocks while the connection limit is reached. It returns
// false once shutdown begins.
func (b *BaseAdapter) acquireSlot() bool {
	if b.slots == nil {
		select {
		case <-b.Shutdown:
			return false
		default:
			return true
		}
	}
	select {
	case b.slots <- struct{}{}:
		return true
	case <-b.Shutdown:
		return false
	}
}

func (b *BaseAdapter) releaseSlot() {
	if b.slots != nil {
		<-b.slots
	}
}

// beginShutdown closes the listener, interrupts blocked reads and cancels
// in-flight requests.
func (b *BaseAdapter) beginShutdown() {
	b.once.Do(func() {
		close(b.Shutdown)
		select {
		case <-b.ready:
			_ = b.listener.Close()
		default:
		}

		deadline := time.Now().Add(shutdownReadDeadline)
		b.conns.each(func(_ string, c net.Conn) { _ = c.SetReadDeadline(deadline) })
		b.cancel()
	})
}

// drain waits up to ShutdownTimeout for connections to end, then
// force-closes the rest.
func (b *BaseAdapter) drain() error {
	active := b.conns.n.Load()
	logger.Info(b.protocol+" graceful shutdown: waiting for active connections",
		"active", active, "timeout", b.Config.ShutdownTimeout)

	timer := time.NewTimer(b.Config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-b.conns.drained():
		logger.Info(b.protocol + " graceful shutdown complete")
		return nil
	case <-timer.C:
	}

	var closed int
	b.conns.each(func(addr string, c net.Conn) {
		if err := c.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.ClientAddr(addr), logger.Err(err))
			return
		}
		closed++
		if b.Metrics != nil {
			b.Metrics.RecordConnectionForceClosed()
		}
	})
	logger.Warn(b.protocol+" shutdown timeout exceeded, connections force-closed",
		"count", closed, "timeout", b.Config.ShutdownTimeout)
	return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocol, closed)
}

// Stop begins shutdown and waits for connections to end or ctx to expire.
// A nil ctx waits up to ShutdownTimeout.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.beginShutdown()
	if ctx == nil {
		return b.drain()
	}
	select {
	case <-b.conns.drained():
		return nil
	case <-ctx.Done():
		logger.Warn(b.protocol+" shutdown context cancelled",
			"active", b.conns.n.Load(), logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *BaseAdapter) logConnectionCount() {
	t := time.NewTicker(b.Config.MetricsLogInterval)
	defer t.Stop()
	for {
		select {
		case <-b.Shutdown:
			return
		case <-t.C:
			logger.Info(b.protocol+" connections", "active", b.conns.n.Load())
		}
	}
}

// GetActiveConnections returns the number of open connections.
func (b *BaseAdapter) GetActiveConnections() int32 {
	return b.conns.n.Load()
}

// GetListenerAddr blocks until the listener is open and returns its address.
func (b *BaseAdapter) GetListenerAddr() string {
	<-b.ready
	return b.listener.Addr().String()
}

func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

func (b *BaseAdapter) Protocol() string {
	return b.protocol
}
