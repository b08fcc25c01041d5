package smb

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/adapter/smb/v2/handlers"
	"github.com/marmos91/dittosmb/internal/wire"
)

// ============================================================================
// Test Helpers
// ============================================================================

type fakeTracker struct {
	mu      sync.Mutex
	tracked map[uint64]bool
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{tracked: make(map[uint64]bool)}
}

func (f *fakeTracker) TrackSession(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[id] = true
}

func (f *fakeTracker) UntrackSession(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, id)
}

func (f *fakeTracker) has(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracked[id]
}

// testConn is a server-side ConnInfo over net.Pipe plus the client end.
type testConn struct {
	info   *ConnInfo
	client net.Conn
}

func newTestConn(t *testing.T) *testConn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	sessions := session.NewManager(session.NewCounter(1))
	h := handlers.NewHandler(sessions, auth.New(nil, auth.Config{}, nil))
	return &testConn{
		info: &ConnInfo{
			Conn:           server,
			Handler:        h,
			SessionManager: sessions,
			WriteMu:        &LockedWriter{},
			WriteTimeout:   5 * time.Second,
			SessionTracker: newFakeTracker(),
			CryptoState:    NewConnectionCryptoState(),
		},
		client: client,
	}
}

func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// readFrame reads one NetBIOS frame from the client end.
func (tc *testConn) readFrame(t *testing.T) []byte {
	t.Helper()
	require.NoError(t, tc.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	var nb [4]byte
	_, err := io.ReadFull(tc.client, nb[:])
	require.NoError(t, err)
	n := int(nb[1])<<16 | int(nb[2])<<8 | int(nb[3])
	msg := make([]byte, n)
	_, err = io.ReadFull(tc.client, msg)
	require.NoError(t, err)
	return msg
}

// run executes fn on the server side and returns the frames it wrote.
func (tc *testConn) run(t *testing.T, frames int, fn func() error) ([][]byte, error) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	var out [][]byte
	for range frames {
		out = append(out, tc.readFrame(t))
	}
	return out, <-errCh
}

func request(cmd types.Command, msgID, sessionID uint64, body []byte) *Request {
	hdr := &header.SMB2Header{Command: cmd, MessageID: msgID, SessionID: sessionID, Credits: 4}
	msg := append(hdr.Encode(), body...)
	return &Request{Header: hdr, Message: msg, Body: msg[header.HeaderSize:]}
}

func negotiateBody(dialects ...types.Dialect) []byte {
	w := wire.NewWriter(64)
	w.WriteUint16(36)
	w.WriteUint16(uint16(len(dialects)))
	w.WriteUint16(types.NegotiateSigningEnabled)
	w.WriteUint16(0)
	w.WriteUint32(0)
	w.WriteZeros(16)
	w.WriteUint32(0)
	w.WriteUint16(0)
	w.WriteUint16(0)
	for _, d := range dialects {
		w.WriteUint16(uint16(d))
	}
	return w.Bytes()
}

func negotiate311Body() []byte {
	w := wire.NewWriter(128)
	w.WriteBytes(negotiateBody(types.Dialect0311))
	w.PutUint16At(32, 1) // NegotiateContextCount
	w.Pad(8)
	w.PutUint32At(28, uint32(header.HeaderSize+w.Len()))
	w.WriteBytes(types.EncodeNegotiateContextList([]types.NegotiateContext{{
		ContextType: types.NegCtxPreauthIntegrity,
		Data:        types.PreauthIntegrityCaps{HashAlgorithms: []uint16{types.HashAlgSHA512}, Salt: make([]byte, 32)}.Encode(),
	}}))
	return w.Bytes()
}

func buildSMB1Negotiate(dialects ...string) []byte {
	w := wire.NewWriter(64)
	w.WriteUint32(types.SMB1ProtocolID)
	w.WriteUint8(types.SMB1CommandNegotiate)
	w.WriteZeros(27)
	w.WriteUint8(0) // WordCount
	var data []byte
	for _, d := range dialects {
		data = append(data, 0x02)
		data = append(data, d...)
		data = append(data, 0)
	}
	w.WriteUint16(uint16(len(data)))
	w.WriteBytes(data)
	return w.Bytes()
}

func parseResponse(t *testing.T, msg []byte) (*header.SMB2Header, []byte) {
	t.Helper()
	hdr, err := header.Parse(msg)
	require.NoError(t, err)
	require.True(t, hdr.IsResponse())
	return hdr, msg[header.HeaderSize:]
}

func (tc *testConn) negotiate(t *testing.T, dialects ...types.Dialect) {
	t.Helper()
	frames, err := tc.run(t, 1, func() error {
		return ProcessSingleRequest(context.Background(), request(types.CommandNegotiate, 0, 0, negotiateBody(dialects...)), tc.info)
	})
	require.NoError(t, err)
	hdr, _ := parseResponse(t, frames[0])
	require.Equal(t, types.StatusSuccess, hdr.Status)
}

// ============================================================================
// Error Body
// ============================================================================

func TestMakeErrorBody(t *testing.T) {
	body := MakeErrorBody()
	require.Len(t, body, 9)
	assert.Equal(t, uint16(9), binary.LittleEndian.Uint16(body[0:2]))
	assert.Equal(t, make([]byte, 7), body[2:])
}

// ============================================================================
// Dispatch
// ============================================================================

func TestProcessSingleRequest(t *testing.T) {
	t.Run("request before NEGOTIATE disconnects", func(t *testing.T) {
		tc := newTestConn(t)
		err := ProcessSingleRequest(context.Background(), request(types.CommandEcho, 1, 0, []byte{4, 0, 0, 0}), tc.info)
		assert.ErrorIs(t, err, ErrDisconnect)
	})

	t.Run("ECHO after NEGOTIATE", func(t *testing.T) {
		tc := newTestConn(t)
		tc.negotiate(t, types.Dialect0210)

		frames, err := tc.run(t, 1, func() error {
			return ProcessSingleRequest(context.Background(), request(types.CommandEcho, 1, 0, []byte{4, 0, 0, 0}), tc.info)
		})
		require.NoError(t, err)
		hdr, body := parseResponse(t, frames[0])
		assert.Equal(t, types.StatusSuccess, hdr.Status)
		assert.Equal(t, types.CommandEcho, hdr.Command)
		assert.Equal(t, uint64(1), hdr.MessageID)
		assert.Equal(t, uint16(4), hdr.Credits)
		assert.Equal(t, []byte{4, 0, 0, 0}, body)
	})

	t.Run("second NEGOTIATE disconnects", func(t *testing.T) {
		tc := newTestConn(t)
		tc.negotiate(t, types.Dialect0210)

		err := ProcessSingleRequest(context.Background(), request(types.CommandNegotiate, 1, 0, negotiateBody(types.Dialect0210)), tc.info)
		assert.ErrorIs(t, err, ErrDisconnect)
	})

	t.Run("unsupported command", func(t *testing.T) {
		tc := newTestConn(t)
		tc.negotiate(t, types.Dialect0300)

		frames, err := tc.run(t, 1, func() error {
			return ProcessSingleRequest(context.Background(), request(types.CommandTreeConnect, 2, 0, make([]byte, 8)), tc.info)
		})
		require.NoError(t, err)
		hdr, body := parseResponse(t, frames[0])
		assert.Equal(t, types.StatusNotSupported, hdr.Status)
		assert.Equal(t, MakeErrorBody(), body)
	})

	t.Run("LOGOFF without a session", func(t *testing.T) {
		tc := newTestConn(t)
		tc.negotiate(t, types.Dialect0202)

		frames, err := tc.run(t, 1, func() error {
			return ProcessSingleRequest(context.Background(), request(types.CommandLogoff, 3, 42, []byte{4, 0, 0, 0}), tc.info)
		})
		require.NoError(t, err)
		hdr, _ := parseResponse(t, frames[0])
		assert.Equal(t, types.StatusUserSessionDeleted, hdr.Status)
		assert.Equal(t, uint64(42), hdr.SessionID)
	})

	t.Run("SESSION_SETUP first leg assigns and tracks a session", func(t *testing.T) {
		tc := newTestConn(t)
		tc.negotiate(t, types.Dialect0210)

		frames, err := tc.run(t, 1, func() error {
			return ProcessSingleRequest(context.Background(), request(types.CommandSessionSetup, 1, 0, sessionSetupBody(ntlmNegotiate())), tc.info)
		})
		require.NoError(t, err)
		hdr, body := parseResponse(t, frames[0])
		assert.Equal(t, types.StatusMoreProcessingRequired, hdr.Status)
		assert.NotZero(t, hdr.SessionID)
		assert.Equal(t, uint16(9), binary.LittleEndian.Uint16(body[0:2]))
		assert.True(t, tc.info.SessionTracker.(*fakeTracker).has(hdr.SessionID))
	})
}

// sessionSetupBody builds a SESSION_SETUP request carrying a raw security
// buffer right after the fixed part of the body.
func sessionSetupBody(token []byte) []byte {
	w := wire.NewWriter(24 + len(token))
	w.WriteUint16(25)
	w.WriteUint8(0)
	w.WriteUint8(1)
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteUint16(header.HeaderSize + 24)
	w.WriteUint16(uint16(len(token)))
	w.WriteUint64(0)
	w.WriteBytes(token)
	return w.Bytes()
}

// ntlmNegotiate is a minimal raw NTLMSSP NEGOTIATE_MESSAGE (UNICODE |
// REQUEST_TARGET | NTLM | ESS).
func ntlmNegotiate() []byte {
	w := wire.NewWriter(32)
	w.WriteBytes([]byte("NTLMSSP\x00"))
	w.WriteUint32(1)
	w.WriteUint32(0x00080205)
	w.WriteZeros(16)
	return w.Bytes()
}

// ============================================================================
// Preauth Integrity
// ============================================================================

func TestNegotiate311UpdatesPreauthHash(t *testing.T) {
	tc := newTestConn(t)
	req := request(types.CommandNegotiate, 0, 0, negotiate311Body())

	frames, err := tc.run(t, 1, func() error {
		return ProcessSingleRequest(context.Background(), req, tc.info)
	})
	require.NoError(t, err)
	hdr, _ := parseResponse(t, frames[0])
	require.Equal(t, types.StatusSuccess, hdr.Status)
	require.Equal(t, types.Dialect0311, tc.info.CryptoState.GetDialect())

	want := session.PreauthHash{}.Extend(req.Message).Extend(frames[0])
	assert.Equal(t, want, tc.info.CryptoState.GetPreauthHash())
}

// ============================================================================
// Compound Requests
// ============================================================================

func TestProcessCompoundRequest(t *testing.T) {
	tc := newTestConn(t)
	tc.negotiate(t, types.Dialect0210)

	logoff := (&header.SMB2Header{Command: types.CommandLogoff, MessageID: 5, SessionID: 77, NextCommand: 72}).Encode()
	logoff = append(logoff, 4, 0, 0, 0, 0, 0, 0, 0)
	echo := (&header.SMB2Header{Command: types.CommandEcho, MessageID: 6, Flags: types.FlagRelated}).Encode()
	echo = append(echo, 4, 0, 0, 0)

	req, err := parseSMB2Message(append(logoff, echo...))
	require.NoError(t, err)
	require.NotNil(t, req.Remaining)

	frames, err := tc.run(t, 2, func() error {
		return ProcessCompoundRequest(context.Background(), req, tc.info)
	})
	require.NoError(t, err)

	first, _ := parseResponse(t, frames[0])
	assert.Equal(t, types.StatusUserSessionDeleted, first.Status)

	// The related ECHO inherits the session and the failure.
	second, _ := parseResponse(t, frames[1])
	assert.Equal(t, uint64(6), second.MessageID)
	assert.Equal(t, uint64(77), second.SessionID)
	assert.Equal(t, types.StatusUserSessionDeleted, second.Status)
	assert.True(t, second.IsRelated())
}

// ============================================================================
// SMB1 Upgrade
// ============================================================================

func TestParseSMB1NegotiateDialects(t *testing.T) {
	dialects, err := ParseSMB1NegotiateDialects(buildSMB1Negotiate("PC NETWORK PROGRAM 1.0", "SMB 2.002", "SMB 2.???"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PC NETWORK PROGRAM 1.0", "SMB 2.002", "SMB 2.???"}, dialects)

	t.Run("wrong command", func(t *testing.T) {
		msg := buildSMB1Negotiate("SMB 2.002")
		msg[4] = 0x73
		_, err := ParseSMB1NegotiateDialects(msg)
		assert.Error(t, err)
	})

	t.Run("unterminated string", func(t *testing.T) {
		msg := buildSMB1Negotiate("SMB 2.002")
		msg[len(msg)-1] = 'x'
		_, err := ParseSMB1NegotiateDialects(msg)
		assert.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseSMB1NegotiateDialects(buildSMB1Negotiate("SMB 2.002")[:34])
		assert.Error(t, err)
	})
}

func TestHandleSMB1Negotiate(t *testing.T) {
	tests := []struct {
		name       string
		dialects   []string
		want       types.Dialect
		negotiated bool
	}{
		{"wildcard", []string{"NT LM 0.12", "SMB 2.002", "SMB 2.???"}, types.DialectWildcard, false},
		{"2.0.2 only", []string{"NT LM 0.12", "SMB 2.002"}, types.Dialect0202, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestConn(t)
			frames, err := tc.run(t, 1, func() error {
				return HandleSMB1Negotiate(tc.info, buildSMB1Negotiate(tt.dialects...))
			})
			require.NoError(t, err)

			hdr, body := parseResponse(t, frames[0])
			assert.Equal(t, types.CommandNegotiate, hdr.Command)
			assert.Equal(t, types.StatusSuccess, hdr.Status)
			assert.Equal(t, uint16(65), binary.LittleEndian.Uint16(body[0:2]))
			assert.Equal(t, uint16(tt.want), binary.LittleEndian.Uint16(body[4:6]))

			bufOffset := binary.LittleEndian.Uint16(body[56:58])
			bufLen := binary.LittleEndian.Uint16(body[58:60])
			assert.Equal(t, uint16(128), bufOffset)
			assert.Equal(t, tc.info.Handler.SecurityBuffer(), frames[0][bufOffset:bufOffset+bufLen])

			assert.Equal(t, tt.negotiated, tc.info.CryptoState.Negotiated())
		})
	}

	t.Run("no SMB2 dialect", func(t *testing.T) {
		tc := newTestConn(t)
		err := HandleSMB1Negotiate(tc.info, buildSMB1Negotiate("NT LM 0.12"))
		assert.Error(t, err)
	})
}

// ============================================================================
// Session Tracking
// ============================================================================

func TestTrackSessionLifecycle(t *testing.T) {
	tracker := newFakeTracker()

	TrackSessionLifecycle(types.CommandSessionSetup, 0,
		&HandlerResult{Status: types.StatusMoreProcessingRequired, SessionID: 5}, tracker)
	assert.True(t, tracker.has(5))

	TrackSessionLifecycle(types.CommandSessionSetup, 5,
		&HandlerResult{Status: types.StatusLogonFailure, SessionID: 5}, tracker)
	assert.False(t, tracker.has(5))

	TrackSessionLifecycle(types.CommandSessionSetup, 0,
		&HandlerResult{Status: types.StatusSuccess, SessionID: 6}, tracker)
	assert.True(t, tracker.has(6))

	TrackSessionLifecycle(types.CommandLogoff, 6, &HandlerResult{Status: types.StatusSuccess}, tracker)
	assert.False(t, tracker.has(6))

	// nil tracker is a no-op
	TrackSessionLifecycle(types.CommandLogoff, 6, &HandlerResult{Status: types.StatusSuccess}, nil)
}
