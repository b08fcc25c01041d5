package smb

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
)

// frame wraps payload in a NetBIOS session message header.
func frame(payload []byte) []byte {
	n := len(payload)
	return append([]byte{0x00, byte(n >> 16), byte(n >> 8), byte(n)}, payload...)
}

func smb2Message(hdr *header.SMB2Header, body []byte) []byte {
	return append(hdr.Encode(), body...)
}

// feed writes data to the client end of a pipe and returns the server end.
func feed(t *testing.T, data []byte) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	go func() {
		_, _ = client.Write(data)
	}()
	return server
}

func noSMB1(context.Context, []byte) error {
	return errors.New("unexpected SMB1 message")
}

// ============================================================================
// ReadRequest
// ============================================================================

func TestReadRequest(t *testing.T) {
	echo := smb2Message(&header.SMB2Header{Command: types.CommandEcho, MessageID: 7, Credits: 1}, []byte{4, 0, 0, 0})

	t.Run("single request", func(t *testing.T) {
		conn := feed(t, frame(echo))
		req, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		require.NoError(t, err)

		assert.Equal(t, types.CommandEcho, req.Header.Command)
		assert.Equal(t, uint64(7), req.Header.MessageID)
		assert.Equal(t, echo, req.Message)
		assert.Equal(t, []byte{4, 0, 0, 0}, req.Body)
		assert.Nil(t, req.Remaining)
	})

	t.Run("keepalives are skipped", func(t *testing.T) {
		data := append([]byte{0x85, 0, 0, 0, 0x85, 0, 0, 0}, frame(echo)...)
		conn := feed(t, data)
		req, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		require.NoError(t, err)
		assert.Equal(t, types.CommandEcho, req.Header.Command)
	})

	t.Run("too large", func(t *testing.T) {
		conn := feed(t, frame(echo))
		_, err := ReadRequest(context.Background(), conn, 32, 0, noSMB1)
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	})

	t.Run("unknown protocol", func(t *testing.T) {
		conn := feed(t, frame([]byte("GET / HTTP/1.1\r\n")))
		_, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		assert.ErrorIs(t, err, ErrUnknownProtocol)
	})

	t.Run("unsupported NetBIOS type", func(t *testing.T) {
		conn := feed(t, []byte{0x81, 0, 0, 0})
		_, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		assert.Error(t, err)
	})

	t.Run("truncated header", func(t *testing.T) {
		conn := feed(t, frame(echo[:40]))
		_, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		assert.Error(t, err)
	})

	t.Run("SMB1 upgrade then SMB2", func(t *testing.T) {
		smb1 := buildSMB1Negotiate("NT LM 0.12", "SMB 2.???")
		conn := feed(t, append(frame(smb1), frame(echo)...))

		var seen []byte
		req, err := ReadRequest(context.Background(), conn, 1<<16, 0, func(_ context.Context, msg []byte) error {
			seen = msg
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, smb1, seen)
		assert.Equal(t, types.CommandEcho, req.Header.Command)
	})

	t.Run("SMB1 handler error closes", func(t *testing.T) {
		conn := feed(t, frame(buildSMB1Negotiate("NT LM 0.12")))
		_, err := ReadRequest(context.Background(), conn, 1<<16, 0, noSMB1)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		conn := feed(t, frame(echo))
		_, err := ReadRequest(ctx, conn, 1<<16, 0, noSMB1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// ============================================================================
// Compound Splitting
// ============================================================================

func TestCompoundSplit(t *testing.T) {
	body := []byte{4, 0, 0, 0, 0, 0, 0, 0}
	first := smb2Message(&header.SMB2Header{Command: types.CommandEcho, MessageID: 1, NextCommand: 72}, body)
	second := smb2Message(&header.SMB2Header{Command: types.CommandEcho, MessageID: 2, Flags: types.FlagRelated}, body[:4])
	message := append(append([]byte{}, first...), second...)

	req, err := parseSMB2Message(message)
	require.NoError(t, err)
	assert.Equal(t, first, req.Message)
	assert.Equal(t, second, req.Remaining)

	hdr, msg, cmdBody, rest, err := ParseCompoundCommand(req.Remaining)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), hdr.MessageID)
	assert.True(t, hdr.IsRelated())
	assert.Equal(t, second, msg)
	assert.Equal(t, body[:4], cmdBody)
	assert.Nil(t, rest)

	t.Run("NextCommand past the end ends the chain", func(t *testing.T) {
		hdr := &header.SMB2Header{NextCommand: 4096}
		cur, rem := splitCompound(first, hdr)
		assert.Equal(t, first, cur)
		assert.Nil(t, rem)
	})

	t.Run("NextCommand inside the header ends the chain", func(t *testing.T) {
		hdr := &header.SMB2Header{NextCommand: 8}
		cur, rem := splitCompound(first, hdr)
		assert.Equal(t, first, cur)
		assert.Nil(t, rem)
	})

	t.Run("NEGOTIATE in a chain is rejected", func(t *testing.T) {
		neg := smb2Message(&header.SMB2Header{Command: types.CommandNegotiate}, nil)
		_, _, _, _, err := ParseCompoundCommand(neg)
		assert.Error(t, err)
	})
}

// ============================================================================
// Writing
// ============================================================================

func TestWriteNetBIOSFrame(t *testing.T) {
	server, client := net.Pipe()
	defer func() { _ = server.Close() }()
	defer func() { _ = client.Close() }()

	payload := bytes.Repeat([]byte{0xAB}, 300)
	errCh := make(chan error, 1)
	go func() {
		errCh <- WriteNetBIOSFrame(server, &LockedWriter{}, 0, payload)
	}()

	got := make([]byte, 4+len(payload))
	_, err := readFull(client, got)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x2C}, got[:4])
	assert.Equal(t, payload, got[4:])
}
