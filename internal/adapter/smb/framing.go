package smb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/header"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/bufpool"
)

// Direct-hosted TCP (port 445) keeps the RFC 1002 session header: one type
// byte and a 24-bit big-endian length. Only session messages and keepalives
// occur.
const (
	nbSessionMessage   byte = 0x00
	nbSessionKeepAlive byte = 0x85

	nbHeaderLen = 4
	nbMaxLength = 1<<24 - 1
)

var (
	// ErrMessageTooLarge means the peer announced a frame above the limit.
	// The stream cannot be resynchronized afterwards.
	ErrMessageTooLarge = errors.New("SMB message too large")
	// ErrUnknownProtocol means a frame carried neither an SMB1 nor an SMB2
	// protocol id.
	ErrUnknownProtocol = errors.New("unknown protocol")
)

// Request is the first SMB2 command of one frame.
type Request struct {
	Header *header.SMB2Header
	// Message is header plus body of this command, as hashed for preauth
	// integrity.
	Message []byte
	Body    []byte
	// Remaining is the rest of a compound chain starting at the next header,
	// nil when the frame held a single command.
	Remaining []byte
}

// ReadRequest returns the next SMB2 request on conn. Frames above
// maxMsgSize fail with ErrMessageTooLarge; readTimeout, when positive,
// bounds the wait for the whole frame.
//
// A leading SMB1 NEGOTIATE is passed to handleSMB1, which answers it with
// an SMB2 upgrade, and the frame after it must then be SMB2.
func ReadRequest(
	ctx context.Context,
	conn net.Conn,
	maxMsgSize int,
	readTimeout time.Duration,
	handleSMB1 func(ctx context.Context, message []byte) error,
) (*Request, error) {
	fr := frameReader{conn: conn, max: maxMsgSize, timeout: readTimeout}

	msg, err := fr.next(ctx, 4)
	if err != nil {
		return nil, err
	}
	if header.IsSMB1Message(msg) {
		if err := handleSMB1(ctx, msg); err != nil {
			return nil, fmt.Errorf("handle SMB1 negotiate: %w", err)
		}
		if msg, err = fr.next(ctx, header.HeaderSize); err != nil {
			return nil, err
		}
	}
	if !header.IsSMB2Message(msg) {
		return nil, fmt.Errorf("%w: frame starts with % x", ErrUnknownProtocol, msg[:4])
	}
	return parseSMB2Message(msg)
}

type frameReader struct {
	conn    net.Conn
	max     int
	timeout time.Duration
}

// next reads one session message of at least minLen bytes, skipping
// keepalives.
func (fr frameReader) next(ctx context.Context, minLen int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fr.timeout > 0 {
		if err := fr.conn.SetReadDeadline(time.Now().Add(fr.timeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	var hdr [nbHeaderLen]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(fr.conn, hdr[:]); err != nil {
			return nil, err
		}
		if hdr[0] == nbSessionKeepAlive {
			continue
		}
		if hdr[0] != nbSessionMessage {
			return nil, fmt.Errorf("unsupported NetBIOS message type: 0x%02x", hdr[0])
		}
		break
	}

	n := int(binary.BigEndian.Uint32(hdr[:]) & nbMaxLength)
	switch {
	case n > fr.max:
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, n, fr.max)
	case n < minLen:
		return nil, fmt.Errorf("SMB message too small: %d bytes (need %d)", n, minLen)
	}

	msg := make([]byte, n)
	if _, err := io.ReadFull(fr.conn, msg); err != nil {
		return nil, fmt.Errorf("read SMB message: %w", err)
	}
	return msg, nil
}

func parseSMB2Message(msg []byte) (*Request, error) {
	hdr, err := header.Parse(msg)
	if err != nil {
		return nil, fmt.Errorf("parse SMB2 header: %w", err)
	}

	cur, rest := splitCompound(msg, hdr)
	req := &Request{Header: hdr, Message: cur, Body: cur[header.HeaderSize:], Remaining: rest}

	logger.Debug("SMB2 request",
		logger.Command(hdr.Command.String()),
		logger.MessageID(hdr.MessageID),
		logger.SessionID(hdr.SessionID),
		"tree_id", hdr.TreeID,
		"flags", fmt.Sprintf("0x%x", uint32(hdr.Flags)),
		"compound_bytes", len(rest))
	return req, nil
}

// splitCompound cuts msg at hdr.NextCommand. An offset inside the header
// or at or past the end leaves the whole message as one command.
func splitCompound(msg []byte, hdr *header.SMB2Header) (current, remaining []byte) {
	next := int(hdr.NextCommand)
	if next < header.HeaderSize || next >= len(msg) {
		return msg, nil
	}
	return msg[:next], msg[next:]
}

// WriteNetBIOSFrame sends payload as one session message. Every response
// leaves through here, serialized by writeMu.
func WriteNetBIOSFrame(conn net.Conn, writeMu *LockedWriter, writeTimeout time.Duration, payload []byte) error {
	if len(payload) > nbMaxLength {
		return fmt.Errorf("%w: response of %d bytes", ErrMessageTooLarge, len(payload))
	}

	frame := bufpool.Get(nbHeaderLen + len(payload))
	defer bufpool.Put(frame)
	binary.BigEndian.PutUint32(frame, uint32(len(payload))) // type byte stays 0x00
	copy(frame[nbHeaderLen:], payload)

	writeMu.Lock()
	defer writeMu.Unlock()
	if writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write SMB message: %w", err)
	}
	return nil
}

// SendRawMessage frames a hand-built header and body, as used for the SMB1
// upgrade response.
func SendRawMessage(conn net.Conn, writeMu *LockedWriter, writeTimeout time.Duration, headerBytes, body []byte) error {
	return WriteNetBIOSFrame(conn, writeMu, writeTimeout, append(append([]byte{}, headerBytes...), body...))
}
