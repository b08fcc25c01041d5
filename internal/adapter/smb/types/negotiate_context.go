package types

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/encoding/unicode"

	"github.com/marmos91/dittosmb/internal/wire"
)

// ErrMalformedContext reports a negotiate context list, or a context
// payload, that runs past its data.
var ErrMalformedContext = errors.New("malformed negotiate context")

// NegotiateContext is one SMB 3.1.1 negotiate context with its payload
// still encoded. [MS-SMB2] 2.2.3.1
type NegotiateContext struct {
	ContextType uint16
	Data        []byte
}

// contextHeaderLen covers ContextType, DataLength and Reserved.
const contextHeaderLen = 8

// ParseNegotiateContextList decodes count contexts. Each context after the
// first starts on an 8-byte boundary of data.
func ParseNegotiateContextList(data []byte, count int) ([]NegotiateContext, error) {
	if count == 0 {
		return nil, nil
	}
	r := wire.NewReader(data)
	out := make([]NegotiateContext, count)
	for i := range out {
		if off := r.Position() % 8; i > 0 && off != 0 {
			r.Skip(8 - off)
		}
		typ := r.ReadUint16()
		n := r.ReadUint16()
		r.Skip(4)
		out[i] = NegotiateContext{ContextType: typ, Data: r.ReadBytes(int(n))}
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("%w: context %d: %w", ErrMalformedContext, i, err)
		}
	}
	return out, nil
}

// EncodeNegotiateContextList pads between contexts but not after the last.
func EncodeNegotiateContextList(contexts []NegotiateContext) []byte {
	if len(contexts) == 0 {
		return nil
	}
	size := 0
	for _, c := range contexts {
		size += contextHeaderLen + len(c.Data) + 7
	}
	w := wire.NewWriter(size)
	for i, c := range contexts {
		if i > 0 {
			w.Pad(8)
		}
		w.WriteUint16(c.ContextType)
		w.WriteUint16(uint16(len(c.Data)))
		w.WriteZeros(4)
		w.WriteBytes(c.Data)
	}
	return w.Bytes()
}

// FindContext returns the first context of type ctxType.
func FindContext(contexts []NegotiateContext, ctxType uint16) (NegotiateContext, bool) {
	i := slices.IndexFunc(contexts, func(c NegotiateContext) bool { return c.ContextType == ctxType })
	if i < 0 {
		return NegotiateContext{}, false
	}
	return contexts[i], true
}

// PreauthIntegrityCaps is SMB2_PREAUTH_INTEGRITY_CAPABILITIES: two counts,
// then the hash algorithm ids, then the salt. [MS-SMB2] 2.2.3.1.1
type PreauthIntegrityCaps struct {
	HashAlgorithms []uint16
	Salt           []byte
}

func (p PreauthIntegrityCaps) Encode() []byte {
	w := wire.NewWriter(4 + 2*len(p.HashAlgorithms) + len(p.Salt))
	w.WriteUint16(uint16(len(p.HashAlgorithms)))
	w.WriteUint16(uint16(len(p.Salt)))
	writeUint16s(w, p.HashAlgorithms)
	w.WriteBytes(p.Salt)
	return w.Bytes()
}

// Supports reports whether the peer offered alg.
func (p PreauthIntegrityCaps) Supports(alg uint16) bool {
	return slices.Contains(p.HashAlgorithms, alg)
}

func DecodePreauthIntegrityCaps(data []byte) (PreauthIntegrityCaps, error) {
	r := wire.NewReader(data)
	algs := int(r.ReadUint16())
	salt := int(r.ReadUint16())
	r.EnsureRemaining(2*algs + salt)
	if err := r.Err(); err != nil {
		return PreauthIntegrityCaps{}, fmt.Errorf("%w: preauth integrity caps: %w", ErrMalformedContext, err)
	}
	return PreauthIntegrityCaps{
		HashAlgorithms: readUint16s(r, algs),
		Salt:           r.ReadBytes(salt),
	}, nil
}

// EncryptionCaps is SMB2_ENCRYPTION_CAPABILITIES. [MS-SMB2] 2.2.3.1.2
type EncryptionCaps struct {
	Ciphers []uint16
}

func (e EncryptionCaps) Encode() []byte {
	w := wire.NewWriter(2 + 2*len(e.Ciphers))
	w.WriteUint16(uint16(len(e.Ciphers)))
	writeUint16s(w, e.Ciphers)
	return w.Bytes()
}

func DecodeEncryptionCaps(data []byte) (EncryptionCaps, error) {
	r := wire.NewReader(data)
	n := int(r.ReadUint16())
	r.EnsureRemaining(2 * n)
	if err := r.Err(); err != nil {
		return EncryptionCaps{}, fmt.Errorf("%w: encryption caps: %w", ErrMalformedContext, err)
	}
	return EncryptionCaps{Ciphers: readUint16s(r, n)}, nil
}

// NetnameContext carries the server name the client dialled. Clients send
// it; the server only logs it. [MS-SMB2] 2.2.3.1.4
type NetnameContext struct {
	NetName string
}

// DecodeNetnameContext decodes unterminated UTF-16LE.
func DecodeNetnameContext(data []byte) (NetnameContext, error) {
	switch {
	case len(data)%2 != 0:
		return NetnameContext{}, fmt.Errorf("%w: netname context: odd data length %d", ErrMalformedContext, len(data))
	case len(data) == 0:
		return NetnameContext{}, nil
	}
	name, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return NetnameContext{}, fmt.Errorf("%w: netname context: %w", ErrMalformedContext, err)
	}
	return NetnameContext{NetName: string(name)}, nil
}

func writeUint16s(w *wire.Writer, vs []uint16) {
	for _, v := range vs {
		w.WriteUint16(v)
	}
}

func readUint16s(r *wire.Reader, n int) []uint16 {
	vs := make([]uint16, n)
	for i := range vs {
		vs[i] = r.ReadUint16()
	}
	return vs
}
