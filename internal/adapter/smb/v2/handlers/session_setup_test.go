package handlers

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/adapter/smb/auth"
	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/auth/ntlm"
	"github.com/marmos91/dittosmb/internal/auth/spnego"
	"github.com/marmos91/dittosmb/internal/wire"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testClientAddr = "192.0.2.10:50000"

type memUserStore struct {
	users map[string]*models.User
}

func newMemUserStore(creds map[string]string) *memUserStore {
	s := &memUserStore{users: make(map[string]*models.User)}
	for name, password := range creds {
		u := &models.User{Username: name, Enabled: true}
		u.SetNTHashFromPassword(password)
		s.users[models.NormalizeUsername(name)] = u
	}
	return s
}

func (s *memUserStore) GetUser(_ context.Context, username string) (*models.User, error) {
	u, ok := s.users[models.NormalizeUsername(username)]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (s *memUserStore) ListUsers(context.Context) ([]*models.User, error) { return nil, nil }

func (s *memUserStore) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func newSessionSetupHandler(allowGuest bool) *Handler {
	store := newMemUserStore(map[string]string{"alice": "wonderland"})
	a := auth.New(store, auth.Config{
		AllowGuest: allowGuest,
		NTLM:       ntlm.ServerConfig{TargetName: "DITTO", NetBIOSDomainName: "DITTO"},
	}, nil)
	return NewHandler(session.NewManager(nil), a)
}

// buildSessionSetupRequest builds a SESSION_SETUP body with the security
// buffer directly after the fixed part (offset 88 from the header).
func buildSessionSetupRequest(securityBuffer []byte) []byte {
	w := wire.NewWriter(24 + len(securityBuffer))
	w.WriteUint16(25)
	w.WriteUint8(0)
	w.WriteUint8(uint8(types.NegotiateSigningEnabled))
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteUint16(88)
	w.WriteUint16(uint16(len(securityBuffer)))
	w.WriteUint64(0)
	w.WriteBytes(securityBuffer)
	return w.Bytes()
}

func sessionSetupContext(sessionID uint64) *SMBHandlerContext {
	return NewSMBHandlerContext(context.Background(), testClientAddr, sessionID, 0, 2)
}

// responseToken extracts the security buffer of a SESSION_SETUP response.
func responseToken(t *testing.T, data []byte) (flags uint16, token []byte) {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 9)
	require.Equal(t, uint16(9), binary.LittleEndian.Uint16(data[0:2]))
	require.Equal(t, uint16(72), binary.LittleEndian.Uint16(data[4:6]))
	length := int(binary.LittleEndian.Uint16(data[6:8]))
	return binary.LittleEndian.Uint16(data[2:4]), data[8 : 8+length]
}

// negotiateLeg sends the SPNEGO-wrapped NTLM NEGOTIATE and returns the
// result with the NTLM CHALLENGE it carried.
func negotiateLeg(t *testing.T, h *Handler, ctx *SMBHandlerContext) (*HandlerResult, []byte) {
	t.Helper()
	neg, err := ntlmssp.NewNegotiateMessage("", "")
	require.NoError(t, err)

	result, err := h.SessionSetup(ctx, buildSessionSetupRequest(spnego.NewNegTokenInit2(neg).Bytes()))
	require.NoError(t, err)
	require.Equal(t, types.StatusMoreProcessingRequired, result.Status)
	require.NotZero(t, result.SessionID)

	_, token := responseToken(t, result.Data)
	tok, err := spnego.Unwrap(token)
	require.NoError(t, err)
	resp, ok := tok.(*spnego.NegTokenResp)
	require.True(t, ok)
	return result, resp.ResponseToken
}

func authenticateLeg(t *testing.T, h *Handler, sessionID uint64, challenge []byte, user, password string) *HandlerResult {
	t.Helper()
	authMsg, err := ntlmssp.ProcessChallenge(challenge, user, password, false)
	require.NoError(t, err)

	buf := spnego.NewNegTokenResp(spnego.NegStateNone, nil, authMsg, nil).Bytes()
	result, err := h.SessionSetup(sessionSetupContext(sessionID), buildSessionSetupRequest(buf))
	require.NoError(t, err)
	return result
}

// =============================================================================
// Three-leg Exchange
// =============================================================================

func TestSessionSetup_Success(t *testing.T) {
	h := newSessionSetupHandler(false)

	first, challenge := negotiateLeg(t, h, sessionSetupContext(0))
	sess, ok := h.GetSession(first.SessionID)
	require.True(t, ok)
	assert.Equal(t, session.StateInProgress, sess.State())

	final := authenticateLeg(t, h, first.SessionID, challenge, "alice", "wonderland")
	require.Equal(t, types.StatusSuccess, final.Status)
	assert.Equal(t, first.SessionID, final.SessionID)

	flags, token := responseToken(t, final.Data)
	assert.Zero(t, flags)
	tok, err := spnego.Unwrap(token)
	require.NoError(t, err)
	assert.Equal(t, spnego.NegStateAcceptCompleted, tok.(*spnego.NegTokenResp).NegState)

	assert.Equal(t, session.StateValid, sess.State())
	assert.Equal(t, "alice", sess.Username())
	assert.Len(t, sess.SessionKey(), 16)
}

func TestSessionSetup_WrongPassword(t *testing.T) {
	h := newSessionSetupHandler(false)

	first, challenge := negotiateLeg(t, h, sessionSetupContext(0))
	final := authenticateLeg(t, h, first.SessionID, challenge, "alice", "looking-glass")
	assert.Equal(t, types.StatusLogonFailure, final.Status)

	_, token := responseToken(t, final.Data)
	tok, err := spnego.Unwrap(token)
	require.NoError(t, err)
	assert.Equal(t, spnego.NegStateReject, tok.(*spnego.NegTokenResp).NegState)

	_, ok := h.GetSession(first.SessionID)
	assert.False(t, ok, "failed session must be removed")
	assert.Zero(t, h.SessionManager.Count())
}

func TestSessionSetup_Guest(t *testing.T) {
	t.Run("unknown user mapped to guest", func(t *testing.T) {
		h := newSessionSetupHandler(true)
		first, challenge := negotiateLeg(t, h, sessionSetupContext(0))
		final := authenticateLeg(t, h, first.SessionID, challenge, "mallory", "whatever")
		require.Equal(t, types.StatusSuccess, final.Status)

		flags, _ := responseToken(t, final.Data)
		assert.Equal(t, types.SessionFlagIsGuest, flags)
		sess, ok := h.GetSession(first.SessionID)
		require.True(t, ok)
		assert.True(t, sess.IsGuest())
		assert.Nil(t, sess.SessionKey())
	})

	t.Run("unknown user fails without allow_guest", func(t *testing.T) {
		h := newSessionSetupHandler(false)
		first, challenge := negotiateLeg(t, h, sessionSetupContext(0))
		final := authenticateLeg(t, h, first.SessionID, challenge, "mallory", "whatever")
		assert.Equal(t, types.StatusLogonFailure, final.Status)
	})
}

func TestSessionSetup_RawNTLM(t *testing.T) {
	h := newSessionSetupHandler(false)

	neg, err := ntlmssp.NewNegotiateMessage("", "")
	require.NoError(t, err)
	first, err := h.SessionSetup(sessionSetupContext(0), buildSessionSetupRequest(neg))
	require.NoError(t, err)
	require.Equal(t, types.StatusMoreProcessingRequired, first.Status)

	_, challenge := responseToken(t, first.Data)
	assert.True(t, ntlm.IsValid(challenge), "raw clients get a raw CHALLENGE")

	authMsg, err := ntlmssp.ProcessChallenge(challenge, "alice", "wonderland", false)
	require.NoError(t, err)
	final, err := h.SessionSetup(sessionSetupContext(first.SessionID), buildSessionSetupRequest(authMsg))
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, final.Status)
}

// =============================================================================
// Session Lookup and Validation
// =============================================================================

func TestSessionSetup_UnknownSession(t *testing.T) {
	h := newSessionSetupHandler(false)
	result, err := h.SessionSetup(sessionSetupContext(0xDEAD), buildSessionSetupRequest([]byte{0x60}))
	require.NoError(t, err)
	assert.Equal(t, types.StatusUserSessionDeleted, result.Status)
	assert.Nil(t, result.Data)
}

func TestSessionSetup_EstablishedSessionRejected(t *testing.T) {
	h := newSessionSetupHandler(false)
	first, challenge := negotiateLeg(t, h, sessionSetupContext(0))
	final := authenticateLeg(t, h, first.SessionID, challenge, "alice", "wonderland")
	require.Equal(t, types.StatusSuccess, final.Status)

	again := authenticateLeg(t, h, first.SessionID, challenge, "alice", "wonderland")
	assert.Equal(t, types.StatusUserSessionDeleted, again.Status)
}

func TestSessionSetup_MalformedRequests(t *testing.T) {
	h := newSessionSetupHandler(false)

	tests := []struct {
		name string
		body func() []byte
	}{
		{"truncated body", func() []byte { return make([]byte, 10) }},
		{"wrong structure size", func() []byte {
			b := buildSessionSetupRequest([]byte{1, 2, 3})
			binary.LittleEndian.PutUint16(b[0:2], 24)
			return b
		}},
		{"buffer past end", func() []byte {
			b := buildSessionSetupRequest([]byte{1, 2, 3})
			binary.LittleEndian.PutUint16(b[14:16], 100)
			return b
		}},
		{"buffer overlaps fixed body", func() []byte {
			b := buildSessionSetupRequest([]byte{1, 2, 3})
			binary.LittleEndian.PutUint16(b[12:14], 64)
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.SessionSetup(sessionSetupContext(0), tt.body())
			require.NoError(t, err)
			assert.Equal(t, types.StatusInvalidParameter, result.Status)
		})
	}
	assert.Zero(t, h.SessionManager.Count(), "malformed requests must not leave sessions behind")
}

func TestSessionSetup_GarbageToken(t *testing.T) {
	h := newSessionSetupHandler(false)
	result, err := h.SessionSetup(sessionSetupContext(0), buildSessionSetupRequest([]byte{0x01, 0x02, 0x03}))
	require.NoError(t, err)
	assert.Equal(t, types.StatusInvalidParameter, result.Status)
	assert.Zero(t, h.SessionManager.Count())
}

func TestSessionSetup_BindingRefused(t *testing.T) {
	h := newSessionSetupHandler(false)
	body := buildSessionSetupRequest([]byte{0x60})
	body[2] = types.SessionSetupFlagBinding
	result, err := h.SessionSetup(sessionSetupContext(0), body)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRequestNotAccepted, result.Status)
}

// =============================================================================
// Preauth Integrity
// =============================================================================

func TestSessionSetup_PreauthHashSeededFromConnection(t *testing.T) {
	h := newSessionSetupHandler(false)
	state := &fakeCryptoState{dialect: types.Dialect0311}
	state.UpdatePreauthHash([]byte("negotiate request"))
	state.UpdatePreauthHash([]byte("negotiate response"))

	ctx := sessionSetupContext(0)
	ctx.ConnCryptoState = state
	ctx.RawMessage = []byte("session setup request")

	first, _ := negotiateLeg(t, h, ctx)
	sess, ok := h.GetSession(first.SessionID)
	require.True(t, ok)

	expected := state.GetPreauthHash().Extend(ctx.RawMessage)
	assert.Equal(t, expected, sess.Preauth())
}

func TestSessionSetup_NoPreauthBefore311(t *testing.T) {
	h := newSessionSetupHandler(false)
	ctx := sessionSetupContext(0)
	ctx.ConnCryptoState = &fakeCryptoState{dialect: types.Dialect0302}
	ctx.RawMessage = []byte("session setup request")

	first, _ := negotiateLeg(t, h, ctx)
	sess, ok := h.GetSession(first.SessionID)
	require.True(t, ok)
	assert.Equal(t, session.PreauthHash{}, sess.Preauth())
}
