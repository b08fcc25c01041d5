// Package auth authenticates SMB2 SESSION_SETUP exchanges.
//
// The Authenticator is the boundary between the SMB handlers and the
// authentication core: it takes the raw security buffer of one
// SESSION_SETUP request and returns the security buffer for the response
// together with the NT status to place in the response header. SPNEGO
// framing is handled here; the NTLM exchange itself is driven by the
// ntlm.Session owned by the SMB session.
//
// Credentials come from the credential store: the user name is read from
// the AUTHENTICATE message, its NT hash is looked up, and the NTLMv2
// response is verified against it.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/session"
	"github.com/marmos91/dittosmb/internal/adapter/smb/types"
	"github.com/marmos91/dittosmb/internal/auth/ntlm"
	"github.com/marmos91/dittosmb/internal/auth/spnego"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/controlplane/models"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// Mechanism names used in logs and metrics.
const (
	MechanismSPNEGO = "spnego"
	MechanismNTLM   = "ntlm"
)

// Outcome classifies the result of one SESSION_SETUP leg.
type Outcome string

const (
	OutcomeChallenge   Outcome = "challenge"
	OutcomeSuccess     Outcome = "success"
	OutcomeGuest       Outcome = "guest"
	OutcomeFailure     Outcome = "failure"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeUnsupported Outcome = "unsupported"
)

// Config controls authentication policy.
type Config struct {
	// AllowGuest establishes a guest session, instead of failing, when the
	// client names a user the store does not know.
	AllowGuest bool

	// NTLM holds the names announced in CHALLENGE messages.
	NTLM ntlm.ServerConfig
}

// Result is the outcome of Accept.
type Result struct {
	// Status goes into the SESSION_SETUP response header.
	Status types.Status

	// Token is the response security buffer. It may be nil.
	Token []byte

	Outcome   Outcome
	Mechanism string

	// Identity is set when Status is SUCCESS.
	Identity *session.Identity

	// Err carries the underlying error of a failed leg, for logging.
	Err error
}

// Done reports whether the exchange is over, successfully or not.
func (r Result) Done() bool {
	return r.Status != types.StatusMoreProcessingRequired
}

// Authenticator authenticates SESSION_SETUP security buffers.
// It is safe for concurrent use; per-exchange state lives in the session.
type Authenticator struct {
	users   models.UserStore
	cfg     Config
	metrics metrics.SMBMetrics
	now     func() time.Time
}

// New creates an Authenticator. users may be nil, in which case every
// named user is unknown. m may be nil to disable metrics.
func New(users models.UserStore, cfg Config, m metrics.SMBMetrics) *Authenticator {
	return &Authenticator{
		users:   users,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// Accept processes one security buffer for sess.
//
// The caller must hold the session lock. Accept creates the session's NTLM
// state machine on the first leg but never changes the session state:
// establishing or deleting the session according to the result is left to
// the caller.
func (a *Authenticator) Accept(ctx context.Context, sess *session.Session, buf []byte) Result {
	res := a.accept(ctx, sess, buf)
	metrics.RecordAuthentication(a.metrics, res.Mechanism, string(res.Outcome))
	return res
}

func (a *Authenticator) accept(ctx context.Context, sess *session.Session, buf []byte) Result {
	first := sess.NTLM == nil

	if ntlm.IsValid(buf) {
		if first {
			sess.RawNTLM = true
		}
		return a.handleNTLM(ctx, sess, buf, true)
	}

	mech := MechanismSPNEGO
	if len(buf) == 0 {
		return invalid(mech, errors.New("empty security buffer"))
	}

	tok, err := spnego.Unwrap(buf)
	if err != nil {
		return invalid(mech, err)
	}

	switch t := tok.(type) {
	case *spnego.NegTokenInit:
		if !t.HasNTLM() {
			logger.DebugCtx(ctx, "SPNEGO offer without NTLM",
				"kerberos", t.HasKerberos(),
				"mechs", len(t.MechTypes))
			return Result{
				Status:    types.StatusNotSupported,
				Token:     spnego.Reject().Bytes(),
				Outcome:   OutcomeUnsupported,
				Mechanism: mech,
				Err:       errors.New("no supported mechanism offered"),
			}
		}
		// An optimistic token belongs to the preferred mechanism. When that
		// is not NTLM, ignore it and steer the client to NTLM.
		if len(t.MechToken) == 0 || !t.PreferredMech().Equal(spnego.OIDNTLMSSP) {
			return Result{
				Status:    types.StatusMoreProcessingRequired,
				Token:     spnego.AcceptIncomplete(nil).Bytes(),
				Outcome:   OutcomeChallenge,
				Mechanism: mech,
			}
		}
		return a.handleNTLM(ctx, sess, t.MechToken, false)

	case *spnego.NegTokenResp:
		if t.NegState == spnego.NegStateReject {
			return a.failure(mech, false, types.StatusLogonFailure, errors.New("client rejected negotiation"))
		}
		if len(t.ResponseToken) == 0 {
			return invalid(mech, errors.New("NegTokenResp without responseToken"))
		}
		return a.handleNTLM(ctx, sess, t.ResponseToken, false)
	}

	return invalid(mech, spnego.ErrInvalidToken)
}

// handleNTLM runs one NTLM leg. raw selects bare NTLMSSP answers instead of
// SPNEGO NegTokenResp.
func (a *Authenticator) handleNTLM(ctx context.Context, sess *session.Session, token []byte, raw bool) Result {
	mech := MechanismSPNEGO
	if raw {
		mech = MechanismNTLM
	}

	switch ntlm.GetMessageType(token) {
	case ntlm.Negotiate:
		return a.negotiate(ctx, sess, token, mech, raw)
	case ntlm.Authenticate:
		return a.authenticate(ctx, sess, token, mech, raw)
	default:
		return invalid(mech, errors.New("unexpected NTLM message type"))
	}
}

func (a *Authenticator) negotiate(ctx context.Context, sess *session.Session, token []byte, mech string, raw bool) Result {
	ctx, span := telemetry.StartAuthSpan(ctx, mech, telemetry.NTLMPhase("negotiate"))
	defer span.End()

	if sess.NTLM == nil {
		sess.NTLM = ntlm.NewSession(a.cfg.NTLM)
	}

	challenge, err := sess.NTLM.Negotiate(token)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return a.failure(mech, raw, types.Status(ntlm.AuthenticationStatus(err)), err)
	}

	logger.DebugCtx(ctx, "NTLM challenge issued",
		logger.NTLMFlags(uint32(sess.NTLM.NegotiateFlags())),
		logger.Mechanism(mech))

	if !raw {
		challenge = spnego.AcceptIncomplete(challenge).Bytes()
	}
	return Result{
		Status:    types.StatusMoreProcessingRequired,
		Token:     challenge,
		Outcome:   OutcomeChallenge,
		Mechanism: mech,
	}
}

func (a *Authenticator) authenticate(ctx context.Context, sess *session.Session, token []byte, mech string, raw bool) Result {
	ctx, span := telemetry.StartAuthSpan(ctx, mech, telemetry.NTLMPhase("authenticate"))
	defer span.End()

	if sess.NTLM == nil || sess.NTLM.State() != ntlm.StateAwaitingAuthentication {
		return invalid(mech, ntlm.ErrIllegalState)
	}

	msg, err := ntlm.ParseAuthenticate(token)
	if err != nil {
		return invalid(mech, err)
	}
	span.SetAttributes(telemetry.Username(msg.Username), telemetry.Domain(msg.Domain))

	var user *models.User
	if !msg.IsAnonymous() {
		user, err = a.lookup(ctx, msg.Username)
	}
	switch {
	case errors.Is(err, models.ErrUserNotFound) && a.cfg.AllowGuest:
		logger.InfoCtx(ctx, "Unknown user mapped to guest",
			logger.Username(msg.Username),
			logger.Domain(msg.Domain),
			logger.Workstation(msg.Workstation))
		ok := spnego.AcceptCompleted(nil).Bytes()
		if raw {
			ok = nil
		}
		return Result{
			Status:    types.StatusSuccess,
			Token:     ok,
			Outcome:   OutcomeGuest,
			Mechanism: mech,
			Identity: &session.Identity{
				Username:    msg.Username,
				Domain:      msg.Domain,
				Workstation: msg.Workstation,
				IsGuest:     true,
			},
		}
	case err != nil:
		telemetry.RecordError(ctx, err)
		return a.failure(mech, raw, types.StatusLogonFailure, err)
	}

	// Anonymous logons reach the NTLM core with an empty key, which rejects them.
	var ntHash []byte
	if user != nil {
		h, _ := user.GetNTHash()
		ntHash = h[:]
	} else {
		ntHash = make([]byte, 16)
	}

	if err := sess.NTLM.AuthenticateHash(token, msg.Username, ntHash, msg.Domain); err != nil {
		telemetry.RecordError(ctx, err)
		return a.failure(mech, raw, types.Status(ntlm.AuthenticationStatus(err)), err)
	}

	if user == nil {
		return a.failure(mech, raw, types.StatusLogonFailure, errors.New("anonymous logon"))
	}
	key, err := sess.NTLM.ExportedSessionKey()
	if err != nil {
		return a.failure(mech, raw, types.StatusLogonFailure, err)
	}

	if err := a.users.UpdateLastLogin(ctx, user.Username, a.now()); err != nil {
		logger.WarnCtx(ctx, "Failed to record last login", logger.Username(user.Username), logger.Err(err))
	}

	var ok []byte
	if !raw {
		ok = spnego.AcceptCompleted(nil).Bytes()
	}
	return Result{
		Status:    types.StatusSuccess,
		Token:     ok,
		Outcome:   OutcomeSuccess,
		Mechanism: mech,
		Identity: &session.Identity{
			Username:    user.Username,
			Domain:      msg.Domain,
			Workstation: msg.Workstation,
			SessionKey:  key,
		},
	}
}

// errNoNTHash marks a stored user that cannot take part in NTLM.
var errNoNTHash = errors.New("user has no NT hash")

// lookup resolves a client-supplied user name to an enabled user with an
// NT hash. Unknown users yield models.ErrUserNotFound; every other refusal
// is a distinct error so guest mapping only applies to unknown names.
func (a *Authenticator) lookup(ctx context.Context, username string) (*models.User, error) {
	if a.users == nil || username == "" {
		return nil, models.ErrUserNotFound
	}

	user, err := a.users.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}
	if _, ok := user.GetNTHash(); !ok {
		return nil, errNoNTHash
	}
	return user, nil
}

func (a *Authenticator) failure(mech string, raw bool, status types.Status, err error) Result {
	var tok []byte
	if !raw {
		tok = spnego.Reject().Bytes()
	}
	outcome := OutcomeFailure
	if status == types.StatusInvalidParameter {
		outcome = OutcomeInvalid
	}
	return Result{
		Status:    status,
		Token:     tok,
		Outcome:   outcome,
		Mechanism: mech,
		Err:       err,
	}
}

func invalid(mech string, err error) Result {
	return Result{
		Status:    types.StatusInvalidParameter,
		Outcome:   OutcomeInvalid,
		Mechanism: mech,
		Err:       err,
	}
}
