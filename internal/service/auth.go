package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	"github.com/campusid/shibgate/internal/domain/model"
	"github.com/campusid/shibgate/internal/ports"
)

// Outcome classifies how an authentication attempt ended. All outcomes
// except OutcomeError are normal control flow.
type Outcome string

const (
	// OutcomeSuppressed means the session has logged out and
	// re-authentication is blocked until a fresh login is started.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeAnonymous means no identity was established: the remote-user
	// header was absent, the user is unknown with creation disabled, or
	// the account is ineligible.
	OutcomeAnonymous Outcome = "anonymous"
	// OutcomeAlreadyAuthenticated means the session already carries the
	// identity named by the headers; nothing was written.
	OutcomeAlreadyAuthenticated Outcome = "already_authenticated"
	// OutcomeAuthenticated means a login was established on this request.
	OutcomeAuthenticated Outcome = "authenticated"
)

// ErrSessionRequired indicates the session layer was not wired in upstream
// of the authenticator. This is a deployment configuration error, not a
// per-request failure.
var ErrSessionRequired = errors.New("shib auth requires the session middleware to be installed upstream")

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	RemoteUserHeader   string
	Rules              []domainauth.AttributeRule
	CreateUnknownUsers bool
	SessionTTL         time.Duration
	Sessions           ports.SessionStore
	Resolver           *UserResolver
	Hooks              ports.Hooks
	Metrics            *AuthMetrics
	Logger             *slog.Logger
}

// AuthService is the per-request authentication orchestrator. Given the raw
// header set injected by the SP agent and the request's session, it
// validates attributes, resolves the user, and establishes or maintains the
// session-backed login.
type AuthService struct {
	remoteUserHeader string
	rules            []domainauth.AttributeRule
	createUnknown    bool
	sessionTTL       time.Duration
	sessions         ports.SessionStore
	resolver         *UserResolver
	hooks            ports.Hooks
	metrics          *AuthMetrics
	logger           *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &AuthService{
		remoteUserHeader: opts.RemoteUserHeader,
		rules:            opts.Rules,
		createUnknown:    opts.CreateUnknownUsers,
		sessionTTL:       ttl,
		sessions:         opts.Sessions,
		resolver:         opts.Resolver,
		hooks:            opts.Hooks,
		metrics:          opts.Metrics,
		logger:           logger,
	}
}

// AuthenticateInput carries the per-request inputs for Authenticate.
type AuthenticateInput struct {
	Session *domainauth.Session
	Headers http.Header
}

// AuthResult reports how the attempt ended and which session now represents
// the request. When SessionRotated is set the caller must re-issue the
// session cookie for Session.ID.
type AuthResult struct {
	Outcome        Outcome
	Session        *domainauth.Session
	User           *model.User
	SessionRotated bool
}

// Authenticate runs the per-request authentication state machine. States
// are evaluated in strict order and short-circuit:
//
//  1. logout-suppressed sessions are left anonymous, untouched
//  2. absent or empty remote-user header means anonymous, no writes
//  3. a session already authenticated as the same (cleaned) username is a
//     terminal fast path with no writes; a session authenticated as someone
//     else has its identity cleared and the flow continues
//  4. attributes are parsed and persisted to the session even when
//     validation fails; a failed validation returns *auth.ValidationError
//  5. the resolved user is attached and the session rotated, or the request
//     stays anonymous when the user is unknown or ineligible
//
// Hook failures after login do not undo earlier session writes.
func (s *AuthService) Authenticate(ctx context.Context, in AuthenticateInput) (*AuthResult, error) {
	sess := in.Session
	if sess == nil {
		return nil, ErrSessionRequired
	}

	if sess.LogoutSuppressed {
		s.metrics.RecordOutcome(OutcomeSuppressed)
		return &AuthResult{Outcome: OutcomeSuppressed, Session: sess}, nil
	}

	remoteUser := domainauth.CleanUsername(in.Headers.Get(s.remoteUserHeader))
	if remoteUser == "" {
		s.metrics.RecordOutcome(OutcomeAnonymous)
		return &AuthResult{Outcome: OutcomeAnonymous, Session: sess}, nil
	}

	if sess.IsAuthenticated() {
		if domainauth.CleanUsername(sess.Username) == remoteUser {
			s.metrics.RecordOutcome(OutcomeAlreadyAuthenticated)
			return &AuthResult{Outcome: OutcomeAlreadyAuthenticated, Session: sess}, nil
		}
		// The headers name a different user than the session. Detach the
		// stale identity but keep the session itself, then re-authenticate.
		s.logger.WarnContext(ctx, "session identity does not match remote-user header, clearing",
			"session_user", sess.Username)
		sess.ClearIdentity()
	}

	attrs, failed := domainauth.ParseAttributes(in.Headers, s.rules)

	// Persist the parsed attributes before the validation gate so failed
	// attempts remain diagnosable from the session.
	sess.Attributes = attrs
	s.ensureExpiry(sess)
	if err := s.sessions.Save(ctx, *sess); err != nil {
		return nil, fmt.Errorf("save session attributes: %w", err)
	}

	if failed {
		s.metrics.RecordValidationFailure()
		return nil, &domainauth.ValidationError{Attributes: attrs}
	}

	user, err := s.resolver.Resolve(ctx, remoteUser, model.ProfileFieldsFromAttributes(attrs), s.createUnknown)
	if err != nil {
		return nil, err
	}
	if !user.CanAuthenticate() {
		s.metrics.RecordOutcome(OutcomeAnonymous)
		return &AuthResult{Outcome: OutcomeAnonymous, Session: sess}, nil
	}

	rotated, err := s.login(ctx, sess, user, attrs)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOutcome(OutcomeAuthenticated)
	return &AuthResult{Outcome: OutcomeAuthenticated, Session: rotated, User: user, SessionRotated: true}, nil
}

// login binds the session to the user. The session ID is rotated so an ID
// handed out while anonymous can never refer to an authenticated session.
func (s *AuthService) login(ctx context.Context, old *domainauth.Session, user *model.User, attrs map[string]string) (*domainauth.Session, error) {
	sess := &domainauth.Session{
		ID:         generateSessionID(),
		Username:   user.Username,
		Attributes: attrs,
		ExpiresAt:  time.Now().Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, *sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if err := s.sessions.Delete(ctx, old.ID); err != nil {
		s.logger.WarnContext(ctx, "delete pre-login session failed", "error", err)
	}

	if s.hooks.PostLoginProfile != nil {
		if err := s.hooks.PostLoginProfile(ctx, user, attrs); err != nil {
			s.logger.WarnContext(ctx, "post-login profile hook failed", "username", user.Username, "error", err)
		}
	}
	if s.hooks.SetupSession != nil {
		if err := s.hooks.SetupSession(ctx, sess); err != nil {
			s.logger.WarnContext(ctx, "session setup hook failed", "username", user.Username, "error", err)
		}
	}
	return sess, nil
}

// Logout detaches the session identity and sets the logout-suppression
// flag so the still-present identity headers cannot immediately
// re-authenticate the user on the next request.
func (s *AuthService) Logout(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return ErrSessionRequired
	}
	sess.ClearIdentity()
	sess.LogoutSuppressed = true
	s.ensureExpiry(sess)
	if err := s.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("save logged-out session: %w", err)
	}
	return nil
}

// StartLogin clears a stale logout-suppression flag ahead of an explicit
// login attempt. It is idempotent; a session without the flag is untouched.
func (s *AuthService) StartLogin(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return ErrSessionRequired
	}
	if !sess.LogoutSuppressed {
		return nil
	}
	sess.LogoutSuppressed = false
	s.ensureExpiry(sess)
	if err := s.sessions.Save(ctx, *sess); err != nil {
		return fmt.Errorf("clear logout suppression: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// NewSession creates an unsaved anonymous session. It is persisted lazily,
// on the first authentication attempt or logout that mutates it.
func (s *AuthService) NewSession() *domainauth.Session {
	return &domainauth.Session{
		ID:        generateSessionID(),
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
}

func (s *AuthService) ensureExpiry(sess *domainauth.Session) {
	if sess.ExpiresAt.IsZero() || time.Until(sess.ExpiresAt) <= 0 {
		sess.ExpiresAt = time.Now().Add(s.sessionTTL)
	}
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	return uuid.New().String()
}
