package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	"github.com/campusid/shibgate/internal/domain/model"
	mockauth "github.com/campusid/shibgate/internal/mocks/auth"
	"github.com/campusid/shibgate/internal/ports"
)

const testRemoteUserHeader = "Remote-User"

func authTestRules() []domainauth.AttributeRule {
	return []domainauth.AttributeRule{
		{Header: "Shibboleth-Eppn", Field: "username", Required: true},
		{Header: "Shibboleth-Mail", Field: "email", Required: true},
		{Header: "Shibboleth-GivenName", Field: "first_name"},
	}
}

type authFixture struct {
	svc      *AuthService
	sessions *mockauth.MemorySessionStore
	users    *mockauth.MemoryUserStore
}

func newAuthFixture(t *testing.T, opts func(*AuthServiceOptions)) *authFixture {
	t.Helper()
	sessions := mockauth.NewMemorySessionStore()
	users := mockauth.NewMemoryUserStore()
	serviceOpts := AuthServiceOptions{
		RemoteUserHeader:   testRemoteUserHeader,
		Rules:              authTestRules(),
		CreateUnknownUsers: true,
		SessionTTL:         time.Hour,
		Sessions:           sessions,
		Resolver:           NewUserResolver(UserResolverOptions{Users: users}),
	}
	if opts != nil {
		opts(&serviceOpts)
	}
	return &authFixture{
		svc:      NewAuthService(serviceOpts),
		sessions: sessions,
		users:    users,
	}
}

func identityHeaders(username string) http.Header {
	h := http.Header{}
	h.Set(testRemoteUserHeader, username)
	h.Set("Shibboleth-Eppn", username)
	h.Set("Shibboleth-Mail", username+"@example.edu")
	h.Set("Shibboleth-GivenName", "Jane")
	return h
}

func TestAuthService_Authenticate_NilSession(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Headers: identityHeaders("jdoe")})

	assert.ErrorIs(t, err, ErrSessionRequired)
}

func TestAuthService_Authenticate_LogoutSuppressed(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	sess.LogoutSuppressed = true

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, result.Outcome)
	assert.False(t, result.Session.IsAuthenticated())
	assert.Zero(t, f.sessions.SaveCount, "suppressed requests never write")
	assert.Zero(t, f.users.CreateCount)
}

func TestAuthService_Authenticate_NoRemoteUser(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: http.Header{},
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnonymous, result.Outcome)
	assert.Same(t, sess, result.Session)
	assert.Zero(t, f.sessions.SaveCount, "header-absent requests leave no trace")
}

func TestAuthService_Authenticate_WhitespaceRemoteUserIsAbsent(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	h := http.Header{}
	h.Set(testRemoteUserHeader, "   ")

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Session: sess, Headers: h})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnonymous, result.Outcome)
	assert.Zero(t, f.sessions.SaveCount)
}

func TestAuthService_Authenticate_FirstLogin(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	originalID := sess.ID
	require.NoError(t, f.sessions.Save(context.Background(), *sess))
	f.sessions.SaveCount = 0

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
	require.NotNil(t, result.User)
	assert.Equal(t, "jdoe", result.User.Username)
	assert.Equal(t, "jdoe@example.edu", result.User.Email)
	assert.True(t, result.User.PasswordUnusable)
	assert.Equal(t, 1, f.users.CreateCount)

	// Session fixation mitigation: the post-login session is a new one and
	// the pre-login ID is gone.
	assert.True(t, result.SessionRotated)
	assert.NotEqual(t, originalID, result.Session.ID)
	_, ok := f.sessions.Stored(originalID)
	assert.False(t, ok, "pre-login session deleted")

	stored, ok := f.sessions.Stored(result.Session.ID)
	require.True(t, ok)
	assert.Equal(t, "jdoe", stored.Username)
	assert.Equal(t, "jdoe@example.edu", stored.Attributes["email"])
	assert.False(t, stored.LogoutSuppressed)
}

func TestAuthService_Authenticate_RemoteUserIsCleaned(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	h := identityHeaders("jdoe")
	h.Set(testRemoteUserHeader, "  JDoe  ")

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Session: sess, Headers: h})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
	assert.Equal(t, "jdoe", result.User.Username)
}

func TestAuthService_Authenticate_AlreadyAuthenticatedFastPath(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	sess.Username = "JDoe"

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAuthenticated, result.Outcome)
	assert.False(t, result.SessionRotated)
	assert.Zero(t, f.sessions.SaveCount, "fast path performs no writes")
	assert.Zero(t, f.users.CreateCount, "fast path never touches the user store")
}

func TestAuthService_Authenticate_StaleIdentityReplaced(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	sess.Username = "olduser"
	sess.Attributes = map[string]string{"email": "olduser@example.edu"}

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
	assert.Equal(t, "jdoe", result.Session.Username)
	assert.True(t, result.SessionRotated)

	_, ok := f.users.Stored("olduser")
	assert.False(t, ok, "the stale identity is detached, not resolved")
}

func TestAuthService_Authenticate_ValidationFailure(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()
	h := http.Header{}
	h.Set(testRemoteUserHeader, "jdoe")
	h.Set("Shibboleth-Eppn", "jdoe")
	// Required Shibboleth-Mail withheld by the SP.
	h.Set("Shibboleth-GivenName", "Jane")

	_, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Session: sess, Headers: h})

	var validationErr *domainauth.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, validationErr.Attributes["email"])
	assert.Equal(t, "jdoe", validationErr.Attributes["username"])

	// The parsed attributes were persisted before the gate so the failure
	// is diagnosable from the session.
	stored, ok := f.sessions.Stored(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "Jane", stored.Attributes["first_name"])
	assert.False(t, stored.IsAuthenticated())
	assert.Zero(t, f.users.CreateCount, "no user is resolved on validation failure")
}

func TestAuthService_Authenticate_UnknownUserCreationDisabled(t *testing.T) {
	f := newAuthFixture(t, func(o *AuthServiceOptions) { o.CreateUnknownUsers = false })
	sess := f.svc.NewSession()

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnonymous, result.Outcome)
	assert.False(t, result.Session.IsAuthenticated())
	assert.Zero(t, f.users.CreateCount)
}

func TestAuthService_Authenticate_InactiveUserStaysAnonymous(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.users.Put(&model.User{Username: "jdoe", Email: "jdoe@example.edu", Active: false})
	sess := f.svc.NewSession()

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeAnonymous, result.Outcome)
	assert.False(t, result.Session.IsAuthenticated())
}

func TestAuthService_Authenticate_HooksRunAfterLogin(t *testing.T) {
	var profileUser *model.User
	var profileAttrs map[string]string
	var setupSess *domainauth.Session

	f := newAuthFixture(t, func(o *AuthServiceOptions) {
		o.Hooks = ports.Hooks{
			PostLoginProfile: func(_ context.Context, user *model.User, attrs map[string]string) error {
				profileUser = user
				profileAttrs = attrs
				return nil
			},
			SetupSession: func(_ context.Context, sess *domainauth.Session) error {
				setupSess = sess
				return nil
			},
		}
	})
	sess := f.svc.NewSession()

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err)
	require.NotNil(t, profileUser)
	assert.Equal(t, "jdoe", profileUser.Username)
	assert.Equal(t, "jdoe@example.edu", profileAttrs["email"])
	require.NotNil(t, setupSess)
	assert.Equal(t, result.Session.ID, setupSess.ID)
}

func TestAuthService_Authenticate_HookFailureDoesNotUndoLogin(t *testing.T) {
	f := newAuthFixture(t, func(o *AuthServiceOptions) {
		o.Hooks = ports.Hooks{
			PostLoginProfile: func(context.Context, *model.User, map[string]string) error {
				return errors.New("profile sync down")
			},
			SetupSession: func(context.Context, *domainauth.Session) error {
				return errors.New("cache down")
			},
		}
	})
	sess := f.svc.NewSession()

	result, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Session: sess,
		Headers: identityHeaders("jdoe"),
	})

	require.NoError(t, err, "post-login hook failures are logged, not surfaced")
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
	stored, ok := f.sessions.Stored(result.Session.ID)
	require.True(t, ok)
	assert.True(t, stored.IsAuthenticated())
}

func TestAuthService_LogoutThenSuppressedThenLogin(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	// Establish a login.
	sess := f.svc.NewSession()
	result, err := f.svc.Authenticate(ctx, AuthenticateInput{Session: sess, Headers: identityHeaders("jdoe")})
	require.NoError(t, err)
	authed := result.Session

	// Logout detaches the identity and arms suppression.
	require.NoError(t, f.svc.Logout(ctx, authed))
	assert.False(t, authed.IsAuthenticated())
	assert.True(t, authed.LogoutSuppressed)
	stored, ok := f.sessions.Stored(authed.ID)
	require.True(t, ok)
	assert.True(t, stored.LogoutSuppressed)

	// The SP agent keeps injecting headers; re-authentication is blocked.
	result, err = f.svc.Authenticate(ctx, AuthenticateInput{Session: authed, Headers: identityHeaders("jdoe")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, result.Outcome)

	// An explicit login start lifts the suppression.
	require.NoError(t, f.svc.StartLogin(ctx, authed))
	assert.False(t, authed.LogoutSuppressed)

	result, err = f.svc.Authenticate(ctx, AuthenticateInput{Session: authed, Headers: identityHeaders("jdoe")})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthenticated, result.Outcome)
}

func TestAuthService_Logout_NilSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	assert.ErrorIs(t, f.svc.Logout(context.Background(), nil), ErrSessionRequired)
}

func TestAuthService_StartLogin_IdempotentWithoutFlag(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()

	require.NoError(t, f.svc.StartLogin(context.Background(), sess))
	assert.Zero(t, f.sessions.SaveCount, "no flag to clear means no write")
}

func TestAuthService_GetSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	sess := f.svc.NewSession()
	require.NoError(t, f.sessions.Save(ctx, *sess))

	got, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = f.svc.GetSession(ctx, "")
	assert.Error(t, err)

	_, err = f.svc.GetSession(ctx, "missing")
	assert.Error(t, err)
}

func TestAuthService_NewSession(t *testing.T) {
	f := newAuthFixture(t, nil)
	sess := f.svc.NewSession()

	assert.NotEmpty(t, sess.ID)
	assert.False(t, sess.IsAuthenticated())
	assert.True(t, sess.ExpiresAt.After(time.Now()))
	assert.Zero(t, f.sessions.SaveCount, "new sessions are persisted lazily")

	other := f.svc.NewSession()
	assert.NotEqual(t, sess.ID, other.ID)
}
