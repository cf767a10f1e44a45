package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	mockauth "github.com/campusid/shibgate/internal/mocks/auth"
	"github.com/campusid/shibgate/internal/service"
)

const testBaseURL = "https://app.example.edu"

type routerFixture struct {
	handler  http.Handler
	sessions *mockauth.MemorySessionStore
	users    *mockauth.MemoryUserStore
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	sessions := mockauth.NewMemorySessionStore()
	users := mockauth.NewMemoryUserStore()
	authSvc := service.NewAuthService(service.AuthServiceOptions{
		RemoteUserHeader: "Remote-User",
		Rules: []domainauth.AttributeRule{
			{Header: "Shibboleth-Eppn", Field: "username", Required: true},
			{Header: "Shibboleth-Mail", Field: "email", Required: true},
			{Header: "Shibboleth-GivenName", Field: "first_name"},
		},
		CreateUnknownUsers: true,
		SessionTTL:         time.Hour,
		Sessions:           sessions,
		Resolver:           service.NewUserResolver(service.UserResolverOptions{Users: users}),
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	handler := NewRouter(RouterServices{
		Auth:              authSvc,
		BaseURL:           testBaseURL,
		LoginURL:          "/Shibboleth.sso/Login?target=%s",
		LogoutURL:         "/Shibboleth.sso/Logout?return=%s",
		LogoutRedirectURL: "/",
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &routerFixture{handler: handler, sessions: sessions, users: users}
}

func (f *routerFixture) do(method, target string, headers http.Header, cookies []*http.Cookie) *http.Response {
	req := httptest.NewRequest(method, target, nil)
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec.Result()
}

func shibHeaders(username string) http.Header {
	h := http.Header{}
	h.Set("Remote-User", username)
	h.Set("Shibboleth-Eppn", username)
	h.Set("Shibboleth-Mail", username+"@example.edu")
	h.Set("Shibboleth-GivenName", "Jane")
	return h
}

// lastSessionCookie returns the most recently set session cookie. A login
// request sets the anonymous cookie first and the rotated one after, so
// the last one wins, exactly as a browser would behave.
func lastSessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			found = c
		}
	}
	require.NotNil(t, found, "expected a session cookie")
	return found
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestRouter_Healthz(t *testing.T) {
	f := newRouterFixture(t)
	resp := f.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_StatusAnonymous(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/auth/status", nil, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, false, body["authenticated"])

	cookie := lastSessionCookie(t, resp)
	assert.NotEmpty(t, cookie.Value, "anonymous visitors still get a session")
	assert.True(t, cookie.HttpOnly)
}

func TestRouter_StatusAuthenticatesFromHeaders(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/auth/status", shibHeaders("jdoe"), nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "jdoe", body["username"])

	cookie := lastSessionCookie(t, resp)
	stored, ok := f.sessions.Stored(cookie.Value)
	require.True(t, ok)
	assert.Equal(t, "jdoe", stored.Username)
}

func TestRouter_MeRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/api/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "authentication_required", body["error"])
}

func TestRouter_MeWithIdentity(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/api/me", shibHeaders("jdoe"), nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "jdoe", body["username"])
	attrs, ok := body["attributes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jdoe@example.edu", attrs["email"])
}

func TestRouter_SessionPersistsAcrossRequests(t *testing.T) {
	f := newRouterFixture(t)

	first := f.do(http.MethodGet, "/auth/status", shibHeaders("jdoe"), nil)
	cookie := lastSessionCookie(t, first)

	// Identity survives even when the SP headers disappear mid-session.
	second := f.do(http.MethodGet, "/auth/status", nil, []*http.Cookie{cookie})
	body := decodeBody(t, second)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "jdoe", body["username"])
}

func TestRouter_ValidationFailure(t *testing.T) {
	f := newRouterFixture(t)
	h := http.Header{}
	h.Set("Remote-User", "jdoe")
	h.Set("Shibboleth-Eppn", "jdoe")
	// Required Shibboleth-Mail not released.

	resp := f.do(http.MethodGet, "/auth/status", h, nil)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "attribute_validation_failed", body["error"])
}

func TestRouter_LoginRedirectsToSPHandler(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/auth/login?target=/courses", nil, nil)

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.Equal(t, "/Shibboleth.sso/Login?target="+url.QueryEscape(testBaseURL+"/courses"), location)
}

func TestRouter_LoginRejectsOffsiteTarget(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(http.MethodGet, "/auth/login?target=https://evil.example.com/", nil, nil)

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	assert.Equal(t, "/Shibboleth.sso/Login?target="+url.QueryEscape(testBaseURL+"/"), location)
}

func TestRouter_LogoutFlow(t *testing.T) {
	f := newRouterFixture(t)

	// Log in.
	login := f.do(http.MethodGet, "/auth/status", shibHeaders("jdoe"), nil)
	cookie := lastSessionCookie(t, login)

	// Log out. The SP agent is still injecting identity headers, as it
	// does until its own session is destroyed.
	logout := f.do(http.MethodPost, "/auth/logout", shibHeaders("jdoe"), []*http.Cookie{cookie})
	assert.Equal(t, http.StatusSeeOther, logout.StatusCode)
	location := logout.Header.Get("Location")
	assert.Equal(t, "/Shibboleth.sso/Logout?return="+url.QueryEscape(testBaseURL+"/"), location)
	cookie = lastSessionCookie(t, logout)

	// Identity headers alone cannot re-establish the login.
	after := f.do(http.MethodGet, "/auth/status", shibHeaders("jdoe"), []*http.Cookie{cookie})
	body := decodeBody(t, after)
	assert.Equal(t, false, body["authenticated"], "logout suppression blocks silent re-login")

	// An explicit login start lifts the suppression. The suppression is
	// still armed while the middleware runs, so this request itself stays
	// anonymous and keeps its cookie.
	start := f.do(http.MethodGet, "/auth/login", shibHeaders("jdoe"), []*http.Cookie{cookie})
	assert.Equal(t, http.StatusSeeOther, start.StatusCode)

	relogin := f.do(http.MethodGet, "/auth/status", shibHeaders("jdoe"), []*http.Cookie{cookie})
	body = decodeBody(t, relogin)
	assert.Equal(t, true, body["authenticated"])
}

func TestRouter_GetLogoutAccepted(t *testing.T) {
	// IdP-initiated logout links arrive as plain GETs.
	f := newRouterFixture(t)
	resp := f.do(http.MethodGet, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAuthHandlers_SpURL(t *testing.T) {
	h := &AuthHandlers{BaseURL: "https://app.example.edu/"}

	got := h.spURL("/Shibboleth.sso/Login?target=%s", "/next")
	assert.Equal(t, "/Shibboleth.sso/Login?target="+url.QueryEscape("https://app.example.edu/next"), got)

	// A template without a placeholder is used as-is.
	assert.Equal(t, "/logged-out", h.spURL("/logged-out", "/ignored"))
}

func TestSafeRedirectPath(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{name: "empty", candidate: "", want: "/"},
		{name: "relative path", candidate: "/courses", want: "/courses"},
		{name: "path with query", candidate: "/courses?id=3", want: "/courses?id=3"},
		{name: "absolute url", candidate: "https://evil.example.com/", want: "/"},
		{name: "protocol relative", candidate: "//evil.example.com/", want: "/"},
		{name: "no leading slash", candidate: "courses", want: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, safeRedirectPath(tt.candidate))
		})
	}
}
