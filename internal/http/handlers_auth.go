package httpx

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/campusid/shibgate/internal/service"
)

// AuthHandlers provides HTTP handlers for the login/logout redirection
// endpoints around the SP agent, plus an authentication status endpoint.
type AuthHandlers struct {
	Svc *service.AuthService

	// LoginURL and LogoutURL are the SP handler templates; %s receives the
	// url-escaped target/return URL.
	LoginURL  string
	LogoutURL string

	// LogoutRedirectURL is where the user lands after logout.
	LogoutRedirectURL string

	// BaseURL is the externally visible application base URL, used to
	// absolutize SP targets.
	BaseURL string

	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the explicit login entrypoint.
// GET /auth/login?target=<optional_relative_path>.
//
// It clears any logout-suppression flag left on the session (ending the
// post-logout grace state) and redirects to the SP login handler, which
// will bounce through the IdP and replay the request with identity headers.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "auth_misconfigured",
			Err:     service.ErrSessionRequired,
		})
		return
	}

	if err := h.Svc.StartLogin(r.Context(), sess); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	target := safeRedirectPath(r.URL.Query().Get("target"))
	http.Redirect(w, r, h.spURL(h.LoginURL, target), http.StatusSeeOther)
}

// Logout handles the logout endpoint.
// POST /auth/logout (GET also accepted for IdP-initiated logout links).
//
// The session is kept but its identity is detached and the
// logout-suppression flag set, so the identity headers the SP agent keeps
// injecting cannot silently re-establish the login. The session cookie is
// deliberately NOT cleared: the suppression flag lives in that session.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "auth_misconfigured",
			Err:     service.ErrSessionRequired,
		})
		return
	}

	if err := h.Svc.Logout(r.Context(), sess); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "logout_failed",
			Err:     err,
		})
		return
	}

	returnTo := h.LogoutRedirectURL
	if returnTo == "" {
		returnTo = "/"
	}
	http.Redirect(w, r, h.spURL(h.LogoutURL, returnTo), http.StatusSeeOther)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok || !sess.IsAuthenticated() {
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"username":      sess.Username,
		"attributes":    sess.Attributes,
		"expires_at":    sess.ExpiresAt,
	})
}

// Me returns the authenticated identity. Mounted behind RequireAuth.
// GET /api/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"username":   sess.Username,
		"attributes": sess.Attributes,
	})
}

// spURL renders an SP handler template with an absolutized target.
func (h *AuthHandlers) spURL(template, target string) string {
	absolute := strings.TrimSuffix(h.BaseURL, "/") + target
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, url.QueryEscape(absolute))
	}
	return template
}

// safeRedirectPath ensures the provided redirect is a same-origin relative
// path starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
