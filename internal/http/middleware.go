package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
	"github.com/campusid/shibgate/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Session returns a middleware that attaches a server-side session to every
// request. An existing session is loaded from the session_id cookie; when
// the cookie is absent or stale a fresh anonymous session is created and
// the cookie issued. The session is persisted lazily by downstream writers.
//
// This middleware must run before ShibbolethAuth; the authenticator treats
// a missing session as a deployment configuration error.
func Session(authSvc *service.AuthService, cookieDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := loadSession(r, authSvc)
			if sess == nil {
				sess = authSvc.NewSession()
				setSessionCookie(w, r, cookieDomain, sess)
			}
			ctx := SetSessionInContext(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loadSession(r *http.Request, authSvc *service.AuthService) *domainauth.Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	sess, err := authSvc.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return sess
}

// ShibbolethAuth returns the middleware that authenticates requests from
// the identity headers injected by the SP agent. It delegates the whole
// state machine to the auth service and only translates the result back
// into HTTP: session cookie rotation on login, a server-side error response
// on validation or configuration failure, and nothing at all for anonymous
// outcomes.
func ShibbolethAuth(authSvc *service.AuthService, cookieDomain string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				// Session middleware missing is a wiring error, not a
				// request problem. Surface loudly.
				logger.ErrorContext(r.Context(), "shib auth misconfigured", "error", service.ErrSessionRequired)
				WriteError(w, ErrorParams{
					Code:    http.StatusInternalServerError,
					ErrCode: "auth_misconfigured",
					Err:     service.ErrSessionRequired,
				})
				return
			}

			result, err := authSvc.Authenticate(r.Context(), service.AuthenticateInput{
				Session: sess,
				Headers: r.Header,
			})
			if err != nil {
				var validationErr *domainauth.ValidationError
				switch {
				case errors.As(err, &validationErr):
					// Upstream SP misconfiguration: the agent authenticated
					// the user but did not release a required attribute.
					logger.ErrorContext(r.Context(), "required identity attributes missing",
						"attributes", validationErr.Attributes)
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "attribute_validation_failed",
						Err:     err,
					})
				default:
					logger.ErrorContext(r.Context(), "authentication failed", "error", err)
					WriteError(w, ErrorParams{
						Code:    http.StatusInternalServerError,
						ErrCode: "authentication_failed",
						Err:     err,
					})
				}
				return
			}

			if result.SessionRotated {
				setSessionCookie(w, r, cookieDomain, result.Session)
			}
			ctx := SetSessionInContext(r.Context(), result.Session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth returns a middleware that rejects anonymous requests with
// 401. It assumes Session and ShibbolethAuth already ran.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsAnonymous(r.Context()) {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const sessionCookieName = "session_id"

// setSessionCookie writes the session cookie based on the session's expiry.
func setSessionCookie(w http.ResponseWriter, r *http.Request, cookieDomain string, s *domainauth.Session) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   cookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}
