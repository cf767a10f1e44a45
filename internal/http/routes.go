package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusid/shibgate/internal/service"
)

// RouterServices holds the services and configuration needed by the HTTP
// router.
type RouterServices struct {
	Auth *service.AuthService

	CookieDomain      string
	BaseURL           string
	LoginURL          string
	LogoutURL         string
	LogoutRedirectURL string

	Logger *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router. Every route except
// health and metrics runs behind the session and Shibboleth middleware, so
// a request that arrives with valid identity headers is logged in before
// any handler sees it.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandlers := &AuthHandlers{
		Svc:               services.Auth,
		LoginURL:          services.LoginURL,
		LogoutURL:         services.LogoutURL,
		LogoutRedirectURL: services.LogoutRedirectURL,
		BaseURL:           services.BaseURL,
		Logger:            logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /auth/login", http.HandlerFunc(authHandlers.Login))
	mux.Handle("POST /auth/logout", http.HandlerFunc(authHandlers.Logout))
	mux.Handle("GET /auth/logout", http.HandlerFunc(authHandlers.Logout))
	mux.Handle("GET /auth/status", http.HandlerFunc(authHandlers.Status))
	mux.Handle("GET /api/me", RequireAuth()(http.HandlerFunc(authHandlers.Me)))

	authed := Session(services.Auth, services.CookieDomain)(
		ShibbolethAuth(services.Auth, services.CookieDomain, logger)(mux),
	)

	root := http.NewServeMux()
	root.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	root.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/", authed)

	return root
}
