package bootstrap

import (
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/campusid/shibgate/config"
	redisadapter "github.com/campusid/shibgate/internal/adapters/redis"
	"github.com/campusid/shibgate/internal/data"
	"github.com/campusid/shibgate/internal/ports"
	"github.com/campusid/shibgate/internal/service"
)

// AuthDeps contains the dependencies for building the auth service.
type AuthDeps struct {
	Shib        config.ShibConfig
	Redis       config.RedisConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Hooks are the overridable extension points; zero value means all
	// hooks are no-ops.
	Hooks   ports.Hooks
	Metrics *service.AuthMetrics
	Logger  *slog.Logger
}

// BuildAuthService wires the session store, user store, resolver, and
// orchestrator together.
func BuildAuthService(deps AuthDeps) *service.AuthService {
	prefix := deps.Redis.SessionPrefix
	if prefix == "" {
		prefix = "session:"
	}
	sessionStore := redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, prefix)

	resolver := service.NewUserResolver(service.UserResolverOptions{
		Users:   data.NewUserRepo(deps.DB),
		Hooks:   deps.Hooks,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	})

	return service.NewAuthService(service.AuthServiceOptions{
		RemoteUserHeader:   deps.Shib.RemoteUserHeader,
		Rules:              deps.Shib.AttributeMap.Rules(),
		CreateUnknownUsers: deps.Shib.CreateUnknownUsers,
		SessionTTL:         deps.Shib.SessionTTL,
		Sessions:           sessionStore,
		Resolver:           resolver,
		Hooks:              deps.Hooks,
		Metrics:            deps.Metrics,
		Logger:             deps.Logger,
	})
}
