package config

import (
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// the available variables:
//   - auth.go: Shibboleth attribute mapping and auth flow configuration
//   - database.go: Database and session-store configuration
//   - http.go: HTTP server configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Shib configures header-based authentication.
	Shib ShibConfig `envPrefix:"SHIB_"`

	// Database configuration.
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration.
	HTTP HTTPConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment
// variables.
func (c *AppConfig) Sanitize() {
	c.Shib.RemoteUserHeader = strings.TrimSpace(c.Shib.RemoteUserHeader)
	c.detectDevMode()
}

// Validate checks invariants that must hold before serving requests.
// Attribute-map problems are configuration errors, surfaced at startup
// rather than per request.
func (c *AppConfig) Validate() error {
	if err := c.Shib.Validate(); err != nil {
		return fmt.Errorf("shib config: %w", err)
	}
	return nil
}

// detectDevMode checks the GO_ENV environment variable as a fallback.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		goEnv := strings.ToLower(os.Getenv("GO_ENV"))
		c.IsDev = goEnv == "development" || goEnv == "dev"
	}
}
