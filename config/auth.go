package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	domainauth "github.com/campusid/shibgate/internal/domain/auth"
)

// AttributeMap is the ordered mapping from external header names to
// canonical attribute fields. It is loaded once at startup and validated
// before any request is served.
//
// Text form: semicolon-separated entries of "Header=field" with an optional
// ",required" flag, e.g.
//
//	Shibboleth-Eppn=username,required;Shibboleth-Mail=email,required;Shibboleth-SchoolBarCode=barcode
type AttributeMap []domainauth.AttributeRule

// UnmarshalText implements encoding.TextUnmarshaler for AttributeMap.
func (m *AttributeMap) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*m = nil
		return nil
	}

	var rules []domainauth.AttributeRule
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		header, spec, ok := strings.Cut(entry, "=")
		if !ok {
			return fmt.Errorf("invalid attribute map entry %q (want Header=field[,required])", entry)
		}
		field, flag, hasFlag := strings.Cut(spec, ",")
		rule := domainauth.AttributeRule{
			Header: strings.TrimSpace(header),
			Field:  strings.TrimSpace(field),
		}
		if rule.Header == "" || rule.Field == "" {
			return fmt.Errorf("invalid attribute map entry %q: empty header or field", entry)
		}
		if hasFlag {
			switch strings.TrimSpace(strings.ToLower(flag)) {
			case "required":
				rule.Required = true
			case "optional", "":
				// explicit optional is allowed for readability
			default:
				return fmt.Errorf("invalid attribute map flag %q in entry %q", flag, entry)
			}
		}
		rules = append(rules, rule)
	}
	*m = rules
	return nil
}

// Validate enforces the structural invariants of the mapping: canonical
// field names must be unique and at least one mapping must produce the
// canonical username field.
func (m AttributeMap) Validate() error {
	if len(m) == 0 {
		return errors.New("attribute map is empty")
	}
	seen := make(map[string]string, len(m))
	hasUsername := false
	for _, rule := range m {
		if prev, dup := seen[rule.Field]; dup {
			return fmt.Errorf("attribute map: canonical field %q mapped from both %q and %q", rule.Field, prev, rule.Header)
		}
		seen[rule.Field] = rule.Header
		if rule.Field == "username" {
			hasUsername = true
		}
	}
	if !hasUsername {
		return errors.New("attribute map: no mapping produces the username field")
	}
	return nil
}

// Rules returns the mapping as domain attribute rules.
func (m AttributeMap) Rules() []domainauth.AttributeRule { return m }

// ShibConfig configures the Shibboleth remote-user authentication flow.
//
// Trust boundary: this service assumes it is deployed behind an SP agent
// (mod_shib or equivalent) that strips and overwrites the mapped headers on
// every client-originated request. Without that guarantee the remote-user
// header is a spoofing vector; the service performs no provenance
// revalidation of its own.
type ShibConfig struct {
	// RemoteUserHeader is the single header treated as authoritative for
	// the requesting identity.
	RemoteUserHeader string `env:"REMOTE_USER_HEADER" envDefault:"Remote-User"`

	// AttributeMap maps injected headers to canonical attribute fields.
	AttributeMap AttributeMap `env:"ATTRIBUTE_MAP" envDefault:"Shib-Identity-Provider=idp,required;Shib-Session-Id=session_id,required;Shibboleth-Eppn=username,required;Shibboleth-Mail=email,required;Shibboleth-GivenName=first_name;Shibboleth-Sn=last_name;Shibboleth-Affiliation=affiliation;Shibboleth-SchoolStatus=status"`

	// CreateUnknownUsers controls whether first-seen usernames are
	// provisioned automatically.
	CreateUnknownUsers bool `env:"CREATE_UNKNOWN_USERS" envDefault:"true"`

	// LoginURL is the SP login handler; %s receives the url-escaped
	// post-login target.
	LoginURL string `env:"LOGIN_URL" envDefault:"/Shibboleth.sso/Login?target=%s"`

	// LogoutURL is the SP/IdP logout handler; %s receives the url-escaped
	// post-logout return URL.
	LogoutURL string `env:"LOGOUT_URL" envDefault:"/Shibboleth.sso/Logout?return=%s"`

	// LogoutRedirectURL is where the user lands after logout.
	LogoutRedirectURL string `env:"LOGOUT_REDIRECT_URL" envDefault:"/"`

	// SessionTTL bounds how long an established session lives.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`
}

// Validate checks the config invariants that cannot be expressed as env tags.
func (c *ShibConfig) Validate() error {
	if strings.TrimSpace(c.RemoteUserHeader) == "" {
		return errors.New("remote user header must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	return c.AttributeMap.Validate()
}
