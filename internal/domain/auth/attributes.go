package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// AttributeRule maps one external request header to a canonical field name.
// Required rules gate authentication: a missing required attribute fails
// validation for the whole request.
type AttributeRule struct {
	Header   string
	Required bool
	Field    string
}

// ParseAttributes extracts the configured attributes from the raw header set.
//
// Every rule produces an entry in the result, so the result's key set always
// equals the canonical field set of the rules regardless of which headers
// were present. A header that is missing and a header that is present but
// empty are treated identically as absent. The second return value reports
// whether any required attribute was absent; absence of optional attributes
// is not an error of any kind.
func ParseAttributes(h http.Header, rules []AttributeRule) (map[string]string, bool) {
	attrs := make(map[string]string, len(rules))
	failed := false
	for _, rule := range rules {
		value := h.Get(rule.Header)
		attrs[rule.Field] = value
		if value == "" && rule.Required {
			failed = true
		}
	}
	return attrs, failed
}

// CleanUsername normalizes a raw remote-user value so equivalent raw values
// never diverge across comparison points. Policy: trim surrounding
// whitespace and lowercase.
func CleanUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidationError reports that a required identity attribute was absent from
// the request. It carries the full parsed attribute set for diagnostics; the
// same set has already been written to the session by the time this error is
// returned.
type ValidationError struct {
	Attributes map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("required identity attributes missing: %v", e.Attributes)
}
