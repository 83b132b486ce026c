package messaging

import (
	"fmt"
	"net/url"
	"strings"
)

// redactURL hides credentials in a broker URL so it can be logged safely.
func redactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	return u.Redacted()
}

// Describe returns a secret-free description of the client's broker connection.
//
// Implementations in this package satisfy fmt.Stringer; anything else is
// described by its type name.
func Describe(m any) string {
	if m == nil {
		return "<nil>"
	}
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m)
}
