package domain

import (
	"net/mail"
	"strings"
)

// NormalizeEmail trims and lower-cases an address and checks its syntax.
// Only a bare address is accepted, no display name.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", Invalidf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Invalidf("email %q is not a valid address", raw)
	}
	at := strings.LastIndex(email, "@")
	domainPart := email[at+1:]
	if !strings.Contains(domainPart, ".") || strings.HasPrefix(domainPart, ".") || strings.HasSuffix(domainPart, ".") {
		return "", Invalidf("email %q is not a valid address", raw)
	}
	return email, nil
}
