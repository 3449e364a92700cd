package session

import (
	"fmt"
	"strings"
)

// DefaultDomain is the protocol address suffix appended to phone numbers.
const DefaultDomain = "c.us"

// AccountID derives the canonical registry key from a user-supplied phone
// number. The mapping is deterministic: equal raw inputs always resolve to
// the same key.
func AccountID(phone, domain string) (string, error) {
	digits := strings.TrimSpace(phone)
	digits = strings.TrimPrefix(digits, "+")
	digits = strings.ReplaceAll(digits, " ", "")
	digits = strings.ReplaceAll(digits, "-", "")
	if digits == "" {
		return "", fmt.Errorf("%w: empty phone", ErrInvalidPhone)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
		}
	}
	if strings.TrimSpace(domain) == "" {
		domain = DefaultDomain
	}
	return digits + "@" + domain, nil
}
