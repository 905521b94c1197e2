package policy

import (
	"context"
	"strings"
)

// DomainStore answers whether an email domain is allowed.
type DomainStore interface {
	IsAllowed(ctx context.Context, domain string) (bool, error)
}

// WhitelistChecker confirms that an email belongs to a whitelisted domain.
type WhitelistChecker struct {
	store DomainStore
}

// NewWhitelistChecker constructs checker.
func NewWhitelistChecker(store DomainStore) *WhitelistChecker {
	return &WhitelistChecker{store: store}
}

// IsWhitelisted reports whether the domain after the last '@' of email is
// allowed. A malformed address is not an error, just not whitelisted. The
// error return is reserved for store failures.
func (w *WhitelistChecker) IsWhitelisted(ctx context.Context, email string) (bool, error) {
	domain, ok := EmailDomain(email)
	if !ok {
		return false, nil
	}
	return w.store.IsAllowed(ctx, domain)
}

// EmailDomain returns the lowercased substring after the last '@'.
func EmailDomain(email string) (string, bool) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "", false
	}
	return strings.ToLower(email[at+1:]), true
}
