package api

import (
	"context"
	"errors"
)

// Principal is an authenticated caller.
type Principal struct {
	// ID identifies the caller; it scopes webhooks and rate-limit windows.
	ID string

	// RateLimit is the caller's per-window request budget. Zero means the
	// engine default applies.
	RateLimit int
}

// ErrInvalidToken is returned by authenticators for unknown or malformed
// tokens.
var ErrInvalidToken = errors.New("api: invalid token")

// Authenticator resolves an opaque caller-identity token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// StaticKeys is a fixed token → principal table, useful for tests and
// single-tenant deployments.
type StaticKeys map[string]Principal

// Authenticate implements Authenticator.
func (s StaticKeys) Authenticate(_ context.Context, token string) (*Principal, error) {
	p, ok := s[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &p, nil
}

type principalKey struct{}

// principalFrom returns the authenticated principal attached to the context.
func principalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}
