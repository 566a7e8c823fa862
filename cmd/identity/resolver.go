package identity

import (
	"context"
	"fmt"
	"time"

	"adboard/cmd/security/token"
)

// TokenVerifier validates a bearer token and returns its subject (username)
// and issue time.
type TokenVerifier interface {
	VerifyClaims(raw string, now time.Time) (token.Claims, error)
}

// PrincipalFinder is the read-only slice of Store the Resolver needs.
type PrincipalFinder interface {
	FindByUsername(ctx context.Context, username string) (Principal, error)
}

// Resolver turns a bearer token into the authenticated Principal.
type Resolver struct {
	tokens TokenVerifier
	store  PrincipalFinder
	now    func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the verification clock.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a Resolver.
func NewResolver(tokens TokenVerifier, store PrincipalFinder, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tokens: tokens,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve verifies raw and loads its subject with exactly one store lookup.
//
// Every token failure, an unknown subject and a token issued before the
// subject's account was created yield ErrUnauthenticated; the token cause is
// kept in the chain for logs. The last rule keeps a token minted for a deleted
// account from authenticating whoever registers the freed username later. Other store failures are returned wrapped
// and are not reported as authentication failures.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Principal, error) {
	const op = "identity.Resolve"

	claims, err := r.tokens.VerifyClaims(raw, r.now())
	if err != nil {
		return Principal{}, OpError{Op: op, Kind: ErrUnauthenticated, Err: err}
	}

	p, err := r.store.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if IsNotFound(err) {
			return Principal{}, OpError{Op: op, Kind: ErrUnauthenticated, Msg: "unknown subject"}
		}
		return Principal{}, fmt.Errorf("%s: lookup: %w", op, err)
	}
	// iat has second precision.
	if claims.IssuedAt.Before(p.CreatedAt.Truncate(time.Second)) {
		return Principal{}, OpError{Op: op, Kind: ErrUnauthenticated, Msg: "token predates account"}
	}
	return p, nil
}
