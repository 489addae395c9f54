package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/editor-mcp-go/internal/jwtauth"
)

var (
	// ErrUnauthorized means no valid credentials were presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInsufficientScope means the token is valid but lacks a required
	// scope.
	ErrInsufficientScope = errors.New("insufficient scope")
)

// UserInfo is an authenticated principal.
type UserInfo interface {
	UserID() string
	// Claims decodes the token's claims into ref.
	Claims(ref any) error
}

// Authenticator validates a bearer token. Failures wrap ErrUnauthorized or
// ErrInsufficientScope.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// Option adjusts token validation.
type Option func(*jwtauth.Config)

// WithIssuer pins the "iss" claim. NewOIDC overrides it with the discovered
// issuer.
func WithIssuer(issuer string) Option {
	return func(c *jwtauth.Config) { c.Issuer = issuer }
}

// WithAudiences accepts tokens whose "aud" names any of auds.
func WithAudiences(auds ...string) Option {
	return func(c *jwtauth.Config) { c.ExpectedAudiences = append([]string(nil), auds...) }
}

// WithRequiredScopes demands every scope in the token's "scope" claim.
func WithRequiredScopes(scopes ...string) Option {
	return func(c *jwtauth.Config) { c.RequiredScopes = append([]string(nil), scopes...) }
}

// configure layers opts over base and the package defaults.
func configure(base func(*jwtauth.Config), opts []Option) *jwtauth.Config {
	cfg := jwtauth.DefaultConfig()
	if base != nil {
		base(cfg)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func wrap(inner jwtauth.Authenticator, err error) (Authenticator, error) {
	if err != nil {
		return nil, err
	}
	return verifier{inner: inner}, nil
}

// NewHS256 verifies tokens signed with a shared secret.
func NewHS256(secret []byte, opts ...Option) (Authenticator, error) {
	cfg := configure(func(c *jwtauth.Config) { c.AllowedAlgs = []string{"HS256"} }, opts)
	return wrap(jwtauth.NewHMAC(cfg, secret))
}

// NewJWKS verifies RS256 tokens against the key set at jwksURI, refreshed
// in the background until ctx ends.
func NewJWKS(ctx context.Context, jwksURI string, opts ...Option) (Authenticator, error) {
	return wrap(jwtauth.NewStatic(ctx, configure(nil, opts), jwksURI))
}

// NewOIDC verifies RFC 9068 access tokens minted by issuer for audience.
// Keys are located through OpenID Connect discovery.
func NewOIDC(ctx context.Context, issuer string, audience string, opts ...Option) (Authenticator, error) {
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	cfg := configure(func(c *jwtauth.Config) {
		c.ExpectedAudiences = []string{audience}
		c.RequireAccessTokenType = true
	}, opts)
	cfg.Issuer = issuer
	return wrap(jwtauth.NewFromDiscovery(ctx, cfg))
}

// verifier maps jwtauth failures onto this package's sentinels.
type verifier struct {
	inner jwtauth.Authenticator
}

func (v verifier) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := v.inner.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		return ui, nil
	case errors.Is(err, jwtauth.ErrInsufficientScope):
		return nil, errors.Join(ErrInsufficientScope, err)
	case errors.Is(err, jwtauth.ErrUnauthorized):
		return nil, errors.Join(ErrUnauthorized, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
}
