package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for bearer tokens.
type Config struct {
	// Issuer is the expected "iss" claim. Empty skips the issuer check; the
	// discovery constructor always sets it.
	Issuer string
	// ExpectedAudiences lists accepted "aud" values; a token must carry at
	// least one. Empty skips the audience check.
	ExpectedAudiences []string
	RequiredScopes    []string
	ScopeModeAny      bool // if true, any of RequiredScopes is sufficient; else all are required
	AllowedAlgs       []string
	Leeway            time.Duration
	// RequireAccessTokenType enforces the RFC 9068 "at+jwt" typ header.
	RequireAccessTokenType bool
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// UserInfo is the internal user claims carrier for validated tokens.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates bearer tokens.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// ErrUnauthorized indicates that the token failed validation (signature,
// issuer, audience, exp/nbf) and the request should be treated as
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrInsufficientScope indicates the token was valid but did not satisfy the
// required scopes policy.
var ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")

type verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

var _ Authenticator = (*verifier)(nil)

func newVerifier(cfg *Config, kf jwt.Keyfunc) (*verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	c := *cfg
	if len(c.AllowedAlgs) == 0 {
		return nil, errors.New("at least one allowed algorithm is required")
	}
	if slices.Contains(c.AllowedAlgs, "none") {
		return nil, errors.New(`algorithm "none" is never allowed`)
	}
	return &verifier{cfg: c, keyfunc: func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); !slices.Contains(c.AllowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf(t)
	}}, nil
}

// NewHMAC validates tokens signed with a shared secret.
func NewHMAC(cfg *Config, secret []byte) (Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("hmac secret is required")
	}
	return newVerifier(cfg, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return secret, nil
	})
}

// NewStatic validates tokens against a fixed JWKS URI. Keys are refreshed in
// the background until ctx ends.
func NewStatic(ctx context.Context, cfg *Config, jwksURI string) (Authenticator, error) {
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newVerifier(cfg, kf.Keyfunc)
}

// NewFromDiscovery performs OIDC discovery against cfg.Issuer to obtain the
// jwks_uri and canonical issuer, then validates tokens with the discovered,
// auto-refreshing key set.
func NewFromDiscovery(ctx context.Context, cfg *Config) (Authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	c := *cfg
	c.Issuer = meta.Issuer
	return newVerifier(&c, kf.Keyfunc)
}

func (v *verifier) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, unauthorized("empty token")
	}

	claims := jwt.MapClaims{}
	parsed, err := v.parser().ParseWithClaims(tok, claims, v.keyfunc)
	if err != nil {
		return nil, unauthorized(err.Error())
	}
	if v.cfg.RequireAccessTokenType && !isAccessTokenType(parsed.Header["typ"]) {
		return nil, unauthorized("typ is not at+jwt")
	}
	if len(v.cfg.ExpectedAudiences) > 0 {
		aud, _ := claims.GetAudience()
		if !slices.ContainsFunc(aud, func(a string) bool { return slices.Contains(v.cfg.ExpectedAudiences, a) }) {
			return nil, unauthorized("audience mismatch")
		}
	}
	scope, _ := claims["scope"].(string)
	if !scopesSatisfied(strings.Fields(scope), v.cfg.RequiredScopes, v.cfg.ScopeModeAny) {
		return nil, ErrInsufficientScope
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, unauthorized("missing sub")
	}
	return &userInfo{sub: sub, claims: claims}, nil
}

func (v *verifier) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	return jwt.NewParser(opts...)
}

func unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

func isAccessTokenType(typ any) bool {
	s, _ := typ.(string)
	return s == "at+jwt" || s == "application/at+jwt"
}

// scopesSatisfied reports whether have covers want: every scope, or at
// least one when anyOf is set. An empty want is always satisfied.
func scopesSatisfied(have, want []string, anyOf bool) bool {
	if len(want) == 0 {
		return true
	}
	granted := func(s string) bool { return slices.Contains(have, s) }
	if anyOf {
		return slices.ContainsFunc(want, granted)
	}
	for _, s := range want {
		if !granted(s) {
			return false
		}
	}
	return true
}
