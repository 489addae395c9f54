package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/auth"
	"github.com/golang-jwt/jwt/v5"
)

func mustSign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestNewHS256(t *testing.T) {
	a, err := auth.NewHS256([]byte("secret"),
		auth.WithIssuer("editor-mcp"),
		auth.WithAudiences("pulsar"),
		auth.WithRequiredScopes("editor:write"),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("valid", func(t *testing.T) {
		tok := mustSign(t, "secret", jwt.MapClaims{"iss": "editor-mcp", "aud": "pulsar", "sub": "u1", "exp": exp, "scope": "editor:write"})
		ui, err := a.CheckAuthentication(context.Background(), tok)
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if got, want := ui.UserID(), "u1"; got != want {
			t.Fatalf("want %q, got %q", want, got)
		}
	})

	t.Run("bad signature maps to unauthorized", func(t *testing.T) {
		tok := mustSign(t, "other", jwt.MapClaims{"iss": "editor-mcp", "aud": "pulsar", "sub": "u1", "exp": exp, "scope": "editor:write"})
		_, err := a.CheckAuthentication(context.Background(), tok)
		if !errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("missing scope maps to insufficient scope", func(t *testing.T) {
		tok := mustSign(t, "secret", jwt.MapClaims{"iss": "editor-mcp", "aud": "pulsar", "sub": "u1", "exp": exp, "scope": "editor:read"})
		_, err := a.CheckAuthentication(context.Background(), tok)
		if !errors.Is(err, auth.ErrInsufficientScope) {
			t.Fatalf("want ErrInsufficientScope, got %v", err)
		}
		if errors.Is(err, auth.ErrUnauthorized) {
			t.Fatalf("insufficient scope should not be unauthorized: %v", err)
		}
	})
}

func TestConstructorsValidateInput(t *testing.T) {
	if _, err := auth.NewHS256(nil); err == nil {
		t.Fatalf("want error for empty secret")
	}
	if _, err := auth.NewJWKS(context.Background(), ""); err == nil {
		t.Fatalf("want error for empty jwks uri")
	}
	if _, err := auth.NewOIDC(context.Background(), "https://issuer.example", ""); err == nil {
		t.Fatalf("want error for empty audience")
	}
}
