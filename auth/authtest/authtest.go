// Package authtest provides authenticators for tests and local development.
package authtest

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/editor-mcp-go/auth"
)

// StaticTokens accepts exactly the tokens in its map, resolving each to the
// mapped user id.
type StaticTokens map[string]string

var _ auth.Authenticator = StaticTokens(nil)

func (s StaticTokens) CheckAuthentication(_ context.Context, tok string) (auth.UserInfo, error) {
	userID, ok := s[tok]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return User(userID), nil
}

// User is a UserInfo with no claims beyond its id.
type User string

func (u User) UserID() string { return string(u) }

func (u User) Claims(ref any) error {
	return json.Unmarshal([]byte(`{"sub":`+mustQuote(string(u))+`}`), ref)
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
