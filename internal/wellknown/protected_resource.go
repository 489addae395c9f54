// Package wellknown holds RFC 9728 metadata documents served under
// /.well-known.
package wellknown

import (
	"fmt"
	"net/url"
)

// ProtectedResourceMetadata is the OAuth 2.0 Protected Resource Metadata
// document (RFC 9728).
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// ProtectedResourceURL returns the metadata location for resource: the
// well-known prefix is inserted between the host and the resource path.
func ProtectedResourceURL(resource *url.URL) *url.URL {
	return &url.URL{
		Scheme: resource.Scheme,
		Host:   resource.Host,
		Path:   fmt.Sprintf("/.well-known/oauth-protected-resource%s", resource.Path),
	}
}
