package server

import (
	"net/http"
	"strings"

	"coherence/config"
)

// Authenticator decides whether a request may proceed. The concrete strategy
// is chosen once at startup from AUTH_MODE; handlers never branch on modes.
type Authenticator interface {
	Authenticate(r *http.Request) bool
}

func NewAuthenticator(cfg *config.Config) Authenticator {
	if cfg.AuthMode == "token" {
		tokens := make(map[string]struct{}, len(cfg.AuthTokens))
		for _, t := range cfg.AuthTokens {
			tokens[t] = struct{}{}
		}
		return &TokenAuthenticator{tokens: tokens}
	}
	return NoopAuthenticator{}
}

// NoopAuthenticator admits every request. Local development default.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Authenticate(*http.Request) bool { return true }

// TokenAuthenticator checks a static bearer token against the configured set.
type TokenAuthenticator struct {
	tokens map[string]struct{}
}

func (a *TokenAuthenticator) Authenticate(r *http.Request) bool {
	token := bearerToken(r)
	if token == "" {
		return false
	}
	_, ok := a.tokens[token]
	return ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(h)
}
