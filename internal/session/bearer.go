package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Bearer is the access credential shared between the [Manager] and the HTTP client.
//
// Only the manager installs or clears it; everything else reads it.
type Bearer struct {
	mu  sync.RWMutex
	tok *oauth2.Token
}

// Authorize sets the Authorization header when a token is installed.
func (b *Bearer) Authorize(req *http.Request) {
	b.mu.RLock()
	tok := b.tok
	b.mu.RUnlock()

	if tok != nil && tok.AccessToken != "" {
		tok.SetAuthHeader(req)
	}
}

// AccessToken returns the installed token or "".
func (b *Bearer) AccessToken() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.tok == nil {
		return ""
	}
	return b.tok.AccessToken
}

// Expiry returns the exp claim of the installed token, or the zero time when unknown.
// The claim is read without verifying the signature and is informational only.
func (b *Bearer) Expiry() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.tok == nil {
		return time.Time{}
	}
	return b.tok.Expiry
}

func (b *Bearer) set(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if raw == "" {
		b.tok = nil
		return
	}
	b.tok = &oauth2.Token{
		AccessToken: raw,
		TokenType:   "Bearer",
		Expiry:      tokenExpiry(raw),
	}
}

// tokenExpiry extracts the exp claim from a JWT without verifying it.
func tokenExpiry(raw string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
