// package server contains the middleware, route guards and handlers for the local dashboard.
package server

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/shotlog/internal/session"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, panic recovery and the route guards.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own several routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// SessionManager is the part of [session.Manager] the dashboard depends on.
type SessionManager interface {
	Ready() <-chan struct{}
	Snapshot() session.Snapshot
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
}

// CookieChecker reports whether a named cookie is held for a URL.
//
// Implemented by repositories.PersistentJar.
type CookieChecker interface {
	Has(u *url.URL, name string) bool
}

// New returns an [http.Server] for addr with conservative timeouts.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
