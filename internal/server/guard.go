package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/shotlog/internal/session"
)

// LoginPath is where guarded requests are sent.
const LoginPath = "/login"

// RefreshCookie is the name of the API's http-only refresh cookie.
const RefreshCookie = "refresh"

// ProtectedPrefixes are the path namespaces behind both guards.
var ProtectedPrefixes = []string{"/workouts", "/stats"}

// Protected reports whether path falls under one of [ProtectedPrefixes].
func Protected(path string) bool {
	for _, p := range ProtectedPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := LoginPath
	if r.URL.Path != "" && r.URL.Path != LoginPath {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// RequireRefreshCookie redirects protected requests to the login page when jar holds no
// refresh cookie for apiURL.
//
// It only looks at the cookie jar, never at the session manager, so it can run before the
// session has resolved.
func RequireRefreshCookie(jar CookieChecker, apiURL *url.URL) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Protected(r.URL.Path) && !jar.Has(apiURL, RefreshCookie) {
				redirectToLogin(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession holds protected requests until mgr has resolved its initial state, then
// redirects them to the login page unless the session is authenticated.
func RequireSession(mgr SessionManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Protected(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			select {
			case <-mgr.Ready():
			case <-r.Context().Done():
				http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
				return
			}

			if mgr.Snapshot().State != session.Authenticated {
				redirectToLogin(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
