// Package session owns client-side authentication state.
//
// A [Manager] holds the short-lived access token, mirrors it into a durable [TokenStore],
// resolves the current identity and silently refreshes the token through the refresh cookie
// that the HTTP client's jar carries. The token is exposed to the HTTP client only as a
// [Bearer], which the client reads through its Authorizer interface and never writes.
//
// # States
//
//	Initializing --(token found & identity ok)--> Authenticated
//	Initializing --(token found, 401, refresh ok, identity ok)--> Authenticated
//	Initializing --(no token, refresh ok, identity ok)--> Authenticated
//	Initializing --(refresh fails)--> Unauthenticated
//	Authenticated --(logout)--> Unauthenticated
//	Unauthenticated --(login succeeds)--> Authenticated
//
// The first resolution closes [Manager.Ready]; the manager never returns to Initializing.
//
// # Epochs
//
// Every login, logout and failed refresh starts a new session epoch. Each network call records
// the epoch it started in and drops its result with [shared.ErrStaleResponse] when the epoch
// moved meanwhile, so a refresh that lands after a logout cannot bring the session back.
// Overlapping refreshes share a single request, so a rotated refresh cookie is sent once.
package session
