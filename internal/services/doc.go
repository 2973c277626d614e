// Package services binds the shot-tracking REST API.
//
// # Client
//
// [APIService] resolves relative paths against the configured base URL, encodes JSON bodies,
// stamps every request with an X-Request-ID and, when configured, waits on a token-bucket limiter.
// Credentials come from an [Authorizer] owned by the session manager; the client only reads them.
//
// The refresh credential is an HTTP-only cookie. It lives in the [http.Client]'s jar and is never
// exposed to Go code.
//
// # Errors
//
// Non-2xx responses become [*APIError], which unwraps to a shared sentinel:
//   - 401/403 : [shared.ErrAuthFailed]
//   - 404 : [shared.ErrNotFound]
//   - other 4xx : [shared.ErrValidation], with the server's message kept verbatim
//   - 5xx : [shared.ErrServiceUnavailable]
//
// Transport failures wrap [shared.ErrNetwork].
//
// # Services
//
// [AuthService] covers login, refresh, logout, identity and registration.
// [WorkoutService] implements [WorkoutAPI] over workouts/, sessions/ and stats/overview/.
package services
