// Package server provides the local dashboard: HTTP routing, middleware, route guards and handlers.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Route Guards
//
// Two guards protect the /workouts and /stats namespaces:
//
//  1. [RequireRefreshCookie] checks the cookie jar for the API's refresh cookie and sends the browser
//     to /login when it is missing. It does not consult the session.
//  2. [RequireSession] waits until the session manager has resolved its initial state, then lets only
//     authenticated requests through. No protected fetch starts before that resolution.
//
// # Login
//
// [LoginHandler] serves the login form and hands credentials to the session manager. The dashboard
// uses it repeatedly; `shotlog auth login --browser` uses a single-use instance that reports the
// first successful login on a channel, then refuses further requests.
//
// # Dashboard
//
// [Dashboard] renders the workout list, workout detail and stats overview through the formatter
// package. Pass ?format=markdown|csv|json|yaml to change the encoding.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
