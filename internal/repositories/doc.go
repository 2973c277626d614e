// Package repositories implements SQLite persistence for the client's local state.
//
// Key Implementations:
//   - [TokenRepository] : the single durable access token slot, used as the session token store
//   - [CookieRepository] : cookies keyed by origin, name and path
//   - [PersistentJar] : an [http.CookieJar] over net/http/cookiejar that writes through to [CookieRepository]
//   - [WorkoutRepository] : the offline workout cache, scoped per user
//   - [ExportRepository] : the soft-deleted history of bulk exports
//
// The refresh credential is an HTTP-only cookie. Go code never reads its value; the jar stores
// whatever the server sets and replays it on the next run.
package repositories
