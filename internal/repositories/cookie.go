package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/publicsuffix"
)

// CookieRepository stores cookies per origin ("scheme://host").
type CookieRepository struct {
	db *sql.DB
}

// NewCookieRepository creates a new CookieRepository with the given database connection
func NewCookieRepository(db *sql.DB) *CookieRepository {
	return &CookieRepository{db: db}
}

// Origin returns the storage key for u.
func Origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// cookieExpiry resolves MaxAge and Expires into an absolute time.
// The second result is false when the cookie is a deletion.
func cookieExpiry(c *http.Cookie, now time.Time) (sql.NullTime, bool) {
	switch {
	case c.MaxAge < 0:
		return sql.NullTime{}, false
	case c.MaxAge > 0:
		return sql.NullTime{Time: now.Add(time.Duration(c.MaxAge) * time.Second), Valid: true}, true
	case !c.Expires.IsZero():
		if !c.Expires.After(now) {
			return sql.NullTime{}, false
		}
		return sql.NullTime{Time: c.Expires.UTC(), Valid: true}, true
	default:
		return sql.NullTime{}, true
	}
}

// Upsert stores or deletes each cookie according to its expiry.
func (r *CookieRepository) Upsert(ctx context.Context, origin string, cookies []*http.Cookie) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}

		expires, keep := cookieExpiry(c, now)
		if !keep || c.Value == "" {
			if _, err := tx.ExecContext(ctx, "DELETE FROM cookies WHERE origin = ? AND name = ? AND path = ?", origin, c.Name, path); err != nil {
				return fmt.Errorf("failed to delete cookie %s: %w", c.Name, err)
			}
			continue
		}

		query := `
			INSERT INTO cookies (origin, name, path, value, domain, expires_at, secure, http_only, same_site, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(origin, name, path) DO UPDATE SET
				value = excluded.value,
				domain = excluded.domain,
				expires_at = excluded.expires_at,
				secure = excluded.secure,
				http_only = excluded.http_only,
				same_site = excluded.same_site,
				updated_at = excluded.updated_at
		`
		_, err := tx.ExecContext(ctx, query,
			origin, c.Name, path, c.Value, c.Domain, expires,
			boolToInt(c.Secure), boolToInt(c.HttpOnly), int(c.SameSite), now,
		)
		if err != nil {
			return fmt.Errorf("failed to store cookie %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cookies: %w", err)
	}
	return nil
}

// Load returns the unexpired cookies stored for origin.
func (r *CookieRepository) Load(ctx context.Context, origin string) ([]*http.Cookie, error) {
	query := `
		SELECT name, path, value, domain, expires_at, secure, http_only, same_site
		FROM cookies
		WHERE origin = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, origin, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var (
			c                http.Cookie
			expires          sql.NullTime
			secure, httpOnly int
			sameSite         int
		)
		if err := rows.Scan(&c.Name, &c.Path, &c.Value, &c.Domain, &expires, &secure, &httpOnly, &sameSite); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if expires.Valid {
			c.Expires = expires.Time
		}
		c.Secure = secure == 1
		c.HttpOnly = httpOnly == 1
		c.SameSite = http.SameSite(sameSite)
		cookies = append(cookies, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cookies, nil
}

// Clear removes every cookie stored for origin.
func (r *CookieRepository) Clear(ctx context.Context, origin string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM cookies WHERE origin = ?", origin); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

// PersistentJar is an [http.CookieJar] that writes every cookie the server sets through to
// a [CookieRepository], so the HTTP-only refresh cookie survives process restarts.
type PersistentJar struct {
	jar    *cookiejar.Jar
	repo   *CookieRepository
	logger *log.Logger
}

// NewPersistentJar creates an empty jar using the public suffix list.
func NewPersistentJar(repo *CookieRepository, logger *log.Logger) (*PersistentJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PersistentJar{jar: jar, repo: repo, logger: logger}, nil
}

// Restore loads the cookies stored for u's origin into the jar.
func (j *PersistentJar) Restore(ctx context.Context, u *url.URL) error {
	cookies, err := j.repo.Load(ctx, Origin(u))
	if err != nil {
		return err
	}
	if len(cookies) > 0 {
		j.jar.SetCookies(u, cookies)
	}
	j.logger.Debug("restored cookies", "origin", Origin(u), "count", len(cookies))
	return nil
}

// SetCookies implements [http.CookieJar] and persists the cookies.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if err := j.repo.Upsert(context.Background(), Origin(u), cookies); err != nil {
		j.logger.Warn("could not persist cookies", "origin", Origin(u), "err", err)
	}
}

// Cookies implements [http.CookieJar].
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Has reports whether the jar would send a cookie named name to u.
func (j *PersistentJar) Has(u *url.URL, name string) bool {
	for _, c := range j.jar.Cookies(u) {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

// Clear expires every stored cookie for u's origin, in memory and on disk.
func (j *PersistentJar) Clear(ctx context.Context, u *url.URL) error {
	stored, err := j.repo.Load(ctx, Origin(u))
	if err != nil {
		return err
	}

	expired := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		expired = append(expired, &http.Cookie{Name: c.Name, Path: c.Path, Domain: c.Domain, MaxAge: -1})
	}
	j.jar.SetCookies(u, expired)

	return j.repo.Clear(ctx, Origin(u))
}
