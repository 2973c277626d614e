// package repositories provides the local SQLite persistence: the durable token slot,
// the cookie jar backing store, the workout cache and the export history.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/shotlog/internal/shared"
)

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// notFound maps [sql.ErrNoRows] to [shared.ErrNotFound] and wraps everything else.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrNotFound, what)
	}
	return fmt.Errorf("failed to scan %s: %w", what, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
