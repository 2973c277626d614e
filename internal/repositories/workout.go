package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

var _ models.Repository[*models.CachedWorkout] = (*WorkoutRepository)(nil)

// WorkoutRepository implements models.Repository[*models.CachedWorkout] for the offline workout cache.
//
// Rows are keyed by a local id and unique by remote workout id. The cache is scoped per owner
// (the username that fetched it) and dropped on logout.
type WorkoutRepository struct {
	db *sql.DB
}

// NewWorkoutRepository creates a new WorkoutRepository with the given database connection
func NewWorkoutRepository(db *sql.DB) *WorkoutRepository {
	return &WorkoutRepository{db: db}
}

const workoutColumns = "id, owner, fetched_at, payload"

// Create inserts a new [models.CachedWorkout] with a generated ID
func (r *WorkoutRepository) Create(cw *models.CachedWorkout) error {
	if err := cw.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return r.insert(r.db, cw)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (r *WorkoutRepository) insert(db execer, cw *models.CachedWorkout) error {
	payload, err := cw.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode workout: %w", err)
	}

	id := shared.GenerateID()
	w := cw.Workout()

	query := `
		INSERT INTO workouts (id, remote_id, owner, name, completed, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query, id, w.ID, cw.Owner(), w.Name, boolToInt(w.Completed()), string(payload), cw.CreatedAt()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("workout %d is already cached: %w", w.ID, err)
		}
		return fmt.Errorf("failed to insert workout: %w", err)
	}

	cw.SetID(id)
	return nil
}

// Get retrieves a cached workout by local ID
func (r *WorkoutRepository) Get(id string) (*models.CachedWorkout, error) {
	row := r.db.QueryRow("SELECT "+workoutColumns+" FROM workouts WHERE id = ?", id)
	return r.scan(row, "workout "+id)
}

// GetByRemoteID retrieves a cached workout by its API id
func (r *WorkoutRepository) GetByRemoteID(remoteID int64) (*models.CachedWorkout, error) {
	row := r.db.QueryRow("SELECT "+workoutColumns+" FROM workouts WHERE remote_id = ?", remoteID)
	return r.scan(row, fmt.Sprintf("workout #%d", remoteID))
}

// Update replaces the snapshot of an existing cached workout
func (r *WorkoutRepository) Update(cw *models.CachedWorkout) error {
	if err := cw.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := cw.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode workout: %w", err)
	}

	w := cw.Workout()
	query := `
		UPDATE workouts
		SET remote_id = ?, owner = ?, name = ?, completed = ?, payload = ?, fetched_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query, w.ID, cw.Owner(), w.Name, boolToInt(w.Completed()), string(payload), cw.UpdatedAt(), cw.ID())
	if err != nil {
		return fmt.Errorf("failed to update workout: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: workout %s", shared.ErrNotFound, cw.ID())
	}
	return nil
}

// Delete removes a cached workout by local ID
func (r *WorkoutRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM workouts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete workout: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: workout %s", shared.ErrNotFound, id)
	}
	return nil
}

// DeleteByRemoteID drops a workout from the cache after it was deleted remotely.
// Missing rows are not an error.
func (r *WorkoutRepository) DeleteByRemoteID(remoteID int64) error {
	if _, err := r.db.Exec("DELETE FROM workouts WHERE remote_id = ?", remoteID); err != nil {
		return fmt.Errorf("failed to delete workout: %w", err)
	}
	return nil
}

// List retrieves cached workouts matching criteria: "owner" (string) and "completed" (bool).
// Results are ordered newest remote id first, matching the API's list order.
func (r *WorkoutRepository) List(criteria map[string]any) ([]*models.CachedWorkout, error) {
	query := "SELECT " + workoutColumns + " FROM workouts WHERE 1 = 1"
	args := []any{}

	if owner, ok := criteria["owner"].(string); ok && owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}

	if completed, ok := criteria["completed"].(bool); ok {
		query += " AND completed = ?"
		args = append(args, boolToInt(completed))
	}

	query += " ORDER BY remote_id DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workouts: %w", err)
	}
	defer rows.Close()

	var out []*models.CachedWorkout
	for rows.Next() {
		cw, err := r.scan(rows, "workout")
		if err != nil {
			return nil, err
		}
		out = append(out, cw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// ReplaceForOwner atomically swaps the owner's cache for workouts.
func (r *WorkoutRepository) ReplaceForOwner(owner string, workouts []models.Workout) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM workouts WHERE owner = ?", owner); err != nil {
		return fmt.Errorf("failed to clear cached workouts: %w", err)
	}

	for _, w := range workouts {
		cw := models.NewCachedWorkout(owner, w)
		if err := cw.Validate(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM workouts WHERE remote_id = ?", w.ID); err != nil {
			return fmt.Errorf("failed to evict workout %d: %w", w.ID, err)
		}
		if err := r.insert(tx, cw); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workouts: %w", err)
	}
	return nil
}

// Save inserts or refreshes a single workout snapshot for owner.
func (r *WorkoutRepository) Save(owner string, w models.Workout) error {
	existing, err := r.GetByRemoteID(w.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return r.Create(models.NewCachedWorkout(owner, w))
	}
	if err != nil {
		return err
	}
	existing.Touch(w)
	return r.Update(existing)
}

// Clear drops every cached workout.
func (r *WorkoutRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM workouts"); err != nil {
		return fmt.Errorf("failed to clear workouts: %w", err)
	}
	return nil
}

// LastFetched returns the most recent fetch time for owner, or the zero time.
func (r *WorkoutRepository) LastFetched(owner string) (time.Time, error) {
	var ts sql.NullTime
	// MAX() drops the declared column type, so order and take the first row.
	err := r.db.QueryRow("SELECT fetched_at FROM workouts WHERE owner = ? ORDER BY fetched_at DESC LIMIT 1", owner).Scan(&ts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("failed to read fetch time: %w", err)
	}
	return ts.Time, nil
}

func (r *WorkoutRepository) scan(row scanner, what string) (*models.CachedWorkout, error) {
	var (
		id        string
		owner     string
		fetchedAt time.Time
		payload   string
	)

	if err := row.Scan(&id, &owner, &fetchedAt, &payload); err != nil {
		return nil, notFound(err, what)
	}
	return models.RestoreCachedWorkout(id, owner, fetchedAt, []byte(payload))
}
