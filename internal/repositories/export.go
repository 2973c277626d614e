package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

var _ models.Repository[*models.ExportRun] = (*ExportRepository)(nil)

// ExportRepository implements models.Repository[*models.ExportRun] for the bulk export history.
//
// Runs are numbered per database and soft deleted.
type ExportRepository struct {
	db *sql.DB
}

// NewExportRepository creates a new ExportRepository with the given database connection
func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

const exportColumns = `
	id, sequence, owner, format, output_dir, status, total, succeeded, failed,
	error_message, manifest_path, started_at, completed_at, created_at, updated_at, deleted_at`

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *ExportRepository) nextSequence() (int, error) {
	var next int
	if err := r.db.QueryRow("SELECT COALESCE(MAX(sequence), 0) + 1 FROM export_runs").Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

// Create inserts a new run with a generated ID and the next sequence number
func (r *ExportRepository) Create(run *models.ExportRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := r.nextSequence()
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	id := shared.GenerateID()

	query := `
		INSERT INTO export_runs (
			id, sequence, owner, format, output_dir, status, total, succeeded, failed,
			error_message, manifest_path, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		id, sequence, run.Owner(), run.Format(), run.OutputDir(), string(run.Status()),
		run.Total(), run.Succeeded(), run.Failed(),
		nullString(run.ErrorMessage()), nullString(run.ManifestPath()),
		run.StartedAt(), run.CompletedAt(), run.CreatedAt(), run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert export run: %w", err)
	}

	run.SetID(id)
	run.SetSequence(sequence)
	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *ExportRepository) Get(id string) (*models.ExportRun, error) {
	row := r.db.QueryRow("SELECT "+exportColumns+" FROM export_runs WHERE id = ? AND deleted_at IS NULL", id)
	return r.scan(row, "export run "+id)
}

// GetBySequence retrieves a run by the number shown in the history listing
func (r *ExportRepository) GetBySequence(sequence int) (*models.ExportRun, error) {
	row := r.db.QueryRow("SELECT "+exportColumns+" FROM export_runs WHERE sequence = ? AND deleted_at IS NULL", sequence)
	return r.scan(row, fmt.Sprintf("export run #%d", sequence))
}

// Update stores the outcome of a run
func (r *ExportRepository) Update(run *models.ExportRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE export_runs
		SET output_dir = ?, status = ?, total = ?, succeeded = ?, failed = ?,
			error_message = ?, manifest_path = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := r.db.Exec(query,
		run.OutputDir(), string(run.Status()), run.Total(), run.Succeeded(), run.Failed(),
		nullString(run.ErrorMessage()), nullString(run.ManifestPath()), run.CompletedAt(), now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update export run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: export run %s", shared.ErrNotFound, run.ID())
	}

	run.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes a run by ID
func (r *ExportRepository) Delete(id string) error {
	result, err := r.db.Exec("UPDATE export_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete export run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: export run %s", shared.ErrNotFound, id)
	}
	return nil
}

// List retrieves runs newest first. Supported criteria are "owner", "status" and "limit".
func (r *ExportRepository) List(criteria map[string]any) ([]*models.ExportRun, error) {
	query := "SELECT " + exportColumns + " FROM export_runs WHERE deleted_at IS NULL"
	args := []any{}

	if owner, ok := criteria["owner"].(string); ok && owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}

	switch status := criteria["status"].(type) {
	case models.ExportStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query export runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ExportRun
	for rows.Next() {
		run, err := r.scan(rows, "export run")
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *ExportRepository) scan(row scanner, what string) (*models.ExportRun, error) {
	var (
		id           string
		sequence     int
		owner        string
		format       string
		outputDir    string
		status       string
		total        int
		succeeded    int
		failed       int
		errorMessage sql.NullString
		manifestPath sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &owner, &format, &outputDir, &status, &total, &succeeded, &failed,
		&errorMessage, &manifestPath, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, notFound(err, what)
	}

	run := models.NewExportRun(owner, format, outputDir, total)
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetStatus(models.ExportStatus(status))
	run.SetCounts(succeeded, failed)
	run.SetResult(outputDir, manifestPath.String, errorMessage.String)

	var completed, deleted *time.Time
	if completedAt.Valid {
		completed = &completedAt.Time
	}
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}
	run.SetTimes(startedAt, completed, createdAt, updatedAt, deleted)

	return run, nil
}
