package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var _ Model = (*ExportRun)(nil)

// ExportStatus is the lifecycle state of an [ExportRun].
type ExportStatus string

const (
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportPartial   ExportStatus = "partial"
	ExportFailed    ExportStatus = "failed"
	ExportCancelled ExportStatus = "cancelled"
)

// ExportRun records one bulk export for the local history.
type ExportRun struct {
	id           string
	sequence     int
	owner        string
	format       string
	outputDir    string
	status       ExportStatus
	total        int
	succeeded    int
	failed       int
	errorMessage string
	manifestPath string
	startedAt    time.Time
	completedAt  *time.Time
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewExportRun starts a run of total workouts for owner.
func NewExportRun(owner, format, outputDir string, total int) *ExportRun {
	now := time.Now().UTC()
	return &ExportRun{
		owner:     owner,
		format:    format,
		outputDir: outputDir,
		status:    ExportRunning,
		total:     total,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *ExportRun) ID() string               { return r.id }
func (r *ExportRun) Sequence() int            { return r.sequence }
func (r *ExportRun) Owner() string            { return r.owner }
func (r *ExportRun) Format() string           { return r.format }
func (r *ExportRun) OutputDir() string        { return r.outputDir }
func (r *ExportRun) Status() ExportStatus     { return r.status }
func (r *ExportRun) Total() int               { return r.total }
func (r *ExportRun) Succeeded() int           { return r.succeeded }
func (r *ExportRun) Failed() int              { return r.failed }
func (r *ExportRun) ErrorMessage() string     { return r.errorMessage }
func (r *ExportRun) ManifestPath() string     { return r.manifestPath }
func (r *ExportRun) StartedAt() time.Time     { return r.startedAt }
func (r *ExportRun) CompletedAt() *time.Time  { return r.completedAt }
func (r *ExportRun) CreatedAt() time.Time     { return r.createdAt }
func (r *ExportRun) UpdatedAt() time.Time     { return r.updatedAt }
func (r *ExportRun) DeletedAt() *time.Time    { return r.deletedAt }
func (r *ExportRun) IsDeleted() bool          { return r.deletedAt != nil }
func (r *ExportRun) SetID(id string)          { r.id = id }
func (r *ExportRun) SetSequence(seq int)      { r.sequence = seq }
func (r *ExportRun) SetStatus(s ExportStatus) { r.status = s }

// SetCounts records how many workouts were written and how many failed.
func (r *ExportRun) SetCounts(succeeded, failed int) {
	r.succeeded, r.failed = succeeded, failed
}

// SetResult records where the export landed.
func (r *ExportRun) SetResult(outputDir, manifestPath, errorMessage string) {
	r.outputDir, r.manifestPath, r.errorMessage = outputDir, manifestPath, errorMessage
}

// SetTimes restores the timestamps of a stored run.
func (r *ExportRun) SetTimes(started time.Time, completed *time.Time, created, updated time.Time, deleted *time.Time) {
	r.startedAt, r.completedAt, r.createdAt, r.updatedAt, r.deletedAt = started, completed, created, updated, deleted
}

func (r *ExportRun) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// Finish settles the run from the export counts and the error the export returned.
func (r *ExportRun) Finish(succeeded, failed int, err error) {
	now := time.Now().UTC()
	r.succeeded, r.failed = succeeded, failed
	r.completedAt = &now

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.status = ExportCancelled
	case err != nil:
		r.status = ExportFailed
	case failed == 0:
		r.status = ExportCompleted
	case succeeded == 0:
		r.status = ExportFailed
	default:
		r.status = ExportPartial
	}

	if err != nil {
		r.errorMessage = err.Error()
	}
}

// Validate requires an owner, a format and consistent counts.
func (r *ExportRun) Validate() error {
	if r.owner == "" {
		return fmt.Errorf("export run requires an owner")
	}
	if r.format == "" {
		return fmt.Errorf("export run requires a format")
	}
	if r.total < 0 || r.succeeded < 0 || r.failed < 0 {
		return fmt.Errorf("export counts must not be negative")
	}
	if r.succeeded+r.failed > r.total {
		return fmt.Errorf("export counts exceed total: %d+%d > %d", r.succeeded, r.failed, r.total)
	}
	switch r.status {
	case ExportRunning, ExportCompleted, ExportPartial, ExportFailed, ExportCancelled:
		return nil
	}
	return fmt.Errorf("unknown export status %q", r.status)
}
