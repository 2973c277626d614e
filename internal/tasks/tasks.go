// package tasks implements long-running workout operations over the remote API.
//
// The core abstraction is ExportEngine, which collects and exports workouts.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/services"
	"github.com/desertthunder/shotlog/internal/shared"
	"golang.org/x/sync/errgroup"
)

// Collection is a point-in-time copy of the user's workouts and stats.
type Collection struct {
	InProgress []models.Workout      `json:"in_progress" yaml:"in_progress"`
	Completed  []models.Workout      `json:"completed" yaml:"completed"`
	Stats      *models.StatsOverview `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// Count returns the number of workouts across both lists.
func (c *Collection) Count() int {
	return len(c.InProgress) + len(c.Completed)
}

// IDs returns every workout id, in-progress first.
func (c *Collection) IDs() []int64 {
	ids := make([]int64, 0, c.Count())
	for _, w := range c.InProgress {
		ids = append(ids, w.ID)
	}
	for _, w := range c.Completed {
		ids = append(ids, w.ID)
	}
	return ids
}

// ExportEngine runs collection and export jobs against a [services.WorkoutAPI].
type ExportEngine struct {
	api    services.WorkoutAPI
	logger *log.Logger
}

// NewExportEngine creates an engine. A nil logger discards output.
func NewExportEngine(api services.WorkoutAPI, logger *log.Logger) *ExportEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ExportEngine{api: api, logger: logger.With("component", "tasks")}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *ExportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Collect fetches both workout lists and the stats overview concurrently.
func (e *ExportEngine) Collect(ctx context.Context, progress chan<- ProgressUpdate) (*Collection, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: workout API not initialized", shared.ErrServiceUnavailable)
	}

	var c Collection
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.sendProgress(progress, fetchingWorkoutsUpdate(1, 2))
		inProgress, completed, err := e.api.ListAllWorkouts(gctx)
		if err != nil {
			return fmt.Errorf("failed to list workouts: %w", err)
		}
		c.InProgress, c.Completed = inProgress, completed
		return nil
	})
	g.Go(func() error {
		e.sendProgress(progress, fetchingStatsUpdate(2, 2))
		stats, err := e.api.StatsOverview(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}
		c.Stats = stats
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("collected workouts", "in_progress", len(c.InProgress), "completed", len(c.Completed))
	e.sendProgress(progress, collectedUpdate(2, 2, &c))
	return &c, nil
}
