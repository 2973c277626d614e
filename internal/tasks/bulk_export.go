package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/shotlog/internal/formatter"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"golang.org/x/time/rate"
)

// ManifestFilename is written to the output directory after every bulk export.
const ManifestFilename = "export_manifest.json"

// BulkExportOpts contains configuration for bulk workout exports.
type BulkExportOpts struct {
	Format     formatter.Format // Output format (default: json)
	OutputDir  string           // Base output directory (default: shotlog_export_{epoch})
	NumWorkers int              // Concurrent writers (default: 5, max: 10)
	RateLimit  float64          // Detail fetches per second (default: 5)
}

// WorkoutExportJob is one fetched workout waiting to be written.
type WorkoutExportJob struct {
	Index   int
	Workout *models.Workout
}

// WorkoutExportResult is the outcome for a single workout.
type WorkoutExportResult struct {
	Index       int
	WorkoutID   int64
	WorkoutName string
	File        string
	Success     bool
	Error       error
}

// BulkExportResult summarizes a bulk export run. Results follow the order of the requested ids.
type BulkExportResult struct {
	TotalWorkouts     int
	SuccessfulExports int
	FailedExports     int
	OutputDirectory   string
	ManifestPath      string
	Results           []WorkoutExportResult
}

// Manifest is the on-disk summary of a bulk export.
type Manifest struct {
	ExportedAt time.Time       `json:"exported_at"`
	Format     string          `json:"format"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Workouts   []ManifestEntry `json:"workouts"`
}

// ManifestEntry records one workout in the [Manifest].
type ManifestEntry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	File  string `json:"file,omitempty"`
	Error string `json:"error,omitempty"`
}

// BulkExport exports multiple workouts concurrently with rate limiting and progress tracking.
//
// Details are fetched sequentially behind a limiter and handed to a pool of writers. Failed
// fetches and failed writes are recorded per workout; the manifest is written once every
// result is in. Cancelling ctx stops the run and returns the partial result with ctx's error.
func (e *ExportEngine) BulkExport(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	ids []int64,
	opts BulkExportOpts,
) (*BulkExportResult, error) {
	if e.api == nil {
		return nil, fmt.Errorf("%w: workout API not initialized", shared.ErrServiceUnavailable)
	}

	if opts.Format == "" {
		opts.Format = formatter.FormatJSON
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("shotlog_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkExportResult{
		TotalWorkouts:   len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]WorkoutExportResult, 0, len(ids)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan WorkoutExportJob, len(ids))
	results := make(chan WorkoutExportResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, id := range ids {
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			w, err := e.api.GetWorkout(ctx, id)
			if err != nil {
				results <- WorkoutExportResult{
					Index:       i,
					WorkoutID:   id,
					WorkoutName: fmt.Sprintf("Unknown (%d)", id),
					Error:       fmt.Errorf("failed to fetch workout: %w", err),
				}
				continue
			}

			e.sendProgress(prog, fetchedWorkoutUpdate(i+1, len(ids), w))
			jobs <- WorkoutExportJob{Index: i, Workout: w}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.SuccessfulExports++
			e.sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.WorkoutName, filepath.Base(res.File)))
		} else {
			result.FailedExports++
			e.logger.Warn("workout export failed", "id", res.WorkoutID, "err", res.Error)
			e.sendProgress(prog, exportFailedUpdate(completed, len(ids), res.WorkoutName, res.Error))
		}
	}

	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].Index < result.Results[j].Index })

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, ManifestFilename)
	if err := writeManifest(result, opts.Format, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	e.sendProgress(prog, manifestUpdate(manifestPath))
	return result, nil
}

// exportWorker is a worker goroutine that writes workouts from the jobs channel.
func (e *ExportEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan WorkoutExportJob,
	results chan<- WorkoutExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		results <- exportSingleWorkout(job, opts)
	}
}

// exportSingleWorkout renders one workout into the output directory.
func exportSingleWorkout(j WorkoutExportJob, opts BulkExportOpts) WorkoutExportResult {
	result := WorkoutExportResult{
		Index:       j.Index,
		WorkoutID:   j.Workout.ID,
		WorkoutName: j.Workout.Name,
	}

	path, err := formatter.WriteWorkoutExport(j.Workout, opts.Format, opts.OutputDir)
	if err != nil {
		result.Error = fmt.Errorf("%s export failed: %w", opts.Format, err)
		return result
	}
	result.File = path
	result.Success = true
	return result
}

func writeManifest(result *BulkExportResult, format formatter.Format, path string) error {
	m := Manifest{
		ExportedAt: time.Now().UTC(),
		Format:     string(format),
		Total:      result.TotalWorkouts,
		Successful: result.SuccessfulExports,
		Failed:     result.FailedExports,
		Workouts:   make([]ManifestEntry, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		entry := ManifestEntry{ID: r.WorkoutID, Name: r.WorkoutName}
		if r.Success {
			entry.File = filepath.Base(r.File)
		} else if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		m.Workouts = append(m.Workouts, entry)
	}

	data, err := formatter.ToJSON(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
