package tasks

import (
	"fmt"

	"github.com/desertthunder/shotlog/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchWorkouts Phase = iota
	FetchStats
	FetchWorkout
	ExportWorkout
	WriteManifest
)

func (p Phase) String() string {
	switch p {
	case FetchWorkouts:
		return "fetch_workouts"
	case FetchStats:
		return "fetch_stats"
	case FetchWorkout:
		return "fetch_workout"
	case ExportWorkout:
		return "export_workout"
	case WriteManifest:
		return "write_manifest"
	default:
		return ""
	}
}

func fetchingWorkoutsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchWorkouts,
		Step:    step,
		Total:   total,
		Message: "Fetching workouts...",
	}
}

func fetchingStatsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchStats,
		Step:    step,
		Total:   total,
		Message: "Fetching stats overview...",
	}
}

func collectedUpdate(step, total int, c *Collection) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchWorkouts,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Found %d workouts (%d in progress, %d completed)", c.Count(), len(c.InProgress), len(c.Completed)),
		Data:    c,
	}
}

func fetchedWorkoutUpdate(step, total int, w *models.Workout) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchWorkout,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetched: %s", step, total, w.Name),
		Data:    w,
	}
}

func exportCompletedUpdate(step, total int, name, file string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportWorkout,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, name, file),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportWorkout,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func manifestUpdate(path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteManifest,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Manifest written to %s", path),
	}
}
