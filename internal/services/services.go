// package services binds the remote workout API: a JSON HTTP client with pluggable credentials,
// the authentication endpoints and the workout/session/stats endpoints.
package services

import (
	"context"
	"net/http"

	"github.com/desertthunder/shotlog/internal/models"
)

// Authorizer attaches the current credential to an outgoing request.
//
// The session manager's bearer implements this; the client never mutates it.
type Authorizer interface {
	Authorize(req *http.Request)
}

// Refresher mints a new access token after a request was rejected with 401.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// WorkoutAPI is the data surface consumed by the CLI, TUI, dashboard and bulk exporter.
type WorkoutAPI interface {
	// ListWorkouts returns workouts filtered by status; an empty status returns all of them.
	ListWorkouts(ctx context.Context, status models.WorkoutStatus) ([]models.Workout, error)

	// ListAllWorkouts fetches the in-progress and completed lists concurrently.
	ListAllWorkouts(ctx context.Context) (inProgress, completed []models.Workout, err error)

	GetWorkout(ctx context.Context, id int64) (*models.Workout, error)
	CreateWorkout(ctx context.Context, in models.WorkoutInput) (*models.Workout, error)

	// UpdateWorkout patches a workout; completed workouts are refused with [shared.ErrWorkoutCompleted].
	UpdateWorkout(ctx context.Context, id int64, in models.WorkoutInput) (*models.Workout, error)
	DeleteWorkout(ctx context.Context, id int64) error

	AddSession(ctx context.Context, in models.SessionInput) (*models.Session, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	UpdateSession(ctx context.Context, id int64, in models.SessionInput) (*models.Session, error)
	DeleteSession(ctx context.Context, id int64) error

	StatsOverview(ctx context.Context) (*models.StatsOverview, error)
}
