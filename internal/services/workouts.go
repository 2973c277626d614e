package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"golang.org/x/sync/errgroup"
)

var _ WorkoutAPI = (*WorkoutService)(nil)

// WorkoutService binds the workout, session and stats endpoints.
type WorkoutService struct {
	api *APIService
}

// NewWorkoutService creates a workout service over api.
//
// Pass an api configured with [APIService.WithRefresher] to retry once on an expired access token.
func NewWorkoutService(api *APIService) *WorkoutService {
	return &WorkoutService{api: api}
}

func workoutPath(id int64) string { return fmt.Sprintf("workouts/%d/", id) }
func sessionPath(id int64) string { return fmt.Sprintf("sessions/%d/", id) }

func (s *WorkoutService) ListWorkouts(ctx context.Context, status models.WorkoutStatus) ([]models.Workout, error) {
	path := "workouts/"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}

	var workouts []models.Workout
	if err := s.api.doJSON(ctx, http.MethodGet, path, nil, &workouts); err != nil {
		return nil, err
	}
	return workouts, nil
}

func (s *WorkoutService) ListAllWorkouts(ctx context.Context) (inProgress, completed []models.Workout, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		inProgress, err = s.ListWorkouts(gctx, models.StatusInProgress)
		return err
	})
	g.Go(func() error {
		var err error
		completed, err = s.ListWorkouts(gctx, models.StatusCompleted)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return inProgress, completed, nil
}

func (s *WorkoutService) GetWorkout(ctx context.Context, id int64) (*models.Workout, error) {
	var w models.Workout
	if err := s.api.doJSON(ctx, http.MethodGet, workoutPath(id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WorkoutService) CreateWorkout(ctx context.Context, in models.WorkoutInput) (*models.Workout, error) {
	if err := in.ValidateCreate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	var w models.Workout
	if err := s.api.doJSON(ctx, http.MethodPost, "workouts/", in, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWorkout fetches the workout first and refuses to edit one that is already completed.
func (s *WorkoutService) UpdateWorkout(ctx context.Context, id int64, in models.WorkoutInput) (*models.Workout, error) {
	if err := in.ValidateUpdate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	current, err := s.GetWorkout(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Completed() {
		return nil, fmt.Errorf("%w: %q has %d/%d sessions", shared.ErrWorkoutCompleted, current.Name, current.NumOfSessions, current.TargetSessions)
	}

	var w models.Workout
	if err := s.api.doJSON(ctx, http.MethodPatch, workoutPath(id), in, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WorkoutService) DeleteWorkout(ctx context.Context, id int64) error {
	return s.api.doJSON(ctx, http.MethodDelete, workoutPath(id), nil, nil)
}

func (s *WorkoutService) AddSession(ctx context.Context, in models.SessionInput) (*models.Session, error) {
	if in.Workout == 0 || in.Date == "" || in.Makes == nil {
		return nil, fmt.Errorf("%w: workout, date and makes are required", shared.ErrInvalidInput)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	var sess models.Session
	if err := s.api.doJSON(ctx, http.MethodPost, "sessions/", in, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *WorkoutService) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	var sess models.Session
	if err := s.api.doJSON(ctx, http.MethodGet, sessionPath(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *WorkoutService) UpdateSession(ctx context.Context, id int64, in models.SessionInput) (*models.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	var sess models.Session
	if err := s.api.doJSON(ctx, http.MethodPatch, sessionPath(id), in, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *WorkoutService) DeleteSession(ctx context.Context, id int64) error {
	return s.api.doJSON(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

func (s *WorkoutService) StatsOverview(ctx context.Context) (*models.StatsOverview, error) {
	var stats models.StatsOverview
	if err := s.api.doJSON(ctx, http.MethodGet, "stats/overview/", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
