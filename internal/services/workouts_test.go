package services

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	tu "github.com/desertthunder/shotlog/internal/testing"
)

func intPtr(v int) *int { return &v }

func loggedInWorkouts(t *testing.T, fake *tu.FakeAPI) *WorkoutService {
	t.Helper()
	api, auth := newFakeClient(t, fake)
	token, err := NewAuthService(api).Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	auth.token = token
	return NewWorkoutService(api)
}

func TestWorkoutService(t *testing.T) {
	ctx := context.Background()

	t.Run("ListAllWorkouts", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		fake.AddUser("bob", "pw")
		open := fake.AddWorkout("alice", models.Workout{Name: "Corner threes", TargetSessions: 2, TargetAttempts: 50})
		done := fake.AddWorkout("alice", models.Workout{Name: "Free throws", TargetSessions: 1, TargetAttempts: 20, GoalPercentage: 70})
		fake.AddSession(done, "2025-01-02", 15, 20)
		fake.AddWorkout("bob", models.Workout{Name: "Not mine", TargetSessions: 1})

		svc := loggedInWorkouts(t, fake)
		inProgress, completed, err := svc.ListAllWorkouts(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(inProgress) != 1 || inProgress[0].ID != open {
			t.Errorf("unexpected in-progress list %+v", inProgress)
		}
		if len(completed) != 1 || completed[0].ID != done || !completed[0].IsSuccessful {
			t.Errorf("unexpected completed list %+v", completed)
		}
		if fake.Calls("GET /api/workouts/") != 2 {
			t.Errorf("expected 2 list calls, got %d", fake.Calls("GET /api/workouts/"))
		}
	})

	t.Run("ListAllWorkouts Fails When One List Fails", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		svc := loggedInWorkouts(t, fake)
		fake.FailNext("GET /api/workouts/", 1)

		_, _, err := svc.ListAllWorkouts(ctx)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Workout CRUD", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		svc := loggedInWorkouts(t, fake)

		goal := 60.0
		created, err := svc.CreateWorkout(ctx, models.WorkoutInput{
			Name:           "Mid-range",
			GoalPercentage: &goal,
			TargetAttempts: intPtr(30),
			TargetSessions: intPtr(3),
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		got, err := svc.GetWorkout(ctx, created.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Name != "Mid-range" || got.TargetSessions != 3 {
			t.Errorf("unexpected workout %+v", got)
		}

		updated, err := svc.UpdateWorkout(ctx, created.ID, models.WorkoutInput{Name: "Elbows"})
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if updated.Name != "Elbows" {
			t.Errorf("expected renamed workout, got %q", updated.Name)
		}

		if err := svc.DeleteWorkout(ctx, created.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := svc.GetWorkout(ctx, created.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("CreateWorkout Validates Locally", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		svc := loggedInWorkouts(t, fake)

		_, err := svc.CreateWorkout(ctx, models.WorkoutInput{Name: "No targets"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if fake.Calls("POST /api/workouts/") != 0 {
			t.Error("expected no request for invalid input")
		}
	})

	t.Run("UpdateWorkout Refuses Completed", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		id := fake.AddWorkout("alice", models.Workout{Name: "Done", TargetSessions: 1, TargetAttempts: 10})
		fake.AddSession(id, "2025-02-01", 5, 10)
		svc := loggedInWorkouts(t, fake)

		_, err := svc.UpdateWorkout(ctx, id, models.WorkoutInput{Name: "Renamed"})
		if !errors.Is(err, shared.ErrWorkoutCompleted) {
			t.Errorf("expected ErrWorkoutCompleted, got %v", err)
		}
		if fake.Calls("PATCH /api/workouts/{id}/") != 0 {
			t.Error("expected no PATCH for a completed workout")
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		id := fake.AddWorkout("alice", models.Workout{Name: "Threes", TargetSessions: 3, TargetAttempts: 25})
		svc := loggedInWorkouts(t, fake)

		t.Run("Add Defaults Attempts", func(t *testing.T) {
			sess, err := svc.AddSession(ctx, models.SessionInput{Workout: id, Date: "2025-03-01", Makes: intPtr(10)})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if sess.Attempts != 25 {
				t.Errorf("expected attempts to default to 25, got %d", sess.Attempts)
			}

			w, _ := svc.GetWorkout(ctx, id)
			if w.NumOfSessions != 1 || len(w.Sessions) != 1 {
				t.Errorf("expected workout to include the session, got %+v", w)
			}
		})

		t.Run("Missing Makes", func(t *testing.T) {
			_, err := svc.AddSession(ctx, models.SessionInput{Workout: id, Date: "2025-03-02"})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})

		t.Run("Server Rejects Makes Above Attempts", func(t *testing.T) {
			_, err := svc.AddSession(ctx, models.SessionInput{Workout: id, Date: "2025-03-02", Makes: intPtr(40)})
			if !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})

		t.Run("Edit And Delete", func(t *testing.T) {
			sess, err := svc.AddSession(ctx, models.SessionInput{Workout: id, Date: "2025-03-03", Makes: intPtr(5), Attempts: intPtr(10)})
			if err != nil {
				t.Fatalf("add failed: %v", err)
			}

			edited, err := svc.UpdateSession(ctx, sess.ID, models.SessionInput{Makes: intPtr(8)})
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
			if edited.Makes != 8 {
				t.Errorf("expected makes 8, got %d", edited.Makes)
			}

			got, err := svc.GetSession(ctx, sess.ID)
			if err != nil || got.Workout.ID != id {
				t.Fatalf("unexpected session %+v, err %v", got, err)
			}

			if err := svc.DeleteSession(ctx, sess.ID); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if _, err := svc.GetSession(ctx, sess.ID); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("StatsOverview", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		id := fake.AddWorkout("alice", models.Workout{Name: "Threes", TargetSessions: 1, TargetAttempts: 10, GoalPercentage: 50})
		fake.AddSession(id, "2025-04-01", 6, 10)
		svc := loggedInWorkouts(t, fake)

		stats, err := svc.StatsOverview(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if stats.TotalWorkouts != 1 || stats.CompletedWorkouts != 1 || stats.SuccessfulWorkouts != 1 {
			t.Errorf("unexpected counts %+v", stats)
		}
		if stats.BestWorkoutName == nil || *stats.BestWorkoutName != "Threes" {
			t.Errorf("expected best workout Threes, got %v", stats.BestWorkoutName)
		}
		if len(stats.ProgressOverTime) != 1 || stats.ProgressOverTime[0].AvgSuccessRate != 60 {
			t.Errorf("unexpected progress %+v", stats.ProgressOverTime)
		}
	})

	t.Run("Retries After Expired Access Token", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		api, auth := newFakeClient(t, fake)
		authSvc := NewAuthService(api)
		token, err := authSvc.Login(ctx, "alice", "pw")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		auth.token = token
		fake.ExpireAccessTokens()

		refresher := refreshFunc(func(ctx context.Context) error {
			tok, err := authSvc.Refresh(ctx)
			auth.token = tok
			return err
		})
		svc := NewWorkoutService(api.WithRefresher(refresher))

		if _, err := svc.ListWorkouts(ctx, ""); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if fake.Calls("POST /api/token/refresh/") != 1 {
			t.Errorf("expected 1 refresh, got %d", fake.Calls("POST /api/token/refresh/"))
		}
	})
}

type refreshFunc func(ctx context.Context) error

func (f refreshFunc) Refresh(ctx context.Context) error { return f(ctx) }
