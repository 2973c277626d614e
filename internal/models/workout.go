package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is the minimal authenticated identity returned by me/.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Position is a player's listed position at registration.
type Position string

const (
	PointGuard    Position = "PG"
	ShootingGuard Position = "SG"
	SmallForward  Position = "SF"
	PowerForward  Position = "PF"
	Center        Position = "C"
)

// Valid reports whether p is one of the five listed positions.
func (p Position) Valid() bool {
	switch p {
	case PointGuard, ShootingGuard, SmallForward, PowerForward, Center:
		return true
	}
	return false
}

// Registration is the register/ request body.
type Registration struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Position Position `json:"position"`
	HeightCM *int     `json:"height_cm"`
}

// Validate checks required registration fields.
func (r Registration) Validate() error {
	if r.Username == "" || r.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	if !r.Position.Valid() {
		return fmt.Errorf("unknown position %q", r.Position)
	}
	if r.HeightCM != nil && (*r.HeightCM <= 0 || *r.HeightCM > 300) {
		return fmt.Errorf("height must be between 1 and 300 cm")
	}
	return nil
}

// Workout is a shooting goal: a number of sessions, attempts per session and a target percentage.
type Workout struct {
	ID                int64     `json:"id" yaml:"id"`
	Name              string    `json:"name" yaml:"name"`
	Description       string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt         string    `json:"created_at" yaml:"created_at"`
	TargetAttempts    int       `json:"target_attempts" yaml:"target_attempts"`
	TargetSessions    int       `json:"target_sessions" yaml:"target_sessions"`
	TotalMakes        int       `json:"total_makes" yaml:"total_makes"`
	GoalPercentage    float64   `json:"goal_percentage" yaml:"goal_percentage"`
	TotalAttempts     int       `json:"total_attempts" yaml:"total_attempts"`
	NumOfSessions     int       `json:"num_of_sessions" yaml:"num_of_sessions"`
	AveragePercentage float64   `json:"average_percentage" yaml:"average_percentage"`
	IsSuccessful      bool      `json:"is_successful" yaml:"is_successful"`
	Sessions          []Session `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

// Completed reports whether every target session has been logged. Completed workouts are read-only.
func (w Workout) Completed() bool {
	return w.TargetSessions > 0 && w.NumOfSessions >= w.TargetSessions
}

// Progress returns the fraction (0-1) of target sessions logged.
func (w Workout) Progress() float64 {
	if w.TargetSessions <= 0 {
		return 0
	}
	p := float64(w.NumOfSessions) / float64(w.TargetSessions)
	if p > 1 {
		return 1
	}
	return p
}

// WorkoutInput is the create/edit body for workouts/.
type WorkoutInput struct {
	Name           string   `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	GoalPercentage *float64 `json:"goal_percentage,omitempty"`
	TargetAttempts *int     `json:"target_attempts,omitempty"`
	TargetSessions *int     `json:"target_sessions,omitempty"`
}

// ValidateCreate checks fields required when creating a workout.
func (in WorkoutInput) ValidateCreate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.TargetAttempts == nil || *in.TargetAttempts <= 0 {
		return fmt.Errorf("target attempts must be positive")
	}
	if in.TargetSessions == nil || *in.TargetSessions <= 0 {
		return fmt.Errorf("target sessions must be positive")
	}
	return in.validateGoal()
}

// ValidateUpdate checks the fields present in a partial update.
func (in WorkoutInput) ValidateUpdate() error {
	if in.TargetAttempts != nil && *in.TargetAttempts <= 0 {
		return fmt.Errorf("target attempts must be positive")
	}
	if in.TargetSessions != nil && *in.TargetSessions <= 0 {
		return fmt.Errorf("target sessions must be positive")
	}
	return in.validateGoal()
}

func (in WorkoutInput) validateGoal() error {
	if in.GoalPercentage != nil && (*in.GoalPercentage < 0 || *in.GoalPercentage > 100) {
		return fmt.Errorf("goal percentage must be between 0 and 100")
	}
	return nil
}

// WorkoutRef is a session's parent workout, serialized either as a bare id or as a nested object.
type WorkoutRef struct {
	ID      int64
	Workout *Workout
}

// UnmarshalJSON accepts `12` or `{"id": 12, ...}`.
func (r *WorkoutRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '{' {
		var w Workout
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		r.ID, r.Workout = w.ID, &w
		return nil
	}

	return json.Unmarshal(data, &r.ID)
}

// MarshalJSON always writes the bare id.
func (r WorkoutRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

// MarshalYAML always writes the bare id.
func (r WorkoutRef) MarshalYAML() (any, error) {
	return r.ID, nil
}

// Session is one logged practice session.
type Session struct {
	ID          int64      `json:"id" yaml:"id"`
	Date        string     `json:"date" yaml:"date"`
	Attempts    int        `json:"attempts" yaml:"attempts"`
	Makes       int        `json:"makes" yaml:"makes"`
	SuccessRate float64    `json:"success_rate" yaml:"success_rate"`
	Workout     WorkoutRef `json:"workout" yaml:"workout"`
}

// SessionInput is the create/edit body for sessions/.
type SessionInput struct {
	Workout  int64  `json:"workout,omitempty"`
	Date     string `json:"date,omitempty"`
	Attempts *int   `json:"attempts,omitempty"`
	Makes    *int   `json:"makes,omitempty"`
}

// Validate rejects negative counts and makes above attempts.
func (in SessionInput) Validate() error {
	if in.Makes != nil && *in.Makes < 0 {
		return fmt.Errorf("makes must not be negative")
	}
	if in.Attempts != nil && *in.Attempts < 0 {
		return fmt.Errorf("attempts must not be negative")
	}
	if in.Makes != nil && in.Attempts != nil && *in.Makes > *in.Attempts {
		return fmt.Errorf("makes cannot exceed attempts")
	}
	return nil
}

// ProgressPoint is one day of the stats time series.
type ProgressPoint struct {
	Date           string  `json:"date" yaml:"date"`
	AvgSuccessRate float64 `json:"avg_success_rate" yaml:"avg_success_rate"`
}

// StatsOverview is the stats/overview/ payload.
type StatsOverview struct {
	TotalWorkouts          int             `json:"total_workouts" yaml:"total_workouts"`
	CompletedWorkouts      int             `json:"completed_workouts" yaml:"completed_workouts"`
	InProgressWorkouts     int             `json:"in_progress_workouts" yaml:"in_progress_workouts"`
	SuccessfulWorkouts     int             `json:"successful_workouts" yaml:"successful_workouts"`
	FailedWorkouts         int             `json:"failed_workouts" yaml:"failed_workouts"`
	CompletedSuccessRate   float64         `json:"completed_success_rate" yaml:"completed_success_rate"`
	TotalSessions          int             `json:"total_sessions" yaml:"total_sessions"`
	OverallSuccessRate     float64         `json:"overall_success_rate" yaml:"overall_success_rate"`
	BestWorkoutName        *string         `json:"best_workout_name" yaml:"best_workout_name"`
	BestWorkoutSuccessRate float64         `json:"best_workout_success_rate" yaml:"best_workout_success_rate"`
	ProgressOverTime       []ProgressPoint `json:"progress_over_time" yaml:"progress_over_time"`
}

// WorkoutStatus filters the workouts/ list.
type WorkoutStatus string

const (
	StatusInProgress WorkoutStatus = "in_progress"
	StatusCompleted  WorkoutStatus = "completed"
)
