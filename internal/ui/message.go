package ui

import (
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/session"
	"github.com/desertthunder/shotlog/internal/tasks"
)

// sessionResolvedMsg arrives once the session manager finished its initial resolution.
type sessionResolvedMsg struct {
	snap session.Snapshot
}

// sessionChangedMsg carries a snapshot from the manager's subscription.
type sessionChangedMsg struct {
	snap session.Snapshot
}

type loginDoneMsg struct {
	err error
}

type logoutDoneMsg struct{}

type workoutsFetchedMsg struct {
	inProgress []models.Workout
	completed  []models.Workout
	err        error
}

type workoutFetchedMsg struct {
	workout *models.Workout
	err     error
}

type statsFetchedMsg struct {
	stats *models.StatsOverview
	err   error
}

type progressUpdateMsg tasks.ProgressUpdate

type exportCompleteMsg struct {
	result *tasks.BulkExportResult
	err    error
}
