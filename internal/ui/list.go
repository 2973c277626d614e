package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

var _ list.Item = workoutItem{}

// workoutItem wraps [models.Workout] to implement [list.Item].
type workoutItem struct {
	workout models.Workout
}

func (i workoutItem) FilterValue() string { return i.workout.Name }
func (i workoutItem) Title() string {
	return fmt.Sprintf("#%d %s", i.workout.ID, i.workout.Name)
}
func (i workoutItem) Description() string {
	w := i.workout
	desc := fmt.Sprintf("%d/%d sessions • %s avg", w.NumOfSessions, w.TargetSessions, shared.FormatPercent(w.AveragePercentage))
	switch {
	case !w.Completed():
		desc = fmt.Sprintf("%s • goal %s", desc, shared.FormatPercent(w.GoalPercentage))
	case w.IsSuccessful:
		desc += " • ✓ goal achieved"
	default:
		desc += " • ✗ goal missed"
	}
	return desc
}

func workoutItems(inProgress, completed []models.Workout) []list.Item {
	items := make([]list.Item, 0, len(inProgress)+len(completed))
	for _, w := range inProgress {
		items = append(items, workoutItem{workout: w})
	}
	for _, w := range completed {
		items = append(items, workoutItem{workout: w})
	}
	return items
}
