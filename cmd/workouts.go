package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/desertthunder/shotlog/internal/formatter"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/desertthunder/shotlog/internal/tasks"
	"github.com/urfave/cli/v3"
)

func parseID(s, what string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: %s id", shared.ErrMissingArgument, what)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s id %q", shared.ErrInvalidArgument, what, s)
	}
	return id, nil
}

func parseStatus(s string) (models.WorkoutStatus, error) {
	switch s {
	case "", "all":
		return "", nil
	case "in_progress", "in-progress", "active":
		return models.StatusInProgress, nil
	case "completed", "done":
		return models.StatusCompleted, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, s)
}

// WorkoutsList prints both workout lists and refreshes the local cache.
func (r *Runner) WorkoutsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	status, err := parseStatus(cmd.String("status"))
	if err != nil {
		return err
	}

	if cmd.Bool("cached") {
		return r.listCached(format, status)
	}

	snap, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	var inProgress, completed []models.Workout
	switch status {
	case models.StatusInProgress:
		inProgress, err = r.workouts.ListWorkouts(ctx, status)
	case models.StatusCompleted:
		completed, err = r.workouts.ListWorkouts(ctx, status)
	default:
		inProgress, completed, err = r.workouts.ListAllWorkouts(ctx)
	}
	if err != nil {
		return err
	}

	r.cacheWorkouts(snap.User, status, append(append([]models.Workout{}, inProgress...), completed...))

	data, err := formatter.RenderWorkouts(format, inProgress, completed)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// cacheWorkouts replaces the owner's cache after a full listing and merges partial ones.
// Cache failures never fail the command.
func (r *Runner) cacheWorkouts(user *models.User, status models.WorkoutStatus, workouts []models.Workout) {
	if user == nil {
		return
	}

	if status == "" {
		if err := r.cache.ReplaceForOwner(user.Username, workouts); err != nil {
			r.logger.Warn("could not cache workouts", "err", err)
		}
		return
	}

	for _, w := range workouts {
		if err := r.cache.Save(user.Username, w); err != nil {
			r.logger.Warn("could not cache workout", "id", w.ID, "err", err)
		}
	}
}

func (r *Runner) listCached(format formatter.Format, status models.WorkoutStatus) error {
	criteria := map[string]any{}
	if status != "" {
		criteria["completed"] = status == models.StatusCompleted
	}

	cached, err := r.cache.List(criteria)
	if err != nil {
		return err
	}

	var inProgress, completed []models.Workout
	for _, cw := range cached {
		w := cw.Workout()
		if w.Completed() {
			completed = append(completed, w)
		} else {
			inProgress = append(inProgress, w)
		}
	}

	if len(cached) > 0 {
		r.logger.Info("listing cached workouts", "count", len(cached), "fetched", cached[0].UpdatedAt())
	}

	data, err := formatter.RenderWorkouts(format, inProgress, completed)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// WorkoutsShow prints one workout with its sessions.
func (r *Runner) WorkoutsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "workout")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	snap, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	w, err := r.workouts.GetWorkout(ctx, id)
	if err != nil {
		return err
	}
	if snap.User != nil {
		if err := r.cache.Save(snap.User.Username, *w); err != nil {
			r.logger.Warn("could not cache workout", "id", w.ID, "err", err)
		}
	}

	data, err := formatter.RenderWorkout(format, w)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// WorkoutsCreate creates a workout from flags.
func (r *Runner) WorkoutsCreate(ctx context.Context, cmd *cli.Command) error {
	goal := float64(cmd.Float("goal"))
	attempts := int(cmd.Int("attempts"))
	sessions := int(cmd.Int("sessions"))

	in := models.WorkoutInput{
		Name:           cmd.String("name"),
		GoalPercentage: &goal,
		TargetAttempts: &attempts,
		TargetSessions: &sessions,
	}
	if cmd.IsSet("description") {
		desc := cmd.String("description")
		in.Description = &desc
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	w, err := r.workouts.CreateWorkout(ctx, in)
	if err != nil {
		return err
	}

	r.logger.Info("created workout", "id", w.ID)
	return r.writePlain("✓ Created workout #%d %s\n", w.ID, formatter.WorkoutLine(*w))
}

// WorkoutsEdit patches the fields given on the command line.
func (r *Runner) WorkoutsEdit(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "workout")
	if err != nil {
		return err
	}

	in := models.WorkoutInput{}
	changed := false
	if cmd.IsSet("name") {
		in.Name, changed = cmd.String("name"), true
	}
	if cmd.IsSet("description") {
		desc := cmd.String("description")
		in.Description, changed = &desc, true
	}
	if cmd.IsSet("goal") {
		goal := float64(cmd.Float("goal"))
		in.GoalPercentage, changed = &goal, true
	}
	if cmd.IsSet("attempts") {
		attempts := int(cmd.Int("attempts"))
		in.TargetAttempts, changed = &attempts, true
	}
	if cmd.IsSet("sessions") {
		sessions := int(cmd.Int("sessions"))
		in.TargetSessions, changed = &sessions, true
	}
	if !changed {
		return fmt.Errorf("%w: nothing to change", shared.ErrMissingArgument)
	}

	snap, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	w, err := r.workouts.UpdateWorkout(ctx, id, in)
	if err != nil {
		return err
	}
	if snap.User != nil {
		if err := r.cache.Save(snap.User.Username, *w); err != nil {
			r.logger.Warn("could not cache workout", "id", w.ID, "err", err)
		}
	}

	return r.writePlain("✓ Updated workout #%d %s\n", w.ID, formatter.WorkoutLine(*w))
}

// WorkoutsDelete deletes a workout after confirmation.
func (r *Runner) WorkoutsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "workout")
	if err != nil {
		return err
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		ok, err := r.confirm(fmt.Sprintf("Delete workout #%d and all of its sessions?", id))
		if err != nil {
			return err
		}
		if !ok {
			return r.writePlain("Aborted\n")
		}
	}

	if err := r.workouts.DeleteWorkout(ctx, id); err != nil {
		return err
	}
	if err := r.cache.DeleteByRemoteID(id); err != nil {
		r.logger.Debug("workout was not cached", "id", id, "err", err)
	}

	return r.writePlain("✓ Deleted workout #%d\n", id)
}

// WorkoutsExport writes workouts to files through the export engine's worker pool.
func (r *Runner) WorkoutsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	var ids []int64
	for _, arg := range cmd.Args().Slice() {
		id, err := parseID(arg, "workout")
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 && !cmd.Bool("all") {
		return fmt.Errorf("%w: pass workout ids or --all", shared.ErrMissingArgument)
	}

	snap, err := r.requireSession(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("all") {
		collection, err := r.engine.Collect(ctx, nil)
		if err != nil {
			return err
		}
		ids = collection.IDs()
		if len(ids) == 0 {
			return r.writePlain("No workouts to export\n")
		}
	}

	opts := tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("dir"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  float64(cmd.Float("rate")),
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if update.Total > 0 {
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
			} else {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	run := r.startExportRun(snap.User, string(format), opts.OutputDir, len(ids))

	result, err := r.engine.BulkExport(ctx, progress, ids, opts)
	close(progress)
	wg.Wait()

	r.finishExportRun(run, result, err)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Exported %d/%d workouts to %s", result.SuccessfulExports, result.TotalWorkouts, result.OutputDirectory)
	for _, res := range result.Results {
		if !res.Success {
			r.writePlain("✗ #%d %s: %v\n", res.WorkoutID, res.WorkoutName, res.Error)
		}
	}
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}

	if result.SuccessfulExports == 0 && result.FailedExports > 0 {
		return fmt.Errorf("%w: every export failed", shared.ErrAPIRequest)
	}
	return nil
}

// startExportRun records a running export in the history. History failures never fail the export.
func (r *Runner) startExportRun(user *models.User, format, dir string, total int) *models.ExportRun {
	if user == nil {
		return nil
	}

	run := models.NewExportRun(user.Username, format, dir, total)
	if err := r.exports.Create(run); err != nil {
		r.logger.Warn("could not record export", "err", err)
		return nil
	}
	return run
}

func (r *Runner) finishExportRun(run *models.ExportRun, result *tasks.BulkExportResult, err error) {
	if run == nil {
		return
	}

	if result != nil {
		run.Finish(result.SuccessfulExports, result.FailedExports, err)
		run.SetResult(result.OutputDirectory, result.ManifestPath, run.ErrorMessage())
	} else {
		run.Finish(0, 0, err)
	}

	if err := r.exports.Update(run); err != nil {
		r.logger.Warn("could not record export result", "sequence", run.Sequence(), "err", err)
	}
}

// WorkoutsExports lists the local export history, newest first.
func (r *Runner) WorkoutsExports(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if cmd.IsSet("status") {
		criteria["status"] = cmd.String("status")
	}

	runs, err := r.exports.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type entry struct {
			Sequence  int        `json:"sequence"`
			Owner     string     `json:"owner"`
			Format    string     `json:"format"`
			Status    string     `json:"status"`
			Total     int        `json:"total"`
			Succeeded int        `json:"succeeded"`
			Failed    int        `json:"failed"`
			Directory string     `json:"directory"`
			Manifest  string     `json:"manifest,omitempty"`
			Error     string     `json:"error,omitempty"`
			StartedAt time.Time  `json:"started_at"`
			Completed *time.Time `json:"completed_at,omitempty"`
		}
		entries := make([]entry, 0, len(runs))
		for _, run := range runs {
			entries = append(entries, entry{
				Sequence:  run.Sequence(),
				Owner:     run.Owner(),
				Format:    run.Format(),
				Status:    string(run.Status()),
				Total:     run.Total(),
				Succeeded: run.Succeeded(),
				Failed:    run.Failed(),
				Directory: run.OutputDir(),
				Manifest:  run.ManifestPath(),
				Error:     run.ErrorMessage(),
				StartedAt: run.StartedAt(),
				Completed: run.CompletedAt(),
			})
		}
		return r.writeJSON(entries, true)
	}

	if len(runs) == 0 {
		return r.writePlain("No exports yet\n")
	}

	r.writePlainHeader("Exports")
	for _, run := range runs {
		r.writePlain("#%-3d %s  %-9s %d/%d %-4s %s\n",
			run.Sequence(), run.StartedAt().Local().Format("2006-01-02 15:04"), run.Status(),
			run.Succeeded(), run.Total(), run.Format(), run.OutputDir())
		if msg := run.ErrorMessage(); msg != "" {
			r.writePlain("     %s\n", msg)
		}
	}
	return nil
}

// Stats prints the stats overview.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	stats, err := r.workouts.StatsOverview(ctx)
	if err != nil {
		return err
	}

	data, err := formatter.RenderStats(format, stats)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}
