package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/shotlog/internal/formatter"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"github.com/urfave/cli/v3"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (string, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("%w: date %q is not YYYY-MM-DD", shared.ErrInvalidArgument, s)
	}
	return s, nil
}

// SessionsAdd logs a session. Attempts default to the workout's target.
func (r *Runner) SessionsAdd(ctx context.Context, cmd *cli.Command) error {
	workoutID := int64(cmd.Int("workout"))
	if workoutID <= 0 {
		return fmt.Errorf("%w: workout id %d", shared.ErrInvalidArgument, workoutID)
	}

	date := time.Now().Format(dateLayout)
	if cmd.IsSet("date") {
		var err error
		if date, err = parseDate(cmd.String("date")); err != nil {
			return err
		}
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	w, err := r.workouts.GetWorkout(ctx, workoutID)
	if err != nil {
		return err
	}
	if w.Completed() {
		return fmt.Errorf("%w: %q has %d/%d sessions", shared.ErrWorkoutCompleted, w.Name, w.NumOfSessions, w.TargetSessions)
	}

	makes := int(cmd.Int("makes"))
	attempts := w.TargetAttempts
	if cmd.IsSet("attempts") {
		attempts = int(cmd.Int("attempts"))
	}

	sess, err := r.workouts.AddSession(ctx, models.SessionInput{
		Workout:  workoutID,
		Date:     date,
		Makes:    &makes,
		Attempts: &attempts,
	})
	if err != nil {
		return err
	}

	r.logger.Info("logged session", "id", sess.ID, "workout", workoutID)
	return r.writePlain("✓ Logged session #%d for %s: %d/%d (%s)\n",
		sess.ID, w.Name, sess.Makes, sess.Attempts, shared.FormatPercent(sess.SuccessRate))
}

// SessionsShow prints one session.
func (r *Runner) SessionsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "session")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	sess, err := r.workouts.GetSession(ctx, id)
	if err != nil {
		return err
	}

	data, err := formatter.RenderSession(format, sess)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// SessionsEdit patches the fields given on the command line. Server rejections
// carry the API's detail message.
func (r *Runner) SessionsEdit(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "session")
	if err != nil {
		return err
	}

	in := models.SessionInput{}
	changed := false
	if cmd.IsSet("date") {
		if in.Date, err = parseDate(cmd.String("date")); err != nil {
			return err
		}
		changed = true
	}
	if cmd.IsSet("makes") {
		makes := int(cmd.Int("makes"))
		in.Makes, changed = &makes, true
	}
	if cmd.IsSet("attempts") {
		attempts := int(cmd.Int("attempts"))
		in.Attempts, changed = &attempts, true
	}
	if !changed {
		return fmt.Errorf("%w: nothing to change", shared.ErrMissingArgument)
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	sess, err := r.workouts.UpdateSession(ctx, id, in)
	if err != nil {
		return err
	}

	return r.writePlain("✓ Updated session #%d: %s %d/%d (%s)\n",
		sess.ID, sess.Date, sess.Makes, sess.Attempts, shared.FormatPercent(sess.SuccessRate))
}

// SessionsDelete deletes a session after confirmation.
func (r *Runner) SessionsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd.StringArg("id"), "session")
	if err != nil {
		return err
	}

	if _, err := r.requireSession(ctx); err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		ok, err := r.confirm(fmt.Sprintf("Delete session #%d?", id))
		if err != nil {
			return err
		}
		if !ok {
			return r.writePlain("Aborted\n")
		}
	}

	if err := r.workouts.DeleteSession(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted session #%d\n", id)
}
