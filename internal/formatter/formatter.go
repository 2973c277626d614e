// package formatter renders workouts, sessions and stats to text, Markdown, CSV, JSON and YAML
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format is an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatText, FormatMarkdown, FormatCSV, FormatJSON, FormatYAML}

// ParseFormat accepts a format name or a common alias (md, txt, yml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension for f, without a dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

// ToJSON encodes v as indented JSON with a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ToYAML encodes v as YAML.
func ToYAML(v any) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return data, nil
}

func goalResult(w models.Workout) string {
	if w.IsSuccessful {
		return "Goal Achieved"
	}
	return "Goal Not Achieved"
}

// WorkoutLine is the one-line summary used by list views.
func WorkoutLine(w models.Workout) string {
	if w.Completed() {
		return fmt.Sprintf("%s: %d/%d sessions, final %s (%s)",
			w.Name, w.NumOfSessions, w.TargetSessions, shared.FormatPercent(w.AveragePercentage), goalResult(w))
	}
	return fmt.Sprintf("%s: %d/%d sessions, current %s, goal %s",
		w.Name, w.NumOfSessions, w.TargetSessions, shared.FormatPercent(w.AveragePercentage), shared.FormatPercent(w.GoalPercentage))
}

// WorkoutsToText renders both workout lists as plain text sections.
func WorkoutsToText(inProgress, completed []models.Workout) []byte {
	var buf bytes.Buffer

	section := func(title string, ws []models.Workout) {
		fmt.Fprintf(&buf, "%s (%d)\n", title, len(ws))
		if len(ws) == 0 {
			buf.WriteString("  none\n")
		}
		for _, w := range ws {
			fmt.Fprintf(&buf, "  #%d %s\n", w.ID, WorkoutLine(w))
		}
	}

	section("In progress", inProgress)
	buf.WriteString("\n")
	section("Completed", completed)
	return buf.Bytes()
}

// WorkoutsToMarkdown renders both workout lists as Markdown tables.
func WorkoutsToMarkdown(inProgress, completed []models.Workout) []byte {
	var buf bytes.Buffer

	table := func(title string, ws []models.Workout) {
		fmt.Fprintf(&buf, "## %s\n\n", title)
		if len(ws) == 0 {
			buf.WriteString("_None._\n\n")
			return
		}
		buf.WriteString("| ID | Name | Sessions | Average | Goal | Result |\n")
		buf.WriteString("|---:|---|---:|---:|---:|---|\n")
		for _, w := range ws {
			result := "-"
			if w.Completed() {
				result = goalResult(w)
			}
			fmt.Fprintf(&buf, "| %d | %s | %d/%d | %s | %s | %s |\n",
				w.ID, escapeCell(w.Name), w.NumOfSessions, w.TargetSessions,
				shared.FormatPercent(w.AveragePercentage), shared.FormatPercent(w.GoalPercentage), result)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("# Workouts\n\n")
	table("In progress", inProgress)
	table("Completed", completed)
	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

var workoutHeaders = []string{
	"ID", "Name", "Status", "Sessions", "Target Sessions", "Target Attempts",
	"Total Makes", "Total Attempts", "Average %", "Goal %", "Successful", "Created At",
}

// WorkoutsToCSV writes one row per workout.
func WorkoutsToCSV(ws []models.Workout) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(workoutHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, w := range ws {
		record := []string{
			strconv.FormatInt(w.ID, 10),
			w.Name,
			shared.StatusString(w.Completed()),
			strconv.Itoa(w.NumOfSessions),
			strconv.Itoa(w.TargetSessions),
			strconv.Itoa(w.TargetAttempts),
			strconv.Itoa(w.TotalMakes),
			strconv.Itoa(w.TotalAttempts),
			strconv.FormatFloat(w.AveragePercentage, 'f', 1, 64),
			strconv.FormatFloat(w.GoalPercentage, 'f', 1, 64),
			strconv.FormatBool(w.IsSuccessful),
			w.CreatedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// SessionsToCSV writes one row per session.
func SessionsToCSV(sessions []models.Session) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Workout", "Date", "Makes", "Attempts", "Success %"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range sessions {
		record := []string{
			strconv.FormatInt(s.ID, 10),
			strconv.FormatInt(s.Workout.ID, 10),
			s.Date,
			strconv.Itoa(s.Makes),
			strconv.Itoa(s.Attempts),
			strconv.FormatFloat(s.SuccessRate, 'f', 1, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// WorkoutToText renders a workout with its sessions.
func WorkoutToText(w *models.Workout) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Workout #%d: %s\n", w.ID, w.Name)
	if w.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", w.Description)
	}
	fmt.Fprintf(&buf, "Status: %s\n", shared.StatusString(w.Completed()))
	fmt.Fprintf(&buf, "Sessions: %d/%d\n", w.NumOfSessions, w.TargetSessions)
	fmt.Fprintf(&buf, "Attempts per session: %d\n", w.TargetAttempts)
	fmt.Fprintf(&buf, "Makes: %d/%d\n", w.TotalMakes, w.TotalAttempts)
	fmt.Fprintf(&buf, "Average: %s (goal %s)\n", shared.FormatPercent(w.AveragePercentage), shared.FormatPercent(w.GoalPercentage))
	if w.Completed() {
		fmt.Fprintf(&buf, "Result: %s\n", goalResult(*w))
	}

	buf.WriteString("\n")
	if len(w.Sessions) == 0 {
		buf.WriteString("No sessions logged yet.\n")
		return buf.Bytes()
	}
	for i, s := range w.Sessions {
		fmt.Fprintf(&buf, "%d. %s  %d/%d  %s  (session #%d)\n", i+1, s.Date, s.Makes, s.Attempts, shared.FormatPercent(s.SuccessRate), s.ID)
	}
	return buf.Bytes()
}

// WorkoutToMarkdown renders a workout with a sessions table.
func WorkoutToMarkdown(w *models.Workout) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", w.Name)
	if w.Description != "" {
		fmt.Fprintf(&buf, "%s\n\n", w.Description)
	}
	fmt.Fprintf(&buf, "**Status**: %s\n", shared.StatusString(w.Completed()))
	fmt.Fprintf(&buf, "**Sessions**: %d/%d\n", w.NumOfSessions, w.TargetSessions)
	fmt.Fprintf(&buf, "**Average**: %s\n", shared.FormatPercent(w.AveragePercentage))
	fmt.Fprintf(&buf, "**Goal**: %s\n", shared.FormatPercent(w.GoalPercentage))
	if w.Completed() {
		fmt.Fprintf(&buf, "**Result**: %s\n", goalResult(*w))
	}

	buf.WriteString("\n## Sessions\n\n")
	if len(w.Sessions) == 0 {
		buf.WriteString("_No sessions logged yet._\n")
		return buf.Bytes()
	}
	buf.WriteString("| Date | Makes | Attempts | Success |\n|---|---:|---:|---:|\n")
	for _, s := range w.Sessions {
		fmt.Fprintf(&buf, "| %s | %d | %d | %s |\n", s.Date, s.Makes, s.Attempts, shared.FormatPercent(s.SuccessRate))
	}
	return buf.Bytes()
}

// StatsToText renders the stats overview.
func StatsToText(s *models.StatsOverview) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Workouts: %d total, %d in progress, %d completed\n", s.TotalWorkouts, s.InProgressWorkouts, s.CompletedWorkouts)
	fmt.Fprintf(&buf, "Completed: %d successful, %d failed (%s success)\n", s.SuccessfulWorkouts, s.FailedWorkouts, shared.FormatPercent(s.CompletedSuccessRate))
	fmt.Fprintf(&buf, "Sessions: %d (overall %s)\n", s.TotalSessions, shared.FormatPercent(s.OverallSuccessRate))
	if s.BestWorkoutName != nil {
		fmt.Fprintf(&buf, "Best workout: %s (%s)\n", *s.BestWorkoutName, shared.FormatPercent(s.BestWorkoutSuccessRate))
	}

	if len(s.ProgressOverTime) > 0 {
		buf.WriteString("\nProgress over time\n")
		for _, p := range s.ProgressOverTime {
			fmt.Fprintf(&buf, "  %s  %6s  %s\n", p.Date, shared.FormatPercent(p.AvgSuccessRate), bar(p.AvgSuccessRate, 20))
		}
	}
	return buf.Bytes()
}

// bar draws a 0-100 value as a fixed-width block bar.
func bar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(width, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// StatsToMarkdown renders the stats overview as Markdown.
func StatsToMarkdown(s *models.StatsOverview) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Stats\n\n")
	buf.WriteString("| Metric | Value |\n|---|---:|\n")
	rows := [][2]string{
		{"Total workouts", strconv.Itoa(s.TotalWorkouts)},
		{"In progress", strconv.Itoa(s.InProgressWorkouts)},
		{"Completed", strconv.Itoa(s.CompletedWorkouts)},
		{"Successful", strconv.Itoa(s.SuccessfulWorkouts)},
		{"Failed", strconv.Itoa(s.FailedWorkouts)},
		{"Completed success rate", shared.FormatPercent(s.CompletedSuccessRate)},
		{"Total sessions", strconv.Itoa(s.TotalSessions)},
		{"Overall success rate", shared.FormatPercent(s.OverallSuccessRate)},
	}
	if s.BestWorkoutName != nil {
		rows = append(rows, [2]string{"Best workout", fmt.Sprintf("%s (%s)", escapeCell(*s.BestWorkoutName), shared.FormatPercent(s.BestWorkoutSuccessRate))})
	}
	for _, r := range rows {
		fmt.Fprintf(&buf, "| %s | %s |\n", r[0], r[1])
	}

	if len(s.ProgressOverTime) > 0 {
		buf.WriteString("\n## Progress over time\n\n| Date | Avg success |\n|---|---:|\n")
		for _, p := range s.ProgressOverTime {
			fmt.Fprintf(&buf, "| %s | %s |\n", p.Date, shared.FormatPercent(p.AvgSuccessRate))
		}
	}
	return buf.Bytes()
}

// StatsToCSV writes the progress time series.
func StatsToCSV(s *models.StatsOverview) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Date", "Avg Success %"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range s.ProgressOverTime {
		if err := writer.Write([]string{p.Date, strconv.FormatFloat(p.AvgSuccessRate, 'f', 1, 64)}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

type workoutLists struct {
	InProgress []models.Workout `json:"in_progress" yaml:"in_progress"`
	Completed  []models.Workout `json:"completed" yaml:"completed"`
}

// RenderWorkouts renders both lists in format f.
func RenderWorkouts(f Format, inProgress, completed []models.Workout) ([]byte, error) {
	switch f {
	case FormatText:
		return WorkoutsToText(inProgress, completed), nil
	case FormatMarkdown:
		return WorkoutsToMarkdown(inProgress, completed), nil
	case FormatCSV:
		return WorkoutsToCSV(append(append([]models.Workout{}, inProgress...), completed...))
	case FormatJSON:
		return ToJSON(workoutLists{InProgress: nonNil(inProgress), Completed: nonNil(completed)})
	case FormatYAML:
		return ToYAML(workoutLists{InProgress: nonNil(inProgress), Completed: nonNil(completed)})
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

func nonNil(ws []models.Workout) []models.Workout {
	if ws == nil {
		return []models.Workout{}
	}
	return ws
}

// RenderWorkout renders a single workout in format f. CSV lists its sessions.
func RenderWorkout(f Format, w *models.Workout) ([]byte, error) {
	switch f {
	case FormatText:
		return WorkoutToText(w), nil
	case FormatMarkdown:
		return WorkoutToMarkdown(w), nil
	case FormatCSV:
		return SessionsToCSV(w.Sessions)
	case FormatJSON:
		return ToJSON(w)
	case FormatYAML:
		return ToYAML(w)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// SessionToText renders one session as a short block.
func SessionToText(s *models.Session) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Session #%d (workout #%d)\n", s.ID, s.Workout.ID)
	fmt.Fprintf(&buf, "Date: %s\n", s.Date)
	fmt.Fprintf(&buf, "Makes: %d/%d\n", s.Makes, s.Attempts)
	fmt.Fprintf(&buf, "Success: %s\n", shared.FormatPercent(s.SuccessRate))
	return buf.Bytes()
}

// RenderSession renders a single session in format f. Markdown falls back to text.
func RenderSession(f Format, s *models.Session) ([]byte, error) {
	switch f {
	case FormatText, FormatMarkdown:
		return SessionToText(s), nil
	case FormatCSV:
		return SessionsToCSV([]models.Session{*s})
	case FormatJSON:
		return ToJSON(s)
	case FormatYAML:
		return ToYAML(s)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// RenderStats renders the stats overview in format f. CSV lists the time series.
func RenderStats(f Format, s *models.StatsOverview) ([]byte, error) {
	switch f {
	case FormatText:
		return StatsToText(s), nil
	case FormatMarkdown:
		return StatsToMarkdown(s), nil
	case FormatCSV:
		return StatsToCSV(s)
	case FormatJSON:
		return ToJSON(s)
	case FormatYAML:
		return ToYAML(s)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// ExportFilename is the default file name for a workout export: workout_{id}_{slug}.{ext}
func ExportFilename(w *models.Workout, f Format) string {
	return fmt.Sprintf("workout_%d_%s.%s", w.ID, slug(w.Name), f.Extension())
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}

// WriteWorkoutExport renders w into dir using [ExportFilename] and returns the written path.
func WriteWorkoutExport(w *models.Workout, f Format, dir string) (string, error) {
	data, err := RenderWorkout(f, w)
	if err != nil {
		return "", err
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, ExportFilename(w, f))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
