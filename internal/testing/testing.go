// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/shotlog/internal/models"
)

// MockWorkoutAPI is a canned-data test double for services.WorkoutAPI.
//
// Err, when set, is returned from every call. Calls counts invocations by method name.
type MockWorkoutAPI struct {
	mu sync.Mutex

	InProgress []models.Workout
	Completed  []models.Workout
	Sessions   map[int64]models.Session
	Stats      *models.StatsOverview
	Err        error
	Calls      map[string]int
}

func (m *MockWorkoutAPI) hit(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[name]++
	return m.Err
}

// CallCount returns how many times method name was invoked.
func (m *MockWorkoutAPI) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockWorkoutAPI) find(id int64) (*models.Workout, bool) {
	for _, list := range [][]models.Workout{m.InProgress, m.Completed} {
		for i := range list {
			if list[i].ID == id {
				w := list[i]
				return &w, true
			}
		}
	}
	return nil, false
}

func (m *MockWorkoutAPI) ListWorkouts(ctx context.Context, status models.WorkoutStatus) ([]models.Workout, error) {
	if err := m.hit("ListWorkouts"); err != nil {
		return nil, err
	}
	switch status {
	case models.StatusInProgress:
		return m.InProgress, nil
	case models.StatusCompleted:
		return m.Completed, nil
	default:
		return append(append([]models.Workout{}, m.InProgress...), m.Completed...), nil
	}
}

func (m *MockWorkoutAPI) ListAllWorkouts(ctx context.Context) ([]models.Workout, []models.Workout, error) {
	if err := m.hit("ListAllWorkouts"); err != nil {
		return nil, nil, err
	}
	return m.InProgress, m.Completed, nil
}

func (m *MockWorkoutAPI) GetWorkout(ctx context.Context, id int64) (*models.Workout, error) {
	if err := m.hit("GetWorkout"); err != nil {
		return nil, err
	}
	if w, ok := m.find(id); ok {
		return w, nil
	}
	return nil, errors.New("not found")
}

func (m *MockWorkoutAPI) CreateWorkout(ctx context.Context, in models.WorkoutInput) (*models.Workout, error) {
	if err := m.hit("CreateWorkout"); err != nil {
		return nil, err
	}
	return &models.Workout{ID: 1000, Name: in.Name}, nil
}

func (m *MockWorkoutAPI) UpdateWorkout(ctx context.Context, id int64, in models.WorkoutInput) (*models.Workout, error) {
	if err := m.hit("UpdateWorkout"); err != nil {
		return nil, err
	}
	return m.GetWorkout(ctx, id)
}

func (m *MockWorkoutAPI) DeleteWorkout(ctx context.Context, id int64) error {
	return m.hit("DeleteWorkout")
}

func (m *MockWorkoutAPI) AddSession(ctx context.Context, in models.SessionInput) (*models.Session, error) {
	if err := m.hit("AddSession"); err != nil {
		return nil, err
	}
	s := models.Session{ID: 2000, Date: in.Date, Workout: models.WorkoutRef{ID: in.Workout}}
	if in.Makes != nil {
		s.Makes = *in.Makes
	}
	if in.Attempts != nil {
		s.Attempts = *in.Attempts
	}
	return &s, nil
}

func (m *MockWorkoutAPI) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if err := m.hit("GetSession"); err != nil {
		return nil, err
	}
	if s, ok := m.Sessions[id]; ok {
		return &s, nil
	}
	return nil, errors.New("not found")
}

func (m *MockWorkoutAPI) UpdateSession(ctx context.Context, id int64, in models.SessionInput) (*models.Session, error) {
	if err := m.hit("UpdateSession"); err != nil {
		return nil, err
	}
	return m.GetSession(ctx, id)
}

func (m *MockWorkoutAPI) DeleteSession(ctx context.Context, id int64) error {
	return m.hit("DeleteSession")
}

func (m *MockWorkoutAPI) StatsOverview(ctx context.Context) (*models.StatsOverview, error) {
	if err := m.hit("StatsOverview"); err != nil {
		return nil, err
	}
	if m.Stats == nil {
		return &models.StatsOverview{}, nil
	}
	return m.Stats, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

// MustChdir changes into dir and restores the previous working directory on cleanup.
func MustChdir(t *testing.T, dir string) {
	t.Helper()
	prev := MustGetwd(t)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
