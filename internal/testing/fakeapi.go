package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var fakeSigningKey = []byte("fake-api-signing-key")

type fakeUser struct {
	id       int64
	password string
}

// FakeAPI is an in-process stand-in for the workout REST API.
//
// It issues HS256 access tokens, keeps the refresh credential in an HTTP-only `refresh`
// cookie and stores workouts and sessions per user. Counters record every call.
type FakeAPI struct {
	Server *httptest.Server

	mu         sync.Mutex
	users      map[string]fakeUser
	access     map[string]string // access token -> username
	refresh    map[string]string // refresh token -> username
	workouts   map[int64]*models.Workout
	owners     map[int64]string
	sessions   map[int64]*models.Session
	nextID     int64
	calls      map[string]int
	requestIDs []string
	failures   map[string]int
	accessTTL  time.Duration
}

// NewFakeAPI starts a fake API server that is closed when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		users:     make(map[string]fakeUser),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		workouts:  make(map[int64]*models.Workout),
		owners:    make(map[int64]string),
		sessions:  make(map[int64]*models.Session),
		calls:     make(map[string]int),
		failures:  make(map[string]int),
		accessTTL: 5 * time.Minute,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", f.handleLogin)
	mux.HandleFunc("POST /api/token/refresh/", f.handleRefresh)
	mux.HandleFunc("POST /api/logout/", f.handleLogout)
	mux.HandleFunc("GET /api/me/", f.authed(f.handleMe))
	mux.HandleFunc("POST /api/register/", f.handleRegister)
	mux.HandleFunc("GET /api/workouts/", f.authed(f.handleListWorkouts))
	mux.HandleFunc("POST /api/workouts/", f.authed(f.handleCreateWorkout))
	mux.HandleFunc("GET /api/workouts/{id}/", f.authed(f.handleGetWorkout))
	mux.HandleFunc("PATCH /api/workouts/{id}/", f.authed(f.handleUpdateWorkout))
	mux.HandleFunc("DELETE /api/workouts/{id}/", f.authed(f.handleDeleteWorkout))
	mux.HandleFunc("POST /api/sessions/", f.authed(f.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}/", f.authed(f.handleGetSession))
	mux.HandleFunc("PATCH /api/sessions/{id}/", f.authed(f.handleUpdateSession))
	mux.HandleFunc("DELETE /api/sessions/{id}/", f.authed(f.handleDeleteSession))
	mux.HandleFunc("GET /api/stats/overview/", f.authed(f.handleStats))

	f.Server = httptest.NewServer(f.record(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the API base URL, ending in "/api/".
func (f *FakeAPI) URL() string {
	return f.Server.URL + "/api/"
}

// AddUser registers a user directly and returns its id.
func (f *FakeAPI) AddUser(username, password string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.users[username] = fakeUser{id: f.nextID, password: password}
	return f.nextID
}

// AddWorkout stores w for owner and returns its id. Derived fields are recomputed.
func (f *FakeAPI) AddWorkout(owner string, w models.Workout) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	w.ID = f.nextID
	if w.CreatedAt == "" {
		w.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	f.workouts[w.ID] = &w
	f.owners[w.ID] = owner
	f.recompute(w.ID)
	return w.ID
}

// AddSession logs a session against workoutID.
func (f *FakeAPI) AddSession(workoutID int64, date string, makes, attempts int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sessions[f.nextID] = &models.Session{
		ID:       f.nextID,
		Date:     date,
		Makes:    makes,
		Attempts: attempts,
		Workout:  models.WorkoutRef{ID: workoutID},
	}
	f.recompute(workoutID)
	return f.nextID
}

// IssueTokens returns a fresh access token and refresh cookie value for username.
func (f *FakeAPI) IssueTokens(username string) (access, refresh string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueAccess(username), f.issueRefresh(username)
}

// ExpireAccessTokens invalidates every outstanding access token.
func (f *FakeAPI) ExpireAccessTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.access)
}

// RevokeRefreshTokens invalidates every outstanding refresh cookie.
func (f *FakeAPI) RevokeRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.refresh)
}

// FailNext makes the next n calls to "METHOD path" answer 503.
func (f *FakeAPI) FailNext(key string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = n
}

// Calls returns how many times "METHOD path" was requested, e.g. "GET /api/me/".
func (f *FakeAPI) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// RequestIDs returns the X-Request-ID header of every request in arrival order.
func (f *FakeAPI) RequestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

// Workout returns a copy of a stored workout.
func (f *FakeAPI) Workout(id int64) (models.Workout, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workouts[id]
	if !ok {
		return models.Workout{}, false
	}
	return *w, true
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + routeKey(r.URL.Path)

		f.mu.Lock()
		f.calls[key]++
		f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-ID"))
		fail := f.failures[key] > 0
		if fail {
			f.failures[key]--
		}
		f.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Service temporarily unavailable."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey collapses numeric path segments so counters aggregate by route.
func routeKey(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func (f *FakeAPI) issueAccess(username string) string {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(f.accessTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(fakeSigningKey)
	if err != nil {
		panic(err)
	}
	f.access[signed] = username
	return signed
}

func (f *FakeAPI) issueRefresh(username string) string {
	tok := uuid.NewString()
	f.refresh[tok] = username
	return tok
}

func (f *FakeAPI) authed(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}

		f.mu.Lock()
		username, valid := f.access[raw]
		f.mu.Unlock()

		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		next(w, r, username)
	}
}

func (f *FakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[body.Username]
	if !ok || u.password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "refresh", Value: f.issueRefresh(body.Username), Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"access": f.issueAccess(body.Username)})
}

func (f *FakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("refresh")

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Refresh token not found."})
		return
	}
	username, ok := f.refresh[c.Value]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": f.issueAccess(username)})
}

func (f *FakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie("refresh"); err == nil {
		f.mu.Lock()
		delete(f.refresh, c.Value)
		f.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: "refresh", Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Logged out."})
}

func (f *FakeAPI) handleMe(w http.ResponseWriter, _ *http.Request, username string) {
	f.mu.Lock()
	u := f.users[username]
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, models.User{ID: u.id, Username: username})
}

func (f *FakeAPI) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, taken := f.users[reg.Username]; taken {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"A user with that username already exists."}})
		return
	}
	f.nextID++
	f.users[reg.Username] = fakeUser{id: f.nextID, password: reg.Password}
	writeJSON(w, http.StatusCreated, map[string]any{"id": f.nextID, "username": reg.Username})
}

func (f *FakeAPI) handleListWorkouts(w http.ResponseWriter, r *http.Request, username string) {
	status := r.URL.Query().Get("status")

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []models.Workout{}
	for id, wk := range f.workouts {
		if f.owners[id] != username {
			continue
		}
		switch {
		case status == string(models.StatusCompleted) && !wk.Completed():
			continue
		case status == string(models.StatusInProgress) && wk.Completed():
			continue
		}
		cp := *wk
		cp.Sessions = nil
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) handleCreateWorkout(w http.ResponseWriter, r *http.Request, username string) {
	var in models.WorkoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
		return
	}

	wk := models.Workout{Name: in.Name}
	applyWorkoutInput(&wk, in)

	id := f.AddWorkout(username, wk)
	created, _ := f.Workout(id)
	writeJSON(w, http.StatusCreated, created)
}

func applyWorkoutInput(wk *models.Workout, in models.WorkoutInput) {
	if in.Name != "" {
		wk.Name = in.Name
	}
	if in.Description != nil {
		wk.Description = *in.Description
	}
	if in.GoalPercentage != nil {
		wk.GoalPercentage = *in.GoalPercentage
	}
	if in.TargetAttempts != nil {
		wk.TargetAttempts = *in.TargetAttempts
	}
	if in.TargetSessions != nil {
		wk.TargetSessions = *in.TargetSessions
	}
}

func (f *FakeAPI) ownedWorkout(w http.ResponseWriter, r *http.Request, username string) (*models.Workout, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	wk, ok := f.workouts[id]
	if err != nil || !ok || f.owners[id] != username {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Workout matches the given query."})
		return nil, false
	}
	return wk, true
}

func (f *FakeAPI) handleGetWorkout(w http.ResponseWriter, r *http.Request, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wk, ok := f.ownedWorkout(w, r, username)
	if !ok {
		return
	}
	cp := *wk
	cp.Sessions = f.sessionsFor(wk.ID)
	writeJSON(w, http.StatusOK, cp)
}

func (f *FakeAPI) handleUpdateWorkout(w http.ResponseWriter, r *http.Request, username string) {
	var in models.WorkoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	wk, ok := f.ownedWorkout(w, r, username)
	if !ok {
		return
	}
	applyWorkoutInput(wk, in)
	f.recompute(wk.ID)
	writeJSON(w, http.StatusOK, *wk)
}

func (f *FakeAPI) handleDeleteWorkout(w http.ResponseWriter, r *http.Request, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	wk, ok := f.ownedWorkout(w, r, username)
	if !ok {
		return
	}
	for id, s := range f.sessions {
		if s.Workout.ID == wk.ID {
			delete(f.sessions, id)
		}
	}
	delete(f.workouts, wk.ID)
	delete(f.owners, wk.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) handleCreateSession(w http.ResponseWriter, r *http.Request, username string) {
	var in models.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	f.mu.Lock()
	wk, ok := f.workouts[in.Workout]
	owned := ok && f.owners[in.Workout] == username
	attempts := 0
	if owned {
		attempts = wk.TargetAttempts
	}
	f.mu.Unlock()

	if !owned {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"workout": {fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", in.Workout)}})
		return
	}
	if in.Makes == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"makes": {"This field is required."}})
		return
	}

	if in.Attempts != nil {
		attempts = *in.Attempts
	}
	if *in.Makes > attempts {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Makes cannot exceed attempts."}})
		return
	}

	id := f.AddSession(in.Workout, in.Date, *in.Makes, attempts)

	f.mu.Lock()
	cp := *f.sessions[id]
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, cp)
}

func (f *FakeAPI) ownedSession(w http.ResponseWriter, r *http.Request, username string) (*models.Session, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	s, ok := f.sessions[id]
	if err != nil || !ok || f.owners[s.Workout.ID] != username {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No Session matches the given query."})
		return nil, false
	}
	return s, true
}

func (f *FakeAPI) handleGetSession(w http.ResponseWriter, r *http.Request, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.ownedSession(w, r, username)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, *s)
}

func (f *FakeAPI) handleUpdateSession(w http.ResponseWriter, r *http.Request, username string) {
	var in models.SessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.ownedSession(w, r, username)
	if !ok {
		return
	}
	if in.Date != "" {
		s.Date = in.Date
	}
	if in.Makes != nil {
		s.Makes = *in.Makes
	}
	if in.Attempts != nil {
		s.Attempts = *in.Attempts
	}
	f.recompute(s.Workout.ID)
	writeJSON(w, http.StatusOK, *s)
}

func (f *FakeAPI) handleDeleteSession(w http.ResponseWriter, r *http.Request, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.ownedSession(w, r, username)
	if !ok {
		return
	}
	delete(f.sessions, s.ID)
	f.recompute(s.Workout.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeAPI) handleStats(w http.ResponseWriter, _ *http.Request, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stats models.StatsOverview
	var makes, attempts, completedOK int
	var bestRate float64 = -1
	byDate := map[string][2]int{}

	for id, wk := range f.workouts {
		if f.owners[id] != username {
			continue
		}
		stats.TotalWorkouts++
		if wk.Completed() {
			stats.CompletedWorkouts++
			if wk.IsSuccessful {
				stats.SuccessfulWorkouts++
				completedOK++
			} else {
				stats.FailedWorkouts++
			}
		} else {
			stats.InProgressWorkouts++
		}
		if wk.NumOfSessions > 0 && wk.AveragePercentage > bestRate {
			bestRate = wk.AveragePercentage
			name := wk.Name
			stats.BestWorkoutName = &name
			stats.BestWorkoutSuccessRate = wk.AveragePercentage
		}
		for _, s := range f.sessionsFor(id) {
			stats.TotalSessions++
			makes += s.Makes
			attempts += s.Attempts
			d := byDate[s.Date]
			byDate[s.Date] = [2]int{d[0] + s.Makes, d[1] + s.Attempts}
		}
	}

	if attempts > 0 {
		stats.OverallSuccessRate = float64(makes) * 100 / float64(attempts)
	}
	if stats.CompletedWorkouts > 0 {
		stats.CompletedSuccessRate = float64(completedOK) * 100 / float64(stats.CompletedWorkouts)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	stats.ProgressOverTime = []models.ProgressPoint{}
	for _, d := range dates {
		v := byDate[d]
		var rate float64
		if v[1] > 0 {
			rate = float64(v[0]) * 100 / float64(v[1])
		}
		stats.ProgressOverTime = append(stats.ProgressOverTime, models.ProgressPoint{Date: d, AvgSuccessRate: rate})
	}

	writeJSON(w, http.StatusOK, stats)
}

// sessionsFor returns the sessions of a workout ordered by date. Callers hold mu.
func (f *FakeAPI) sessionsFor(workoutID int64) []models.Session {
	out := []models.Session{}
	for _, s := range f.sessions {
		if s.Workout.ID == workoutID {
			cp := *s
			cp.SuccessRate = 0
			if cp.Attempts > 0 {
				cp.SuccessRate = float64(cp.Makes) * 100 / float64(cp.Attempts)
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].ID < out[j].ID
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// recompute refreshes the derived totals of a workout. Callers hold mu.
func (f *FakeAPI) recompute(workoutID int64) {
	wk, ok := f.workouts[workoutID]
	if !ok {
		return
	}

	sessions := f.sessionsFor(workoutID)
	wk.NumOfSessions = len(sessions)
	wk.TotalMakes, wk.TotalAttempts = 0, 0
	for _, s := range sessions {
		wk.TotalMakes += s.Makes
		wk.TotalAttempts += s.Attempts
	}

	wk.AveragePercentage = 0
	if wk.TotalAttempts > 0 {
		wk.AveragePercentage = float64(wk.TotalMakes) * 100 / float64(wk.TotalAttempts)
	}
	wk.IsSuccessful = wk.Completed() && wk.AveragePercentage >= wk.GoalPercentage
}
