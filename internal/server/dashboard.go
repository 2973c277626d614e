package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/formatter"
	"github.com/desertthunder/shotlog/internal/services"
	"github.com/desertthunder/shotlog/internal/shared"
)

// Dashboard serves the read-only workout views.
//
// Every view renders through the formatter; the format is picked with ?format= and defaults
// to plain text.
type Dashboard struct {
	mgr    SessionManager
	api    services.WorkoutAPI
	mux    *http.ServeMux
	logger *log.Logger
}

// NewDashboard creates the dashboard handler.
func NewDashboard(mgr SessionManager, api services.WorkoutAPI, logger *log.Logger) *Dashboard {
	d := &Dashboard{mgr: mgr, api: api, mux: http.NewServeMux(), logger: logger}
	d.mux.HandleFunc("GET /{$}", d.index)
	d.mux.HandleFunc("POST /logout", d.logout)
	d.mux.HandleFunc("GET /logout", d.logout)
	d.mux.HandleFunc("GET /workouts", d.workouts)
	d.mux.HandleFunc("GET /workouts/{id}", d.workout)
	d.mux.HandleFunc("GET /stats", d.stats)
	return d
}

// Routes returns the HTTP routes this handler serves.
func (d *Dashboard) Routes() []string {
	return []string{"/{$}", "/logout", "/workouts", "/workouts/{id}", "/stats"}
}

// ServeHTTP dispatches to the dashboard views.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.ServeHTTP(w, r)
}

func (d *Dashboard) index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/workouts", http.StatusSeeOther)
}

func (d *Dashboard) logout(w http.ResponseWriter, r *http.Request) {
	if err := d.mgr.Logout(r.Context()); err != nil {
		d.logger.Warn("logout", "err", err)
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (d *Dashboard) workouts(w http.ResponseWriter, r *http.Request) {
	f, ok := d.format(w, r)
	if !ok {
		return
	}

	inProgress, completed, err := d.api.ListAllWorkouts(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}

	data, err := formatter.RenderWorkouts(f, inProgress, completed)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	d.write(w, f, data)
}

func (d *Dashboard) workout(w http.ResponseWriter, r *http.Request) {
	f, ok := d.format(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid workout id", http.StatusBadRequest)
		return
	}

	workout, err := d.api.GetWorkout(r.Context(), id)
	if err != nil {
		d.fail(w, r, err)
		return
	}

	data, err := formatter.RenderWorkout(f, workout)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	d.write(w, f, data)
}

func (d *Dashboard) stats(w http.ResponseWriter, r *http.Request) {
	f, ok := d.format(w, r)
	if !ok {
		return
	}

	stats, err := d.api.StatsOverview(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}

	data, err := formatter.RenderStats(f, stats)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	d.write(w, f, data)
}

func (d *Dashboard) format(w http.ResponseWriter, r *http.Request) (formatter.Format, bool) {
	f, err := formatter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return f, true
}

func contentType(f formatter.Format) string {
	switch f {
	case formatter.FormatJSON:
		return "application/json"
	case formatter.FormatYAML:
		return "application/yaml"
	case formatter.FormatCSV:
		return "text/csv; charset=utf-8"
	case formatter.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (d *Dashboard) write(w http.ResponseWriter, f formatter.Format, data []byte) {
	w.Header().Set("Content-Type", contentType(f))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		d.logger.Debug("write response", "err", err)
	}
}

// fail maps API errors onto responses. Authentication failures send the browser to the login page.
func (d *Dashboard) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrAuthFailed), errors.Is(err, shared.ErrRefreshFailed):
		redirectToLogin(w, r)
	case errors.Is(err, shared.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, shared.ErrNetwork), errors.Is(err, shared.ErrServiceUnavailable):
		d.logger.Error("upstream unavailable", "path", r.URL.Path, "err", err)
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
	default:
		d.logger.Error("dashboard request failed", "path", r.URL.Path, "err", err)
		http.Error(w, fmt.Sprintf("Request failed: %v", err), http.StatusInternalServerError)
	}
}

// NewRouter assembles the dashboard: panic recovery, request logging, the refresh-cookie guard,
// the session guard, the login form and the workout views.
func NewRouter(mgr SessionManager, api services.WorkoutAPI, jar CookieChecker, apiURL *url.URL, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(
		Recoverer(logger),
		RequestLogger(logger),
		RequireRefreshCookie(jar, apiURL),
		RequireSession(mgr),
	)
	router.Handler(NewLoginHandler(mgr, "/workouts", logger))
	router.Handler(NewDashboard(mgr, api, logger))
	return router
}
