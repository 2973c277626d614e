package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/services"
	"github.com/desertthunder/shotlog/internal/session"
)

// rotatingBackend accepts the "old" token on me/ only and rotates the refresh cookie on
// every refresh, rejecting any cookie it has already seen.
type rotatingBackend struct {
	mu     sync.Mutex
	cookie string
	access string

	refreshCalls atomic.Int32
	rejections   atomic.Int32
	rejected     sync.WaitGroup // holds the first two 401s until both arrived
}

func (b *rotatingBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/me/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer old" && got != "Bearer "+b.currentAccess() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.User{ID: 1, Username: "ada"})
	})
	mux.HandleFunc("POST /api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		time.Sleep(50 * time.Millisecond)

		b.mu.Lock()
		defer b.mu.Unlock()
		c, err := r.Cookie("refresh")
		if err != nil || c.Value != b.cookie {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.cookie = c.Value + "-next"
		b.access = "fresh"
		http.SetCookie(w, &http.Cookie{Name: "refresh", Value: b.cookie, Path: "/", HttpOnly: true})
		json.NewEncoder(w).Encode(map[string]string{"access": b.access})
	})
	mux.HandleFunc("GET /api/workouts/", func(w http.ResponseWriter, r *http.Request) {
		if access := b.currentAccess(); access == "" || r.Header.Get("Authorization") != "Bearer "+access {
			if b.rejections.Add(1) <= 2 {
				b.rejected.Done()
				b.rejected.Wait()
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]models.Workout{{ID: 1, Name: r.URL.Query().Get("status")}})
	})
	return mux
}

func (b *rotatingBackend) currentAccess() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.access
}

func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	ctx := context.Background()

	backend := &rotatingBackend{cookie: "r1"}
	backend.rejected.Add(2)
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create jar: %v", err)
	}
	bearer := &session.Bearer{}
	api, err := services.NewAPIService(services.APIOpts{
		BaseURL:    server.URL + "/api/",
		Client:     &http.Client{Jar: jar},
		Authorizer: bearer,
	})
	if err != nil {
		t.Fatalf("failed to create api: %v", err)
	}
	jar.SetCookies(api.BaseURL(), []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/"}})

	mgr := session.NewManager(services.NewAuthService(api), session.NewMemoryStore("old"), bearer, log.New(io.Discard))
	if state := mgr.Initialize(ctx); state != session.Authenticated {
		t.Fatalf("expected Authenticated, got %v", state)
	}

	svc := services.NewWorkoutService(api.WithRefresher(mgr))
	inProgress, completed, err := svc.ListAllWorkouts(ctx)
	if err != nil {
		t.Fatalf("expected both lists after one refresh, got %v", err)
	}
	if len(inProgress) != 1 || len(completed) != 1 {
		t.Errorf("expected one workout per list, got %d and %d", len(inProgress), len(completed))
	}

	if got := backend.refreshCalls.Load(); got != 1 {
		t.Errorf("expected 1 token/refresh/ call, got %d", got)
	}
	if mgr.State() != session.Authenticated || mgr.Token() != "fresh" {
		t.Errorf("expected session kept with the fresh token, got %v %q", mgr.State(), mgr.Token())
	}
}
