package repositories

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Load Empty", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		tok, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tok != "" {
			t.Errorf("expected empty token, got %q", tok)
		}
	})

	t.Run("Save Replaces", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		if err := repo.Save(ctx, "first"); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.Save(ctx, "second"); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		tok, _ := repo.Load(ctx)
		if tok != "second" {
			t.Errorf("expected second, got %q", tok)
		}

		ts, err := repo.UpdatedAt(ctx)
		if err != nil || ts.IsZero() {
			t.Errorf("expected update timestamp, got %v %v", ts, err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))
		repo.Save(ctx, "abc")

		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("expected clearing an empty slot to succeed, got %v", err)
		}

		tok, _ := repo.Load(ctx)
		if tok != "" {
			t.Errorf("expected empty token, got %q", tok)
		}
	})

	t.Run("Save Empty Clears", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))
		repo.Save(ctx, "abc")
		repo.Save(ctx, "")

		tok, _ := repo.Load(ctx)
		if tok != "" {
			t.Errorf("expected empty token, got %q", tok)
		}
	})
}

func TestCookieRepository(t *testing.T) {
	ctx := context.Background()
	origin := "http://localhost:8000"

	t.Run("Upsert And Load", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))

		err := repo.Upsert(ctx, origin, []*http.Cookie{
			{Name: "refresh", Value: "r1", Path: "/", HttpOnly: true, MaxAge: 3600},
			{Name: "csrftoken", Value: "c1"},
		})
		if err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}

		cookies, err := repo.Load(ctx, origin)
		if err != nil {
			t.Fatalf("failed to load: %v", err)
		}
		if len(cookies) != 2 {
			t.Fatalf("expected 2 cookies, got %d", len(cookies))
		}

		refresh := cookies[1]
		if refresh.Name != "refresh" || refresh.Value != "r1" || !refresh.HttpOnly {
			t.Errorf("unexpected cookie %+v", refresh)
		}
		if refresh.Expires.IsZero() {
			t.Error("expected MaxAge to be stored as an expiry")
		}
		if cookies[0].Path != "/" {
			t.Errorf("expected default path '/', got %q", cookies[0].Path)
		}
	})

	t.Run("Overwrite Value", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "refresh", Value: "old"}})
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "refresh", Value: "new"}})

		cookies, _ := repo.Load(ctx, origin)
		if len(cookies) != 1 || cookies[0].Value != "new" {
			t.Errorf("expected single updated cookie, got %+v", cookies)
		}
	})

	t.Run("Deletion Cookie Removes Row", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/"}})
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "refresh", Value: "", Path: "/", MaxAge: -1}})

		cookies, _ := repo.Load(ctx, origin)
		if len(cookies) != 0 {
			t.Errorf("expected no cookies, got %+v", cookies)
		}
	})

	t.Run("Expired Cookies Are Skipped", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "stale", Value: "x", Expires: time.Now().Add(-time.Hour)}})

		cookies, _ := repo.Load(ctx, origin)
		if len(cookies) != 0 {
			t.Errorf("expected expired cookie to be dropped, got %+v", cookies)
		}
	})

	t.Run("Scoped By Origin", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		repo.Upsert(ctx, origin, []*http.Cookie{{Name: "refresh", Value: "a"}})
		repo.Upsert(ctx, "https://api.example.com", []*http.Cookie{{Name: "refresh", Value: "b"}})

		if err := repo.Clear(ctx, origin); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}

		local, _ := repo.Load(ctx, origin)
		remote, _ := repo.Load(ctx, "https://api.example.com")
		if len(local) != 0 || len(remote) != 1 {
			t.Errorf("expected only local cookies cleared, got %d local %d remote", len(local), len(remote))
		}
	})
}

func TestPersistentJar(t *testing.T) {
	ctx := context.Background()
	u, _ := url.Parse("http://127.0.0.1:8000/api/")
	logger := log.New(io.Discard)

	t.Run("Survives Restart", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))

		first, err := NewPersistentJar(repo, logger)
		if err != nil {
			t.Fatalf("failed to create jar: %v", err)
		}
		first.SetCookies(u, []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/", HttpOnly: true}})

		second, _ := NewPersistentJar(repo, logger)
		if second.Has(u, "refresh") {
			t.Fatal("expected a fresh jar to be empty before restore")
		}
		if err := second.Restore(ctx, u); err != nil {
			t.Fatalf("failed to restore: %v", err)
		}
		if !second.Has(u, "refresh") {
			t.Error("expected refresh cookie after restore")
		}
	})

	t.Run("Server Deletion Persists", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		jar, _ := NewPersistentJar(repo, logger)

		jar.SetCookies(u, []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/"}})
		jar.SetCookies(u, []*http.Cookie{{Name: "refresh", Value: "", Path: "/", MaxAge: -1}})

		if jar.Has(u, "refresh") {
			t.Error("expected cookie removed from memory")
		}
		stored, _ := repo.Load(ctx, Origin(u))
		if len(stored) != 0 {
			t.Errorf("expected cookie removed from disk, got %+v", stored)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewCookieRepository(setupTestDB(t))
		jar, _ := NewPersistentJar(repo, logger)
		jar.SetCookies(u, []*http.Cookie{{Name: "refresh", Value: "r1", Path: "/"}})

		if err := jar.Clear(ctx, u); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if jar.Has(u, "refresh") || len(jar.Cookies(u)) != 0 {
			t.Error("expected empty jar after clear")
		}
	})
}

func sampleWorkout(id int64, name string, sessions, target int) models.Workout {
	return models.Workout{ID: id, Name: name, NumOfSessions: sessions, TargetSessions: target, TargetAttempts: 20}
}

func TestWorkoutRepository(t *testing.T) {
	t.Run("Create And Get", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		cw := models.NewCachedWorkout("alice", sampleWorkout(7, "Threes", 1, 3))

		if err := repo.Create(cw); err != nil {
			t.Fatalf("failed to create: %v", err)
		}
		if cw.ID() == "" {
			t.Fatal("expected local id to be set")
		}

		got, err := repo.Get(cw.ID())
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if got.RemoteID() != 7 || got.Workout().Name != "Threes" || got.Owner() != "alice" {
			t.Errorf("unexpected cached workout %+v", got.Workout())
		}

		byRemote, err := repo.GetByRemoteID(7)
		if err != nil || byRemote.ID() != cw.ID() {
			t.Errorf("expected lookup by remote id, got %v", err)
		}
	})

	t.Run("Create Validates", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		if err := repo.Create(models.NewCachedWorkout("", sampleWorkout(1, "x", 0, 1))); err == nil {
			t.Error("expected validation error for missing owner")
		}
	})

	t.Run("Duplicate Remote ID", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		repo.Create(models.NewCachedWorkout("alice", sampleWorkout(1, "x", 0, 1)))

		if err := repo.Create(models.NewCachedWorkout("alice", sampleWorkout(1, "y", 0, 1))); err == nil {
			t.Error("expected duplicate remote id to fail")
		}
	})

	t.Run("Get Not Found", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		if _, err := repo.Get("missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Update And Delete", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		cw := models.NewCachedWorkout("alice", sampleWorkout(3, "Before", 0, 2))
		repo.Create(cw)

		cw.Touch(sampleWorkout(3, "After", 2, 2))
		if err := repo.Update(cw); err != nil {
			t.Fatalf("failed to update: %v", err)
		}

		completed, _ := repo.List(map[string]any{"completed": true})
		if len(completed) != 1 || completed[0].Workout().Name != "After" {
			t.Errorf("expected updated workout in completed list, got %d", len(completed))
		}

		if err := repo.Delete(cw.ID()); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := repo.Delete(cw.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("Update Missing", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		cw := models.NewCachedWorkout("alice", sampleWorkout(3, "Ghost", 0, 2))
		cw.SetID("nope")

		if err := repo.Update(cw); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReplaceForOwner", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		repo.Create(models.NewCachedWorkout("alice", sampleWorkout(1, "Old", 0, 1)))
		repo.Create(models.NewCachedWorkout("bob", sampleWorkout(2, "Bob's", 0, 1)))

		err := repo.ReplaceForOwner("alice", []models.Workout{
			sampleWorkout(10, "A", 0, 3),
			sampleWorkout(11, "B", 3, 3),
		})
		if err != nil {
			t.Fatalf("failed to replace: %v", err)
		}

		alice, _ := repo.List(map[string]any{"owner": "alice"})
		if len(alice) != 2 || alice[0].RemoteID() != 11 || alice[1].RemoteID() != 10 {
			t.Errorf("expected newest first [11 10], got %d rows", len(alice))
		}

		inProgress, _ := repo.List(map[string]any{"owner": "alice", "completed": false})
		if len(inProgress) != 1 || inProgress[0].RemoteID() != 10 {
			t.Errorf("expected only workout 10 in progress, got %d rows", len(inProgress))
		}

		bob, _ := repo.List(map[string]any{"owner": "bob"})
		if len(bob) != 1 {
			t.Errorf("expected bob's cache untouched, got %d", len(bob))
		}

		ts, err := repo.LastFetched("alice")
		if err != nil || ts.IsZero() {
			t.Errorf("expected a fetch time, got %v %v", ts, err)
		}
	})

	t.Run("Save Inserts Then Updates", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))

		if err := repo.Save("alice", sampleWorkout(5, "First", 0, 2)); err != nil {
			t.Fatalf("failed to save: %v", err)
		}
		if err := repo.Save("alice", sampleWorkout(5, "Second", 1, 2)); err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		all, _ := repo.List(nil)
		if len(all) != 1 || all[0].Workout().Name != "Second" {
			t.Errorf("expected single refreshed row, got %d", len(all))
		}
	})

	t.Run("Clear", func(t *testing.T) {
		repo := NewWorkoutRepository(setupTestDB(t))
		repo.Save("alice", sampleWorkout(5, "First", 0, 2))
		repo.DeleteByRemoteID(99)

		if err := repo.Clear(); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		all, _ := repo.List(nil)
		if len(all) != 0 {
			t.Errorf("expected empty cache, got %d", len(all))
		}
		ts, _ := repo.LastFetched("alice")
		if !ts.IsZero() {
			t.Errorf("expected zero fetch time, got %v", ts)
		}
	})
}

func TestExportRepository(t *testing.T) {
	t.Run("Create Assigns Sequence", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		first := models.NewExportRun("ada", "json", "out", 3)
		second := models.NewExportRun("ada", "csv", "out", 1)
		for _, run := range []*models.ExportRun{first, second} {
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
		}

		if first.ID() == "" || first.Sequence() != 1 || second.Sequence() != 2 {
			t.Errorf("unexpected ids: %q #%d, #%d", first.ID(), first.Sequence(), second.Sequence())
		}

		got, err := repo.Get(first.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Owner() != "ada" || got.Format() != "json" || got.Total() != 3 || got.Status() != models.ExportRunning {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.CompletedAt() != nil {
			t.Error("expected running export to have no completion time")
		}
	})

	t.Run("Create Validates", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		if err := repo.Create(models.NewExportRun("", "json", "out", 1)); err == nil {
			t.Error("expected validation error for missing owner")
		}
	})

	t.Run("Update Stores Outcome", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		run := models.NewExportRun("ada", "yaml", "", 4)
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		run.Finish(3, 1, nil)
		run.SetResult("exports/run", "exports/run/manifest.json", "")
		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.GetBySequence(run.Sequence())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Status() != models.ExportPartial {
			t.Errorf("expected partial, got %s", got.Status())
		}
		if got.Succeeded() != 3 || got.Failed() != 1 {
			t.Errorf("unexpected counts %d/%d", got.Succeeded(), got.Failed())
		}
		if got.OutputDir() != "exports/run" || got.ManifestPath() != "exports/run/manifest.json" {
			t.Errorf("unexpected paths %q %q", got.OutputDir(), got.ManifestPath())
		}
		if got.CompletedAt() == nil {
			t.Error("expected completion time")
		}
	})

	t.Run("Update Missing", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		run := models.NewExportRun("ada", "json", "out", 1)
		run.SetID("missing")
		if err := repo.Update(run); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Soft Delete", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		run := models.NewExportRun("ada", "json", "out", 1)
		if err := repo.Create(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(run.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := repo.Delete(run.ID()); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected second delete to fail, got %v", err)
		}

		next := models.NewExportRun("ada", "json", "out", 1)
		if err := repo.Create(next); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		if next.Sequence() != 2 {
			t.Errorf("expected deleted sequence to stay taken, got #%d", next.Sequence())
		}
	})

	t.Run("List Filters", func(t *testing.T) {
		repo := NewExportRepository(setupTestDB(t))

		for _, owner := range []string{"ada", "ada", "bob", "ada"} {
			run := models.NewExportRun(owner, "json", "out", 1)
			if err := repo.Create(run); err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
			run.Finish(1, 0, nil)
			if err := repo.Update(run); err != nil {
				t.Fatalf("failed to update run: %v", err)
			}
		}

		tests := []struct {
			name     string
			criteria map[string]any
			want     []int
		}{
			{"All", map[string]any{}, []int{4, 3, 2, 1}},
			{"Owner", map[string]any{"owner": "ada"}, []int{4, 2, 1}},
			{"Limit", map[string]any{"owner": "ada", "limit": 2}, []int{4, 2}},
			{"Status", map[string]any{"status": models.ExportCompleted}, []int{4, 3, 2, 1}},
			{"No Match", map[string]any{"status": "failed"}, nil},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				runs, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("failed to list: %v", err)
				}
				if len(runs) != len(tt.want) {
					t.Fatalf("expected %d runs, got %d", len(tt.want), len(runs))
				}
				for i, run := range runs {
					if run.Sequence() != tt.want[i] {
						t.Errorf("run %d: expected #%d, got #%d", i, tt.want[i], run.Sequence())
					}
				}
			})
		}
	})
}
