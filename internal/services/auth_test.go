package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
	tu "github.com/desertthunder/shotlog/internal/testing"
)

type mutableAuth struct{ token string }

func (m *mutableAuth) Authorize(req *http.Request) {
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
}

func newFakeClient(t *testing.T, fake *tu.FakeAPI) (*APIService, *mutableAuth) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create jar: %v", err)
	}
	auth := &mutableAuth{}
	api := mustAPI(t, APIOpts{BaseURL: fake.URL(), Client: &http.Client{Jar: jar}, Authorizer: auth})
	return api, auth
}

func TestAuthService(t *testing.T) {
	ctx := context.Background()

	t.Run("Login", func(t *testing.T) {
		t.Run("Returns Access Token And Sets Cookie", func(t *testing.T) {
			fake := tu.NewFakeAPI(t)
			fake.AddUser("alice", "pw")
			api, _ := newFakeClient(t, fake)
			svc := NewAuthService(api)

			token, err := svc.Login(ctx, "alice", "pw")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token == "" {
				t.Fatal("expected access token")
			}

			cookies := api.Client().Jar.Cookies(api.BaseURL())
			if len(cookies) != 1 || cookies[0].Name != RefreshCookie {
				t.Errorf("expected refresh cookie in jar, got %v", cookies)
			}
		})

		t.Run("Wrong Password", func(t *testing.T) {
			fake := tu.NewFakeAPI(t)
			fake.AddUser("alice", "pw")
			api, _ := newFakeClient(t, fake)

			_, err := NewAuthService(api).Login(ctx, "alice", "wrong")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Ignores Stale Bearer", func(t *testing.T) {
			fake := tu.NewFakeAPI(t)
			fake.AddUser("alice", "pw")
			api, auth := newFakeClient(t, fake)
			auth.token = "garbage"

			if _, err := NewAuthService(api).Login(ctx, "alice", "pw"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("Uses Cookie From Login", func(t *testing.T) {
			fake := tu.NewFakeAPI(t)
			fake.AddUser("alice", "pw")
			api, _ := newFakeClient(t, fake)
			svc := NewAuthService(api)

			if _, err := svc.Login(ctx, "alice", "pw"); err != nil {
				t.Fatalf("login failed: %v", err)
			}

			token, err := svc.Refresh(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token == "" {
				t.Error("expected new access token")
			}
		})

		t.Run("Without Cookie", func(t *testing.T) {
			fake := tu.NewFakeAPI(t)
			api, _ := newFakeClient(t, fake)

			_, err := NewAuthService(api).Refresh(ctx)
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected cause to be kept, got %v", err)
			}
		})
	})

	t.Run("Me", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		id := fake.AddUser("alice", "pw")
		api, auth := newFakeClient(t, fake)
		svc := NewAuthService(api)

		token, err := svc.Login(ctx, "alice", "pw")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}

		t.Run("Without Token", func(t *testing.T) {
			_, err := svc.Me(ctx)
			if !IsUnauthorized(err) {
				t.Errorf("expected 401, got %v", err)
			}
		})

		t.Run("With Token", func(t *testing.T) {
			auth.token = token
			user, err := svc.Me(ctx)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if user.ID != id || user.Username != "alice" {
				t.Errorf("unexpected user %+v", user)
			}
		})
	})

	t.Run("Logout", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("alice", "pw")
		api, _ := newFakeClient(t, fake)
		svc := NewAuthService(api)

		if _, err := svc.Login(ctx, "alice", "pw"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if err := svc.Logout(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := svc.Refresh(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected refresh to fail after logout, got %v", err)
		}
	})

	t.Run("Register", func(t *testing.T) {
		fake := tu.NewFakeAPI(t)
		fake.AddUser("taken", "pw")
		api, _ := newFakeClient(t, fake)
		svc := NewAuthService(api)

		t.Run("Creates Account", func(t *testing.T) {
			reg := models.Registration{Username: "bob", Password: "pw", Position: models.Center}
			if err := svc.Register(ctx, reg); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, err := svc.Login(ctx, "bob", "pw"); err != nil {
				t.Errorf("expected new account to log in, got %v", err)
			}
		})

		t.Run("Duplicate Username", func(t *testing.T) {
			reg := models.Registration{Username: "taken", Password: "pw", Position: models.PointGuard}
			err := svc.Register(ctx, reg)
			if !errors.Is(err, shared.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}

			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Detail != "username: A user with that username already exists." {
				t.Errorf("expected server message verbatim, got %q", apiErr.Detail)
			}
		})

		t.Run("Invalid Locally", func(t *testing.T) {
			err := svc.Register(ctx, models.Registration{Username: "x", Password: "y", Position: "QB"})
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	})
}
