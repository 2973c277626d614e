package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/shotlog/internal/shared"
	tu "github.com/desertthunder/shotlog/internal/testing"
)

type staticAuth struct{ token string }

func (s staticAuth) Authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
}

type countingRefresher struct {
	calls atomic.Int32
	auth  *staticAuth
	next  string
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	c.auth.token = c.next
	return nil
}

func mustAPI(t *testing.T, opts APIOpts) *APIService {
	t.Helper()
	srv, err := NewAPIService(opts)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return srv
}

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := mustAPI(t, APIOpts{BaseURL: "http://example.com/api", Client: customClient})

			if got := srv.BaseURL().String(); got != "http://example.com/api/" {
				t.Errorf("expected baseURL 'http://example.com/api/', got %s", got)
			}
			if srv.Client() != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := mustAPI(t, APIOpts{})

			if got := srv.BaseURL().String(); got != DefaultBaseURL {
				t.Errorf("expected default baseURL %q, got %s", DefaultBaseURL, got)
			}
			if srv.Client() != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
			if srv.limiter != nil {
				t.Error("expected no limiter when rate limit is zero")
			}
		})

		t.Run("With Relative BaseURL", func(t *testing.T) {
			_, err := NewAPIService(APIOpts{BaseURL: "api/"})
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("With Rate Limit", func(t *testing.T) {
			srv := mustAPI(t, APIOpts{RateLimit: 5})
			if srv.limiter == nil {
				t.Fatal("expected limiter to be configured")
			}
			if srv.limiter.Burst() != 5 {
				t.Errorf("expected burst 5, got %d", srv.limiter.Burst())
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Resolves Relative Paths And Sets Headers", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/api/workouts/" {
					t.Errorf("expected path '/api/workouts/', got %s", r.URL.Path)
				}
				if r.URL.Query().Get("status") != "completed" {
					t.Errorf("expected status query, got %s", r.URL.RawQuery)
				}
				if r.Header.Get(RequestIDHeader) == "" {
					t.Error("expected X-Request-ID header")
				}
				if r.Header.Get("Authorization") != "Bearer abc" {
					t.Errorf("expected bearer header, got %q", r.Header.Get("Authorization"))
				}
				if r.Header.Get("User-Agent") != "shotlog-test" {
					t.Errorf("expected user agent, got %q", r.Header.Get("User-Agent"))
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{
				BaseURL:    server.URL + "/api/",
				Authorizer: staticAuth{token: "abc"},
				UserAgent:  "shotlog-test",
			})
			resp, err := srv.Get(context.Background(), "/workouts/?status=completed")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !resp.OK() {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !resp.IsJSON || resp.JSONData == nil {
				t.Error("expected response to be JSON")
			}
			if resp.RequestID == "" {
				t.Error("expected request id to be recorded")
			}
		})

		t.Run("Successful Request With Non-JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			resp, err := srv.Get(context.Background(), "test")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected response to not be JSON")
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("expected body 'plain text response', got %s", string(resp.Body))
			}
		})

		t.Run("Unique Request IDs", func(t *testing.T) {
			seen := map[string]bool{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen[r.Header.Get(RequestIDHeader)] = true
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			for range 3 {
				if _, err := srv.Get(context.Background(), "ping/"); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
			}
			if len(seen) != 3 {
				t.Errorf("expected 3 distinct request ids, got %d", len(seen))
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed")),
			}

			srv := mustAPI(t, APIOpts{BaseURL: "http://example.com", Client: client})
			_, err := srv.Get(context.Background(), "test")

			if !errors.Is(err, shared.ErrNetwork) {
				t.Errorf("expected ErrNetwork, got %v", err)
			}
			if !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			srv := mustAPI(t, APIOpts{BaseURL: "http://example.com", Client: client})
			_, err := srv.Get(context.Background(), "test")

			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			_, err := srv.Get(ctx, "test")

			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		})
	})

	t.Run("Post", func(t *testing.T) {
		t.Run("Encodes Body As JSON", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("expected Content-Type 'application/json', got %s", r.Header.Get("Content-Type"))
				}

				body, _ := io.ReadAll(r.Body)
				var data map[string]string
				if err := json.Unmarshal(body, &data); err != nil {
					t.Errorf("failed to unmarshal request body: %v", err)
				}
				if data["test"] != "data" {
					t.Errorf("expected request data 'test:data', got %v", data)
				}
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			resp, err := srv.Do(context.Background(), http.MethodPost, "test/", map[string]string{"test": "data"})

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("expected status 201, got %d", resp.StatusCode)
			}
		})

		t.Run("Empty Request Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				if len(body) != 0 {
					t.Errorf("expected empty body, got %d bytes", len(body))
				}
				if r.Header.Get("Content-Type") != "" {
					t.Errorf("expected no Content-Type, got %s", r.Header.Get("Content-Type"))
				}
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			if _, err := srv.Post(context.Background(), "test", nil); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	})

	t.Run("doJSON", func(t *testing.T) {
		t.Run("Maps Status Codes To Sentinels", func(t *testing.T) {
			tests := []struct {
				name   string
				status int
				body   string
				want   error
				detail string
			}{
				{"Unauthorized", http.StatusUnauthorized, `{"detail":"Given token not valid"}`, shared.ErrAuthFailed, "Given token not valid"},
				{"Forbidden", http.StatusForbidden, `{"detail":"nope"}`, shared.ErrAuthFailed, "nope"},
				{"Not Found", http.StatusNotFound, `{"detail":"Not found."}`, shared.ErrNotFound, "Not found."},
				{"Field Errors", http.StatusBadRequest, `{"username":["taken"],"non_field_errors":["bad pair"]}`, shared.ErrValidation, "bad pair; username: taken"},
				{"Server Error", http.StatusInternalServerError, `oops`, shared.ErrServiceUnavailable, "oops"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						w.WriteHeader(tt.status)
						w.Write([]byte(tt.body))
					}))
					defer server.Close()

					srv := mustAPI(t, APIOpts{BaseURL: server.URL})
					err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, nil)

					if !errors.Is(err, tt.want) {
						t.Fatalf("expected %v, got %v", tt.want, err)
					}

					var apiErr *APIError
					if !errors.As(err, &apiErr) {
						t.Fatalf("expected *APIError, got %T", err)
					}
					if apiErr.StatusCode != tt.status {
						t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
					}
					if apiErr.Detail != tt.detail {
						t.Errorf("expected detail %q, got %q", tt.detail, apiErr.Detail)
					}
				})
			}
		})

		t.Run("Empty Body Is Not Decoded", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			var out map[string]any
			if err := srv.doJSON(context.Background(), http.MethodDelete, "thing/1/", nil, &out); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("Malformed JSON", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			}))
			defer server.Close()

			srv := mustAPI(t, APIOpts{BaseURL: server.URL})
			var out map[string]any
			err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, &out)
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})

		t.Run("Refreshes And Retries Once On 401", func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if r.Header.Get("Authorization") != "Bearer fresh" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			auth := &staticAuth{token: "stale"}
			refresher := &countingRefresher{auth: auth, next: "fresh"}
			srv := mustAPI(t, APIOpts{BaseURL: server.URL, Authorizer: auth}).WithRefresher(refresher)

			var out struct{ OK bool }
			if err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, &out); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !out.OK {
				t.Error("expected decoded body after retry")
			}
			if refresher.calls.Load() != 1 {
				t.Errorf("expected 1 refresh, got %d", refresher.calls.Load())
			}
			if hits.Load() != 2 {
				t.Errorf("expected 2 requests, got %d", hits.Load())
			}
		})

		t.Run("Retries Without Refresh When Token Was Replaced", func(t *testing.T) {
			auth := &staticAuth{token: "stale"}
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) == 1 {
					auth.token = "fresh"
				}
				if r.Header.Get("Authorization") != "Bearer fresh" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			refresher := &countingRefresher{auth: auth, err: shared.ErrRefreshFailed}
			srv := mustAPI(t, APIOpts{BaseURL: server.URL, Authorizer: auth}).WithRefresher(refresher)

			var out struct{ OK bool }
			if err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, &out); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !out.OK {
				t.Error("expected decoded body after retry")
			}
			if refresher.calls.Load() != 0 {
				t.Errorf("expected no refresh, got %d", refresher.calls.Load())
			}
			if hits.Load() != 2 {
				t.Errorf("expected 2 requests, got %d", hits.Load())
			}
		})

		t.Run("Second 401 Is Returned", func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			auth := &staticAuth{token: "stale"}
			refresher := &countingRefresher{auth: auth, next: "still-bad"}
			srv := mustAPI(t, APIOpts{BaseURL: server.URL, Authorizer: auth}).WithRefresher(refresher)

			err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, nil)
			if !IsUnauthorized(err) {
				t.Errorf("expected 401 error, got %v", err)
			}
			if hits.Load() != 2 {
				t.Errorf("expected exactly 2 requests, got %d", hits.Load())
			}
		})

		t.Run("Refresh Failure Is Joined", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			auth := &staticAuth{token: "stale"}
			refresher := &countingRefresher{auth: auth, err: shared.ErrRefreshFailed}
			srv := mustAPI(t, APIOpts{BaseURL: server.URL, Authorizer: auth}).WithRefresher(refresher)

			err := srv.doJSON(context.Background(), http.MethodGet, "thing/", nil, nil)
			if !errors.Is(err, shared.ErrRefreshFailed) || !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected joined refresh and auth errors, got %v", err)
			}
		})

		t.Run("Anonymous Sends No Credential", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					t.Errorf("expected no Authorization header, got %q", r.Header.Get("Authorization"))
				}
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer server.Close()

			auth := &staticAuth{token: "stale"}
			refresher := &countingRefresher{auth: auth}
			srv := mustAPI(t, APIOpts{BaseURL: server.URL, Authorizer: auth}).WithRefresher(refresher).Anonymous()

			srv.doJSON(context.Background(), http.MethodPost, "login/", map[string]string{}, nil)
			if refresher.calls.Load() != 0 {
				t.Error("expected anonymous requests never to refresh")
			}
		})
	})
}
