// API service for making authenticated JSON requests to the workout API
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/shotlog/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "http://localhost:8000/api/"
	RequestIDHeader  = "X-Request-ID"
	defaultUserAgent = "shotlog"
)

// APIService performs JSON requests against the workout API.
//
// Paths are resolved relative to the base URL, so "workouts/" against
// "http://localhost:8000/api/" becomes "http://localhost:8000/api/workouts/".
type APIService struct {
	baseURL    *url.URL
	httpClient *http.Client
	auth       Authorizer
	refresher  Refresher
	limiter    *rate.Limiter
	userAgent  string
	logger     *log.Logger
}

// APIOpts configures an [APIService]. Zero values fall back to defaults.
type APIOpts struct {
	BaseURL    string
	Client     *http.Client
	Authorizer Authorizer
	RateLimit  float64 // requests per second; 0 disables limiting
	UserAgent  string
	Logger     *log.Logger
}

// NewAPIService creates a new API service instance for the workout API.
func NewAPIService(opts APIOpts) (*APIService, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q", shared.ErrInvalidConfig, opts.BaseURL)
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	svc := &APIService{
		baseURL:    u,
		httpClient: client,
		auth:       opts.Authorizer,
		userAgent:  userAgent,
		logger:     logger,
	}
	if opts.RateLimit > 0 {
		svc.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}
	return svc, nil
}

// BaseURL returns the resolved API root.
func (a *APIService) BaseURL() *url.URL {
	u := *a.baseURL
	return &u
}

// Client returns the underlying HTTP client (and through it, the cookie jar).
func (a *APIService) Client() *http.Client {
	return a.httpClient
}

// Anonymous returns a copy that sends no credential and never retries on 401.
//
// Login, refresh and registration go through this so that a stale bearer cannot cause a rejection.
func (a *APIService) Anonymous() *APIService {
	cp := *a
	cp.auth = nil
	cp.refresher = nil
	return &cp
}

// WithRefresher returns a copy that refreshes and retries once when an authorized request gets a 401.
func (a *APIService) WithRefresher(r Refresher) *APIService {
	cp := *a
	cp.refresher = r
	return &cp
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	RequestID  string
	IsJSON     bool
	JSONData   any

	authorization string // Authorization header the request was sent with
}

// OK reports whether the status is 2xx.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (a *APIService) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: path %q", shared.ErrInvalidInput, path)
	}
	return a.baseURL.ResolveReference(ref), nil
}

// Do performs a request and returns the raw response. Non-2xx statuses are not errors here.
//
// A non-nil body is encoded as JSON. Every request carries a fresh X-Request-ID.
func (a *APIService) Do(ctx context.Context, method, path string, body any) (*APIResponse, error) {
	target, err := a.resolve(path)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		if raw, ok := body.([]byte); ok {
			payload = raw
		} else if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", shared.ErrNetwork, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := shared.GenerateID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.auth != nil {
		a.auth.Authorize(req)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrNetwork, err)
	}

	a.logger.Debug("api request", "method", method, "path", target.Path, "status", resp.StatusCode, "request_id", requestID)

	apiResp := &APIResponse{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          data,
		RequestID:     requestID,
		authorization: req.Header.Get("Authorization"),
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, data)
}

// authorization returns the Authorization header the authorizer would set right now.
func (a *APIService) authorization() string {
	req := &http.Request{Header: make(http.Header)}
	a.auth.Authorize(req)
	return req.Header.Get("Authorization")
}

// doJSON performs a request, maps non-2xx statuses to [*APIError] and decodes the body into result.
//
// When a refresher is configured and an authorized request is rejected with 401,
// the credential is refreshed and the request retried exactly once. When another caller
// already replaced the credential the request was sent with, it is retried without a refresh.
func (a *APIService) doJSON(ctx context.Context, method, path string, body, result any) error {
	resp, err := a.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && a.refresher != nil && a.auth != nil {
		if a.authorization() != resp.authorization {
			a.logger.Debug("access token replaced since the request was sent, retrying", "path", path)
		} else {
			a.logger.Debug("access token rejected, refreshing", "path", path)
			if rerr := a.refresher.Refresh(ctx); rerr != nil {
				return errors.Join(newAPIError(method, path, resp), rerr)
			}
		}
		if resp, err = a.Do(ctx, method, path, body); err != nil {
			return err
		}
	}

	if !resp.OK() {
		return newAPIError(method, path, resp)
	}

	if result == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s: %v", shared.ErrAPIRequest, method, path, err)
	}
	return nil
}
