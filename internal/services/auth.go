package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/shotlog/internal/models"
	"github.com/desertthunder/shotlog/internal/shared"
)

const (
	loginPath    = "login/"
	refreshPath  = "token/refresh/"
	logoutPath   = "logout/"
	mePath       = "me/"
	registerPath = "register/"

	// RefreshCookie is the HTTP-only cookie the server sets on login and reads on refresh.
	RefreshCookie = "refresh"
)

type tokenResponse struct {
	Access string `json:"access"`
}

// AuthService binds the authentication endpoints.
//
// Login, refresh and registration are sent without a bearer. The refresh credential
// lives in the client's cookie jar and is never visible here.
type AuthService struct {
	api *APIService
}

// NewAuthService creates an auth service over api.
func NewAuthService(api *APIService) *AuthService {
	return &AuthService{api: api}
}

// Login exchanges credentials for an access token. The server also sets the refresh cookie.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}

	var out tokenResponse
	if err := s.api.Anonymous().doJSON(ctx, http.MethodPost, loginPath, body, &out); err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: login response has no access token", shared.ErrAPIRequest)
	}
	return out.Access, nil
}

// Refresh mints a new access token from the refresh cookie.
//
// Any failure is reported as [shared.ErrRefreshFailed] joined with the cause.
func (s *AuthService) Refresh(ctx context.Context) (string, error) {
	var out tokenResponse
	if err := s.api.Anonymous().doJSON(ctx, http.MethodPost, refreshPath, map[string]string{}, &out); err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if out.Access == "" {
		return "", fmt.Errorf("%w: refresh response has no access token", shared.ErrRefreshFailed)
	}
	return out.Access, nil
}

// Logout asks the server to invalidate the refresh cookie.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.api.doJSON(ctx, http.MethodPost, logoutPath, map[string]string{}, nil)
}

// Me returns the identity bound to the current access token.
//
// It never refreshes on its own; the session manager owns that retry.
func (s *AuthService) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := s.api.WithRefresher(nil).doJSON(ctx, http.MethodGet, mePath, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates an account. Field errors from the server surface as [shared.ErrValidation].
func (s *AuthService) Register(ctx context.Context, reg models.Registration) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	return s.api.Anonymous().doJSON(ctx, http.MethodPost, registerPath, reg, nil)
}

// IsUnauthorized reports whether err carries a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}
