package session

import (
	"context"
	"errors"

	"github.com/desertthunder/shotlog/internal/models"
)

// State is the authentication state of a [Manager].
type State int

const (
	Initializing State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// TokenStore is durable storage for the single access token slot.
//
// Load returns "" with a nil error when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// AuthAPI is the subset of the remote API the manager drives.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (string, error)
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
}

// Snapshot is a point-in-time view of a [Manager], delivered to subscribers.
type Snapshot struct {
	State State
	User  *models.User
	Epoch uint64
}

// Loading reports whether the initial resolution is still pending.
func (s Snapshot) Loading() bool {
	return s.State == Initializing
}

// unauthorized is implemented by API errors that know whether the credential was rejected.
type unauthorized interface {
	IsUnauthorized() bool
}

func isUnauthorized(err error) bool {
	var u unauthorized
	return errors.As(err, &u) && u.IsUnauthorized()
}
