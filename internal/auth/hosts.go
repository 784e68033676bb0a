package auth

import (
	"context"
	"errors"
	"time"
)

var ErrHostNotFound = errors.New("host not found")

// Host is an account that owns galleries.
type Host struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// HostStore is the persistence slice the auth flows need. ErrNotFound from
// the galleries domain is not reused here; stores return ErrHostNotFound.
type HostStore interface {
	CreateHost(ctx context.Context, host Host) error
	GetHostByEmail(ctx context.Context, email string) (*Host, error)
}
