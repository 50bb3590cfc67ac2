package port

import (
	"context"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

type UserStore interface {
	// CreateUser returns domain.ErrEmailTaken when the email is already registered
	CreateUser(ctx context.Context, user domain.User) error

	GetUser(ctx context.Context, id string) (*domain.User, error)

	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetAdmin flips the admin flag; used by out-of-band tooling only
	SetAdmin(ctx context.Context, email string, admin bool) error
}

// Store is what a storage driver provides as a whole.
type Store interface {
	CourseStore
	UserStore
	Close() error
}
