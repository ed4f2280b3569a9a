package identity

import (
	"context"

	"github.com/bissquit/user-service/internal/domain"
)

// Repository defines the interface for user storage.
type Repository interface {
	// CreateUser inserts user and fills its ID and CreatedAt.
	// It returns ErrDuplicateEmail if the email is taken. The uniqueness
	// check and the insert happen as one operation in the storage layer.
	CreateUser(ctx context.Context, user *domain.User) error
	// GetUserByEmail returns ErrUserNotFound if no user has this email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// ListUsers returns all users in creation order.
	ListUsers(ctx context.Context) ([]domain.User, error)
	// UpdatePasswordHash replaces the stored hash of the user with id.
	// It returns ErrUserNotFound if no such user exists.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}
