package identity

import (
	"errors"
	"fmt"

	"github.com/bissquit/user-service/internal/domain"
)

// Identity errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrHashing            = errors.New("password hashing failed")
	ErrPasswordTooLong    = errors.New("password too long")
)

// ForbiddenError is returned when an authenticated user lacks the required role.
// It matches ErrForbidden with errors.Is.
type ForbiddenError struct {
	Allowed domain.RoleSet
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("operation not permitted, required roles: %s", e.Allowed)
}

// Is makes errors.Is(err, ErrForbidden) true for any *ForbiddenError.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
