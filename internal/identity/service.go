// Package identity provides user registration, login, and role-based access checks.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/pkg/ctxlog"
)

// Role sets accepted by protected operations.
var (
	AdminOnly = domain.NewRoleSet(domain.RoleAdmin)
	AnyRole   = domain.NewRoleSet(domain.RoleAdmin, domain.RoleUser)
)

// TokenTypeBearer is the token_type returned with every access token.
const TokenTypeBearer = "bearer"

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
	// VerifyDummy spends the same time as Verify without a real hash.
	VerifyDummy(plain string)
	// NeedsRehash reports whether hash should be regenerated with the
	// current settings.
	NeedsRehash(hash string) bool
}

// TokenClaims is the identity carried by a validated token.
type TokenClaims struct {
	Subject   string
	Role      domain.Role
	ExpiresAt time.Time
}

// TokenService issues and validates access tokens.
type TokenService interface {
	IssueAccessToken(subject string, role domain.Role) (string, error)
	Validate(token string) (TokenClaims, error)
}

// Service implements account and authorization logic.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenService
}

// NewService creates a new identity service.
func NewService(repo Repository, hasher PasswordHasher, tokens TokenService) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// RegisterInput contains data for self-registration.
// It has no role field: self-registered users are always domain.RoleUser.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// CreateUserInput contains data for privileged user creation.
// An empty Role means domain.RoleAdmin.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role
}

// LoginInput contains login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// AccessToken is the result of a successful login.
type AccessToken struct {
	AccessToken string
	TokenType   string
}

// Register creates a user with the user role.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	user, err := s.createUser(ctx, input.Email, input.Password, input.FirstName, input.LastName, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	registrationsTotal.WithLabelValues("self", string(user.Role)).Inc()
	return user, nil
}

// CreatePrivileged creates a user with the requested role on behalf of actor,
// who must be an admin.
func (s *Service) CreatePrivileged(ctx context.Context, input CreateUserInput, actor *domain.User) (*domain.User, error) {
	if err := s.Authorize(actor, AdminOnly); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RoleAdmin
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}

	user, err := s.createUser(ctx, input.Email, input.Password, input.FirstName, input.LastName, role)
	if err != nil {
		return nil, err
	}
	registrationsTotal.WithLabelValues("privileged", string(user.Role)).Inc()
	return user, nil
}

// EnsureAdmin creates an admin with the given credentials unless a user with
// that email already exists. It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, input CreateUserInput) (bool, error) {
	_, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, fmt.Errorf("get user by email: %w", err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleAdmin
	}

	_, err = s.createUser(ctx, input.Email, input.Password, input.FirstName, input.LastName, role)
	if errors.Is(err, ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	registrationsTotal.WithLabelValues("bootstrap", string(role)).Inc()
	return true, nil
}

func (s *Service) createUser(ctx context.Context, email, password, firstName, lastName string, role domain.Role) (*domain.User, error) {
	// Hash before touching the store so no storage resource is held while bcrypt runs.
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords both return ErrInvalidCredentials after a bcrypt comparison.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AccessToken, error) {
	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.VerifyDummy(input.Password)
			loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		loginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, input.Password)
	}

	token, err := s.tokens.IssueAccessToken(user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	return &AccessToken{AccessToken: token, TokenType: TokenTypeBearer}, nil
}

// rehash stores a new hash of a verified password. Failures are logged and
// do not fail the login.
func (s *Service) rehash(ctx context.Context, user *domain.User, plain string) {
	hash, err := s.hasher.Hash(plain)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		ctxlog.FromContext(ctx).Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

// Authenticate resolves the user a token belongs to. Every failure caused by
// the token or its subject wraps ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		tokenRejectionsTotal.WithLabelValues("missing").Inc()
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, ErrTokenExpired) {
			reason = "expired"
		}
		tokenRejectionsTotal.WithLabelValues(reason).Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.repo.GetUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			tokenRejectionsTotal.WithLabelValues("unknown_subject").Inc()
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}

	return user, nil
}

// Authorize checks that user holds one of the allowed roles.
func (s *Service) Authorize(user *domain.User, allowed domain.RoleSet) error {
	if user == nil {
		return fmt.Errorf("%w: no principal", ErrUnauthenticated)
	}
	if !allowed.Contains(user.Role) {
		return &ForbiddenError{Allowed: allowed}
	}
	return nil
}

// ListUsers returns all users. Only admins may call it.
func (s *Service) ListUsers(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := s.Authorize(actor, AdminOnly); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
