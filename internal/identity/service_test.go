package identity_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestService_Register(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "alice@example.com", "s3cret")

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$2a$"))
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "first")

	_, err := env.svc.Register(context.Background(), identity.RegisterInput{
		Email:     "alice@example.com",
		Password:  "second",
		FirstName: "Other",
		LastName:  "Alice",
	})
	assert.ErrorIs(t, err, identity.ErrDuplicateEmail)

	// The original account keeps its password.
	env.login(t, "alice@example.com", "first")
}

func TestService_Register_PasswordTooLong(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), identity.RegisterInput{
		Email:     "long@example.com",
		Password:  strings.Repeat("a", 73),
		FirstName: "Long",
		LastName:  "Password",
	})
	assert.ErrorIs(t, err, identity.ErrPasswordTooLong)

	_, err = env.repo.GetUserByEmail(context.Background(), "long@example.com")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestService_Register_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.createUserErr = errors.New("connection reset")

	_, err := env.svc.Register(context.Background(), identity.RegisterInput{
		Email:     "a@example.com",
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestService_Login(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob@example.com", "hunter2")

	token, err := env.svc.Login(context.Background(), identity.LoginInput{Email: "bob@example.com", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, identity.TokenTypeBearer, token.TokenType)

	claims, err := env.tokens.Validate(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", claims.Subject)
	assert.Equal(t, domain.RoleUser, claims.Role)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob@example.com", "hunter2")

	tests := []struct {
		name  string
		input identity.LoginInput
	}{
		{name: "wrong password", input: identity.LoginInput{Email: "bob@example.com", Password: "wrong"}},
		{name: "unknown email", input: identity.LoginInput{Email: "nobody@example.com", Password: "hunter2"}},
		{name: "empty password", input: identity.LoginInput{Email: "bob@example.com", Password: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := env.svc.Login(context.Background(), tt.input)
			assert.Nil(t, token)
			assert.Equal(t, identity.ErrInvalidCredentials, err)
		})
	}
}

func TestService_Login_PasswordBeyondMaxLength(t *testing.T) {
	env := newTestEnv(t)
	pw := strings.Repeat("p", 72)
	env.register(t, "long@example.com", pw)

	token, err := env.svc.Login(context.Background(), identity.LoginInput{Email: "long@example.com", Password: pw + "WRONG"})
	assert.Nil(t, token)
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	env.login(t, "long@example.com", pw)
}

func createWithCost(t *testing.T, env *testEnv, email, pass string, cost int) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), cost)
	require.NoError(t, err)
	require.NoError(t, env.repo.CreateUser(context.Background(), &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}))
}

func storedCost(t *testing.T, env *testEnv, email string) int {
	t.Helper()
	user, err := env.repo.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	require.NoError(t, err)
	return cost
}

func TestService_Login_RehashesOnCostChange(t *testing.T) {
	env := newTestEnv(t)
	createWithCost(t, env, "old@example.com", "pw123", bcrypt.MinCost+1)

	env.login(t, "old@example.com", "pw123")
	assert.Equal(t, bcrypt.MinCost, storedCost(t, env, "old@example.com"))

	env.login(t, "old@example.com", "pw123")
}

func TestService_Login_RehashFailureKeepsLogin(t *testing.T) {
	env := newTestEnv(t)
	createWithCost(t, env, "old@example.com", "pw123", bcrypt.MinCost+1)
	env.repo.updateHashErr = errors.New("db read-only")

	token := env.login(t, "old@example.com", "pw123")
	assert.NotEmpty(t, token)
	assert.Equal(t, bcrypt.MinCost+1, storedCost(t, env, "old@example.com"))
}

func TestService_Login_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.getUserErr = errors.New("db down")

	_, err := env.svc.Login(context.Background(), identity.LoginInput{Email: "a@example.com", Password: "pw"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestService_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "carol@example.com", "pw")
	token := env.login(t, "carol@example.com", "pw")

	user, err := env.svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, domain.RoleUser, user.Role)
}

func TestService_Authenticate_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "carol@example.com", "pw")
	token := env.login(t, "carol@example.com", "pw")

	expired, err := env.tokens.Issue("carol@example.com", domain.RoleUser, -time.Second)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "missing", token: "", wantErr: identity.ErrUnauthenticated},
		{name: "garbage", token: "not-a-token", wantErr: identity.ErrTokenInvalid},
		{name: "tampered", token: tamperSignature(token), wantErr: identity.ErrTokenInvalid},
		{name: "expired", token: expired, wantErr: identity.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.svc.Authenticate(context.Background(), tt.token)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, identity.ErrUnauthenticated)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_Authenticate_DeletedUser(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dave@example.com", "pw")
	token := env.login(t, "dave@example.com", "pw")

	env.repo.delete("dave@example.com")

	_, err := env.svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestService_Authenticate_UsesStoredRole(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "erin@example.com", "pw")

	// A token claiming admin does not elevate a stored user.
	forged, err := env.tokens.IssueAccessToken("erin@example.com", domain.RoleAdmin)
	require.NoError(t, err)

	user, err := env.svc.Authenticate(context.Background(), forged)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
}

func TestService_Authenticate_RepositoryError(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "frank@example.com", "pw")
	token := env.login(t, "frank@example.com", "pw")
	env.repo.getUserErr = errors.New("db down")

	_, err := env.svc.Authenticate(context.Background(), token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestService_Authorize(t *testing.T) {
	env := newTestEnv(t)
	admin := &domain.User{Email: "root@example.com", Role: domain.RoleAdmin}
	user := &domain.User{Email: "u@example.com", Role: domain.RoleUser}

	assert.NoError(t, env.svc.Authorize(admin, identity.AdminOnly))
	assert.NoError(t, env.svc.Authorize(admin, identity.AnyRole))
	assert.NoError(t, env.svc.Authorize(user, identity.AnyRole))

	err := env.svc.Authorize(user, identity.AdminOnly)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	var forbidden *identity.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, forbidden.Allowed.Roles())
	assert.Contains(t, err.Error(), "[admin]")

	assert.ErrorIs(t, env.svc.Authorize(nil, identity.AnyRole), identity.ErrUnauthenticated)
	assert.ErrorIs(t, env.svc.Authorize(user, domain.NewRoleSet()), identity.ErrForbidden)
}

func TestService_CreatePrivileged(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapAdmin(t, "root@example.com", "rootpw")
	admin, err := env.repo.GetUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)

	t.Run("defaults to admin", func(t *testing.T) {
		created, err := env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
			Email: "second-admin@example.com", Password: "pw", FirstName: "S", LastName: "A",
		}, admin)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, created.Role)
	})

	t.Run("explicit user role", func(t *testing.T) {
		created, err := env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
			Email: "plain@example.com", Password: "pw", FirstName: "P", LastName: "U", Role: domain.RoleUser,
		}, admin)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleUser, created.Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
			Email: "weird@example.com", Password: "pw", FirstName: "W", LastName: "R", Role: "superuser",
		}, admin)
		assert.ErrorIs(t, err, domain.ErrUnknownRole)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
			Email: "root@example.com", Password: "pw", FirstName: "R", LastName: "R",
		}, admin)
		assert.ErrorIs(t, err, identity.ErrDuplicateEmail)
	})
}

func TestService_CreatePrivileged_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "user@example.com", "pw")

	_, err := env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
		Email: "escalate@example.com", Password: "pw", FirstName: "E", LastName: "S",
	}, user)
	assert.ErrorIs(t, err, identity.ErrForbidden)

	_, err = env.repo.GetUserByEmail(context.Background(), "escalate@example.com")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	_, err = env.svc.CreatePrivileged(context.Background(), identity.CreateUserInput{
		Email: "anon@example.com", Password: "pw", FirstName: "A", LastName: "N",
	}, nil)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestService_ListUsers(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrapAdmin(t, "root@example.com", "rootpw")
	user := env.register(t, "user@example.com", "pw")
	admin, err := env.repo.GetUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)

	users, err := env.svc.ListUsers(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = env.svc.ListUsers(context.Background(), user)
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	input := identity.CreateUserInput{Email: "root@example.com", Password: "rootpw", FirstName: "Root", LastName: "Admin"}

	created, err := env.svc.EnsureAdmin(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created)

	user, err := env.repo.GetUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)

	input.Password = "changed"
	created, err = env.svc.EnsureAdmin(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, created)

	// The existing password is left untouched.
	env.login(t, "root@example.com", "rootpw")
}

// tamperSignature replaces one character in the middle of the signature segment.
func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 10
	replacement := byte('A')
	if token[i] == 'A' {
		replacement = 'B'
	}
	return token[:i] + string(replacement) + token[i+1:]
}
