package identity_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/identity"
	"github.com/bissquit/user-service/internal/identity/jwt"
	"github.com/bissquit/user-service/internal/identity/password"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "identity-test-secret"

// mockRepository implements identity.Repository in memory.
type mockRepository struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int

	createUserErr error
	getUserErr    error
	listUsersErr  error
	updateHashErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockRepository) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createUserErr != nil {
		return m.createUserErr
	}
	if _, ok := m.users[user.Email]; ok {
		return identity.ErrDuplicateEmail
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	user.CreatedAt = time.Now().UTC()
	stored := *user
	m.users[user.Email] = &stored
	return nil
}

func (m *mockRepository) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getUserErr != nil {
		return nil, m.getUserErr
	}
	u, ok := m.users[email]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	found := *u
	return &found, nil
}

func (m *mockRepository) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listUsersErr != nil {
		return nil, m.listUsersErr
	}
	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *mockRepository) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateHashErr != nil {
		return m.updateHashErr
	}
	for _, u := range m.users {
		if u.ID == id {
			u.PasswordHash = hash
			return nil
		}
	}
	return identity.ErrUserNotFound
}

func (m *mockRepository) delete(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, email)
}

type testEnv struct {
	repo   *mockRepository
	tokens *jwt.Service
	svc    *identity.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := jwt.NewService(jwt.Config{SecretKey: testSecret, AccessTokenDuration: 30 * time.Minute})
	require.NoError(t, err)

	repo := newMockRepository()
	return &testEnv{
		repo:   repo,
		tokens: tokens,
		svc:    identity.NewService(repo, hasher, tokens),
	}
}

func (e *testEnv) register(t *testing.T, email, pass string) *domain.User {
	t.Helper()
	user, err := e.svc.Register(context.Background(), identity.RegisterInput{
		Email:     email,
		Password:  pass,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) bootstrapAdmin(t *testing.T, email, pass string) {
	t.Helper()
	created, err := e.svc.EnsureAdmin(context.Background(), identity.CreateUserInput{
		Email:     email,
		Password:  pass,
		FirstName: "Admin",
		LastName:  "User",
	})
	require.NoError(t, err)
	require.True(t, created)
}

func (e *testEnv) login(t *testing.T, email, pass string) string {
	t.Helper()
	token, err := e.svc.Login(context.Background(), identity.LoginInput{Email: email, Password: pass})
	require.NoError(t, err)
	return token.AccessToken
}
