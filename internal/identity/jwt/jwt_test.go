package jwt

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/identity"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s, err := NewService(Config{SecretKey: testSecret, AccessTokenDuration: 30 * time.Minute}, opts...)
	require.NoError(t, err)
	return s
}

func TestService_RoundTrip(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("a@x.com", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)
}

func TestService_IssueAccessToken_UsesConfiguredTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, WithClock(func() time.Time { return now }))

	token, err := s.IssueAccessToken("a@x.com", domain.RoleUser)
	require.NoError(t, err)

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), claims.ExpiresAt.UTC())
	assert.Equal(t, 30*time.Minute, s.AccessTokenDuration())
}

func TestService_Expired(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("a@x.com", domain.RoleUser, -time.Second)
	require.NoError(t, err)

	_, err = s.Validate(token)
	require.ErrorIs(t, err, identity.ErrTokenExpired)
	assert.NotErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestService_ExpiresAtBoundary(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	s := newTestService(t, WithClock(func() time.Time { return clock }))

	token, err := s.Issue("a@x.com", domain.RoleUser, time.Minute)
	require.NoError(t, err)

	clock = issued.Add(time.Minute - time.Second)
	_, err = s.Validate(token)
	require.NoError(t, err)

	clock = issued.Add(time.Minute)
	_, err = s.Validate(token)
	require.ErrorIs(t, err, identity.ErrTokenExpired)
}

func TestService_TamperedSignature(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("a@x.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range sig {
		tampered := make([]byte, len(sig))
		copy(tampered, sig)
		tampered[i] ^= 0x01

		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(tampered)
		_, err := s.Validate(forged)
		require.ErrorIs(t, err, identity.ErrTokenInvalid, "byte %d", i)
	}
}

func TestService_TamperedPayload(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("user@x.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user@x.com","role":"admin","exp":4102444800}`))
	_, err = s.Validate(parts[0] + "." + payload + "." + parts[2])
	require.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestService_WrongSecret(t *testing.T) {
	other, err := NewService(Config{SecretKey: "another-secret"})
	require.NoError(t, err)

	token, err := other.Issue("a@x.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	_, err = newTestService(t).Validate(token)
	require.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestService_AlgorithmMismatch(t *testing.T) {
	hs512, err := NewService(Config{SecretKey: testSecret, Algorithm: "HS512"})
	require.NoError(t, err)

	token, err := hs512.Issue("a@x.com", domain.RoleUser, time.Hour)
	require.NoError(t, err)

	_, err = newTestService(t).Validate(token)
	require.ErrorIs(t, err, identity.ErrTokenInvalid)

	claims, err := hs512.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Subject)
}

func TestService_NoneAlgorithm(t *testing.T) {
	claims := Claims{
		Role: "admin",
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "a@x.com",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, claims).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestService(t).Validate(token)
	require.ErrorIs(t, err, identity.ErrTokenInvalid)
}

func TestService_InvalidClaims(t *testing.T) {
	s := newTestService(t)
	future := gojwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		claims gojwt.Claims
	}{
		{
			name:   "missing subject",
			claims: Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{ExpiresAt: future}},
		},
		{
			name:   "missing exp",
			claims: Claims{Role: "user", RegisteredClaims: gojwt.RegisteredClaims{Subject: "a@x.com"}},
		},
		{
			name:   "unparseable exp",
			claims: gojwt.MapClaims{"sub": "a@x.com", "role": "user", "exp": "tomorrow"},
		},
		{
			name:   "unknown role",
			claims: Claims{Role: "root", RegisteredClaims: gojwt.RegisteredClaims{Subject: "a@x.com", ExpiresAt: future}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, tt.claims).SignedString([]byte(testSecret))
			require.NoError(t, err)

			_, err = s.Validate(token)
			require.ErrorIs(t, err, identity.ErrTokenInvalid)
		})
	}
}

func TestService_Malformed(t *testing.T) {
	s := newTestService(t)

	for _, raw := range []string{"", "abc", "a.b.c", "Bearer x.y.z"} {
		_, err := s.Validate(raw)
		require.ErrorIs(t, err, identity.ErrTokenInvalid, "token %q", raw)
	}
}

func TestNewService_Config(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)

	_, err = NewService(Config{SecretKey: testSecret, Algorithm: "RS256"})
	require.Error(t, err)

	s, err := NewService(Config{SecretKey: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTokenDuration, s.AccessTokenDuration())
}
