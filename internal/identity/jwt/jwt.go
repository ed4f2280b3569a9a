// Package jwt issues and validates HMAC-signed access tokens.
//
// Tokens are stateless: there is no session store and no revocation list, so
// a leaked token stays valid until it expires. Changing the secret
// invalidates every token issued with the previous one.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/user-service/internal/domain"
	"github.com/bissquit/user-service/internal/identity"
	gojwt "github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenDuration applies when Config.AccessTokenDuration is zero.
const DefaultAccessTokenDuration = 30 * time.Minute

var signingMethods = map[string]*gojwt.SigningMethodHMAC{
	gojwt.SigningMethodHS256.Alg(): gojwt.SigningMethodHS256,
	gojwt.SigningMethodHS384.Alg(): gojwt.SigningMethodHS384,
	gojwt.SigningMethodHS512.Alg(): gojwt.SigningMethodHS512,
}

// Config contains token settings.
type Config struct {
	SecretKey           string
	Algorithm           string
	AccessTokenDuration time.Duration
}

// Claims is the token payload.
type Claims struct {
	Role string `json:"role"`
	gojwt.RegisteredClaims
}

// Service signs and validates tokens. It is safe for concurrent use.
type Service struct {
	secret    []byte
	method    *gojwt.SigningMethodHMAC
	accessTTL time.Duration
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service. The algorithm defaults to HS256.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = gojwt.SigningMethodHS256.Alg()
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", alg)
	}

	ttl := cfg.AccessTokenDuration
	if ttl == 0 {
		ttl = DefaultAccessTokenDuration
	}

	s := &Service{
		secret:    []byte(cfg.SecretKey),
		method:    method,
		accessTTL: ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTokenDuration returns the lifetime of tokens from IssueAccessToken.
func (s *Service) AccessTokenDuration() time.Duration {
	return s.accessTTL
}

// Issue signs a token for subject and role that expires after ttl.
func (s *Service) Issue(subject string, role domain.Role, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := gojwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// IssueAccessToken signs a token with the configured access token lifetime.
func (s *Service) IssueAccessToken(subject string, role domain.Role) (string, error) {
	return s.Issue(subject, role, s.accessTTL)
}

// Validate verifies raw and returns its claims.
// It returns identity.ErrTokenExpired for expired tokens and
// identity.ErrTokenInvalid for every other failure.
func (s *Service) Validate(raw string) (identity.TokenClaims, error) {
	parser := gojwt.NewParser(
		gojwt.WithValidMethods([]string{s.method.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(raw, &claims, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return identity.TokenClaims{}, identity.ErrTokenExpired
		}
		return identity.TokenClaims{}, fmt.Errorf("%w: %w", identity.ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return identity.TokenClaims{}, fmt.Errorf("%w: missing subject", identity.ErrTokenInvalid)
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return identity.TokenClaims{}, fmt.Errorf("%w: %w", identity.ErrTokenInvalid, err)
	}

	return identity.TokenClaims{
		Subject:   claims.Subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
