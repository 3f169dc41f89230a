// Package auth implements account registration and the JWT session
// lifecycle: login, refresh rotation, verification, and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/pkg/logger"
)

const (
	// TokenTypeAccess and TokenTypeRefresh distinguish the two token kinds
	// in the token_type claim.
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	// DefaultAccessTTL and DefaultRefreshTTL apply when the config leaves
	// the lifetimes unset.
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

var (
	// ErrInvalidCredentials is returned for a wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken is returned for malformed, expired, revoked, or
	// wrong-type tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Config holds the signing secret and token lifetimes.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims is the JWT payload carried by both token kinds.
type Claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is an access token and the refresh token that can renew it.
type TokenPair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service implements authentication on top of the user and token stores.
type Service struct {
	store storage.Store
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
}

// NewService builds a Service. The secret must be non-empty.
func NewService(store storage.Store, cfg Config, log *logger.Logger) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{store: store, cfg: cfg, log: log, now: time.Now}, nil
}

// RefreshTTL exposes the configured refresh lifetime for cookie expiry.
func (s *Service) RefreshTTL() time.Duration {
	return s.cfg.RefreshTTL
}

// Register creates a new account. Validation failures and duplicate emails
// both surface as field errors.
func (s *Service) Register(ctx context.Context, reg user.Registration) (user.User, error) {
	if err := reg.Validate(); err != nil {
		return user.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password1), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.store.CreateUser(ctx, user.User{
		Email:        reg.Email,
		PasswordHash: string(hash),
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
	})
	if errors.Is(err, storage.ErrConflict) {
		return user.User{}, validation.Errors{}.Add("email", "an account with this email already exists")
	}
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", created.ID).Info("User registered")
	return created, nil
}

// UpdateProfile changes the account's name fields. Nil fields keep their
// current value.
func (s *Service) UpdateProfile(ctx context.Context, userID string, firstName, lastName *string) (user.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if firstName != nil {
		u.FirstName = strings.TrimSpace(*firstName)
	}
	if lastName != nil {
		u.LastName = strings.TrimSpace(*lastName)
	}
	return s.store.UpdateUser(ctx, u)
}

// Login checks the credentials and issues a fresh token pair. A missing
// account and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (user.User, TokenPair, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return user.User{}, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.issuePair(u.ID)
	if err != nil {
		return user.User{}, TokenPair{}, err
	}
	s.log.WithField("user_id", u.ID).Info("User logged in")
	return u, pair, nil
}

// Refresh validates a refresh token, revokes it, and issues a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	revoked, err := s.store.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if revoked {
		return TokenPair{}, ErrInvalidToken
	}
	if err := s.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(claims.Subject)
}

// Verify checks an access token and returns the account it belongs to.
func (s *Service) Verify(ctx context.Context, accessToken string) (user.User, error) {
	claims, err := s.parse(accessToken, TokenTypeAccess)
	if err != nil {
		return user.User{}, err
	}
	u, err := s.store.GetUser(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, ErrInvalidToken
	}
	return u, err
}

// Logout revokes the refresh token if it is still valid. Revocation
// failures are logged and swallowed so logout always succeeds.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		s.log.WithError(err).Debug("Logout with unusable refresh token")
		return
	}
	if err := s.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.log.WithError(err).Warn("Failed to revoke refresh token on logout")
	}
}

func (s *Service) issuePair(userID string) (TokenPair, error) {
	now := s.now().UTC()
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access, err := s.sign(userID, TokenTypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(userID, TokenTypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) sign(userID, tokenType string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
