package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptySecret  = errors.New("jwt secret must not be empty")
)

// Claims is the token payload. The subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Manager signs and validates HS256 tokens with a shared secret.
type Manager struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

// NewManager creates a new JWT manager.
func NewManager(secret string, duration time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Manager{
		secret:   []byte(secret),
		duration: duration,
		now:      time.Now,
	}, nil
}

// GenerateToken creates a token for userID valid for the manager's duration.
func (m *Manager) GenerateToken(userID string) (string, error) {
	return m.GenerateTokenWithExpiry(userID, m.now().Add(m.duration))
}

// GenerateTokenWithExpiry creates a token for userID that expires at exp.
func (m *Manager) GenerateTokenWithExpiry(userID string, exp time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
