package auth

import (
	"errors"
	"fmt"

	"github.com/mihastele/social-space-harry/pkg/jwt"
)

// ErrVerification is returned for any credential that does not resolve to a user.
var ErrVerification = errors.New("credential verification failed")

// Verifier turns a bearer credential into a user ID.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier verifies HS256 tokens signed with the process secret.
type JWTVerifier struct {
	manager *jwt.Manager
}

func NewJWTVerifier(manager *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{manager: manager}
}

// Verify returns the token subject. Errors wrap both ErrVerification and the
// underlying jwt error, so callers can tell expiry from forgery.
func (v *JWTVerifier) Verify(token string) (string, error) {
	claims, err := v.manager.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return claims.UserID(), nil
}
