package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// rhemaClaims is the JWT claim set for issued access/refresh tokens.
type rhemaClaims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions"`
	TokenID     string   `json:"jti_alias,omitempty"`
	Refresh     bool     `json:"refresh,omitempty"`
}

// signJWT issues a signed JWT for user with the given permissions and TTL.
func signJWT(secret []byte, user string, permissions []string, ttl time.Duration, refresh bool) (string, string, error) {
	now := time.Now()
	jti := fmt.Sprintf("%s-%d", user, now.UnixNano())

	claims := rhemaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Permissions: permissions,
		Refresh:     refresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, jti, nil
}

// verifyJWT validates signature, expiry (no leeway), not-before, and jti
// presence, per spec.md §4.H's format/verification requirements.
func verifyJWT(secret []byte, raw string) (*rhemaClaims, error) {
	if !isWellFormedJWT(raw) {
		return nil, ErrInvalidFormat
	}

	claims := &rhemaClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(0))
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}
	if claims.ID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// isWellFormedJWT checks the three-part base64url structure before any
// cryptographic work, per spec.md §4.H "Format validation".
func isWellFormedJWT(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 {
			return false
		}
	}
	return true
}
