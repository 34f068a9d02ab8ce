// Package auth issues and verifies the anonymous identity tokens that stand
// in for the external auth provider.
package auth

import (
	"errors"
	"time"

	"randomchat/backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carry the anonymous user id and an optional display email.
type Claims struct {
	AnonID string `json:"anon_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for anonID valid for cfg.Expiry.
func GenerateToken(cfg *config.JWTConfig, anonID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		AnonID: anonID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   anonID,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken validates tokenString and returns its claims.
func ParseToken(cfg *config.JWTConfig, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AnonID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
