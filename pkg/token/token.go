package token

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims structure for custom claims in JWT. Both the portal session
// token and the short-lived socket token carry the same claims.
type Claims struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var (
	// ErrInvalidToken is returned for any token that fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingClaims is returned when userId or userType is absent.
	ErrMissingClaims = errors.New("token is missing userId or userType")

	secretMu  sync.RWMutex
	jwtSecret = []byte("secure_secret_key")
)

// SetSecret replaces the HMAC key used to sign and verify tokens.
func SetSecret(secret string) {
	if secret == "" {
		return
	}
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(secret)
}

func secret() []byte {
	secretMu.RLock()
	defer secretMu.RUnlock()
	return jwtSecret
}

// GenerateJWT generates an HS256 token for userID valid for ttl
func GenerateJWT(userID, userType, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret())
}

// ParseJWT parses a JWT and extracts the Claims. Expired tokens, foreign
// signing methods and tokens without userId/userType are rejected.
func ParseJWT(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret(), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.UserType == "" {
		return nil, ErrMissingClaims
	}

	return claims, nil
}

// StripBearer returns the token part of an "Authorization: Bearer x" value.
func StripBearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
