package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken issues an HS256 token with the user ULID as subject.
func SignToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
