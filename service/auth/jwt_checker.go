package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// JWTChecker verifies HS256 tokens locally. Used when no AUTH_URL is
// configured (development and single-tenant deployments); the subject
// claim becomes the user id.
type JWTChecker struct {
	secret []byte
}

func NewJWTChecker(secret []byte) *JWTChecker {
	return &JWTChecker{secret: secret}
}

func (c *JWTChecker) CheckAccess(_ context.Context, token, roomID string) Result {
	if token == "" || roomID == "" {
		return Result{Success: false, Message: "token and roomId required"}
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Result{Success: false, Message: "invalid token"}
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return Result{Success: false, Message: "token has no subject"}
	}
	return Result{Success: true, UserID: sub}
}
