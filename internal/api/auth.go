package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

const ownerKey = "owner_id"

// OwnerClaims identifies the user a request acts for.
type OwnerClaims struct {
	OwnerID int64 `json:"user_id"`
	jwtlib.RegisteredClaims
}

// IssueToken signs an HS256 token for owner valid for ttl.
func IssueToken(owner int64, secret []byte, ttl time.Duration) (string, error) {
	if owner <= 0 {
		return "", errors.New("owner id must be positive")
	}
	now := time.Now()
	claims := OwnerClaims{
		OwnerID: owner,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tokenString and returns the owner it was issued for.
func ParseToken(tokenString string, secret []byte) (int64, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &OwnerClaims{}, func(token *jwtlib.Token) (interface{}, error) {
		return secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(*OwnerClaims)
	if !ok || !token.Valid || claims.OwnerID <= 0 {
		return 0, errors.New("invalid token")
	}
	return claims.OwnerID, nil
}

// RequireOwner rejects requests without a valid bearer token and stores the
// owner id for the handlers.
func RequireOwner(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return ErrUnAuthorized("missing bearer token")
		}
		owner, err := ParseToken(raw, secret)
		if err != nil {
			return ErrUnAuthorized("invalid token")
		}
		c.Locals(ownerKey, owner)
		return c.Next()
	}
}

func ownerOf(c *fiber.Ctx) int64 {
	owner, _ := c.Locals(ownerKey).(int64)
	return owner
}
