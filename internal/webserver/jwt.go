package webserver

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Token lifetime for both tenant and operator tokens.
const TokenTTL = 24 * time.Hour

// Operator levels carried in the token.
const (
	LevelTenant = "tenant"
	LevelSuper  = "super"
)

// TokenClaims is the bearer token payload. TenantKey is empty for
// operator tokens; Level distinguishes the two.
type TokenClaims struct {
	TenantKey string `json:"tenant_key,omitempty"`
	Level     string `json:"level"`
	jwt.RegisteredClaims
}

func NewTokenClaims(c echo.Context) jwt.Claims {
	return new(TokenClaims)
}

// IssueToken signs a token for the subject with the given level.
func IssueToken(secret, subject, tenantKey, level string) (string, error) {
	claims := TokenClaims{
		TenantKey: tenantKey,
		Level:     level,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Claims extracts the verified token claims from the request context.
func Claims(c echo.Context) (*TokenClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, errors.New("missing bearer token")
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil, errors.New("unexpected token claims")
	}
	return claims, nil
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
