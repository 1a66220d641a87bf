package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderboard/internal/board"
	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/presentation/http/response"
	"github.com/Additional-Code/orderboard/pkg/errorbank"
)

// ContextKey is where the middleware stores the caller's credential.
const ContextKey = "credential"

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Subject reads the "sub" claim without verifying the signature. The board
// only uses it to attribute actions in logs; the restaurant API verifies.
func Subject(token string) string {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

// Verifier checks HS256 tokens. An empty secret accepts any non-empty token.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates token and returns the credential it represents.
func (v *Verifier) Verify(token string) (board.Credential, error) {
	if token == "" {
		return board.Credential{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return board.Credential{Token: token, Subject: Subject(token)}, nil
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return board.Credential{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return board.Credential{Token: token, Subject: claims.Subject}, nil
}

// Forward stores the caller's bearer token without verifying it. A missing
// header yields an empty credential so the board can reject the action
// itself before any remote call.
func Forward() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var cred board.Credential
			if token, err := ParseBearer(c.Request().Header.Get(echo.HeaderAuthorization)); err == nil {
				cred = board.Credential{Token: token, Subject: Subject(token)}
			}
			c.Set(ContextKey, cred)
			return next(c)
		}
	}
}

// Require rejects requests without a token the verifier accepts.
func Require(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := ParseBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err == nil {
				var cred board.Credential
				cred, err = v.Verify(token)
				if err == nil {
					c.Set(ContextKey, cred)
					return next(c)
				}
			}
			return response.New(c).WithError(errorbank.Unauthorized("unauthorized", errorbank.WithCause(err))).Build()
		}
	}
}

// FromContext returns the credential stored by Forward or Require.
func FromContext(c echo.Context) board.Credential {
	cred, _ := c.Get(ContextKey).(board.Credential)
	return cred
}

// Module provides the bearer verifier configured from AUTH_JWT_SECRET.
var Module = fx.Provide(func(cfg config.Config) *Verifier {
	return NewVerifier(cfg.Auth.JWTSecret)
})
