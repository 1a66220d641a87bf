package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderboard/internal/board"
)

func sign(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestParseBearer(t *testing.T) {
	token, err := ParseBearer("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	token, err = ParseBearer("bearer  xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc"} {
		_, err := ParseBearer(header)
		assert.ErrorIs(t, err, ErrMissingToken, header)
	}
}

func TestSubjectIsReadWithoutSecret(t *testing.T) {
	raw := sign(t, "whatever", "chef-ana", time.Now().Add(time.Hour))
	assert.Equal(t, "chef-ana", Subject(raw))
	assert.Empty(t, Subject("opaque-token"))
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")

	cred, err := v.Verify(sign(t, "s3cret", "waiter-1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "waiter-1", cred.Subject)

	_, err = v.Verify(sign(t, "other", "waiter-1", time.Now().Add(time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(sign(t, "s3cret", "waiter-1", time.Now().Add(-time.Minute)))
	assert.ErrorIs(t, err, ErrInvalidToken)

	open := NewVerifier("")
	cred, err = open.Verify("opaque")
	require.NoError(t, err)
	assert.Equal(t, "opaque", cred.Token)
}

func TestRequireMiddleware(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, FromContext(c).Subject)
	}, Require(NewVerifier("s3cret")))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+sign(t, "s3cret", "chef", time.Now().Add(time.Hour)))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chef", rec.Body.String())
}

func TestForwardMiddleware(t *testing.T) {
	e := echo.New()
	var got board.Credential
	e.GET("/", func(c echo.Context) error {
		got = FromContext(c)
		return c.NoContent(http.StatusNoContent)
	}, Forward())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, got.Empty())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer opaque")
	e.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "opaque", got.Token)
}
