package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseTokenNumericSubject(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "42", "role": "Member", "exp": time.Now().Add(time.Hour).Unix()})

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	require.NotNil(t, claims.UserID)
	require.Equal(t, uint(42), *claims.UserID)
	require.Equal(t, "member", claims.Role)
}

func TestParseTokenEmailSubject(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "Alice@Example.com"})

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	require.Nil(t, claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"wrong secret":  signToken(t, "other", jwt.MapClaims{"sub": "1"}),
		"expired":       signToken(t, testSecret, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no subject":    signToken(t, testSecret, jwt.MapClaims{"role": "member"}),
		"not a jwt":     "abc.def",
		"negative user": signToken(t, testSecret, jwt.MapClaims{"sub": float64(-3)}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

type stubResolver struct {
	identity Identity
	err      error
	tokens   []string
}

func (s *stubResolver) ResolveIdentity(_ context.Context, token string) (Identity, error) {
	s.tokens = append(s.tokens, token)
	return s.identity, s.err
}

func TestJWTProtectedSetsLocals(t *testing.T) {
	resolver := &stubResolver{identity: Identity{UserID: 9, Role: "member"}}

	app := fiber.New()
	app.Use(JWTProtected(resolver))
	app.Get("/", func(c *fiber.Ctx) error {
		require.Equal(t, uint(9), c.Locals("user_id"))
		require.Equal(t, "member", c.Locals("user_role"))
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"abc"}, resolver.tokens)
}

func TestJWTProtectedAcceptsQueryToken(t *testing.T) {
	resolver := &stubResolver{identity: Identity{UserID: 1}}

	app := fiber.New()
	app.Use(JWTProtected(resolver))
	app.Get("/ws", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws?token=xyz", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"xyz"}, resolver.tokens)
}

func TestJWTProtectedRejects(t *testing.T) {
	resolver := &stubResolver{err: errors.New("nope")}

	app := fiber.New()
	app.Use(JWTProtected(resolver))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	missing, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, missing.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	malformed, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, malformed.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rejected, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, rejected.StatusCode)
}
