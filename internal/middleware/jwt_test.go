package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected("secret"))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("user_id"), "role": c.Locals("user_role")})
	})
	return app
}

func TestJWTProtectedAcceptsValidToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, "secret", jwt.MapClaims{
		"sub":  "12",
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := jwtApp().Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"wrong secret":   "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{"sub": 1}),
		"expired":        "Bearer " + signToken(t, jwt.SigningMethodHS256, "secret", jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Hour).Unix()}),
		"no subject":     "Bearer " + signToken(t, jwt.SigningMethodHS256, "secret", jwt.MapClaims{"role": "admin"}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := jwtApp().Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRoleFromClaimsDefaultsToStudent(t *testing.T) {
	require.Equal(t, RoleStudent, roleFromClaims(jwt.MapClaims{}))
	require.Equal(t, RoleAdmin, roleFromClaims(jwt.MapClaims{"roles": []interface{}{"Admin", "teacher"}}))
}
