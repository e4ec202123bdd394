package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/config"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/utils"
)

const testSecret = "test-secret"

func authTestApp(mw fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/me", mw, func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		return c.JSON(fiber.Map{"authenticated": ok, "user_id": userID})
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	app := authTestApp(AuthMiddleware(cfg))

	// Missing header.
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	token, err := utils.GenerateToken(testSecret, uuid.New(), time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Token signed with the wrong secret.
	token, err = utils.GenerateToken("other-secret", uuid.New(), time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestOptionalAuthMiddleware_LetsAnonymousThrough(t *testing.T) {
	cfg := &config.Config{JWTSecret: testSecret}
	app := authTestApp(OptionalAuthMiddleware(cfg))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// An invalid token is ignored rather than rejected.
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/pending", APIKeyMiddleware("s3cret"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/pending", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/pending", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/pending", nil)
	req.Header.Set("X-API-Key", "s3cret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyMiddleware_UnconfiguredKeyIsUnavailable(t *testing.T) {
	app := fiber.New()
	app.Get("/pending", APIKeyMiddleware(""), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/pending", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
