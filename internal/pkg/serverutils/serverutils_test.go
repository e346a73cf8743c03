package serverutils

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"zero-entropy-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", rag.ErrInput), 400},
		{&ValidationError{Fields: map[string]string{"Message": "is required"}}, 400},
		{fmt.Errorf("x: %w", rag.ErrSessionNotFound), 404},
		{fmt.Errorf("x: %w", rag.ErrDocumentNotFound), 404},
		{fmt.Errorf("x: %w", rag.ErrSessionClosed), 409},
		{fmt.Errorf("x: %w", rag.ErrCapacityExceeded), 422},
		{fmt.Errorf("x: %w: boom", rag.ErrCollaboratorUnavailable), 503},
		{fiber.ErrMethodNotAllowed, 405},
		{fmt.Errorf("boom"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

type sample struct {
	Message string `validate:"required,max=5"`
	Kind    string `validate:"omitempty,oneof=a b"`
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(sample{Message: "hi"}))

	err := ValidateRequest(sample{Kind: "c"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["Message"])
	assert.Equal(t, "must be one of [a b]", verr.Fields["Kind"])
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/missing", func(ctx *fiber.Ctx) error {
		return fmt.Errorf("session s1: %w", rag.ErrSessionNotFound)
	})
	app.Get("/crash", func(ctx *fiber.Ctx) error {
		return fmt.Errorf("db password leaked")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	var body BaseResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Message, "session not found")

	resp, err = app.Test(httptest.NewRequest("GET", "/crash", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Message)
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJwtMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware("secret"))
	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.SendString(fmt.Sprint(ctx.Locals("user_id")))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other"))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret"))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestJwtMiddleware_DisabledWithoutSecret(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware(""))
	app.Get("/", func(ctx *fiber.Ctx) error { return ctx.SendStatus(204) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)

	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}
