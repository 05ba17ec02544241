package middleware

import (
	"context"
	"errors"
	"strings"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/gofiber/fiber/v3"
	"github.com/rapprochement/rapprochement-api/internal/utils"
)

// TokenVerifier validates a bearer token and returns the operator id it was issued to
type TokenVerifier func(ctx context.Context, token string) (string, error)

// ClerkVerifier verifies Clerk session JWTs
func ClerkVerifier(secretKey string) TokenVerifier {
	clerk.SetKey(secretKey)

	return func(ctx context.Context, token string) (string, error) {
		if secretKey == "" {
			return "", errors.New("server misconfiguration: CLERK_SECRET_KEY not set")
		}
		claims, err := jwt.Verify(ctx, &jwt.VerifyParams{Token: token})
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

// ClerkAuth middleware validates bearer tokens and stores the operator id.
// The id is recorded as updated_by / verified_by on every transition.
func ClerkAuth(verify TokenVerifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Missing authorization token")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader || token == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization header format")
		}

		subject, err := verify(c.Context(), token)
		if err != nil || subject == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals("user_id", subject)
		return c.Next()
	}
}

// Actor returns the authenticated operator id, or "" outside ClerkAuth.
func Actor(c fiber.Ctx) string {
	actor, _ := c.Locals("user_id").(string)
	return actor
}
