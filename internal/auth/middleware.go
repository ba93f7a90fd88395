package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/pkg/logger"
)

const principalKey = "auth.principal"

// Middleware rejects requests without an acceptable bearer token. The token
// is read from the Authorization header, or from the access_token query
// parameter for websocket upgrades where browsers cannot set headers.
func Middleware(verifier Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := ExtractToken(c)
		if token == "" {
			return apperr.Auth("missing bearer token")
		}

		principal, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			logger.Debug("Bearer token rejected",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
				zap.Error(err),
			)
			return apperr.Auth("invalid authentication token")
		}

		c.Locals(principalKey, principal)
		return c.Next()
	}
}

func ExtractToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("access_token")
}

// PrincipalFrom returns the principal stored by Middleware, if any.
func PrincipalFrom(c *fiber.Ctx) *Principal {
	p, _ := c.Locals(principalKey).(*Principal)
	return p
}
