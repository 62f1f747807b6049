package middlewares

import (
	"github.com/X9Cipher/alumni-portal-sub001/pkg/logger"
	t_token "github.com/X9Cipher/alumni-portal-sub001/pkg/token"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// QueryToken socket token in query name
	QueryToken = "token"
	// QueryAuth legacy query name, still accepted
	QueryAuth = "auth"

	// CookieToken portal session token in cookie name
	CookieToken = "auth_token"

	// TokenUserID c.Locals key for the authenticated user id
	TokenUserID = "userID"
	// TokenUserType c.Locals key for the authenticated role
	TokenUserType = "userType"
)

// JWTMiddleware authenticates HTTP requests with the portal session token
// from the Authorization header or the auth_token cookie.
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := t_token.StripBearer(c.Get(fiber.HeaderAuthorization))
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}
		return authenticate(c, tokenStr)
	}
}

// SocketAuth authenticates the websocket handshake. The token comes from
// ?token=, ?auth= or the Authorization header. Anything invalid is
// refused before the upgrade happens.
func SocketAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)
		if tokenStr == "" {
			tokenStr = c.Query(QueryAuth)
		}
		if tokenStr == "" {
			tokenStr = t_token.StripBearer(c.Get(fiber.HeaderAuthorization))
		}
		return authenticate(c, tokenStr)
	}
}

func authenticate(c *fiber.Ctx, tokenStr string) error {
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing token",
		})
	}

	claims, err := t_token.ParseJWT(tokenStr)
	if err != nil {
		logger.Log.Debug("token rejected", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
	}

	c.Locals(TokenUserID, claims.UserID)
	c.Locals(TokenUserType, claims.UserType)
	return c.Next()
}
