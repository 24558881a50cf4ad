package middlewares

import (
	"strings"

	errprocess "social_chat_service/pkg/err"
	t_token "social_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
)

// JWTMiddleware validates JWT from query, cookie or Authorization header
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Query(QueryToken)

		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
				tokenStr = h
			}
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
				"code":  errprocess.CodeUnauthenticated,
			})
		}

		claims, err := t_token.ParseJWTWrapper(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
				"code":  errprocess.CodeUnauthenticated,
			})
		}

		c.Locals(TokenMemberID, claims.MemberID)
		return c.Next()
	}
}

// MemberID read caller id put by JWTMiddleware
func MemberID(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(TokenMemberID).(string)
	return id, ok && id != ""
}
