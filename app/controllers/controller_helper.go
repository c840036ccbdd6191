package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasBergmann/CompanionDeck/internal/pkg/usercontext"
)

// Session/Locals keys shared with the middleware layer.
const (
	AUTH_KEY       = usercontext.AuthKey
	USER_ID        = usercontext.KeyUserID
	USER_NAME      = usercontext.KeyUsername
	USER_IS_ADMIN  = usercontext.KeyIsAdmin
	FROM_PROTECTED = usercontext.KeyFromProtected
	USER_PLAN      = usercontext.KeyUserPlan
)

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

func requireSessionUser(c *fiber.Ctx) (usercontext.UserContext, bool) {
	userCtx := usercontext.GetUserContext(c)
	return userCtx, userCtx.IsLoggedIn
}
