package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/billing"
)

// HandleGetAccount returns account information for the authenticated user.
// The credit balance here is the single source of truth the client renders.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetAccountRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	assistantCount, err := repository.GetGlobalFactory().GetAssistantRepository().CountByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load statistics")
	}

	return c.JSON(fiber.Map{
		"id":            account.ID,
		"username":      account.Name,
		"email":         account.Email,
		"avatar_url":    account.AvatarURL,
		"status":        account.Status,
		"is_admin":      account.Role == models.ROLE_ADMIN,
		"plan":          account.PlanLabel(),
		"credits":       account.Credits,
		"credits_max":   billing.MaxPlanCredits(account.HasSubscription()),
		"can_chat":      account.Credits > 0,
		"created_at":    account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"subscription": fiber.Map{
			"active": account.HasSubscription(),
			"id":     account.SubscriptionID,
		},
		"stats": fiber.Map{
			"assistants": fiber.Map{
				"count": assistantCount,
			},
		},
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
