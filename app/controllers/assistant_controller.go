package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
)

type assistantRequest struct {
	TemplateID      int    `json:"template_id"`
	Name            string `json:"name"`
	Title           string `json:"title"`
	Image           string `json:"image"`
	Instruction     string `json:"instruction"`
	UserInstruction string `json:"user_instruction"`
	SampleQuestions string `json:"sample_questions"`
	AIModelID       string `json:"ai_model_id"`
}

// HandleListAssistants returns the caller's configured assistants.
func HandleListAssistants(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	assistants, err := repository.GetGlobalFactory().GetAssistantRepository().GetByUserID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load assistants")
	}
	return c.JSON(fiber.Map{"assistants": assistants})
}

// HandleCreateAssistants accepts a single assistant object or an array of
// them; the array form backs onboarding, which inserts the selected catalog
// templates in one batch.
func HandleCreateAssistants(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var reqs []assistantRequest
	if err := c.BodyParser(&reqs); err != nil {
		var single assistantRequest
		if err := c.BodyParser(&single); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
		}
		reqs = []assistantRequest{single}
	}
	if len(reqs) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "No assistants given")
	}

	assistants := make([]models.Assistant, 0, len(reqs))
	for _, req := range reqs {
		if strings.TrimSpace(req.Name) == "" {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "Assistant name is required")
		}
		assistants = append(assistants, models.Assistant{
			UserID:          userCtx.UserID,
			TemplateID:      req.TemplateID,
			Name:            strings.TrimSpace(req.Name),
			Title:           req.Title,
			Image:           req.Image,
			Instruction:     req.Instruction,
			UserInstruction: req.UserInstruction,
			SampleQuestions: req.SampleQuestions,
			AIModelID:       req.AIModelID,
		})
	}

	if err := repository.GetGlobalFactory().GetAssistantRepository().CreateBatch(assistants); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create assistants")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"assistants": assistants})
}

// HandleUpdateAssistant updates one assistant owned by the caller.
func HandleUpdateAssistant(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid assistant id")
	}

	repo := repository.GetGlobalFactory().GetAssistantRepository()
	assistant, err := loadOwnedAssistant(repo, uint(id), userCtx.UserID)
	if err != nil {
		return respondAssistantLookup(c, err)
	}

	var req assistantRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}
	if strings.TrimSpace(req.Name) != "" {
		assistant.Name = strings.TrimSpace(req.Name)
	}
	assistant.Title = req.Title
	assistant.Image = req.Image
	assistant.Instruction = req.Instruction
	assistant.UserInstruction = req.UserInstruction
	assistant.SampleQuestions = req.SampleQuestions
	if req.AIModelID != "" {
		assistant.AIModelID = req.AIModelID
	}

	if err := repo.Update(assistant); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update assistant")
	}
	return c.JSON(assistant)
}

// HandleDeleteAssistant removes one assistant owned by the caller.
func HandleDeleteAssistant(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid assistant id")
	}

	repo := repository.GetGlobalFactory().GetAssistantRepository()
	assistant, err := loadOwnedAssistant(repo, uint(id), userCtx.UserID)
	if err != nil {
		return respondAssistantLookup(c, err)
	}

	if err := repo.Delete(assistant.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete assistant")
	}
	return c.JSON(fiber.Map{"ok": true})
}

var errAssistantForbidden = errors.New("assistant belongs to another user")

func loadOwnedAssistant(repo repository.AssistantRepository, id, userID uint) (*models.Assistant, error) {
	assistant, err := repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if assistant.UserID != userID {
		return nil, errAssistantForbidden
	}
	return assistant, nil
}

func respondAssistantLookup(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Assistant not found")
	}
	if errors.Is(err, errAssistantForbidden) {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Assistant not found")
	}
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load assistant")
}
