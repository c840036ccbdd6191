package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/chat"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/database"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/ledger"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/metrics"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/metrics/counter"
)

var completionClient chat.Completer

// SetCompletionClient swaps the completion backend, used by tests.
func SetCompletionClient(c chat.Completer) {
	completionClient = c
}

func getCompletionClient() chat.Completer {
	if completionClient == nil {
		completionClient = chat.NewClientFromEnv()
	}
	return completionClient
}

type chatRequest struct {
	AssistantID uint           `json:"assistant_id"`
	Messages    []chat.Message `json:"messages"`
}

// HandleChatCompletion runs one chat turn: gate on the balance, produce the
// assistant reply, then charge its word count. The debit happens after the
// response and clamps at zero, so a turn started with a positive balance is
// never interrupted mid-flight.
func HandleChatCompletion(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}
	if len(req.Messages) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Messages are required")
	}

	ledgerSvc := ledger.NewServiceFromDB(database.GetDB())
	account, err := ledgerSvc.Read(c.Context(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}
	if !ledger.CanChat(account.Credits) {
		metrics.ChatCompletions.WithLabelValues("insufficient_credits").Inc()
		return jsonError(c, fiber.StatusPaymentRequired, "insufficient_credits", "Credit balance is exhausted, upgrade to keep chatting")
	}

	messages := req.Messages
	if req.AssistantID != 0 {
		assistant, err := loadOwnedAssistant(repository.GetGlobalFactory().GetAssistantRepository(), req.AssistantID, userCtx.UserID)
		if err != nil {
			return respondAssistantLookup(c, err)
		}
		if system := buildSystemPrompt(assistant.Instruction, assistant.UserInstruction); system != "" {
			messages = append([]chat.Message{{Role: "system", Content: system}}, messages...)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	reply, err := getCompletionClient().Complete(ctx, messages)
	if err != nil {
		log.Printf("chat: completion for account %d failed: %v", userCtx.UserID, err)
		metrics.ChatCompletions.WithLabelValues("error").Inc()
		return jsonError(c, fiber.StatusBadGateway, "completion_failed", "The assistant could not produce a response")
	}
	metrics.ChatCompletions.WithLabelValues("ok").Inc()
	if req.AssistantID != 0 {
		// Best-effort usage counter, flushed to the assistants table in batches.
		if err := counter.AddAssistantChat(req.AssistantID); err != nil {
			log.Printf("chat: usage counter for assistant %d failed: %v", req.AssistantID, err)
		}
	}

	// The response is already produced; charge it even if the balance only
	// partially covers the cost.
	account, err = ledgerSvc.DebitForResponse(ctx, userCtx.UserID, reply)
	if err != nil {
		log.Printf("chat: debit for account %d failed, balance stays stale this turn: %v", userCtx.UserID, err)
	}

	resp := fiber.Map{
		"exchange_id": uuid.NewString(),
		"message":     chat.Message{Role: "assistant", Content: reply},
		"cost":        ledger.MessageCost(reply),
	}
	if account != nil {
		resp["credits"] = account.Credits
		resp["can_chat"] = ledger.CanChat(account.Credits)
	}
	return c.JSON(resp)
}

func buildSystemPrompt(instruction, userInstruction string) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(instruction); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(userInstruction); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
