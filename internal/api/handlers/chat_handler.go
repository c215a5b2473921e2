package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/chat"
	"github.com/attendbot/backend/internal/feedback"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

// HistoryStore lists past exchanges for one session.
type HistoryStore interface {
	ListInteractionsBySession(sessionID string, limit int) ([]models.Interaction, error)
}

type ChatHandler struct {
	chatService     *chat.Service
	feedbackService *feedback.Service
	history         HistoryStore
}

func NewChatHandler(chatService *chat.Service, feedbackService *feedback.Service, history HistoryStore) *ChatHandler {
	return &ChatHandler{
		chatService:     chatService,
		feedbackService: feedbackService,
		history:         history,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	response, err := h.chatService.Ask(c.Context(), req.Message, req.SessionID, req.UserID, c.IP())
	if err != nil {
		logger.Error("Failed to answer chat message", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	result := fiber.Map{
		"interaction_id":   response.InteractionID,
		"answer":           response.Answer,
		"category":         response.Category,
		"confidence":       response.Confidence,
		"response_time_ms": response.ResponseTimeMS,
		"data_sources":     response.DataSources,
		"cached":           response.Cached,
	}

	decision, err := h.feedbackService.ShouldRequestFeedback(c.Context(), req.UserID, req.SessionID)
	if err != nil {
		logger.Warn("Feedback prompt decision failed", zap.Error(err))
	} else if decision.Request {
		result["feedback_request"] = fiber.Map{
			"prompt_id":   decision.Prompt.ID,
			"prompt_text": decision.Prompt.Text,
			"prompt_type": decision.Prompt.Type,
		}
	}

	return c.JSON(result)
}

func (h *ChatHandler) HandleHistory(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	limit := c.QueryInt("limit", 50)

	interactions, err := h.history.ListInteractionsBySession(sessionID, limit)
	if err != nil {
		logger.Error("Failed to list session history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	items := make([]fiber.Map, 0, len(interactions))
	for _, i := range interactions {
		items = append(items, fiber.Map{
			"interaction_id":   i.ID,
			"question":         i.Question,
			"answer":           i.Answer,
			"category":         i.Category,
			"confidence":       i.Confidence,
			"response_time_ms": i.ResponseTimeMS,
			"created_at":       i.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"count":      len(items),
		"history":    items,
	})
}
