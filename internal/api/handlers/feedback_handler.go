package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/feedback"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

type FeedbackHandler struct {
	feedbackService *feedback.Service
}

func NewFeedbackHandler(feedbackService *feedback.Service) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService}
}

func (h *FeedbackHandler) HandleSubmit(c *fiber.Ctx) error {
	var req struct {
		InteractionID        string `json:"interaction_id"`
		Rating               int    `json:"rating"`
		AccuracyRating       int    `json:"accuracy_rating"`
		HelpfulnessRating    int    `json:"helpfulness_rating"`
		ClarityRating        int    `json:"clarity_rating"`
		Comment              string `json:"comment"`
		SuggestedImprovement string `json:"suggested_improvement"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.InteractionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "interaction_id is required",
		})
	}

	fb, err := h.feedbackService.Submit(c.Context(), feedback.Submission{
		InteractionID:        req.InteractionID,
		OverallRating:        req.Rating,
		AccuracyRating:       req.AccuracyRating,
		HelpfulnessRating:    req.HelpfulnessRating,
		ClarityRating:        req.ClarityRating,
		Comment:              req.Comment,
		SuggestedImprovement: req.SuggestedImprovement,
		UserIP:               c.IP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidRating):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Rating must be between 1 and 5",
			})
		case errors.Is(err, models.ErrUnknownInteraction):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown interaction",
			})
		default:
			logger.Error("Failed to store feedback", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to store feedback",
			})
		}
	}

	return c.JSON(fiber.Map{
		"feedback_id": fb.ID,
		"message":     "Thank you for your feedback!",
	})
}

func (h *FeedbackHandler) HandlePromptDecision(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	decision, err := h.feedbackService.ShouldRequestFeedback(c.Context(), c.Query("user_id"), sessionID)
	if err != nil {
		logger.Error("Feedback prompt decision failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evaluate feedback prompt",
		})
	}

	result := fiber.Map{"request_feedback": decision.Request}
	if decision.Request {
		result["prompt"] = fiber.Map{
			"prompt_id":   decision.Prompt.ID,
			"prompt_text": decision.Prompt.Text,
			"prompt_type": decision.Prompt.Type,
		}
	}

	return c.JSON(result)
}

func (h *FeedbackHandler) HandleSetPreferences(c *fiber.Ctx) error {
	var req struct {
		UserID    string `json:"user_id"`
		Frequency int    `json:"frequency"`
		OptOut    bool   `json:"opt_out"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	pref, err := h.feedbackService.SetPreferences(req.UserID, req.Frequency, req.OptOut)
	if err != nil {
		logger.Error("Failed to update preferences", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update preferences",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":   pref.UserID,
		"frequency": pref.FeedbackFrequency,
		"opt_out":   pref.OptOut,
	})
}
