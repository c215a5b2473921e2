package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/analytics"
	"github.com/attendbot/backend/internal/improvement"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/internal/storage/sqlite"
	"github.com/attendbot/backend/internal/training"
	"github.com/attendbot/backend/pkg/logger"
)

// AnswerCacheInvalidator drops every cached chat answer, so the next
// round of questions is answered fresh.
type AnswerCacheInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

type AdminHandler struct {
	engine    *analytics.Engine
	curator   *training.Curator
	pipeline  *improvement.Pipeline
	store     *sqlite.Client
	cache     AnswerCacheInvalidator
	exportDir string
}

func NewAdminHandler(engine *analytics.Engine, curator *training.Curator,
	pipeline *improvement.Pipeline, store *sqlite.Client,
	cache AnswerCacheInvalidator, exportDir string) *AdminHandler {
	return &AdminHandler{
		engine:    engine,
		curator:   curator,
		pipeline:  pipeline,
		store:     store,
		cache:     cache,
		exportDir: exportDir,
	}
}

func (h *AdminHandler) HandleOverview(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	overview, err := h.engine.Overview(days)
	if err != nil {
		logger.Error("Failed to build overview", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build analytics overview",
		})
	}

	return c.JSON(overview)
}

func (h *AdminHandler) HandleCategoryPerformance(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	reports, err := h.engine.CategoryPerformance(days)
	if err != nil {
		logger.Error("Failed to build category report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build category report",
		})
	}

	return c.JSON(fiber.Map{"categories": reports})
}

func (h *AdminHandler) HandleCategoryDetails(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	details, err := h.engine.CategoryDetails(days)
	if err != nil {
		logger.Error("Failed to build category details", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build category details",
		})
	}

	return c.JSON(fiber.Map{"categories": details})
}

func (h *AdminHandler) HandleDailyTrend(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)

	trend, err := h.engine.DailyTrend(days)
	if err != nil {
		logger.Error("Failed to build trend", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build daily trend",
		})
	}

	return c.JSON(fiber.Map{"trend": trend})
}

func (h *AdminHandler) HandleRecommendations(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	report, err := h.engine.Recommendations(days)
	if err != nil {
		logger.Error("Failed to build recommendations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build recommendations",
		})
	}

	return c.JSON(report)
}

func (h *AdminHandler) HandleRecentInteractions(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	category := c.Query("category")

	var interactions []models.Interaction
	var err error
	if category != "" {
		interactions, err = h.store.ListInteractionsByCategory(category)
	} else {
		interactions, err = h.store.ListInteractionsSince(time.Now().AddDate(0, 0, -days))
	}
	if err != nil {
		logger.Error("Failed to list interactions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list interactions",
		})
	}

	items := make([]fiber.Map, 0, len(interactions))
	for _, i := range interactions {
		items = append(items, fiber.Map{
			"interaction_id":   i.ID,
			"question":         i.Question,
			"answer":           i.Answer,
			"category":         i.Category,
			"session_id":       i.SessionID,
			"confidence":       i.Confidence,
			"response_time_ms": i.ResponseTimeMS,
			"created_at":       i.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"interactions": items})
}

func (h *AdminHandler) HandleRecentFeedback(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	rows, err := h.store.ListRecentFeedback(limit)
	if err != nil {
		logger.Error("Failed to list feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list feedback",
		})
	}

	items := make([]fiber.Map, 0, len(rows))
	for _, r := range rows {
		items = append(items, fiber.Map{
			"feedback_id":    r.Feedback.ID,
			"interaction_id": r.Feedback.InteractionID,
			"rating":         r.Feedback.OverallRating,
			"comment":        r.Feedback.Comment,
			"suggestion":     r.Feedback.SuggestedImprovement,
			"question":       r.Question,
			"answer":         r.Answer,
			"category":       r.Category,
			"created_at":     r.Feedback.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"feedback": items})
}

func (h *AdminHandler) HandleTrainingDataset(c *fiber.Ctx) error {
	format := c.Query("format", training.FormatJSON)
	approvedOnly := c.QueryBool("approved_only", false)

	data, count, err := h.curator.Dataset(format, approvedOnly)
	if err != nil {
		logger.Error("Failed to build dataset", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"format": format,
		"count":  count,
		"items":  data,
	})
}

func (h *AdminHandler) HandleTrainingExport(c *fiber.Ctx) error {
	var req struct {
		Format       string `json:"format"`
		ApprovedOnly bool   `json:"approved_only"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Format == "" {
		req.Format = training.FormatJSON
	}

	path, count, err := h.curator.Export(h.exportDir, req.Format, req.ApprovedOnly)
	if err != nil {
		logger.Error("Failed to export dataset", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export dataset",
		})
	}

	return c.JSON(fiber.Map{
		"path":  path,
		"count": count,
	})
}

func (h *AdminHandler) HandleApproveTrainingItem(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Training item id is required",
		})
	}

	if err := h.curator.Approve(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Training item not found",
			})
		}
		logger.Error("Failed to approve training item", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to approve training item",
		})
	}

	return c.JSON(fiber.Map{
		"id":       id,
		"approved": true,
	})
}

func (h *AdminHandler) HandleTrainingReadiness(c *fiber.Ctx) error {
	minApproved := c.QueryInt("min_approved", 10)

	readiness, err := h.engine.TrainingReadiness(minApproved)
	if err != nil {
		logger.Error("Failed to compute readiness", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute training readiness",
		})
	}

	return c.JSON(readiness)
}

func (h *AdminHandler) HandleRunImprovement(c *fiber.Ctx) error {
	var req struct {
		DaysBack int `json:"days_back"`
	}
	// Empty body means defaults.
	c.BodyParser(&req)

	result := h.pipeline.Run(c.Context(), req.DaysBack)

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusInternalServerError
	}

	return c.Status(status).JSON(result)
}

func (h *AdminHandler) HandleImprovementHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)

	history, err := h.pipeline.History(limit)
	if err != nil {
		logger.Error("Failed to list improvement history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list improvement history",
		})
	}

	return c.JSON(fiber.Map{"cycles": history})
}

func (h *AdminHandler) HandleInvalidateAnswerCache(c *fiber.Ctx) error {
	if h.cache == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Answer cache is not enabled",
		})
	}

	if err := h.cache.InvalidateAnswers(c.Context()); err != nil {
		logger.Error("Failed to invalidate answer cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to invalidate answer cache",
		})
	}

	return c.JSON(fiber.Map{"message": "Answer cache invalidated"})
}
