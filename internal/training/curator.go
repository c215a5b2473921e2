package training

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

// Store is the training-dataset storage surface.
type Store interface {
	InsertTrainingItem(item *models.TrainingItem) error
	ListTrainingItems(qualityThreshold float64, approvedOnly bool, limit int) ([]models.TrainingItem, error)
	ApproveTrainingItem(id string) error
}

// Curator turns feedback into training examples and serves the curated
// dataset in model-specific formats.
type Curator struct {
	store            Store
	qualityThreshold float64
	exportLimit      int
}

func NewCurator(store Store, qualityThreshold float64, exportLimit int) *Curator {
	return &Curator{
		store:            store,
		qualityThreshold: qualityThreshold,
		exportLimit:      exportLimit,
	}
}

// CurateFromFeedback synthesizes one training item from a feedback
// event. The improvement suggestion, when present, becomes the ideal
// answer; quality and priority are derived from the rating at creation
// time and never recomputed.
func (c *Curator) CurateFromFeedback(ctx context.Context, fb *models.Feedback, interaction *models.Interaction) error {
	now := time.Now()

	item := &models.TrainingItem{
		ID:               uuid.New().String(),
		Question:         interaction.Question,
		IdealAnswer:      fb.SuggestedImprovement,
		ActualAnswer:     interaction.Answer,
		FeedbackScore:    fb.OverallRating,
		QualityScore:     QualityScore(fb.OverallRating),
		NeedsImprovement: true,
		Priority:         Priority(fb.OverallRating),
		Category:         interaction.Category,
		Difficulty:       Difficulty(interaction.Question),
		DataSource:       "user_feedback",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := c.store.InsertTrainingItem(item); err != nil {
		return err
	}

	metrics.TrainingItemsCreated.WithLabelValues("user_feedback").Inc()

	logger.Info("Training item curated from feedback",
		zap.String("item_id", item.ID),
		zap.String("interaction_id", interaction.ID),
		zap.Int("priority", item.Priority),
		zap.String("difficulty", item.Difficulty),
	)

	return nil
}

// Synthesize inserts a pre-built training item, used by the improvement
// pipeline for auto-generated examples.
func (c *Curator) Synthesize(item *models.TrainingItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.Difficulty == "" {
		item.Difficulty = Difficulty(item.Question)
	}

	if err := c.store.InsertTrainingItem(item); err != nil {
		return err
	}

	metrics.TrainingItemsCreated.WithLabelValues(item.DataSource).Inc()
	return nil
}

func (c *Curator) Approve(id string) error {
	return c.store.ApproveTrainingItem(id)
}

func (c *Curator) Items(approvedOnly bool) ([]models.TrainingItem, error) {
	return c.store.ListTrainingItems(c.qualityThreshold, approvedOnly, c.exportLimit)
}

// QualityScore maps a 1-5 star rating onto a 0-1 scale where worse
// ratings score higher. The dataset prioritizes fixing what users
// disliked, so low stars mean high curation value.
func QualityScore(rating int) float64 {
	return 1.0 - float64(rating)/5.0
}

// Priority maps a rating onto 1-5 with 1-star feedback most urgent.
func Priority(rating int) int {
	p := 6 - rating
	if p < 1 {
		p = 1
	}
	return p
}

// Difficulty buckets a question by token count: under 10 tokens easy,
// under 20 medium, otherwise hard.
func Difficulty(question string) string {
	count := tokenCount(question)
	switch {
	case count < 10:
		return "easy"
	case count < 20:
		return "medium"
	default:
		return "hard"
	}
}

func tokenCount(text string) int {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return len(strings.Fields(text))
	}
	return len(doc.Tokens())
}
