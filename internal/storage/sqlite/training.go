package sqlite

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

func (c *Client) InsertTrainingItem(item *models.TrainingItem) error {
	needsImprovement := 0
	if item.NeedsImprovement {
		needsImprovement = 1
	}
	approved := 0
	if item.Approved {
		approved = 1
	}
	verified := 0
	if item.HumanVerified {
		verified = 1
	}

	query := `
		INSERT INTO training_dataset (id, question, ideal_answer, actual_answer,
			feedback_score, quality_score, needs_improvement, training_priority,
			category, difficulty_level, data_source, approved_for_training,
			human_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		item.ID,
		item.Question,
		item.IdealAnswer,
		item.ActualAnswer,
		item.FeedbackScore,
		item.QualityScore,
		needsImprovement,
		item.Priority,
		item.Category,
		item.Difficulty,
		item.DataSource,
		approved,
		verified,
		item.CreatedAt.Unix(),
		item.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("%w: insert training item: %v", models.ErrStorageUnavailable, err)
	}

	logger.Debug("Training item stored",
		zap.String("item_id", item.ID),
		zap.Int("priority", item.Priority),
		zap.Float64("quality", item.QualityScore),
	)

	return nil
}

// ListTrainingItems returns curated examples ordered by priority then
// quality, both descending. Items below the quality threshold are
// excluded; approvedOnly additionally filters to the approved subset.
func (c *Client) ListTrainingItems(qualityThreshold float64, approvedOnly bool, limit int) ([]models.TrainingItem, error) {
	query := `
		SELECT id, question, COALESCE(ideal_answer, ''), COALESCE(actual_answer, ''),
			feedback_score, quality_score, needs_improvement, training_priority,
			COALESCE(category, ''), difficulty_level, COALESCE(data_source, ''),
			approved_for_training, human_verified, created_at, updated_at
		FROM training_dataset
		WHERE quality_score >= ?
	`
	args := []interface{}{qualityThreshold}

	if approvedOnly {
		query += " AND approved_for_training = 1"
	}

	query += " ORDER BY training_priority DESC, quality_score DESC LIMIT ?"
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list training items: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var items []models.TrainingItem
	for rows.Next() {
		var item models.TrainingItem
		var needsImprovement, approved, verified int
		var createdAt, updatedAt int64

		err := rows.Scan(&item.ID, &item.Question, &item.IdealAnswer, &item.ActualAnswer,
			&item.FeedbackScore, &item.QualityScore, &needsImprovement, &item.Priority,
			&item.Category, &item.Difficulty, &item.DataSource,
			&approved, &verified, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		item.NeedsImprovement = needsImprovement != 0
		item.Approved = approved != 0
		item.HumanVerified = verified != 0
		item.CreatedAt = time.Unix(createdAt, 0)
		item.UpdatedAt = time.Unix(updatedAt, 0)
		items = append(items, item)
	}

	return items, nil
}

func (c *Client) ApproveTrainingItem(id string) error {
	result, err := c.db.Exec(
		`UPDATE training_dataset SET approved_for_training = 1, human_verified = 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("%w: approve training item: %v", models.ErrStorageUnavailable, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: training item %s", models.ErrNotFound, id)
	}

	logger.Info("Training item approved", zap.String("item_id", id))
	return nil
}

func (c *Client) CountTrainingItems() (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM training_dataset`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: training count: %v", models.ErrStorageUnavailable, err)
	}
	return count, nil
}

// TrainingReadiness summarizes how close the curated set is to being
// usable for a fine-tuning run.
type TrainingReadiness struct {
	TotalItems    int
	ApprovedItems int
	HighPriority  int
	AvgQuality    float64
}

func (c *Client) TrainingReadinessStats() (*TrainingReadiness, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(approved_for_training), 0),
			COALESCE(SUM(CASE WHEN training_priority >= 4 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(quality_score), 0)
		FROM training_dataset
	`

	var r TrainingReadiness
	err := c.db.QueryRow(query).Scan(&r.TotalItems, &r.ApprovedItems, &r.HighPriority, &r.AvgQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: readiness stats: %v", models.ErrStorageUnavailable, err)
	}

	return &r, nil
}

// CategoryReadiness is the curated-set breakdown for one category.
type CategoryReadiness struct {
	Category      string
	TotalItems    int
	ApprovedItems int
	AvgQuality    float64
}

func (c *Client) TrainingReadinessByCategory() ([]CategoryReadiness, error) {
	query := `
		SELECT COALESCE(category, ''), COUNT(*),
			COALESCE(SUM(approved_for_training), 0),
			COALESCE(AVG(quality_score), 0)
		FROM training_dataset
		GROUP BY category
		ORDER BY COUNT(*) DESC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: readiness by category: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var breakdown []CategoryReadiness
	for rows.Next() {
		var r CategoryReadiness
		if err := rows.Scan(&r.Category, &r.TotalItems, &r.ApprovedItems, &r.AvgQuality); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		breakdown = append(breakdown, r)
	}

	return breakdown, nil
}

// CategoryBacklog counts curated items still flagged as needing
// improvement, per category.
type CategoryBacklog struct {
	Category      string
	TrainingItems int
	AvgQuality    float64
}

// TrainingBacklogByCategory returns the unresolved curation backlog,
// biggest category first.
func (c *Client) TrainingBacklogByCategory() ([]CategoryBacklog, error) {
	query := `
		SELECT COALESCE(category, ''), COUNT(*), COALESCE(AVG(quality_score), 0)
		FROM training_dataset
		WHERE needs_improvement = 1
		GROUP BY category
		ORDER BY COUNT(*) DESC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: training backlog: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var backlog []CategoryBacklog
	for rows.Next() {
		var b CategoryBacklog
		if err := rows.Scan(&b.Category, &b.TrainingItems, &b.AvgQuality); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		backlog = append(backlog, b)
	}

	return backlog, nil
}
