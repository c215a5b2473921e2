package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT,
		response_time_ms INTEGER,
		session_id TEXT,
		user_id TEXT,
		user_ip TEXT,
		confidence REAL DEFAULT 0.5,
		data_sources TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_category ON interactions(category);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		interaction_id TEXT NOT NULL,
		overall_rating INTEGER NOT NULL CHECK (overall_rating >= 1 AND overall_rating <= 5),
		accuracy_rating INTEGER,
		helpfulness_rating INTEGER,
		clarity_rating INTEGER,
		comment TEXT,
		suggested_improvement TEXT,
		is_helpful INTEGER,
		user_ip TEXT,
		feedback_type TEXT DEFAULT 'manual',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (interaction_id) REFERENCES interactions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_interaction ON feedback(interaction_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS training_dataset (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		ideal_answer TEXT,
		actual_answer TEXT,
		feedback_score INTEGER,
		quality_score REAL DEFAULT 0.0,
		needs_improvement INTEGER DEFAULT 0,
		training_priority INTEGER DEFAULT 1,
		category TEXT,
		difficulty_level TEXT DEFAULT 'medium',
		data_source TEXT,
		approved_for_training INTEGER DEFAULT 0,
		human_verified INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_training_priority ON training_dataset(training_priority);
	CREATE INDEX IF NOT EXISTS idx_training_category ON training_dataset(category);

	CREATE TABLE IF NOT EXISTS feedback_prompts (
		id TEXT PRIMARY KEY,
		prompt_text TEXT NOT NULL UNIQUE,
		prompt_type TEXT NOT NULL,
		frequency INTEGER DEFAULT 5,
		is_active INTEGER DEFAULT 1,
		usage_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		feedback_frequency INTEGER DEFAULT 5,
		last_feedback_request INTEGER,
		feedback_opt_out INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS improvement_cycles (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		days_analyzed INTEGER,
		steps_completed TEXT,
		training_data_created INTEGER DEFAULT 0,
		success INTEGER DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_started ON improvement_cycles(started_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := c.seedDefaultPrompts(); err != nil {
		return err
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) seedDefaultPrompts() error {
	defaults := []struct {
		text      string
		promptType string
		frequency int
	}{
		{"How helpful was my previous response?", "helpfulness", 5},
		{"Was my answer accurate and complete?", "accuracy", 3},
		{"How can I improve my responses?", "improvement", 10},
		{"Rate the clarity of my explanation (1-5 stars)", "clarity", 7},
	}

	for _, p := range defaults {
		_, err := c.db.Exec(
			`INSERT OR IGNORE INTO feedback_prompts (id, prompt_text, prompt_type, frequency, created_at) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), p.text, p.promptType, p.frequency, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to seed feedback prompts: %w", err)
		}
	}

	return nil
}

func (c *Client) InsertInteraction(interaction *models.Interaction) error {
	sourcesJSON, _ := json.Marshal(interaction.DataSources)

	query := `
		INSERT INTO interactions (id, question, answer, category, response_time_ms,
			session_id, user_id, user_ip, confidence, data_sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		interaction.ID,
		interaction.Question,
		interaction.Answer,
		interaction.Category,
		interaction.ResponseTimeMS,
		interaction.SessionID,
		interaction.UserID,
		interaction.UserIP,
		interaction.Confidence,
		string(sourcesJSON),
		interaction.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("%w: insert interaction: %v", models.ErrStorageUnavailable, err)
	}

	logger.Debug("Interaction recorded",
		zap.String("interaction_id", interaction.ID),
		zap.String("category", interaction.Category),
	)

	return nil
}

func (c *Client) GetInteraction(id string) (*models.Interaction, error) {
	query := `
		SELECT id, question, answer, category, response_time_ms, session_id,
			user_id, user_ip, confidence, data_sources, created_at
		FROM interactions WHERE id = ?
	`

	var i models.Interaction
	var sourcesJSON sql.NullString
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&i.ID,
		&i.Question,
		&i.Answer,
		&i.Category,
		&i.ResponseTimeMS,
		&i.SessionID,
		&i.UserID,
		&i.UserIP,
		&i.Confidence,
		&sourcesJSON,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: interaction %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get interaction: %v", models.ErrStorageUnavailable, err)
	}

	if sourcesJSON.Valid && sourcesJSON.String != "" {
		json.Unmarshal([]byte(sourcesJSON.String), &i.DataSources)
	}
	i.CreatedAt = time.Unix(createdAt, 0)

	return &i, nil
}

func (c *Client) ListInteractionsSince(since time.Time) ([]models.Interaction, error) {
	query := `
		SELECT id, question, answer, category, response_time_ms, session_id,
			user_id, confidence, created_at
		FROM interactions
		WHERE created_at >= ?
		ORDER BY created_at ASC
	`
	return c.scanInteractions(query, since.Unix())
}

func (c *Client) ListInteractionsByCategory(category string) ([]models.Interaction, error) {
	query := `
		SELECT id, question, answer, category, response_time_ms, session_id,
			user_id, confidence, created_at
		FROM interactions
		WHERE category = ?
		ORDER BY created_at DESC
	`
	return c.scanInteractions(query, category)
}

func (c *Client) ListInteractionsBySession(sessionID string, limit int) ([]models.Interaction, error) {
	query := `
		SELECT id, question, answer, category, response_time_ms, session_id,
			user_id, confidence, created_at
		FROM interactions
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return c.scanInteractions(query, sessionID, limit)
}

func (c *Client) scanInteractions(query string, args ...interface{}) ([]models.Interaction, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list interactions: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	for rows.Next() {
		var i models.Interaction
		var createdAt int64

		err := rows.Scan(&i.ID, &i.Question, &i.Answer, &i.Category, &i.ResponseTimeMS,
			&i.SessionID, &i.UserID, &i.Confidence, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		i.CreatedAt = time.Unix(createdAt, 0)
		interactions = append(interactions, i)
	}

	return interactions, nil
}

func (c *Client) CountInteractionsBySession(sessionID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: session count: %v", models.ErrStorageUnavailable, err)
	}
	return count, nil
}

func (c *Client) InsertFeedback(feedback *models.Feedback) error {
	helpful := 0
	if feedback.IsHelpful {
		helpful = 1
	}

	query := `
		INSERT INTO feedback (id, interaction_id, overall_rating, accuracy_rating,
			helpfulness_rating, clarity_rating, comment, suggested_improvement,
			is_helpful, user_ip, feedback_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		feedback.ID,
		feedback.InteractionID,
		feedback.OverallRating,
		feedback.AccuracyRating,
		feedback.HelpfulnessRating,
		feedback.ClarityRating,
		feedback.Comment,
		feedback.SuggestedImprovement,
		helpful,
		feedback.UserIP,
		feedback.FeedbackType,
		feedback.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("%w: insert feedback: %v", models.ErrStorageUnavailable, err)
	}

	logger.Info("Feedback stored",
		zap.String("feedback_id", feedback.ID),
		zap.String("interaction_id", feedback.InteractionID),
		zap.Int("rating", feedback.OverallRating),
	)

	return nil
}

func (c *Client) ListRecentFeedback(limit int) ([]models.FeedbackWithInteraction, error) {
	query := `
		SELECT f.id, f.interaction_id, f.overall_rating, f.comment,
			f.suggested_improvement, f.created_at,
			i.question, i.answer, i.category
		FROM feedback f
		JOIN interactions i ON f.interaction_id = i.id
		ORDER BY f.created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent feedback: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []models.FeedbackWithInteraction
	for rows.Next() {
		var r models.FeedbackWithInteraction
		var createdAt int64

		err := rows.Scan(&r.Feedback.ID, &r.Feedback.InteractionID, &r.Feedback.OverallRating,
			&r.Feedback.Comment, &r.Feedback.SuggestedImprovement, &createdAt,
			&r.Question, &r.Answer, &r.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Feedback.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, r)
	}

	return results, nil
}

// ListPoorlyRated returns feedback at or below the rating ceiling in one
// category, joined with the rated exchange. Used by pipeline synthesis.
func (c *Client) ListPoorlyRated(category string, maxRating int, since time.Time) ([]models.FeedbackWithInteraction, error) {
	query := `
		SELECT f.id, f.interaction_id, f.overall_rating, f.suggested_improvement,
			i.question, i.answer, i.category
		FROM feedback f
		JOIN interactions i ON f.interaction_id = i.id
		WHERE i.category = ? AND f.overall_rating <= ? AND i.created_at >= ?
	`

	rows, err := c.db.Query(query, category, maxRating, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: poorly rated: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []models.FeedbackWithInteraction
	for rows.Next() {
		var r models.FeedbackWithInteraction
		err := rows.Scan(&r.Feedback.ID, &r.Feedback.InteractionID, &r.Feedback.OverallRating,
			&r.Feedback.SuggestedImprovement, &r.Question, &r.Answer, &r.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}

	return results, nil
}

// ListFeedbackBySuggestion returns feedback rows whose improvement
// suggestion contains the given text.
func (c *Client) ListFeedbackBySuggestion(suggestion string) ([]models.FeedbackWithInteraction, error) {
	query := `
		SELECT f.id, f.interaction_id, f.overall_rating, f.suggested_improvement,
			i.question, i.answer, i.category
		FROM feedback f
		JOIN interactions i ON f.interaction_id = i.id
		WHERE f.suggested_improvement LIKE ?
	`

	rows, err := c.db.Query(query, "%"+suggestion+"%")
	if err != nil {
		return nil, fmt.Errorf("%w: feedback by suggestion: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []models.FeedbackWithInteraction
	for rows.Next() {
		var r models.FeedbackWithInteraction
		err := rows.Scan(&r.Feedback.ID, &r.Feedback.InteractionID, &r.Feedback.OverallRating,
			&r.Feedback.SuggestedImprovement, &r.Question, &r.Answer, &r.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}

	return results, nil
}

func (c *Client) GetUserPreference(userID string) (*models.UserPreference, error) {
	query := `SELECT user_id, feedback_frequency, COALESCE(last_feedback_request, 0), feedback_opt_out FROM user_preferences WHERE user_id = ?`

	var p models.UserPreference
	var lastRequest int64
	var optOut int

	err := c.db.QueryRow(query, userID).Scan(&p.UserID, &p.FeedbackFrequency, &lastRequest, &optOut)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: preferences for %s", models.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get preferences: %v", models.ErrStorageUnavailable, err)
	}

	p.LastFeedbackRequest = time.Unix(lastRequest, 0)
	p.OptOut = optOut != 0

	return &p, nil
}

func (c *Client) UpsertUserPreference(pref *models.UserPreference) error {
	optOut := 0
	if pref.OptOut {
		optOut = 1
	}

	query := `
		INSERT INTO user_preferences (user_id, feedback_frequency, last_feedback_request, feedback_opt_out)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			feedback_frequency = excluded.feedback_frequency,
			last_feedback_request = excluded.last_feedback_request,
			feedback_opt_out = excluded.feedback_opt_out
	`

	_, err := c.db.Exec(query, pref.UserID, pref.FeedbackFrequency, pref.LastFeedbackRequest.Unix(), optOut)
	if err != nil {
		return fmt.Errorf("%w: upsert preferences: %v", models.ErrStorageUnavailable, err)
	}

	return nil
}

func (c *Client) TouchLastFeedbackRequest(userID string, at time.Time) error {
	_, err := c.db.Exec(
		`UPDATE user_preferences SET last_feedback_request = ? WHERE user_id = ?`,
		at.Unix(), userID,
	)
	if err != nil {
		return fmt.Errorf("%w: touch last request: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// RandomActivePrompt picks one active feedback prompt template at random
// and bumps its usage counter.
func (c *Client) RandomActivePrompt() (*models.FeedbackPrompt, error) {
	query := `SELECT id, prompt_text, prompt_type, frequency, usage_count FROM feedback_prompts WHERE is_active = 1 ORDER BY RANDOM() LIMIT 1`

	var p models.FeedbackPrompt
	err := c.db.QueryRow(query).Scan(&p.ID, &p.Text, &p.Type, &p.Frequency, &p.UsageCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active prompts", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: prompt lookup: %v", models.ErrStorageUnavailable, err)
	}
	p.Active = true

	c.db.Exec(`UPDATE feedback_prompts SET usage_count = usage_count + 1 WHERE id = ?`, p.ID)

	return &p, nil
}

func (c *Client) InsertImprovementCycle(cycle *models.ImprovementCycle) error {
	stepsJSON, _ := json.Marshal(cycle.StepsCompleted)

	success := 0
	if cycle.Success {
		success = 1
	}

	query := `
		INSERT INTO improvement_cycles (id, started_at, completed_at, days_analyzed,
			steps_completed, training_data_created, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query, cycle.ID, cycle.StartedAt.Unix(), cycle.CompletedAt.Unix(),
		cycle.DaysAnalyzed, string(stepsJSON), cycle.TrainingDataCreated, success, cycle.Error)
	if err != nil {
		return fmt.Errorf("%w: insert cycle: %v", models.ErrStorageUnavailable, err)
	}

	return nil
}

func (c *Client) ListImprovementCycles(limit int) ([]models.ImprovementCycle, error) {
	query := `
		SELECT id, started_at, completed_at, days_analyzed, steps_completed,
			training_data_created, success, COALESCE(error, '')
		FROM improvement_cycles
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list cycles: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var cycles []models.ImprovementCycle
	for rows.Next() {
		var cy models.ImprovementCycle
		var startedAt, completedAt int64
		var stepsJSON string
		var success int

		err := rows.Scan(&cy.ID, &startedAt, &completedAt, &cy.DaysAnalyzed,
			&stepsJSON, &cy.TrainingDataCreated, &success, &cy.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		cy.StartedAt = time.Unix(startedAt, 0)
		cy.CompletedAt = time.Unix(completedAt, 0)
		cy.Success = success != 0
		json.Unmarshal([]byte(stepsJSON), &cy.StepsCompleted)
		cycles = append(cycles, cy)
	}

	return cycles, nil
}
