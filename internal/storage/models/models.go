package models

import "time"

// Interaction is one logged question/answer exchange. Rows are append-only:
// nothing updates or deletes an interaction after it is recorded.
type Interaction struct {
	ID             string
	Question       string
	Answer         string
	Category       string
	ResponseTimeMS int
	SessionID      string
	UserID         string
	UserIP         string
	Confidence     float64
	DataSources    []string
	CreatedAt      time.Time
}

// Feedback is a single rating event tied to one interaction. The same
// interaction may accumulate several feedback rows; users re-rate and
// different raters rate the same exchange.
type Feedback struct {
	ID                   string
	InteractionID        string
	OverallRating        int
	AccuracyRating       int
	HelpfulnessRating    int
	ClarityRating        int
	Comment              string
	SuggestedImprovement string
	IsHelpful            bool
	UserIP               string
	FeedbackType         string
	CreatedAt            time.Time
}

// TrainingItem is a curated training example derived from feedback.
// QualityScore and Priority are fixed at creation from the triggering
// rating and never recomputed.
type TrainingItem struct {
	ID               string
	Question         string
	IdealAnswer      string
	ActualAnswer     string
	FeedbackScore    int
	QualityScore     float64
	NeedsImprovement bool
	Priority         int
	Category         string
	Difficulty       string
	DataSource       string
	Approved         bool
	HumanVerified    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FeedbackPrompt is one template shown when the system decides to ask
// for a rating.
type FeedbackPrompt struct {
	ID         string
	Text       string
	Type       string
	Frequency  int
	Active     bool
	UsageCount int
	CreatedAt  time.Time
}

// UserPreference controls feedback-prompt cadence per user.
type UserPreference struct {
	UserID              string
	FeedbackFrequency   int
	LastFeedbackRequest time.Time
	OptOut              bool
}

// FeedbackWithInteraction joins a feedback row with the exchange it rates,
// for admin review and pipeline synthesis.
type FeedbackWithInteraction struct {
	Feedback    Feedback
	Question    string
	Answer      string
	Category    string
}

// ImprovementCycle is the persisted summary of one pipeline run.
type ImprovementCycle struct {
	ID                  string
	StartedAt           time.Time
	CompletedAt         time.Time
	DaysAnalyzed        int
	StepsCompleted      []string
	TrainingDataCreated int
	Success             bool
	Error               string
}
