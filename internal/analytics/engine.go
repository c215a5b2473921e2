package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/attendbot/backend/internal/storage/sqlite"
)

// Store is the aggregate-query surface the engine reads from.
type Store interface {
	GetOverviewStats(since time.Time) (*sqlite.OverviewStats, error)
	RatingDistribution(since time.Time) (map[int]int, error)
	CategoryPerformance(since time.Time) ([]sqlite.CategoryStats, error)
	CategoryRatings(since time.Time) ([]sqlite.CategoryStats, error)
	DailyTrend(since time.Time) ([]sqlite.DailyTrendRow, error)
	TopSuggestions(since time.Time, limit int) ([]sqlite.SuggestionCount, error)
	GetWindowFeedbackStats(since time.Time) (*sqlite.WindowFeedbackStats, error)
	CategoryDetails(since time.Time) ([]sqlite.CategoryDetailRow, error)
	CountTrainingItems() (int, error)
	TrainingReadinessStats() (*sqlite.TrainingReadiness, error)
	TrainingReadinessByCategory() ([]sqlite.CategoryReadiness, error)
	TrainingBacklogByCategory() ([]sqlite.CategoryBacklog, error)
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Overview is the top-level dashboard payload.
type Overview struct {
	TotalInteractions int            `json:"total_interactions"`
	TotalFeedback     int            `json:"total_feedback"`
	FeedbackRate      float64        `json:"feedback_rate"`
	AverageRating     float64        `json:"average_rating"`
	LowRatings        int            `json:"low_ratings"`
	AvgResponseTimeMS float64        `json:"avg_response_time_ms"`
	RatingDistribution map[int]int   `json:"rating_distribution"`
	TrainingItems     int            `json:"training_items"`
	PeriodDays        int            `json:"period_days"`
}

func (e *Engine) Overview(days int) (*Overview, error) {
	since := windowStart(days)

	stats, err := e.store.GetOverviewStats(since)
	if err != nil {
		return nil, err
	}

	dist, err := e.store.RatingDistribution(since)
	if err != nil {
		return nil, err
	}

	trainingItems, err := e.store.CountTrainingItems()
	if err != nil {
		return nil, err
	}

	denominator := stats.TotalInteractions
	if denominator < 1 {
		denominator = 1
	}

	return &Overview{
		TotalInteractions:  stats.TotalInteractions,
		TotalFeedback:      stats.TotalFeedback,
		FeedbackRate:       round2(100 * float64(stats.TotalFeedback) / float64(denominator)),
		AverageRating:      round2(stats.AverageRating),
		LowRatings:         stats.LowRatings,
		AvgResponseTimeMS:  round2(stats.AvgResponseTimeMS),
		RatingDistribution: dist,
		TrainingItems:      trainingItems,
		PeriodDays:         days,
	}, nil
}

// CategoryReport is the per-category dashboard row, worst rating first.
type CategoryReport struct {
	Category      string  `json:"category"`
	Interactions  int     `json:"interactions"`
	FeedbackCount int     `json:"feedback_count"`
	AvgRating     float64 `json:"avg_rating"`
	AvgResponseMS float64 `json:"avg_response_time_ms"`
	NeedsAttention bool   `json:"needs_attention"`
}

func (e *Engine) CategoryPerformance(days int) ([]CategoryReport, error) {
	stats, err := e.store.CategoryPerformance(windowStart(days))
	if err != nil {
		return nil, err
	}

	reports := make([]CategoryReport, 0, len(stats))
	for _, s := range stats {
		reports = append(reports, CategoryReport{
			Category:       s.Category,
			Interactions:   s.Interactions,
			FeedbackCount:  s.FeedbackCount,
			AvgRating:      round2(s.AvgRating),
			AvgResponseMS:  round2(s.AvgResponseMS),
			NeedsAttention: s.FeedbackCount > 0 && s.AvgRating < 3.0,
		})
	}

	return reports, nil
}

// CategoryDetail breaks a category's overall rating into its accuracy,
// helpfulness, and clarity components.
type CategoryDetail struct {
	Category       string  `json:"category"`
	Interactions   int     `json:"interactions"`
	FeedbackCount  int     `json:"feedback_count"`
	FeedbackRate   float64 `json:"feedback_rate"`
	AvgRating      float64 `json:"avg_rating"`
	AvgAccuracy    float64 `json:"avg_accuracy"`
	AvgHelpfulness float64 `json:"avg_helpfulness"`
	AvgClarity     float64 `json:"avg_clarity"`
	AvgResponseMS  float64 `json:"avg_response_time_ms"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

func (e *Engine) CategoryDetails(days int) ([]CategoryDetail, error) {
	rows, err := e.store.CategoryDetails(windowStart(days))
	if err != nil {
		return nil, err
	}

	details := make([]CategoryDetail, 0, len(rows))
	for _, r := range rows {
		denominator := r.Interactions
		if denominator < 1 {
			denominator = 1
		}
		details = append(details, CategoryDetail{
			Category:       r.Category,
			Interactions:   r.Interactions,
			FeedbackCount:  r.FeedbackCount,
			FeedbackRate:   round2(100 * float64(r.FeedbackCount) / float64(denominator)),
			AvgRating:      round2(r.AvgRating),
			AvgAccuracy:    round2(r.AvgAccuracy),
			AvgHelpfulness: round2(r.AvgHelpfulness),
			AvgClarity:     round2(r.AvgClarity),
			AvgResponseMS:  round2(r.AvgResponseMS),
			AvgConfidence:  round2(r.AvgConfidence),
		})
	}

	return details, nil
}

type TrendPoint struct {
	Day           string  `json:"day"`
	Interactions  int     `json:"interactions"`
	AvgRating     float64 `json:"avg_rating"`
	AvgResponseMS float64 `json:"avg_response_time_ms"`
}

func (e *Engine) DailyTrend(days int) ([]TrendPoint, error) {
	rows, err := e.store.DailyTrend(windowStart(days))
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, TrendPoint{
			Day:           r.Day,
			Interactions:  r.Interactions,
			AvgRating:     round2(r.AvgRating),
			AvgResponseMS: round2(r.AvgResponseMS),
		})
	}

	return points, nil
}

// WindowAnalysis is the full feedback picture for one window. The
// improvement pipeline consumes it as its first step.
type WindowAnalysis struct {
	PeriodDays         int                  `json:"period_days"`
	TotalFeedback      int                  `json:"total_feedback"`
	AverageRating      float64              `json:"average_rating"`
	PoorRatings        int                  `json:"poor_ratings"`
	GoodRatings        int                  `json:"good_ratings"`
	HasSuggestions     int                  `json:"has_suggestions"`
	CategoryPerformance []CategoryWindow    `json:"category_performance"`
	CommonSuggestions  []SuggestionSummary  `json:"common_suggestions"`
	ImprovementNeeded  bool                 `json:"improvement_needed"`
}

type CategoryWindow struct {
	Category       string  `json:"category"`
	FeedbackCount  int     `json:"feedback_count"`
	AvgRating      float64 `json:"avg_rating"`
	PoorRatings    int     `json:"poor_ratings"`
	NeedsAttention bool    `json:"needs_attention"`
}

type SuggestionSummary struct {
	Suggestion string `json:"suggestion"`
	Frequency  int    `json:"frequency"`
}

func (e *Engine) AnalyzeWindow(days int) (*WindowAnalysis, error) {
	since := windowStart(days)

	stats, err := e.store.GetWindowFeedbackStats(since)
	if err != nil {
		return nil, err
	}

	categories, err := e.store.CategoryRatings(since)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.store.TopSuggestions(since, 10)
	if err != nil {
		return nil, err
	}

	analysis := &WindowAnalysis{
		PeriodDays:     days,
		TotalFeedback:  stats.TotalFeedback,
		AverageRating:  round2(stats.AverageRating),
		PoorRatings:    stats.PoorRatings,
		GoodRatings:    stats.GoodRatings,
		HasSuggestions: stats.HasSuggestions,
		ImprovementNeeded: stats.TotalFeedback > 0 && stats.AverageRating < 3.5,
	}

	for _, c := range categories {
		analysis.CategoryPerformance = append(analysis.CategoryPerformance, CategoryWindow{
			Category:       c.Category,
			FeedbackCount:  c.FeedbackCount,
			AvgRating:      round2(c.AvgRating),
			PoorRatings:    c.PoorRatings,
			NeedsAttention: c.AvgRating < 3.0 || c.PoorRatings > 0,
		})
	}

	for _, s := range suggestions {
		analysis.CommonSuggestions = append(analysis.CommonSuggestions, SuggestionSummary{
			Suggestion: s.Suggestion,
			Frequency:  s.Mentions,
		})
	}

	return analysis, nil
}

// ImprovementArea is one systemic problem surfaced by window analysis.
type ImprovementArea struct {
	Type        string `json:"type"`
	Category    string `json:"category,omitempty"`
	Issue       string `json:"issue"`
	Severity    string `json:"severity"`
	Frequency   int    `json:"frequency,omitempty"`
	PoorRatings int    `json:"poor_ratings,omitempty"`
}

// IdentifyImprovementAreas extracts actionable problem areas from a
// window analysis: underperforming categories, suggestions echoed by
// multiple users, and overall rating slippage.
func IdentifyImprovementAreas(analysis *WindowAnalysis) []ImprovementArea {
	var areas []ImprovementArea

	for _, c := range analysis.CategoryPerformance {
		if c.FeedbackCount == 0 || c.AvgRating >= 3.5 {
			continue
		}
		severity := "MEDIUM"
		if c.AvgRating < 2.5 {
			severity = "HIGH"
		}
		areas = append(areas, ImprovementArea{
			Type:        "category_performance",
			Category:    c.Category,
			Issue:       fmt.Sprintf("Low average rating: %.2f/5", c.AvgRating),
			Severity:    severity,
			PoorRatings: c.PoorRatings,
		})
	}

	for _, s := range analysis.CommonSuggestions {
		if s.Frequency < 2 {
			continue
		}
		severity := "MEDIUM"
		if s.Frequency >= 3 {
			severity = "HIGH"
		}
		areas = append(areas, ImprovementArea{
			Type:      "user_suggestion",
			Issue:     s.Suggestion,
			Severity:  severity,
			Frequency: s.Frequency,
		})
	}

	if analysis.ImprovementNeeded {
		areas = append(areas, ImprovementArea{
			Type:     "overall_performance",
			Issue:    fmt.Sprintf("Overall rating below threshold: %.2f/5", analysis.AverageRating),
			Severity: "HIGH",
		})
	}

	return areas
}

// Recommendation is one concrete next action for operators.
type Recommendation struct {
	Type           string `json:"type"`
	Action         string `json:"action"`
	Reason         string `json:"reason"`
	Priority       string `json:"priority"`
	Implementation string `json:"implementation"`
}

// RecommendationsFor turns improvement areas into operator guidance.
// The list is never empty: with nothing wrong it still suggests keeping
// feedback collection going.
func RecommendationsFor(areas []ImprovementArea) []Recommendation {
	var recs []Recommendation

	for _, area := range areas {
		switch area.Type {
		case "category_performance":
			recs = append(recs, Recommendation{
				Type:           "training_focus",
				Action:         fmt.Sprintf("Focus training on %s responses", area.Category),
				Reason:         fmt.Sprintf("Category has %d poor ratings", area.PoorRatings),
				Priority:       area.Severity,
				Implementation: fmt.Sprintf("Review and improve %s knowledge base", area.Category),
			})
		case "user_suggestion":
			recs = append(recs, Recommendation{
				Type:           "feature_improvement",
				Action:         "Implement user suggestion",
				Reason:         fmt.Sprintf("Suggested %d times: %s", area.Frequency, area.Issue),
				Priority:       area.Severity,
				Implementation: "Technical team review and implementation",
			})
		case "overall_performance":
			recs = append(recs, Recommendation{
				Type:           "comprehensive_review",
				Action:         "Comprehensive model review needed",
				Reason:         "Overall performance below acceptable threshold",
				Priority:       "HIGH",
				Implementation: "Full model retraining with curated dataset",
			})
		}
	}

	if len(areas) > 3 {
		recs = append(recs, Recommendation{
			Type:           "systematic_improvement",
			Action:         "Implement systematic feedback collection",
			Reason:         "Multiple improvement areas identified",
			Priority:       "MEDIUM",
			Implementation: "Enhanced feedback prompts and user engagement",
		})
	}

	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Type:           "maintain_quality",
			Action:         "Continue collecting feedback",
			Reason:         "No systemic problems detected in this window",
			Priority:       "LOW",
			Implementation: "Keep feedback prompts active and monitor trends",
		})
	}

	return recs
}

// ProblemArea is one category's rating health, tagged with an
// improvement priority.
type ProblemArea struct {
	Category      string  `json:"category"`
	AverageRating float64 `json:"average_rating"`
	TotalFeedback int     `json:"total_feedback"`
	PoorRatings   int     `json:"poor_ratings"`
	Priority      string  `json:"improvement_priority"`
}

// TrainingFocus is the unresolved curation backlog for one category.
type TrainingFocus struct {
	Category      string  `json:"category"`
	TrainingItems int     `json:"training_items"`
	AvgQuality    float64 `json:"avg_quality"`
}

// RecommendationReport is the operator-facing improvement summary:
// every rated category with a priority tag, the suggestions users
// repeat, the curation backlog, and plain-language next steps.
type RecommendationReport struct {
	GeneratedAt       time.Time           `json:"generated_at"`
	ProblemAreas      []ProblemArea       `json:"problem_areas"`
	CommonSuggestions []SuggestionSummary `json:"common_suggestions"`
	TrainingReadiness []TrainingFocus     `json:"training_readiness"`
	Recommendations   []string            `json:"recommendations"`
}

// Recommendations builds the improvement report for one window. The
// recommendation list is never empty.
func (e *Engine) Recommendations(days int) (*RecommendationReport, error) {
	since := windowStart(days)

	categories, err := e.store.CategoryRatings(since)
	if err != nil {
		return nil, err
	}

	suggestions, err := e.store.TopSuggestions(since, 10)
	if err != nil {
		return nil, err
	}

	backlog, err := e.store.TrainingBacklogByCategory()
	if err != nil {
		return nil, err
	}

	report := &RecommendationReport{GeneratedAt: time.Now().UTC()}

	for _, c := range categories {
		priority := "LOW"
		switch {
		case c.AvgRating < 2.5:
			priority = "HIGH"
		case c.AvgRating < 3.5:
			priority = "MEDIUM"
		}
		report.ProblemAreas = append(report.ProblemAreas, ProblemArea{
			Category:      c.Category,
			AverageRating: round2(c.AvgRating),
			TotalFeedback: c.FeedbackCount,
			PoorRatings:   c.PoorRatings,
			Priority:      priority,
		})
	}

	for _, s := range suggestions {
		report.CommonSuggestions = append(report.CommonSuggestions, SuggestionSummary{
			Suggestion: s.Suggestion,
			Frequency:  s.Mentions,
		})
	}

	for _, b := range backlog {
		report.TrainingReadiness = append(report.TrainingReadiness, TrainingFocus{
			Category:      b.Category,
			TrainingItems: b.TrainingItems,
			AvgQuality:    round2(b.AvgQuality),
		})
	}

	report.Recommendations = recommendationLines(report.ProblemAreas, report.CommonSuggestions)

	return report, nil
}

// recommendationLines phrases the worst problem areas and most-repeated
// suggestions as next steps. Only the top three areas and top two
// suggestions make the cut; LOW-priority categories are healthy enough
// to skip.
func recommendationLines(areas []ProblemArea, suggestions []SuggestionSummary) []string {
	var lines []string

	for i, a := range areas {
		if i >= 3 {
			break
		}
		switch a.Priority {
		case "HIGH":
			lines = append(lines, fmt.Sprintf("URGENT: Improve %s responses - only %.1f/5 rating", a.Category, a.AverageRating))
		case "MEDIUM":
			lines = append(lines, fmt.Sprintf("Focus on %s accuracy - current rating: %.1f/5", a.Category, a.AverageRating))
		}
	}

	for i, s := range suggestions {
		if i >= 2 {
			break
		}
		lines = append(lines, fmt.Sprintf("Consider: %s (mentioned %d times)", s.Suggestion, s.Frequency))
	}

	if len(lines) == 0 {
		lines = append(lines, "Overall performance is good - continue monitoring user feedback")
	}

	return lines
}

// TrainingReadiness reports how prepared the curated dataset is for a
// fine-tuning run.
type TrainingReadiness struct {
	TotalItems    int                 `json:"total_items"`
	ApprovedItems int                 `json:"approved_items"`
	HighPriority  int                 `json:"high_priority"`
	AvgQuality    float64             `json:"avg_quality"`
	Ready         bool                `json:"ready"`
	Categories    []CategoryReadiness `json:"categories"`
}

type CategoryReadiness struct {
	Category      string  `json:"category"`
	TotalItems    int     `json:"total_items"`
	ApprovedItems int     `json:"approved_items"`
	AvgQuality    float64 `json:"avg_quality"`
}

func (e *Engine) TrainingReadiness(minApproved int) (*TrainingReadiness, error) {
	stats, err := e.store.TrainingReadinessStats()
	if err != nil {
		return nil, err
	}

	byCategory, err := e.store.TrainingReadinessByCategory()
	if err != nil {
		return nil, err
	}

	readiness := &TrainingReadiness{
		TotalItems:    stats.TotalItems,
		ApprovedItems: stats.ApprovedItems,
		HighPriority:  stats.HighPriority,
		AvgQuality:    round2(stats.AvgQuality),
		Ready:         stats.ApprovedItems >= minApproved,
	}

	for _, c := range byCategory {
		readiness.Categories = append(readiness.Categories, CategoryReadiness{
			Category:      c.Category,
			TotalItems:    c.TotalItems,
			ApprovedItems: c.ApprovedItems,
			AvgQuality:    round2(c.AvgQuality),
		})
	}

	return readiness, nil
}

func windowStart(days int) time.Time {
	if days <= 0 {
		days = 7
	}
	return time.Now().AddDate(0, 0, -days)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
