package sqlite

import (
	"fmt"
	"time"

	"github.com/attendbot/backend/internal/storage/models"
)

// OverviewStats holds the top-line counters for the analytics dashboard.
type OverviewStats struct {
	TotalInteractions int
	TotalFeedback     int
	AverageRating     float64
	LowRatings        int
	AvgResponseTimeMS float64
}

func (c *Client) GetOverviewStats(since time.Time) (*OverviewStats, error) {
	var s OverviewStats

	err := c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(response_time_ms), 0) FROM interactions WHERE created_at >= ?`,
		since.Unix(),
	).Scan(&s.TotalInteractions, &s.AvgResponseTimeMS)
	if err != nil {
		return nil, fmt.Errorf("%w: interaction stats: %v", models.ErrStorageUnavailable, err)
	}

	err = c.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(overall_rating), 0),
			COALESCE(SUM(CASE WHEN overall_rating <= 2 THEN 1 ELSE 0 END), 0)
		FROM feedback WHERE created_at >= ?`,
		since.Unix(),
	).Scan(&s.TotalFeedback, &s.AverageRating, &s.LowRatings)
	if err != nil {
		return nil, fmt.Errorf("%w: feedback stats: %v", models.ErrStorageUnavailable, err)
	}

	return &s, nil
}

// RatingDistribution returns the count of feedback rows per star value.
// All five buckets are present even when empty.
func (c *Client) RatingDistribution(since time.Time) (map[int]int, error) {
	dist := map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}

	rows, err := c.db.Query(
		`SELECT overall_rating, COUNT(*) FROM feedback WHERE created_at >= ? GROUP BY overall_rating`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: rating distribution: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dist[rating] = count
	}

	return dist, nil
}

// CategoryStats is the per-category performance rollup. Ordered worst
// first so problem areas surface at the top of the report; categories
// with no feedback yet sort last.
type CategoryStats struct {
	Category      string
	Interactions  int
	FeedbackCount int
	AvgRating     float64
	AvgResponseMS float64
	PoorRatings   int
}

func (c *Client) CategoryPerformance(since time.Time) ([]CategoryStats, error) {
	query := `
		SELECT i.category, COUNT(DISTINCT i.id), COUNT(f.id),
			COALESCE(AVG(f.overall_rating), 0), COALESCE(AVG(i.response_time_ms), 0)
		FROM interactions i
		LEFT JOIN feedback f ON f.interaction_id = i.id
		WHERE i.created_at >= ?
		GROUP BY i.category
		ORDER BY AVG(f.overall_rating) IS NULL, AVG(f.overall_rating) ASC
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: category performance: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var stats []CategoryStats
	for rows.Next() {
		var s CategoryStats
		err := rows.Scan(&s.Category, &s.Interactions, &s.FeedbackCount, &s.AvgRating, &s.AvgResponseMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, nil
}

// DailyTrendRow is one calendar day of interaction volume, rating, and
// responsiveness.
type DailyTrendRow struct {
	Day           string
	Interactions  int
	AvgRating     float64
	AvgResponseMS float64
}

func (c *Client) DailyTrend(since time.Time) ([]DailyTrendRow, error) {
	query := `
		SELECT DATE(i.created_at, 'unixepoch'), COUNT(DISTINCT i.id),
			COALESCE(AVG(f.overall_rating), 0),
			COALESCE(AVG(i.response_time_ms), 0)
		FROM interactions i
		LEFT JOIN feedback f ON f.interaction_id = i.id
		WHERE i.created_at >= ?
		GROUP BY DATE(i.created_at, 'unixepoch')
		ORDER BY DATE(i.created_at, 'unixepoch') ASC
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: daily trend: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var trend []DailyTrendRow
	for rows.Next() {
		var r DailyTrendRow
		if err := rows.Scan(&r.Day, &r.Interactions, &r.AvgRating, &r.AvgResponseMS); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		trend = append(trend, r)
	}

	return trend, nil
}

// SuggestionCount groups identical improvement suggestions with how
// often each was submitted.
type SuggestionCount struct {
	Suggestion string
	Mentions   int
}

func (c *Client) TopSuggestions(since time.Time, limit int) ([]SuggestionCount, error) {
	query := `
		SELECT suggested_improvement, COUNT(*)
		FROM feedback
		WHERE created_at >= ? AND suggested_improvement IS NOT NULL AND suggested_improvement != ''
		GROUP BY suggested_improvement
		ORDER BY COUNT(*) DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: top suggestions: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var suggestions []SuggestionCount
	for rows.Next() {
		var s SuggestionCount
		if err := rows.Scan(&s.Suggestion, &s.Mentions); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		suggestions = append(suggestions, s)
	}

	return suggestions, nil
}

// CategoryRatings returns rating volume per category for one window,
// worst category first.
func (c *Client) CategoryRatings(since time.Time) ([]CategoryStats, error) {
	query := `
		SELECT i.category, COUNT(f.id), AVG(f.overall_rating),
			COALESCE(SUM(CASE WHEN f.overall_rating <= 2 THEN 1 ELSE 0 END), 0)
		FROM feedback f
		JOIN interactions i ON f.interaction_id = i.id
		WHERE f.created_at >= ?
		GROUP BY i.category
		HAVING COUNT(f.id) > 0
		ORDER BY AVG(f.overall_rating) ASC
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: category ratings: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var stats []CategoryStats
	for rows.Next() {
		var s CategoryStats
		if err := rows.Scan(&s.Category, &s.FeedbackCount, &s.AvgRating, &s.PoorRatings); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, nil
}

// CategoryDetailRow carries the sub-rating averages for one category
// alongside its interaction volume and confidence.
type CategoryDetailRow struct {
	Category       string
	Interactions   int
	FeedbackCount  int
	AvgRating      float64
	AvgAccuracy    float64
	AvgHelpfulness float64
	AvgClarity     float64
	AvgResponseMS  float64
	AvgConfidence  float64
}

func (c *Client) CategoryDetails(since time.Time) ([]CategoryDetailRow, error) {
	query := `
		SELECT i.category, COUNT(DISTINCT i.id), COUNT(f.id),
			COALESCE(AVG(f.overall_rating), 0),
			COALESCE(AVG(f.accuracy_rating), 0),
			COALESCE(AVG(f.helpfulness_rating), 0),
			COALESCE(AVG(f.clarity_rating), 0),
			COALESCE(AVG(i.response_time_ms), 0),
			COALESCE(AVG(i.confidence), 0)
		FROM interactions i
		LEFT JOIN feedback f ON f.interaction_id = i.id
		WHERE i.created_at >= ?
		GROUP BY i.category
		ORDER BY AVG(f.overall_rating) IS NULL, AVG(f.overall_rating) ASC
	`

	rows, err := c.db.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: category details: %v", models.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var details []CategoryDetailRow
	for rows.Next() {
		var d CategoryDetailRow
		err := rows.Scan(&d.Category, &d.Interactions, &d.FeedbackCount, &d.AvgRating,
			&d.AvgAccuracy, &d.AvgHelpfulness, &d.AvgClarity, &d.AvgResponseMS, &d.AvgConfidence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		details = append(details, d)
	}

	return details, nil
}

// WindowFeedbackStats summarizes feedback volume and sentiment for one
// analysis window.
type WindowFeedbackStats struct {
	TotalFeedback  int
	AverageRating  float64
	PoorRatings    int
	GoodRatings    int
	HasSuggestions int
}

func (c *Client) GetWindowFeedbackStats(since time.Time) (*WindowFeedbackStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(overall_rating), 0),
			COALESCE(SUM(CASE WHEN overall_rating <= 2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN overall_rating >= 4 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN suggested_improvement IS NOT NULL AND suggested_improvement != '' THEN 1 ELSE 0 END), 0)
		FROM feedback
		WHERE created_at >= ?
	`

	var s WindowFeedbackStats
	err := c.db.QueryRow(query, since.Unix()).Scan(&s.TotalFeedback, &s.AverageRating,
		&s.PoorRatings, &s.GoodRatings, &s.HasSuggestions)
	if err != nil {
		return nil, fmt.Errorf("%w: window stats: %v", models.ErrStorageUnavailable, err)
	}

	return &s, nil
}
