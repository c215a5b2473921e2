package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/attendbot/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	client, err := NewClient(dbPath)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	return client
}

func insertTestInteraction(t *testing.T, c *Client, category string, at time.Time) *models.Interaction {
	t.Helper()

	i := &models.Interaction{
		ID:             uuid.New().String(),
		Question:       "was anyone absent today",
		Answer:         "3 students were absent",
		Category:       category,
		ResponseTimeMS: 120,
		SessionID:      "sess-1",
		UserID:         "user-1",
		Confidence:     0.8,
		DataSources:    []string{"attendance_records"},
		CreatedAt:      at,
	}
	if err := c.InsertInteraction(i); err != nil {
		t.Fatalf("InsertInteraction: %v", err)
	}
	return i
}

func TestInteractionRoundTrip(t *testing.T) {
	client := newTestClient(t)

	stored := insertTestInteraction(t, client, "attendance", time.Now())

	got, err := client.GetInteraction(stored.ID)
	if err != nil {
		t.Fatalf("GetInteraction: %v", err)
	}
	if got.Question != stored.Question {
		t.Errorf("question = %q, want %q", got.Question, stored.Question)
	}
	if got.Category != "attendance" {
		t.Errorf("category = %q, want attendance", got.Category)
	}
	if len(got.DataSources) != 1 || got.DataSources[0] != "attendance_records" {
		t.Errorf("data sources = %v", got.DataSources)
	}
}

func TestGetInteractionNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetInteraction("missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListInteractionsSince(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	insertTestInteraction(t, client, "general", now.Add(-48*time.Hour))
	insertTestInteraction(t, client, "attendance", now)

	recent, err := client.ListInteractionsSince(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListInteractionsSince: %v", err)
	}
	if len(recent) != 1 || recent[0].Category != "attendance" {
		t.Errorf("recent = %+v", recent)
	}

	byCategory, err := client.ListInteractionsByCategory("general")
	if err != nil {
		t.Fatalf("ListInteractionsByCategory: %v", err)
	}
	if len(byCategory) != 1 {
		t.Errorf("byCategory = %+v", byCategory)
	}
}

func TestCountInteractionsBySession(t *testing.T) {
	client := newTestClient(t)
	for i := 0; i < 3; i++ {
		insertTestInteraction(t, client, "attendance", time.Now())
	}

	count, err := client.CountInteractionsBySession("sess-1")
	if err != nil {
		t.Fatalf("CountInteractionsBySession: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestFeedbackJoin(t *testing.T) {
	client := newTestClient(t)
	interaction := insertTestInteraction(t, client, "news", time.Now())

	fb := &models.Feedback{
		ID:                   uuid.New().String(),
		InteractionID:        interaction.ID,
		OverallRating:        2,
		SuggestedImprovement: "Should show real headlines",
		FeedbackType:         "manual",
		CreatedAt:            time.Now(),
	}
	if err := client.InsertFeedback(fb); err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}

	recent, err := client.ListRecentFeedback(10)
	if err != nil {
		t.Fatalf("ListRecentFeedback: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("len(recent) = %d, want 1", len(recent))
	}
	if recent[0].Question != interaction.Question {
		t.Errorf("joined question = %q", recent[0].Question)
	}
	if recent[0].Feedback.OverallRating != 2 {
		t.Errorf("rating = %d, want 2", recent[0].Feedback.OverallRating)
	}
}

func TestListPoorlyRated(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	low := insertTestInteraction(t, client, "news", now)
	high := insertTestInteraction(t, client, "news", now)

	for _, tc := range []struct {
		interactionID string
		rating        int
	}{
		{low.ID, 1},
		{high.ID, 5},
	} {
		err := client.InsertFeedback(&models.Feedback{
			ID:            uuid.New().String(),
			InteractionID: tc.interactionID,
			OverallRating: tc.rating,
			CreatedAt:     now,
		})
		if err != nil {
			t.Fatalf("InsertFeedback: %v", err)
		}
	}

	poor, err := client.ListPoorlyRated("news", 2, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListPoorlyRated: %v", err)
	}
	if len(poor) != 1 {
		t.Fatalf("len(poor) = %d, want 1", len(poor))
	}
	if poor[0].Feedback.InteractionID != low.ID {
		t.Errorf("got interaction %s, want %s", poor[0].Feedback.InteractionID, low.ID)
	}
}

func TestTrainingItemOrdering(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	items := []struct {
		id       string
		priority int
		quality  float64
	}{
		{"low-pri", 1, 0.9},
		{"high-pri-low-q", 5, 0.6},
		{"high-pri-high-q", 5, 0.8},
		{"below-threshold", 5, 0.1},
	}
	for _, it := range items {
		err := client.InsertTrainingItem(&models.TrainingItem{
			ID:            it.id,
			Question:      "q",
			IdealAnswer:   "a",
			Priority:      it.priority,
			QualityScore:  it.quality,
			FeedbackScore: 2,
			Difficulty:    "easy",
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			t.Fatalf("InsertTrainingItem(%s): %v", it.id, err)
		}
	}

	got, err := client.ListTrainingItems(0.3, false, 100)
	if err != nil {
		t.Fatalf("ListTrainingItems: %v", err)
	}

	wantOrder := []string{"high-pri-high-q", "high-pri-low-q", "low-pri"}
	if len(got) != len(wantOrder) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(wantOrder))
	}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestApproveTrainingItem(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	err := client.InsertTrainingItem(&models.TrainingItem{
		ID:           "item-1",
		Question:     "q",
		QualityScore: 0.6,
		Priority:     4,
		Difficulty:   "medium",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("InsertTrainingItem: %v", err)
	}

	if err := client.ApproveTrainingItem("item-1"); err != nil {
		t.Fatalf("ApproveTrainingItem: %v", err)
	}

	approved, err := client.ListTrainingItems(0, true, 10)
	if err != nil {
		t.Fatalf("ListTrainingItems: %v", err)
	}
	if len(approved) != 1 || !approved[0].HumanVerified {
		t.Errorf("approved = %+v", approved)
	}

	if err := client.ApproveTrainingItem("missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("approve missing: err = %v, want ErrNotFound", err)
	}
}

func TestSeededPrompts(t *testing.T) {
	client := newTestClient(t)

	prompt, err := client.RandomActivePrompt()
	if err != nil {
		t.Fatalf("RandomActivePrompt: %v", err)
	}
	if prompt.Text == "" || prompt.Type == "" {
		t.Errorf("prompt = %+v", prompt)
	}

	// Schema init is idempotent, seeding must not duplicate prompts.
	if err := client.InitSchema(); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
	var count int
	err = client.db.QueryRow(`SELECT COUNT(*) FROM feedback_prompts`).Scan(&count)
	if err != nil {
		t.Fatalf("count prompts: %v", err)
	}
	if count != 4 {
		t.Errorf("prompt count = %d, want 4", count)
	}
}

func TestUserPreferenceUpsert(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetUserPreference("u1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	pref := &models.UserPreference{
		UserID:            "u1",
		FeedbackFrequency: 7,
		OptOut:            false,
	}
	if err := client.UpsertUserPreference(pref); err != nil {
		t.Fatalf("UpsertUserPreference: %v", err)
	}

	pref.OptOut = true
	if err := client.UpsertUserPreference(pref); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := client.GetUserPreference("u1")
	if err != nil {
		t.Fatalf("GetUserPreference: %v", err)
	}
	if got.FeedbackFrequency != 7 || !got.OptOut {
		t.Errorf("pref = %+v", got)
	}
}

func TestAnalyticsAggregates(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	attendance := insertTestInteraction(t, client, "attendance", now)
	news := insertTestInteraction(t, client, "news", now)

	ratings := []struct {
		interactionID string
		rating        int
		suggestion    string
	}{
		{attendance.ID, 5, ""},
		{news.ID, 1, "use newer sources"},
		{news.ID, 2, "use newer sources"},
	}
	for _, r := range ratings {
		err := client.InsertFeedback(&models.Feedback{
			ID:                   uuid.New().String(),
			InteractionID:        r.interactionID,
			OverallRating:        r.rating,
			SuggestedImprovement: r.suggestion,
			CreatedAt:            now,
		})
		if err != nil {
			t.Fatalf("InsertFeedback: %v", err)
		}
	}

	since := now.Add(-time.Hour)

	stats, err := client.GetOverviewStats(since)
	if err != nil {
		t.Fatalf("GetOverviewStats: %v", err)
	}
	if stats.TotalInteractions != 2 || stats.TotalFeedback != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LowRatings != 2 {
		t.Errorf("low ratings = %d, want 2", stats.LowRatings)
	}

	dist, err := client.RatingDistribution(since)
	if err != nil {
		t.Fatalf("RatingDistribution: %v", err)
	}
	if dist[1] != 1 || dist[2] != 1 || dist[5] != 1 || dist[3] != 0 {
		t.Errorf("distribution = %v", dist)
	}

	perf, err := client.CategoryPerformance(since)
	if err != nil {
		t.Fatalf("CategoryPerformance: %v", err)
	}
	if len(perf) != 2 {
		t.Fatalf("len(perf) = %d, want 2", len(perf))
	}
	// Worst category first.
	if perf[0].Category != "news" {
		t.Errorf("first category = %s, want news", perf[0].Category)
	}

	suggestions, err := client.TopSuggestions(since, 10)
	if err != nil {
		t.Fatalf("TopSuggestions: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].Mentions != 2 {
		t.Errorf("suggestions = %+v", suggestions)
	}

	trend, err := client.DailyTrend(since)
	if err != nil {
		t.Fatalf("DailyTrend: %v", err)
	}
	if len(trend) != 1 || trend[0].Interactions != 2 {
		t.Errorf("trend = %+v", trend)
	}
	if trend[0].AvgResponseMS != 120 {
		t.Errorf("trend avg response = %v, want 120", trend[0].AvgResponseMS)
	}

	details, err := client.CategoryDetails(since)
	if err != nil {
		t.Fatalf("CategoryDetails: %v", err)
	}
	if len(details) != 2 || details[0].Category != "news" {
		t.Errorf("details = %+v", details)
	}
	if details[0].FeedbackCount != 2 || details[0].AvgRating != 1.5 {
		t.Errorf("news detail = %+v", details[0])
	}
}

func TestCategoryPerformanceUnratedLast(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	news := insertTestInteraction(t, client, "news", now)
	insertTestInteraction(t, client, "general", now)

	err := client.InsertFeedback(&models.Feedback{
		ID:            uuid.New().String(),
		InteractionID: news.ID,
		OverallRating: 2,
		CreatedAt:     now,
	})
	if err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}

	perf, err := client.CategoryPerformance(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CategoryPerformance: %v", err)
	}
	if len(perf) != 2 {
		t.Fatalf("len(perf) = %d, want 2", len(perf))
	}
	if perf[0].Category != "news" || perf[0].FeedbackCount != 1 {
		t.Errorf("first category = %+v, want rated news", perf[0])
	}
	if perf[1].Category != "general" || perf[1].FeedbackCount != 0 {
		t.Errorf("last category = %+v, want unrated general", perf[1])
	}
}

func TestTrainingReadinessByCategory(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	items := []struct {
		category  string
		quality   float64
		approved  bool
		needsWork bool
	}{
		{"news", 0.8, true, true},
		{"news", 0.6, false, true},
		{"attendance", 0.4, false, false},
	}
	for _, it := range items {
		err := client.InsertTrainingItem(&models.TrainingItem{
			ID:               uuid.New().String(),
			Question:         "why was the roll call late",
			QualityScore:     it.quality,
			NeedsImprovement: it.needsWork,
			Priority:         3,
			Category:         it.category,
			Difficulty:       "easy",
			Approved:         it.approved,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			t.Fatalf("InsertTrainingItem: %v", err)
		}
	}

	breakdown, err := client.TrainingReadinessByCategory()
	if err != nil {
		t.Fatalf("TrainingReadinessByCategory: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("len(breakdown) = %d, want 2", len(breakdown))
	}
	// Largest category first.
	if breakdown[0].Category != "news" || breakdown[0].TotalItems != 2 || breakdown[0].ApprovedItems != 1 {
		t.Errorf("news readiness = %+v", breakdown[0])
	}
	if breakdown[0].AvgQuality != 0.7 {
		t.Errorf("news avg quality = %v, want 0.7", breakdown[0].AvgQuality)
	}

	backlog, err := client.TrainingBacklogByCategory()
	if err != nil {
		t.Fatalf("TrainingBacklogByCategory: %v", err)
	}
	if len(backlog) != 1 {
		t.Fatalf("len(backlog) = %d, want only categories still needing work", len(backlog))
	}
	if backlog[0].Category != "news" || backlog[0].TrainingItems != 2 || backlog[0].AvgQuality != 0.7 {
		t.Errorf("news backlog = %+v", backlog[0])
	}
}

func TestImprovementCyclePersistence(t *testing.T) {
	client := newTestClient(t)
	now := time.Now()

	cycle := &models.ImprovementCycle{
		ID:                  uuid.New().String(),
		StartedAt:           now.Add(-time.Minute),
		CompletedAt:         now,
		DaysAnalyzed:        7,
		StepsCompleted:      []string{"feedback_analysis", "improvement_identification"},
		TrainingDataCreated: 3,
		Success:             true,
	}
	if err := client.InsertImprovementCycle(cycle); err != nil {
		t.Fatalf("InsertImprovementCycle: %v", err)
	}

	cycles, err := client.ListImprovementCycles(5)
	if err != nil {
		t.Fatalf("ListImprovementCycles: %v", err)
	}
	if len(cycles) != 1 {
		t.Fatalf("len(cycles) = %d, want 1", len(cycles))
	}
	if !cycles[0].Success || cycles[0].TrainingDataCreated != 3 {
		t.Errorf("cycle = %+v", cycles[0])
	}
	if len(cycles[0].StepsCompleted) != 2 {
		t.Errorf("steps = %v", cycles[0].StepsCompleted)
	}
}
