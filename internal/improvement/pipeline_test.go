package improvement

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/attendbot/backend/internal/analytics"
	"github.com/attendbot/backend/internal/storage/models"
)

type fakeAnalyzer struct {
	analysis *analytics.WindowAnalysis
	err      error
}

func (f *fakeAnalyzer) AnalyzeWindow(days int) (*analytics.WindowAnalysis, error) {
	return f.analysis, f.err
}

type fakeStore struct {
	poorlyRated  []models.FeedbackWithInteraction
	bySuggestion []models.FeedbackWithInteraction
	cycles       []*models.ImprovementCycle
	listErr      error
}

func (f *fakeStore) ListPoorlyRated(category string, maxRating int, since time.Time) ([]models.FeedbackWithInteraction, error) {
	return f.poorlyRated, f.listErr
}

func (f *fakeStore) ListFeedbackBySuggestion(suggestion string) ([]models.FeedbackWithInteraction, error) {
	return f.bySuggestion, nil
}

func (f *fakeStore) InsertImprovementCycle(cycle *models.ImprovementCycle) error {
	f.cycles = append(f.cycles, cycle)
	return nil
}

func (f *fakeStore) ListImprovementCycles(limit int) ([]models.ImprovementCycle, error) {
	out := make([]models.ImprovementCycle, 0, len(f.cycles))
	for _, c := range f.cycles {
		out = append(out, *c)
	}
	return out, nil
}

type fakeSynthesizer struct {
	items []*models.TrainingItem
	err   error
}

func (f *fakeSynthesizer) Synthesize(item *models.TrainingItem) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, item)
	return nil
}

type fakeExporter struct {
	path  string
	count int
	err   error
	calls int
}

func (f *fakeExporter) Export(dir, format string, approvedOnly bool) (string, int, error) {
	f.calls++
	return f.path, f.count, f.err
}

func problemAnalysis() *analytics.WindowAnalysis {
	return &analytics.WindowAnalysis{
		TotalFeedback: 5,
		AverageRating: 2.4,
		CategoryPerformance: []analytics.CategoryWindow{
			{Category: "news", FeedbackCount: 3, AvgRating: 2.0, PoorRatings: 3, NeedsAttention: true},
		},
		CommonSuggestions: []analytics.SuggestionSummary{
			{Suggestion: "Should show real headlines", Frequency: 2},
		},
		ImprovementNeeded: true,
	}
}

func poorRow(rating int) models.FeedbackWithInteraction {
	return models.FeedbackWithInteraction{
		Feedback: models.Feedback{InteractionID: "int-1", OverallRating: rating, SuggestedImprovement: "fix it"},
		Question: "Show me the latest news",
		Answer:   "I'm unable to fetch news at the moment.",
		Category: "news",
	}
}

func TestRunCompletesAllCoreSteps(t *testing.T) {
	store := &fakeStore{poorlyRated: []models.FeedbackWithInteraction{poorRow(1)}}
	synth := &fakeSynthesizer{}
	pipeline := NewPipeline(&fakeAnalyzer{analysis: problemAnalysis()}, store, synth, &fakeExporter{},
		nil, t.TempDir(), 10)

	result := pipeline.Run(context.Background(), 1)

	if !result.Success {
		t.Fatalf("success = false, error = %s", result.Error)
	}

	want := []string{
		StepFeedbackAnalysis,
		StepImprovementIdentification,
		StepTrainingDataCreation,
		StepRecommendationGeneration,
	}
	if !reflect.DeepEqual(result.StepsCompleted, want) {
		t.Errorf("steps = %v, want %v", result.StepsCompleted, want)
	}

	if result.TrainingDataCreated < 1 {
		t.Errorf("training data created = %d, want >= 1", result.TrainingDataCreated)
	}
	if len(result.Recommendations) == 0 {
		t.Error("recommendations must not be empty")
	}

	// Auto-generated items are pre-approved and attributed.
	for _, item := range synth.items {
		if !item.Approved {
			t.Error("auto item not pre-approved")
		}
		if item.DataSource != "auto_improvement" {
			t.Errorf("data source = %q", item.DataSource)
		}
	}

	if len(store.cycles) != 1 || !store.cycles[0].Success {
		t.Errorf("persisted cycles = %+v", store.cycles)
	}
}

func TestRunStagesAboveThreshold(t *testing.T) {
	// 11 poor rows in one category pushes created items past the
	// staging threshold of 10.
	var rows []models.FeedbackWithInteraction
	for i := 0; i < 11; i++ {
		rows = append(rows, poorRow(1))
	}
	store := &fakeStore{poorlyRated: rows}
	exporter := &fakeExporter{path: "/tmp/none/training.jsonl", count: 11}
	pipeline := NewPipeline(&fakeAnalyzer{analysis: problemAnalysis()}, store, &fakeSynthesizer{},
		exporter, nil, t.TempDir(), 10)

	result := pipeline.Run(context.Background(), 7)

	if !result.Success {
		t.Fatalf("success = false, error = %s", result.Error)
	}
	last := result.StepsCompleted[len(result.StepsCompleted)-1]
	if last != StepModelUpdatePreparation {
		t.Errorf("last step = %s, want %s", last, StepModelUpdatePreparation)
	}
	if exporter.calls != 1 {
		t.Errorf("export calls = %d, want 1", exporter.calls)
	}
	if result.ModelUpdate == nil || result.ModelUpdate.TrainingExamples != 11 {
		t.Errorf("model update = %+v", result.ModelUpdate)
	}
}

func TestRunSkipsStagingAtThreshold(t *testing.T) {
	rows := []models.FeedbackWithInteraction{poorRow(1)}
	store := &fakeStore{poorlyRated: rows}
	exporter := &fakeExporter{}
	pipeline := NewPipeline(&fakeAnalyzer{analysis: problemAnalysis()}, store, &fakeSynthesizer{},
		exporter, nil, t.TempDir(), 10)

	result := pipeline.Run(context.Background(), 7)

	if !result.Success {
		t.Fatalf("success = false, error = %s", result.Error)
	}
	for _, step := range result.StepsCompleted {
		if step == StepModelUpdatePreparation {
			t.Error("staging ran below threshold")
		}
	}
	if exporter.calls != 0 {
		t.Errorf("export calls = %d, want 0", exporter.calls)
	}
}

func TestRunAbortsOnAnalysisFailure(t *testing.T) {
	store := &fakeStore{}
	pipeline := NewPipeline(&fakeAnalyzer{err: errors.New("db locked")}, store, &fakeSynthesizer{},
		&fakeExporter{}, nil, t.TempDir(), 10)

	result := pipeline.Run(context.Background(), 7)

	if result.Success {
		t.Fatal("expected failure")
	}
	if len(result.StepsCompleted) != 0 {
		t.Errorf("steps = %v, want none", result.StepsCompleted)
	}
	if result.Error == "" {
		t.Error("error not reported")
	}

	// Failed cycles are persisted too.
	if len(store.cycles) != 1 || store.cycles[0].Success {
		t.Errorf("persisted cycles = %+v", store.cycles)
	}
}

func TestRunAbortsMidway(t *testing.T) {
	store := &fakeStore{listErr: errors.New("query failed")}
	pipeline := NewPipeline(&fakeAnalyzer{analysis: problemAnalysis()}, store, &fakeSynthesizer{},
		&fakeExporter{}, nil, t.TempDir(), 10)

	result := pipeline.Run(context.Background(), 7)

	if result.Success {
		t.Fatal("expected failure")
	}

	want := []string{StepFeedbackAnalysis, StepImprovementIdentification}
	if !reflect.DeepEqual(result.StepsCompleted, want) {
		t.Errorf("steps = %v, want %v", result.StepsCompleted, want)
	}
	// Partial report keeps what the completed steps produced.
	if result.FeedbackAnalysis == nil || len(result.ImprovementsIdentified) == 0 {
		t.Error("partial results missing from failed report")
	}
}

func TestHistory(t *testing.T) {
	store := &fakeStore{poorlyRated: []models.FeedbackWithInteraction{poorRow(2)}}
	pipeline := NewPipeline(&fakeAnalyzer{analysis: problemAnalysis()}, store, &fakeSynthesizer{},
		&fakeExporter{}, nil, t.TempDir(), 10)

	pipeline.Run(context.Background(), 7)
	pipeline.Run(context.Background(), 1)

	history, err := pipeline.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history = %d cycles, want 2", len(history))
	}
}
