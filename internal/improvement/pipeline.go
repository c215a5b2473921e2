package improvement

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/analytics"
	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/internal/training"
	"github.com/attendbot/backend/pkg/logger"
)

// Step names recorded in cycle reports, in execution order.
const (
	StepFeedbackAnalysis         = "feedback_analysis"
	StepImprovementIdentification = "improvement_identification"
	StepTrainingDataCreation     = "training_data_creation"
	StepRecommendationGeneration = "recommendation_generation"
	StepModelUpdatePreparation   = "model_update_preparation"
)

// Analyzer supplies the window analysis the cycle starts from.
type Analyzer interface {
	AnalyzeWindow(days int) (*analytics.WindowAnalysis, error)
}

// Store is the feedback/cycle storage the pipeline reads and writes.
type Store interface {
	ListPoorlyRated(category string, maxRating int, since time.Time) ([]models.FeedbackWithInteraction, error)
	ListFeedbackBySuggestion(suggestion string) ([]models.FeedbackWithInteraction, error)
	InsertImprovementCycle(cycle *models.ImprovementCycle) error
	ListImprovementCycles(limit int) ([]models.ImprovementCycle, error)
}

// Synthesizer persists auto-generated training items.
type Synthesizer interface {
	Synthesize(item *models.TrainingItem) error
}

// Exporter writes the curated dataset to a local artifact.
type Exporter interface {
	Export(dir, format string, approvedOnly bool) (string, int, error)
}

// ArtifactStore receives exported artifacts. Optional; uploads are best
// effort.
type ArtifactStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
}

type Pipeline struct {
	analyzer       Analyzer
	store          Store
	synthesizer    Synthesizer
	exporter       Exporter
	artifacts      ArtifactStore
	exportDir      string
	stageThreshold int
}

func NewPipeline(analyzer Analyzer, store Store, synthesizer Synthesizer, exporter Exporter,
	artifacts ArtifactStore, exportDir string, stageThreshold int) *Pipeline {
	return &Pipeline{
		analyzer:       analyzer,
		store:          store,
		synthesizer:    synthesizer,
		exporter:       exporter,
		artifacts:      artifacts,
		exportDir:      exportDir,
		stageThreshold: stageThreshold,
	}
}

// ModelUpdateInfo describes the staged fine-tuning artifact.
type ModelUpdateInfo struct {
	TrainingFile      string   `json:"training_file"`
	S3Location        string   `json:"s3_location,omitempty"`
	TrainingExamples  int      `json:"training_examples"`
	RecommendedAction string   `json:"recommended_action"`
	NextSteps         []string `json:"next_steps"`
}

// Result is the full report of one improvement cycle. On failure it
// carries everything completed up to the failing step.
type Result struct {
	CycleID                string                      `json:"cycle_id"`
	StartedAt              time.Time                   `json:"started_at"`
	CompletedAt            time.Time                   `json:"completed_at"`
	DaysAnalyzed           int                         `json:"days_analyzed"`
	StepsCompleted         []string                    `json:"steps_completed"`
	FeedbackAnalysis       *analytics.WindowAnalysis   `json:"feedback_analysis,omitempty"`
	ImprovementsIdentified []analytics.ImprovementArea `json:"improvements_identified"`
	TrainingDataCreated    int                         `json:"training_data_created"`
	Recommendations        []analytics.Recommendation  `json:"recommendations"`
	ModelUpdate            *ModelUpdateInfo            `json:"model_update_info,omitempty"`
	Success                bool                        `json:"success"`
	Error                  string                      `json:"error,omitempty"`
}

// Run executes one improvement cycle. Steps run in a fixed order and a
// failing step aborts the rest; the partial report is still persisted
// and returned with Success false.
func (p *Pipeline) Run(ctx context.Context, daysBack int) *Result {
	if daysBack <= 0 {
		daysBack = 7
	}

	result := &Result{
		CycleID:        uuid.New().String(),
		StartedAt:      time.Now(),
		DaysAnalyzed:   daysBack,
		StepsCompleted: []string{},
	}

	logger.Info("Improvement cycle started",
		zap.String("cycle_id", result.CycleID),
		zap.Int("days_back", daysBack),
	)

	err := p.runSteps(ctx, daysBack, result)
	result.CompletedAt = time.Now()

	if err != nil {
		result.Error = err.Error()
		metrics.ImprovementCycles.WithLabelValues("failure").Inc()
		logger.Error("Improvement cycle failed",
			zap.String("cycle_id", result.CycleID),
			zap.Strings("steps_completed", result.StepsCompleted),
			zap.Error(err),
		)
	} else {
		result.Success = true
		metrics.ImprovementCycles.WithLabelValues("success").Inc()
		logger.Info("Improvement cycle completed",
			zap.String("cycle_id", result.CycleID),
			zap.Int("training_data_created", result.TrainingDataCreated),
		)
	}

	p.persist(result)
	return result
}

func (p *Pipeline) runSteps(ctx context.Context, daysBack int, result *Result) error {
	analysis, err := p.analyzer.AnalyzeWindow(daysBack)
	if err != nil {
		return fmt.Errorf("feedback analysis: %w", err)
	}
	result.FeedbackAnalysis = analysis
	result.StepsCompleted = append(result.StepsCompleted, StepFeedbackAnalysis)

	areas := analytics.IdentifyImprovementAreas(analysis)
	result.ImprovementsIdentified = areas
	result.StepsCompleted = append(result.StepsCompleted, StepImprovementIdentification)

	created, err := p.createTrainingData(daysBack, areas)
	if err != nil {
		return fmt.Errorf("training data creation: %w", err)
	}
	result.TrainingDataCreated = created
	result.StepsCompleted = append(result.StepsCompleted, StepTrainingDataCreation)

	result.Recommendations = analytics.RecommendationsFor(areas)
	result.StepsCompleted = append(result.StepsCompleted, StepRecommendationGeneration)

	if created > p.stageThreshold {
		info, err := p.prepareModelUpdate(ctx)
		if err != nil {
			return fmt.Errorf("model update preparation: %w", err)
		}
		result.ModelUpdate = info
		result.StepsCompleted = append(result.StepsCompleted, StepModelUpdatePreparation)
	}

	return nil
}

// createTrainingData synthesizes training items for every problem area:
// the low-rated exchanges of underperforming categories, and every
// exchange whose feedback echoes a repeated suggestion.
func (p *Pipeline) createTrainingData(daysBack int, areas []analytics.ImprovementArea) (int, error) {
	since := time.Now().AddDate(0, 0, -daysBack)
	created := 0

	for _, area := range areas {
		switch area.Type {
		case "category_performance":
			rows, err := p.store.ListPoorlyRated(area.Category, 2, since)
			if err != nil {
				return created, err
			}
			for _, row := range rows {
				if err := p.synthesizeItem(row, row.Feedback.SuggestedImprovement, row.Category); err != nil {
					return created, err
				}
				created++
			}

		case "user_suggestion":
			rows, err := p.store.ListFeedbackBySuggestion(area.Issue)
			if err != nil {
				return created, err
			}
			for _, row := range rows {
				if err := p.synthesizeItem(row, area.Issue, "user_suggested"); err != nil {
					return created, err
				}
				created++
			}
		}
	}

	return created, nil
}

func (p *Pipeline) synthesizeItem(row models.FeedbackWithInteraction, idealAnswer, category string) error {
	rating := row.Feedback.OverallRating

	return p.synthesizer.Synthesize(&models.TrainingItem{
		Question:         row.Question,
		IdealAnswer:      idealAnswer,
		ActualAnswer:     row.Answer,
		FeedbackScore:    rating,
		QualityScore:     training.QualityScore(rating),
		NeedsImprovement: true,
		Priority:         training.Priority(rating),
		Category:         category,
		DataSource:       "auto_improvement",
		Approved:         true,
	})
}

func (p *Pipeline) prepareModelUpdate(ctx context.Context) (*ModelUpdateInfo, error) {
	path, count, err := p.exporter.Export(p.exportDir, training.FormatBedrockJSONL, true)
	if err != nil {
		return nil, err
	}

	info := &ModelUpdateInfo{
		TrainingFile:      path,
		TrainingExamples:  count,
		RecommendedAction: "Review training data and initiate fine-tuning process",
		NextSteps: []string{
			"Review training data quality",
			"Configure fine-tuning parameters",
			"Start model fine-tuning job",
			"Test improved model",
			"Deploy if performance improves",
		},
	}

	if p.artifacts != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Could not read export for upload", zap.Error(err))
			return info, nil
		}
		key := fmt.Sprintf("training-data/%s", filepath.Base(path))
		if err := p.artifacts.UploadFile(ctx, key, data, "application/jsonl"); err != nil {
			logger.Warn("Training data upload failed", zap.Error(err))
		} else {
			info.S3Location = key
		}
	}

	return info, nil
}

func (p *Pipeline) persist(result *Result) {
	cycle := &models.ImprovementCycle{
		ID:                  result.CycleID,
		StartedAt:           result.StartedAt,
		CompletedAt:         result.CompletedAt,
		DaysAnalyzed:        result.DaysAnalyzed,
		StepsCompleted:      result.StepsCompleted,
		TrainingDataCreated: result.TrainingDataCreated,
		Success:             result.Success,
		Error:               result.Error,
	}
	if err := p.store.InsertImprovementCycle(cycle); err != nil {
		logger.Error("Failed to persist improvement cycle", zap.Error(err))
	}
}

// History returns recent persisted cycle summaries.
func (p *Pipeline) History(limit int) ([]models.ImprovementCycle, error) {
	if limit <= 0 {
		limit = 10
	}
	return p.store.ListImprovementCycles(limit)
}
