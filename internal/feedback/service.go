package feedback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

// minFrequency is the floor for feedback prompt cadence. A frequency of
// 1 would ask after every single message, which drives users to opt out.
const minFrequency = 2

// CurationSink receives feedback that warrants a training example. The
// feedback service notifies it synchronously; its failures never fail
// the feedback submission.
type CurationSink interface {
	CurateFromFeedback(ctx context.Context, fb *models.Feedback, interaction *models.Interaction) error
}

// Store is the storage surface the feedback service needs.
type Store interface {
	GetInteraction(id string) (*models.Interaction, error)
	InsertFeedback(fb *models.Feedback) error
	CountInteractionsBySession(sessionID string) (int, error)
	GetUserPreference(userID string) (*models.UserPreference, error)
	UpsertUserPreference(pref *models.UserPreference) error
	TouchLastFeedbackRequest(userID string, at time.Time) error
	RandomActivePrompt() (*models.FeedbackPrompt, error)
}

type Service struct {
	store              Store
	sink               CurationSink
	lowRatingThreshold int
	defaultFrequency   int
}

type Submission struct {
	InteractionID        string
	OverallRating        int
	AccuracyRating       int
	HelpfulnessRating    int
	ClarityRating        int
	Comment              string
	SuggestedImprovement string
	UserIP               string
}

func NewService(store Store, sink CurationSink, lowRatingThreshold, defaultFrequency int) *Service {
	return &Service{
		store:              store,
		sink:               sink,
		lowRatingThreshold: lowRatingThreshold,
		defaultFrequency:   defaultFrequency,
	}
}

// Submit validates and stores one feedback event. Low ratings and
// explicit improvement suggestions are forwarded to the curation sink
// before returning, so a training example exists by the time the caller
// sees success.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Feedback, error) {
	if sub.OverallRating < 1 || sub.OverallRating > 5 {
		return nil, fmt.Errorf("%w: overall rating %d", models.ErrInvalidRating, sub.OverallRating)
	}
	for _, r := range []int{sub.AccuracyRating, sub.HelpfulnessRating, sub.ClarityRating} {
		if r != 0 && (r < 1 || r > 5) {
			return nil, fmt.Errorf("%w: dimension rating %d", models.ErrInvalidRating, r)
		}
	}

	interaction, err := s.store.GetInteraction(sub.InteractionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownInteraction, sub.InteractionID)
		}
		return nil, err
	}

	fb := &models.Feedback{
		ID:                   uuid.New().String(),
		InteractionID:        sub.InteractionID,
		OverallRating:        sub.OverallRating,
		AccuracyRating:       sub.AccuracyRating,
		HelpfulnessRating:    sub.HelpfulnessRating,
		ClarityRating:        sub.ClarityRating,
		Comment:              strings.TrimSpace(sub.Comment),
		SuggestedImprovement: strings.TrimSpace(sub.SuggestedImprovement),
		IsHelpful:            sub.OverallRating >= 3,
		UserIP:               sub.UserIP,
		FeedbackType:         "manual",
		CreatedAt:            time.Now(),
	}

	if err := s.store.InsertFeedback(fb); err != nil {
		return nil, err
	}

	metrics.FeedbackTotal.WithLabelValues(strconv.Itoa(fb.OverallRating)).Inc()

	if s.shouldCurate(fb) && s.sink != nil {
		if err := s.sink.CurateFromFeedback(ctx, fb, interaction); err != nil {
			logger.Error("Curation failed for feedback",
				zap.String("feedback_id", fb.ID),
				zap.Error(err),
			)
		}
	}

	return fb, nil
}

func (s *Service) shouldCurate(fb *models.Feedback) bool {
	return fb.OverallRating <= s.lowRatingThreshold || fb.SuggestedImprovement != ""
}

// PromptDecision says whether to ask the user for feedback now, and
// with which prompt.
type PromptDecision struct {
	Request bool
	Prompt  *models.FeedbackPrompt
}

// ShouldRequestFeedback decides whether the current message is one the
// system should follow with a rating request. Opted-out users are never
// asked; otherwise every Nth message in the session triggers a prompt,
// where N is the user's configured frequency.
func (s *Service) ShouldRequestFeedback(ctx context.Context, userID, sessionID string) (*PromptDecision, error) {
	frequency := s.defaultFrequency

	if userID != "" {
		pref, err := s.store.GetUserPreference(userID)
		if err == nil {
			if pref.OptOut {
				return &PromptDecision{Request: false}, nil
			}
			frequency = pref.FeedbackFrequency
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	if frequency < minFrequency {
		frequency = minFrequency
	}

	count, err := s.store.CountInteractionsBySession(sessionID)
	if err != nil {
		return nil, err
	}
	if count == 0 || count%frequency != 0 {
		return &PromptDecision{Request: false}, nil
	}

	prompt, err := s.store.RandomActivePrompt()
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &PromptDecision{Request: false}, nil
		}
		return nil, err
	}

	if userID != "" {
		if err := s.store.TouchLastFeedbackRequest(userID, time.Now()); err != nil {
			logger.Warn("Failed to record feedback request time", zap.Error(err))
		}
	}

	return &PromptDecision{Request: true, Prompt: prompt}, nil
}

// SetPreferences updates a user's feedback cadence. Frequencies below
// the floor are clamped rather than rejected.
func (s *Service) SetPreferences(userID string, frequency int, optOut bool) (*models.UserPreference, error) {
	if frequency <= 0 {
		frequency = s.defaultFrequency
	}
	if frequency < minFrequency {
		frequency = minFrequency
	}

	pref := &models.UserPreference{
		UserID:            userID,
		FeedbackFrequency: frequency,
		OptOut:            optOut,
	}

	if err := s.store.UpsertUserPreference(pref); err != nil {
		return nil, err
	}

	logger.Info("Feedback preferences updated",
		zap.String("user_id", userID),
		zap.Int("frequency", frequency),
		zap.Bool("opt_out", optOut),
	)

	return pref, nil
}
