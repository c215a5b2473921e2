package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/llm"
	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
	"github.com/attendbot/backend/pkg/utils"
)

// AttendanceSource supplies the attendance dataset sample injected into
// LLM prompts.
type AttendanceSource interface {
	Sample(ctx context.Context, maxBytes int) (string, error)
}

// HeadlineSource supplies current news headlines.
type HeadlineSource interface {
	Headlines(ctx context.Context, maxResults int) ([]string, error)
}

// InteractionStore records chat exchanges. Failures here never block a
// response; logging the exchange is best effort.
type InteractionStore interface {
	InsertInteraction(interaction *models.Interaction) error
}

// AnswerCache caches full responses keyed by normalized question hash.
type AnswerCache interface {
	GetAnswer(ctx context.Context, questionHash string, response interface{}) (bool, error)
	SetAnswer(ctx context.Context, questionHash string, response interface{}, ttl time.Duration) error
}

type Service struct {
	provider   llm.Provider
	attendance AttendanceSource
	news       HeadlineSource
	store      InteractionStore
	cache      AnswerCache
	cacheTTL   time.Duration
	sampleSize int
}

type Response struct {
	InteractionID string   `json:"interaction_id"`
	Answer        string   `json:"answer"`
	Category      string   `json:"category"`
	Confidence    float64  `json:"confidence"`
	ResponseTimeMS int     `json:"response_time_ms"`
	DataSources   []string `json:"data_sources"`
	Cached        bool     `json:"cached"`
}

func NewService(provider llm.Provider, attendance AttendanceSource, news HeadlineSource,
	store InteractionStore, cache AnswerCache, cacheTTL time.Duration) *Service {
	return &Service{
		provider:   provider,
		attendance: attendance,
		news:       news,
		store:      store,
		cache:      cache,
		cacheTTL:   cacheTTL,
		sampleSize: 2000,
	}
}

// Ask answers one question. The exchange is always recorded with a fresh
// interaction id, including cache hits, so every answer stays ratable.
func (s *Service) Ask(ctx context.Context, question, sessionID, userID, userIP string) (*Response, error) {
	start := time.Now()
	category, confidence := Classify(question)

	questionHash := utils.QuestionHash(question)

	var resp Response
	cached := false
	if s.cache != nil {
		hit, err := s.cache.GetAnswer(ctx, questionHash, &resp)
		if err != nil {
			logger.Warn("Answer cache lookup failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			cached = true
		} else {
			metrics.CacheMisses.WithLabelValues("answer").Inc()
		}
	}

	var sources []string
	if !cached {
		answer, srcs, err := s.generate(ctx, question, category)
		if err != nil {
			metrics.ChatTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		resp.Answer = answer
		sources = srcs

		if s.cache != nil {
			if err := s.cache.SetAnswer(ctx, questionHash, &resp, s.cacheTTL); err != nil {
				logger.Warn("Failed to cache answer", zap.Error(err))
			}
		}
	} else {
		sources = resp.DataSources
	}

	elapsed := time.Since(start)

	interaction := &models.Interaction{
		ID:             uuid.New().String(),
		Question:       question,
		Answer:         resp.Answer,
		Category:       category,
		ResponseTimeMS: int(elapsed.Milliseconds()),
		SessionID:      sessionID,
		UserID:         userID,
		UserIP:         userIP,
		Confidence:     confidence,
		DataSources:    sources,
		CreatedAt:      time.Now(),
	}

	if err := s.store.InsertInteraction(interaction); err != nil {
		if errors.Is(err, models.ErrStorageUnavailable) {
			// The user still gets an answer; the exchange just goes unlogged.
			logger.Error("Interaction not recorded", zap.Error(err))
		} else {
			return nil, err
		}
	}

	resp.InteractionID = interaction.ID
	resp.Category = category
	resp.Confidence = confidence
	resp.ResponseTimeMS = interaction.ResponseTimeMS
	resp.DataSources = sources
	resp.Cached = cached

	metrics.ChatTotal.WithLabelValues("success").Inc()
	metrics.ChatDuration.WithLabelValues(category).Observe(elapsed.Seconds())
	metrics.ConfidenceScore.WithLabelValues().Observe(confidence)

	logger.Info("Chat answered",
		zap.String("interaction_id", interaction.ID),
		zap.String("category", category),
		zap.Bool("cached", cached),
		zap.Duration("elapsed", elapsed),
	)

	return &resp, nil
}

func (s *Service) generate(ctx context.Context, question, category string) (string, []string, error) {
	switch category {
	case CategoryAttendance:
		return s.answerAttendance(ctx, question)
	case CategoryNews:
		return s.answerNews(ctx, question)
	default:
		return s.answerGeneral(ctx, question)
	}
}

func (s *Service) recordTokenUsage(usage llm.Usage) {
	model := s.provider.Name()
	metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}

func (s *Service) answerAttendance(ctx context.Context, question string) (string, []string, error) {
	sample, err := s.attendance.Sample(ctx, s.sampleSize)
	if err != nil {
		logger.Warn("Attendance data unavailable, answering without it", zap.Error(err))
		sample = "(attendance records unavailable)"
	}

	systemPrompt := `You are a school attendance assistant. Answer questions about student attendance
using ONLY the provided attendance records. Be specific: name counts, dates, and students
when the records support it. Say clearly when the records do not cover the question.`

	userPrompt := fmt.Sprintf("Question: %s\n\nAttendance records (JSON sample):\n%s", question, sample)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to answer attendance question: %w", err)
	}
	s.recordTokenUsage(resp.Usage)

	return resp.Content, []string{"attendance_records"}, nil
}

func (s *Service) answerNews(ctx context.Context, question string) (string, []string, error) {
	headlines, err := s.news.Headlines(ctx, 10)
	if err != nil {
		logger.Warn("Headlines unavailable", zap.Error(err))
		return "I'm unable to fetch news at the moment. Please try again later.", nil, nil
	}

	systemPrompt := `You are a helpful assistant. Summarize or answer questions about today's
news using ONLY the provided headlines. Do not invent stories.`

	userPrompt := fmt.Sprintf("Question: %s\n\nToday's headlines:\n- %s",
		question, strings.Join(headlines, "\n- "))

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to answer news question: %w", err)
	}
	s.recordTokenUsage(resp.Usage)

	return resp.Content, []string{"news_api"}, nil
}

func (s *Service) answerGeneral(ctx context.Context, question string) (string, []string, error) {
	systemPrompt := `You are a friendly school assistant chatbot. Answer general questions
concisely. For attendance questions you have school records; mention that capability
when relevant.`

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   question,
		Temperature:  0.7,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to answer question: %w", err)
	}
	s.recordTokenUsage(resp.Usage)

	return resp.Content, nil, nil
}
