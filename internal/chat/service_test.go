package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/attendbot/backend/internal/llm"
	"github.com/attendbot/backend/internal/metrics"
	"github.com/attendbot/backend/internal/storage/models"
)

type fakeProvider struct {
	lastUserPrompt string
	usage          llm.Usage
	err            error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastUserPrompt = req.UserPrompt
	return &llm.CompletionResponse{Content: "answer", Usage: f.usage}, nil
}

type fakeAttendance struct{ sample string }

func (f *fakeAttendance) Sample(ctx context.Context, maxBytes int) (string, error) {
	return f.sample, nil
}

type fakeHeadlines struct {
	headlines []string
	err       error
}

func (f *fakeHeadlines) Headlines(ctx context.Context, maxResults int) ([]string, error) {
	return f.headlines, f.err
}

type fakeStore struct {
	inserted []*models.Interaction
	err      error
}

func (f *fakeStore) InsertInteraction(i *models.Interaction) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, i)
	return nil
}

func newTestService(provider *fakeProvider, news *fakeHeadlines, store *fakeStore) *Service {
	return NewService(provider, &fakeAttendance{sample: `[{"student":"a"}]`}, news, store, nil, 0)
}

func TestAskRecordsInteraction(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeProvider{}, &fakeHeadlines{}, store)

	resp, err := svc.Ask(context.Background(), "who was absent today", "sess", "user", "1.2.3.4")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if resp.Category != CategoryAttendance {
		t.Errorf("category = %s", resp.Category)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(store.inserted))
	}
	if store.inserted[0].ID != resp.InteractionID {
		t.Errorf("interaction id mismatch")
	}
	if store.inserted[0].Answer != "answer" {
		t.Errorf("stored answer = %q", store.inserted[0].Answer)
	}
}

func TestAskContinuesWhenStorageDown(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("%w: disk gone", models.ErrStorageUnavailable)}
	svc := newTestService(&fakeProvider{}, &fakeHeadlines{}, store)

	resp, err := svc.Ask(context.Background(), "hello", "sess", "user", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != "answer" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestAskNewsFallbackMessage(t *testing.T) {
	store := &fakeStore{}
	news := &fakeHeadlines{err: errors.New("feed down")}
	svc := newTestService(&fakeProvider{}, news, store)

	resp, err := svc.Ask(context.Background(), "latest news please", "sess", "user", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Category != CategoryNews {
		t.Errorf("category = %s", resp.Category)
	}
	// The degraded answer is still recorded so users can rate it.
	if len(store.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(store.inserted))
	}
	if resp.Answer == "answer" {
		t.Errorf("expected fallback message, got model answer")
	}
}

func TestAskAttendancePromptCarriesRecords(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, &fakeHeadlines{}, &fakeStore{})

	_, err := svc.Ask(context.Background(), "attendance for today", "sess", "user", "")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !strings.Contains(provider.lastUserPrompt, `"student":"a"`) {
		t.Errorf("prompt missing records: %q", provider.lastUserPrompt)
	}
}

func TestAskCountsTokenUsage(t *testing.T) {
	provider := &fakeProvider{usage: llm.Usage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}}
	svc := newTestService(provider, &fakeHeadlines{}, &fakeStore{})

	promptBefore := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("fake", "prompt"))
	completionBefore := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("fake", "completion"))

	if _, err := svc.Ask(context.Background(), "hello", "sess", "user", ""); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	promptDelta := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("fake", "prompt")) - promptBefore
	completionDelta := testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("fake", "completion")) - completionBefore
	if promptDelta != 40 {
		t.Errorf("prompt tokens counted = %v, want 40", promptDelta)
	}
	if completionDelta != 12 {
		t.Errorf("completion tokens counted = %v, want 12", completionDelta)
	}
}

func TestAskProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	svc := newTestService(provider, &fakeHeadlines{}, &fakeStore{})

	_, err := svc.Ask(context.Background(), "hello", "sess", "user", "")
	if err == nil {
		t.Fatal("expected error")
	}
}
