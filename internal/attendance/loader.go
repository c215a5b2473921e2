package attendance

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/attendbot/backend/pkg/logger"
)

// RecordSource abstracts the bucket the attendance datasets live in.
type RecordSource interface {
	ListJSONKeys(ctx context.Context) ([]string, error)
	LoadRecords(ctx context.Context, key string, out interface{}) error
}

// Loader pulls every attendance JSON dataset from the source and keeps
// the combined result in memory. Refreshes happen lazily once the TTL
// expires; a failed refresh serves the stale copy rather than nothing.
type Loader struct {
	source RecordSource
	ttl    time.Duration

	mu       sync.RWMutex
	combined []json.RawMessage
	loadedAt time.Time
}

func NewLoader(source RecordSource, ttl time.Duration) *Loader {
	return &Loader{source: source, ttl: ttl}
}

func (l *Loader) refresh(ctx context.Context) error {
	keys, err := l.source.ListJSONKeys(ctx)
	if err != nil {
		return err
	}

	var combined []json.RawMessage
	for _, key := range keys {
		var record json.RawMessage
		if err := l.source.LoadRecords(ctx, key, &record); err != nil {
			logger.Warn("Skipping unreadable attendance dataset",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		combined = append(combined, record)
	}

	l.mu.Lock()
	l.combined = combined
	l.loadedAt = time.Now()
	l.mu.Unlock()

	logger.Info("Attendance datasets loaded", zap.Int("datasets", len(combined)))
	return nil
}

// Records returns the cached datasets, refreshing first when the cache
// is cold or expired.
func (l *Loader) Records(ctx context.Context) ([]json.RawMessage, error) {
	l.mu.RLock()
	fresh := !l.loadedAt.IsZero() && time.Since(l.loadedAt) < l.ttl
	cached := l.combined
	l.mu.RUnlock()

	if fresh {
		return cached, nil
	}

	if err := l.refresh(ctx); err != nil {
		if len(cached) > 0 {
			logger.Warn("Attendance refresh failed, serving stale data", zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.combined, nil
}

// Sample renders the combined datasets as JSON truncated to maxBytes,
// sized to fit inside an LLM prompt.
func (l *Loader) Sample(ctx context.Context, maxBytes int) (string, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "(no attendance datasets found)", nil
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}

	return string(data), nil
}
