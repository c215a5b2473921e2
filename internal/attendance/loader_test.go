package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	keys    []string
	objects map[string]string
	listErr error
	calls   int
}

func (f *fakeSource) ListJSONKeys(ctx context.Context) ([]string, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.keys, nil
}

func (f *fakeSource) LoadRecords(ctx context.Context, key string, out interface{}) error {
	body, ok := f.objects[key]
	if !ok {
		return errors.New("no such key")
	}
	return json.Unmarshal([]byte(body), out)
}

func TestRecordsCombinesDatasets(t *testing.T) {
	source := &fakeSource{
		keys: []string{"attendance/2026-01.json", "attendance/2026-02.json"},
		objects: map[string]string{
			"attendance/2026-01.json": `[{"student":"a","status":"present"}]`,
			"attendance/2026-02.json": `[{"student":"b","status":"absent"}]`,
		},
	}
	loader := NewLoader(source, time.Minute)

	records, err := loader.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
}

func TestRecordsCachesWithinTTL(t *testing.T) {
	source := &fakeSource{
		keys:    []string{"a.json"},
		objects: map[string]string{"a.json": `{"ok":true}`},
	}
	loader := NewLoader(source, time.Minute)

	ctx := context.Background()
	if _, err := loader.Records(ctx); err != nil {
		t.Fatalf("first Records: %v", err)
	}
	if _, err := loader.Records(ctx); err != nil {
		t.Fatalf("second Records: %v", err)
	}

	if source.calls != 1 {
		t.Errorf("source listed %d times, want 1", source.calls)
	}
}

func TestRecordsServesStaleOnRefreshFailure(t *testing.T) {
	source := &fakeSource{
		keys:    []string{"a.json"},
		objects: map[string]string{"a.json": `{"ok":true}`},
	}
	loader := NewLoader(source, time.Nanosecond)

	ctx := context.Background()
	if _, err := loader.Records(ctx); err != nil {
		t.Fatalf("warm-up Records: %v", err)
	}

	source.listErr = errors.New("bucket unavailable")
	time.Sleep(time.Millisecond)

	records, err := loader.Records(ctx)
	if err != nil {
		t.Fatalf("stale Records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want stale copy of 1", len(records))
	}
}

func TestSkipsUnreadableDataset(t *testing.T) {
	source := &fakeSource{
		keys: []string{"good.json", "bad.json"},
		objects: map[string]string{
			"good.json": `{"ok":true}`,
			"bad.json":  `{not json`,
		},
	}
	loader := NewLoader(source, time.Minute)

	records, err := loader.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestSampleTruncates(t *testing.T) {
	big := `{"rows":"` + strings.Repeat("x", 500) + `"}`
	source := &fakeSource{
		keys:    []string{"big.json"},
		objects: map[string]string{"big.json": big},
	}
	loader := NewLoader(source, time.Minute)

	sample, err := loader.Sample(context.Background(), 100)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(sample) != 100 {
		t.Errorf("len(sample) = %d, want 100", len(sample))
	}
}

func TestSampleEmptyBucket(t *testing.T) {
	loader := NewLoader(&fakeSource{}, time.Minute)

	sample, err := loader.Sample(context.Background(), 100)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !strings.Contains(sample, "no attendance datasets") {
		t.Errorf("sample = %q", sample)
	}
}
