package training

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/attendbot/backend/internal/storage/models"
	"github.com/attendbot/backend/pkg/logger"
)

const (
	FormatJSON         = "json"
	FormatBedrockJSONL = "bedrock_jsonl"
	FormatOpenAI       = "openai"
	FormatCSV          = "csv"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type conversationExample struct {
	Messages []message              `json:"messages"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type jsonExample struct {
	Question     string  `json:"question"`
	IdealAnswer  string  `json:"ideal_answer"`
	ActualAnswer string  `json:"actual_answer"`
	FeedbackScore int    `json:"feedback_score"`
	Category     string  `json:"category"`
	Difficulty   string  `json:"difficulty"`
	QualityScore float64 `json:"quality_score"`
}

// Dataset renders the curated items in the requested format. The
// conversation formats (bedrock, openai) skip items without an ideal
// answer since there is nothing to train toward; json and csv keep
// every item for review.
func (c *Curator) Dataset(format string, approvedOnly bool) (interface{}, int, error) {
	items, err := c.Items(approvedOnly)
	if err != nil {
		return nil, 0, err
	}

	switch format {
	case FormatBedrockJSONL:
		out := formatBedrock(items)
		return out, len(out), nil
	case FormatOpenAI:
		out := formatOpenAI(items)
		return out, len(out), nil
	case FormatCSV, FormatJSON, "":
		out := formatJSON(items)
		return out, len(out), nil
	default:
		return nil, 0, fmt.Errorf("unknown export format %q", format)
	}
}

func formatBedrock(items []models.TrainingItem) []conversationExample {
	out := make([]conversationExample, 0, len(items))
	for _, item := range items {
		if item.IdealAnswer == "" {
			continue
		}
		out = append(out, conversationExample{
			Messages: []message{
				{Role: "user", Content: item.Question},
				{Role: "assistant", Content: item.IdealAnswer},
			},
			Metadata: map[string]interface{}{
				"category":      item.Category,
				"difficulty":    item.Difficulty,
				"quality_score": item.QualityScore,
			},
		})
	}
	return out
}

func formatOpenAI(items []models.TrainingItem) []conversationExample {
	out := make([]conversationExample, 0, len(items))
	for _, item := range items {
		if item.IdealAnswer == "" {
			continue
		}
		out = append(out, conversationExample{
			Messages: []message{
				{Role: "system", Content: fmt.Sprintf("You are a helpful AI assistant specializing in %s questions.", item.Category)},
				{Role: "user", Content: item.Question},
				{Role: "assistant", Content: item.IdealAnswer},
			},
		})
	}
	return out
}

func formatJSON(items []models.TrainingItem) []jsonExample {
	out := make([]jsonExample, 0, len(items))
	for _, item := range items {
		out = append(out, jsonExample{
			Question:      item.Question,
			IdealAnswer:   item.IdealAnswer,
			ActualAnswer:  item.ActualAnswer,
			FeedbackScore: item.FeedbackScore,
			Category:      item.Category,
			Difficulty:    item.Difficulty,
			QualityScore:  item.QualityScore,
		})
	}
	return out
}

// Export writes the dataset to a timestamped file in dir and returns
// the path and example count.
func (c *Curator) Export(dir, format string, approvedOnly bool) (string, int, error) {
	data, count, err := c.Dataset(format, approvedOnly)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export dir: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	var path string

	switch format {
	case FormatBedrockJSONL:
		path = filepath.Join(dir, fmt.Sprintf("training_data_%s.jsonl", timestamp))
		err = writeJSONL(path, data.([]conversationExample))
	case FormatOpenAI:
		path = filepath.Join(dir, fmt.Sprintf("training_data_%s.jsonl", timestamp))
		err = writeJSONL(path, data.([]conversationExample))
	case FormatCSV:
		path = filepath.Join(dir, fmt.Sprintf("training_data_%s.csv", timestamp))
		err = writeCSV(path, data.([]jsonExample))
	default:
		path = filepath.Join(dir, fmt.Sprintf("training_data_%s.json", timestamp))
		err = writeJSON(path, data)
	}
	if err != nil {
		return "", 0, err
	}

	logger.Info("Training dataset exported",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("examples", count),
	)

	return path, count, nil
}

func writeJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func writeJSONL(path string, examples []conversationExample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
	}
	return nil
}

func writeCSV(path string, examples []jsonExample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"question", "ideal_answer", "actual_answer", "feedback_score",
		"category", "difficulty", "quality_score", "needs_improvement"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	for _, ex := range examples {
		row := []string{
			ex.Question,
			ex.IdealAnswer,
			ex.ActualAnswer,
			strconv.Itoa(ex.FeedbackScore),
			ex.Category,
			ex.Difficulty,
			strconv.FormatFloat(ex.QualityScore, 'f', -1, 64),
			strconv.FormatBool(ex.QualityScore > 0.5),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
