package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/attendbot/backend/pkg/circuitbreaker"
	"github.com/attendbot/backend/pkg/logger"
	"github.com/attendbot/backend/pkg/retry"
)

type BedrockProvider struct {
	client      *bedrockruntime.Client
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// Claude message format on Bedrock.
type bedrockRequest struct {
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float32          `json:"temperature,omitempty"`
	AnthropicVersion string           `json:"anthropic_version"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func NewBedrockProvider(region, model string, temperature float32, maxTokens int) (*BedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Bedrock provider initialized",
		zap.String("model", model),
		zap.String("region", region),
	)

	return &BedrockProvider{
		client:      bedrockruntime.NewFromConfig(cfg),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (p *BedrockProvider) Name() string {
	return fmt.Sprintf("AWS Bedrock (%s)", p.model)
}

func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	body, err := json.Marshal(bedrockRequest{
		Messages: []bedrockMessage{
			{Role: "user", Content: req.UserPrompt},
		},
		System:           req.SystemPrompt,
		MaxTokens:        maxTokens,
		Temperature:      temperature,
		AnthropicVersion: "bedrock-2023-05-31",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *CompletionResponse

	err = p.cb.Execute(ctx, func() error {
		return retry.Do(ctx, p.retryConfig, func() error {
			resp, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
				ModelId:     aws.String(p.model),
				ContentType: aws.String("application/json"),
				Accept:      aws.String("application/json"),
				Body:        body,
			})
			if err != nil {
				return fmt.Errorf("failed to invoke model: %w", err)
			}

			var decoded bedrockResponse
			if err := json.Unmarshal(resp.Body, &decoded); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			if len(decoded.Content) == 0 {
				return fmt.Errorf("model returned no content")
			}

			logger.Debug("Completion generated",
				zap.Int("input_tokens", decoded.Usage.InputTokens),
				zap.Int("output_tokens", decoded.Usage.OutputTokens),
			)

			result = &CompletionResponse{
				Content: decoded.Content[0].Text,
				Usage: Usage{
					PromptTokens:     decoded.Usage.InputTokens,
					CompletionTokens: decoded.Usage.OutputTokens,
					TotalTokens:      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}
