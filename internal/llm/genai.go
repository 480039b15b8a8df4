package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"webresearch/internal/logging"
	"webresearch/internal/retry"
)

// GenAIConfig configures the Gemini client.
type GenAIConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration // per call, including retries
	Temperature float32
	MaxAttempts int
}

// GenAIClient implements Completer with Google's Gemini API.
type GenAIClient struct {
	client *genai.Client
	cfg    GenAIConfig
	policy retry.Policy
}

var _ Completer = (*GenAIClient)(nil)

// NewGenAIClient creates a Gemini completion client.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{
		client: client,
		cfg:    cfg,
		policy: retry.NewExponential(retry.Config{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
		}, retry.WithClassifier(retryableAPIError)),
	}, nil
}

// Complete sends a single user prompt.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryLLM, "generate "+c.cfg.Model)
	defer timer.StopWithThreshold(20 * time.Second)

	temp := c.cfg.Temperature
	gc := &genai.GenerateContentConfig{Temperature: &temp}
	if systemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	var text string
	err := retry.Do(ctx, c.policy, logging.CategoryLLM, "genai generate", func(ctx context.Context, _ int) error {
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(userPrompt), gc)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			return retry.Permanent(ErrEmptyResponse)
		}
		return nil
	})
	if err != nil {
		logging.LLMWarn("generate failed: %v", err)
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return text, nil
}

// Client exposes the underlying genai client so embeddings can share it.
func (c *GenAIClient) Client() *genai.Client { return c.client }

// retryableAPIError retries rate limits, server errors and transport errors.
func retryableAPIError(err error) bool {
	if errors.Is(err, retry.ErrNonRetryable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return true
}
