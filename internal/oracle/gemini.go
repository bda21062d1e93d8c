package oracle

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"proposalnerd/internal/logging"
)

const defaultModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini-backed oracle.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Client on top of the Gemini API, asking the
// model for JSON output and parsing the requested fields out of it.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini oracle client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

// Generate sends the prompt and parses the expected fields from the
// model's JSON response.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, fields []string) (map[string]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	logging.Oracle("calling %s, prompt %d chars, %d expected fields", c.model, len(prompt), len(fields))

	resp, err := c.client.Models.GenerateContent(callCtx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.3),
		})
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	text := resp.Text()
	logging.OracleDebug("response in %s, %d chars", time.Since(started).Round(time.Millisecond), len(text))

	out, err := parseFields(text, fields)
	if err != nil {
		return nil, fmt.Errorf("gemini response unusable: %w", err)
	}
	return out, nil
}
