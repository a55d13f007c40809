// Package llm provides the text-generation client behind the advisory
// decision strategy.
package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// GeminiClient implements policy.TextGenerator using Google GenAI Gemini.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey    string // if empty, uses GOOGLE_API_KEY env var
	Model     string // e.g. "gemini-3-flash"
	MaxTokens int32
}

// NewGeminiClient creates a new Gemini client. The credentials are read once
// here and never mutated afterwards.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-3-flash"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}

	return &GeminiClient{client: client, model: model, maxTokens: maxTokens}, nil
}

// Generate produces a completion for the prompt.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result += part.Text
		}
	}
	return result, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.model
}
