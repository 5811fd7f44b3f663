package providers

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider generates text using Google's Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name identifies the provider in logs and the exchange archive.
func (p *GeminiProvider) Name() string { return "gemini" }

// Model returns the configured model identifier.
func (p *GeminiProvider) Model() string { return p.model }

// Complete concatenates the instruction and payload into a single prompt.
// Gemini has no separate system role on this call path.
func (p *GeminiProvider) Complete(ctx context.Context, instruction, payload string) (string, error) {
	prompt := instruction + "\n\n" + payload
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 ||
		result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini returned empty response")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
