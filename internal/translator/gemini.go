package translator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type Gemini struct {
	client  *genai.Client
	modelID string
}

func NewGemini(ctx context.Context, apiKey, modelID string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, modelID: modelID}, nil
}

func (g *Gemini) Name() string { return "Gemini" }

func (g *Gemini) Complete(ctx context.Context, text string) (string, error) {
	temp := float32(0.2)
	topP := float32(0.3)
	resp, err := g.client.Models.GenerateContent(ctx, g.modelID, genai.Text(userPromptPrefix+text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   8000,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	out := resp.Text()
	if out == "" {
		return "", fmt.Errorf("no text part in response")
	}
	return out, nil
}
