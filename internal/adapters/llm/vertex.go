package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/vetassist/internal/domain"
)

type VertexResponder struct {
	client    *genai.Client
	modelName string
}

// NewVertexResponder creates a Responder based on Vertex AI (Gemini).
func NewVertexResponder(ctx context.Context, projectID, location, modelName string) (*VertexResponder, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("GCP project and location must be set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexResponder{
		client:    client,
		modelName: modelName,
	}, nil
}

// Respond implements domain.Responder using Vertex AI.
func (v *VertexResponder) Respond(ctx context.Context, rec domain.RequestRecord) (string, error) {
	prompt := BuildPrompt(rec)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt.User, genai.RoleUser),
	}

	temp := float32(0.3)
	topP := float32(0.9)
	outputTokens := int32(2048)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   outputTokens,
	}

	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("vertex returned empty text")
	}

	return text, nil
}
