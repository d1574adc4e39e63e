package generate

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"scenecast/internal/render"
)

// GeminiGenerator asks a Gemini model for scene code.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator connects with apiKey, or with the environment's
// credentials when apiKey is empty.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	var cc *genai.ClientConfig
	if apiKey != "" {
		cc = &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

func (g *GeminiGenerator) Generate(ctx context.Context, promptContext string, durationMinutes float64, mode render.Mode) (render.Script, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(systemPrompt(mode)),
		genai.NewPartFromText(promptContext),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.4),
	})
	if err != nil {
		return render.Script{}, fmt.Errorf("gemini generate: %w", err)
	}
	return render.NewScript(result.Text()), nil
}
