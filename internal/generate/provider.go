package generate

import (
	"context"
	"fmt"
	"strings"

	"scenecast/internal/render"
)

// Providers.
const (
	ProviderTemplate = "template"
	ProviderGemini   = "gemini"
	ProviderArk      = "ark"
)

// Config selects and configures a Generator.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewGenerator builds the Generator named by cfg.Provider.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderTemplate:
		return TemplateGenerator{}, nil
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case ProviderArk:
		return NewArkGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

func systemPrompt(mode render.Mode) string {
	detail := "Keep the scene simple: one main object, basic lighting and smooth motion."
	switch mode {
	case render.ModeAdvanced:
		detail = "Build a richer scene: several objects, shadows, materials with texture and layered motion."
	case render.ModePro:
		detail = "Build a production quality scene: physically plausible motion, careful composition, camera moves and text labels where they help."
	}
	return "You write self-contained three.js animation scripts that are rendered frame by frame in a headless browser. " +
		detail + " Reply with JavaScript only."
}
