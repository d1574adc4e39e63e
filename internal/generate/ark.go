package generate

import (
	"context"
	"fmt"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"scenecast/internal/render"
)

// DefaultArkBaseURL is the Ark runtime endpoint used when none is set.
const DefaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// ArkGenerator asks a model hosted on Volcengine Ark for scene code.
type ArkGenerator struct {
	client *arkruntime.Client
	model  string
}

// NewArkGenerator returns an ArkGenerator for the given endpoint model.
func NewArkGenerator(apiKey, baseURL, modelID string) (*ArkGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ark: api key is required")
	}
	if modelID == "" {
		return nil, fmt.Errorf("ark: model is required")
	}
	if baseURL == "" {
		baseURL = DefaultArkBaseURL
	}
	return &ArkGenerator{
		client: arkruntime.NewClientWithApiKey(apiKey, arkruntime.WithBaseUrl(baseURL)),
		model:  modelID,
	}, nil
}

func (g *ArkGenerator) Generate(ctx context.Context, promptContext string, durationMinutes float64, mode render.Mode) (render.Script, error) {
	req := model.CreateChatCompletionRequest{
		Model: g.model,
		Messages: []*model.ChatCompletionMessage{
			{
				Role:    model.ChatMessageRoleSystem,
				Content: &model.ChatCompletionMessageContent{StringValue: volcengine.String(systemPrompt(mode))},
			},
			{
				Role:    model.ChatMessageRoleUser,
				Content: &model.ChatCompletionMessageContent{StringValue: volcengine.String(promptContext)},
			},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return render.Script{}, fmt.Errorf("ark chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil || resp.Choices[0].Message.Content.StringValue == nil {
		return render.Script{}, nil
	}
	return render.NewScript(*resp.Choices[0].Message.Content.StringValue), nil
}
