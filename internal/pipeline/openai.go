package pipeline

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"github.com/talkincode/wabothub/config"
	"github.com/talkincode/wabothub/internal/session"
)

// DefaultSystemPrompt is used when a tenant has no profile row.
const DefaultSystemPrompt = "You are a helpful WhatsApp assistant. Answer briefly and politely."

// Engine produces chat replies through the OpenAI-compatible API,
// parameterized by the tenant's active profile.
type Engine struct {
	client       *openai.Client
	defaultModel string
	profiles     ProfileSource
}

// ProfileSource resolves the reply behavior for a tenant.
type ProfileSource interface {
	ActiveProfile(tenantKey string) (prompt string, model string, temperature float32)
}

func NewEngine(cfg config.OpenAIConfig, profiles ProfileSource) *Engine {
	apiCfg := openai.DefaultConfig(cfg.ApiKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Engine{
		client:       openai.NewClientWithConfig(apiCfg),
		defaultModel: cfg.DefaultModel,
		profiles:     profiles,
	}
}

// Reply returns the reply text and the model that produced it.
func (e *Engine) Reply(ctx context.Context, tenantKey string, msg session.InboundMessage) (string, string, error) {
	prompt, model, temperature := e.profiles.ActiveProfile(tenantKey)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if model == "" {
		model = e.defaultModel
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: msg.Text},
		},
	})
	if err != nil {
		return "", model, errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", model, errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, model, nil
}
