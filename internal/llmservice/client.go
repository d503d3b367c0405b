package llmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel builds the chat model named by cfg.Provider.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat model")

	switch cfg.Provider {
	case "azure":
		return openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithToken(cfg.Key),
			// the deployment name doubles as the model for azure
			openai.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// call llm, binding tools when given
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent) (*llms.ContentChoice, error) {
	var opts []llms.CallOption
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}

	res, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelInvocationFailed, err)
	}
	if res == nil || len(res.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", models.ErrModelInvocationFailed)
	}
	return res.Choices[0], nil
}

// ChoiceText is the answer text of a choice. A choice without text is coerced to a
// string from whatever the model did return.
func ChoiceText(choice *llms.ContentChoice) string {
	if choice == nil {
		return ""
	}
	if choice.Content != "" {
		return choice.Content
	}
	switch {
	case len(choice.ToolCalls) > 0:
		b, _ := json.Marshal(choice.ToolCalls)
		return string(b)
	case choice.FuncCall != nil:
		b, _ := json.Marshal(choice.FuncCall)
		return string(b)
	}
	return ""
}

func TextMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}
