package rag

import (
	"context"
	"time"

	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/models"
	"pdf-rag/internal/session"

	"github.com/tmc/langchaingo/llms"
)

// Composer builds the grounded prompt and asks the chat model once.
type Composer struct {
	llm     llms.Model
	metrics *metrics.Metrics
}

func NewComposer(llm llms.Model, m *metrics.Metrics) *Composer {
	return &Composer{llm: llm, metrics: m}
}

// Compose answers query from chunks, replaying history before the question.
func (c *Composer) Compose(ctx context.Context, query string, chunks []models.ScoredChunk, history []session.Exchange) (string, error) {
	defer c.metrics.ObserveStage(metrics.StageGenerate, time.Now())

	choice, err := llmservice.GenerateContent(ctx, c.llm, nil, BuildMessages(query, chunks, history))
	if err != nil {
		return "", err
	}
	return llmservice.ChoiceText(choice), nil
}

// BuildMessages orders the prompt as system, then history pairs, then the question.
func BuildMessages(query string, chunks []models.ScoredChunk, history []session.Exchange) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 2+2*len(history))
	msgs = append(msgs, llmservice.TextMessage(llms.ChatMessageTypeSystem, models.SystemPrompt+JoinContext(chunks)))
	msgs = append(msgs, conversation(history, query)...)
	return msgs
}

// conversation replays history as human/ai turns followed by the current question.
func conversation(history []session.Exchange, query string) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, 1+2*len(history))
	for _, ex := range history {
		msgs = append(msgs,
			llmservice.TextMessage(llms.ChatMessageTypeHuman, ex.Query),
			llmservice.TextMessage(llms.ChatMessageTypeAI, ex.Answer),
		)
	}
	return append(msgs, llmservice.TextMessage(llms.ChatMessageTypeHuman, query))
}
