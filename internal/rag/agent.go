package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/metrics"
	"pdf-rag/internal/models"
	"pdf-rag/internal/session"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

type agentState int

const (
	stateAwaitingDecision agentState = iota
	stateRetrieving
	stateGenerating
	stateDone
)

func (s agentState) String() string {
	switch s {
	case stateAwaitingDecision:
		return "awaiting_model_decision"
	case stateRetrieving:
		return "retrieving_tool"
	case stateGenerating:
		return "generating"
	default:
		return "done"
	}
}

var retrieveTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        models.RetrieveToolName,
		Description: models.RetrieveToolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query for the financial statement.",
				},
			},
			"required": []string{"query"},
		},
	},
}

// Agent lets the model decide whether to call the retrieve tool before answering.
type Agent struct {
	llm       llms.Model
	retriever *Retriever
	metrics   *metrics.Metrics
}

func NewAgent(llm llms.Model, retriever *Retriever, m *metrics.Metrics) *Agent {
	return &Agent{llm: llm, retriever: retriever, metrics: m}
}

type agentRun struct {
	query       string
	messages    []llms.MessageContent
	pending     []llms.ToolCall
	toolOutputs []string
	references  []models.Reference
	answer      string
}

// Run drives one question through decide, retrieve and generate.
func (a *Agent) Run(ctx context.Context, query string, history []session.Exchange) (string, []models.Reference, error) {
	run := &agentRun{
		query:      query,
		messages:   conversation(history, query),
		references: []models.Reference{},
	}

	state := stateAwaitingDecision
	for state != stateDone {
		var err error
		next := stateDone
		switch state {
		case stateAwaitingDecision:
			next, err = a.decide(ctx, run)
		case stateRetrieving:
			next, err = a.retrieve(ctx, run)
		case stateGenerating:
			next, err = a.generate(ctx, run)
		}
		if err != nil {
			return "", nil, err
		}
		log.Debug().Stringer("from", state).Stringer("to", next).Msg("Agent transition")
		state = next
	}
	return run.answer, run.references, nil
}

func (a *Agent) decide(ctx context.Context, run *agentRun) (agentState, error) {
	defer a.metrics.ObserveStage(metrics.StageGenerate, time.Now())

	choice, err := llmservice.GenerateContent(ctx, a.llm, []llms.Tool{retrieveTool}, run.messages)
	if err != nil {
		return stateDone, err
	}
	if len(choice.ToolCalls) == 0 {
		run.answer = llmservice.ChoiceText(choice)
		return stateDone, nil
	}

	parts := make([]llms.ContentPart, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	run.messages = append(run.messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
	run.pending = choice.ToolCalls
	return stateRetrieving, nil
}

func (a *Agent) retrieve(ctx context.Context, run *agentRun) (agentState, error) {
	for _, tc := range run.pending {
		name, content := "", ""
		if tc.FunctionCall != nil {
			name = tc.FunctionCall.Name
		}
		if name != models.RetrieveToolName {
			content = fmt.Sprintf("Error: unknown tool %q", name)
		} else {
			chunks, refs, err := a.retriever.Retrieve(ctx, toolQuery(tc, run.query))
			if err != nil {
				return stateDone, err
			}
			content = SerializeTool(chunks)
			run.references = append(run.references, refs...)
			run.toolOutputs = append(run.toolOutputs, content)
		}
		run.messages = append(run.messages, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: tc.ID,
				Name:       name,
				Content:    content,
			}},
		})
	}
	run.pending = nil
	return stateGenerating, nil
}

func (a *Agent) generate(ctx context.Context, run *agentRun) (agentState, error) {
	defer a.metrics.ObserveStage(metrics.StageGenerate, time.Now())

	prompt := models.SystemPrompt + strings.Join(run.toolOutputs, models.ToolSeparator)
	msgs := append([]llms.MessageContent{llmservice.TextMessage(llms.ChatMessageTypeSystem, prompt)}, conversationOnly(run.messages)...)

	choice, err := llmservice.GenerateContent(ctx, a.llm, nil, msgs)
	if err != nil {
		return stateDone, err
	}
	run.answer = llmservice.ChoiceText(choice)
	return stateDone, nil
}

// toolQuery reads the query argument, falling back to the user's question.
func toolQuery(tc llms.ToolCall, fallback string) string {
	if tc.FunctionCall == nil {
		return fallback
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
		return fallback
	}
	return args.Query
}

// conversationOnly keeps human and system turns and ai turns that carry no tool calls.
func conversationOnly(msgs []llms.MessageContent) []llms.MessageContent {
	var out []llms.MessageContent
	for _, m := range msgs {
		switch m.Role {
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeSystem:
			out = append(out, m)
		case llms.ChatMessageTypeAI:
			if !hasToolCall(m) {
				out = append(out, m)
			}
		}
	}
	return out
}

func hasToolCall(m llms.MessageContent) bool {
	for _, p := range m.Parts {
		if _, ok := p.(llms.ToolCall); ok {
			return true
		}
	}
	return false
}
