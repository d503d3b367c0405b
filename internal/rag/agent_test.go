package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/session"
	"pdf-rag/internal/testutil"
)

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}

func newAgent(t *testing.T, llm llms.Model, chunks ...string) *Agent {
	t.Helper()
	state := &State{}
	state.Swap(&fakeIndex{chunks: scored(chunks...)}, "doc.pdf")
	return NewAgent(llm, NewRetriever(state, 0, nil), nil)
}

func TestAgentAnswersWithoutTool(t *testing.T) {
	llm := testutil.NewScriptedModel(testutil.Reply{Content: "Hello!"})
	agent := newAgent(t, llm, "Revenue, 2023 = 100")

	answer, refs, err := agent.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", answer)
	assert.Empty(t, refs)
	assert.NotNil(t, refs)

	require.Equal(t, 1, llm.CallCount())
	require.Len(t, llm.Options[0].Tools, 1)
	assert.Equal(t, models.RetrieveToolName, llm.Options[0].Tools[0].Function.Name)
}

func TestAgentRetrievesThenGenerates(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply{ToolCalls: []llms.ToolCall{toolCall("call_1", models.RetrieveToolName, `{"query":"revenue 2023"}`)}},
		testutil.Reply{Content: "Revenue was 100."},
	)
	agent := newAgent(t, llm, "Revenue, 2023 = 100", "Net income, 2023 = 20")

	history := []session.Exchange{{Query: "earlier", Answer: "before"}}
	answer, refs, err := agent.Run(context.Background(), "What was revenue?", history)
	require.NoError(t, err)
	assert.Equal(t, "Revenue was 100.", answer)
	require.Len(t, refs, 2)
	assert.Equal(t, "Revenue, 2023 = 100", refs[0].Text)

	require.Equal(t, 2, llm.CallCount())
	final := llm.Calls[1]
	assert.Empty(t, llm.Options[1].Tools)

	// system prompt carries the serialized tool output
	require.Equal(t, llms.ChatMessageTypeSystem, final[0].Role)
	system := testutil.TextOf(final[0])
	assert.True(t, strings.HasPrefix(system, models.SystemPrompt))
	assert.Contains(t, system, "Content: Revenue, 2023 = 100")
	assert.Contains(t, system, "Source: {")

	// tool turns and ai tool calls are filtered out
	var roles []llms.ChatMessageType
	for _, m := range final[1:] {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman}, roles)
	assert.Equal(t, "What was revenue?", testutil.TextOf(final[len(final)-1]))
}

func TestAgentUnknownTool(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply{ToolCalls: []llms.ToolCall{toolCall("call_1", "search_web", `{}`)}},
		testutil.Reply{Content: "I don't know."},
	)
	agent := newAgent(t, llm, "Revenue, 2023 = 100")

	answer, refs, err := agent.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", answer)
	assert.Empty(t, refs)
	assert.Equal(t, models.SystemPrompt, testutil.TextOf(llm.Calls[1][0]))
}

func TestToolQueryFallsBack(t *testing.T) {
	assert.Equal(t, "revenue", toolQuery(toolCall("1", "retrieve", `{"query":"revenue"}`), "user"))
	assert.Equal(t, "user", toolQuery(toolCall("1", "retrieve", `not json`), "user"))
	assert.Equal(t, "user", toolQuery(toolCall("1", "retrieve", `{"query":"  "}`), "user"))
	assert.Equal(t, "user", toolQuery(llms.ToolCall{ID: "1"}, "user"))
}

func TestConversationOnly(t *testing.T) {
	msgs := []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: "q"}}},
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{toolCall("1", "retrieve", `{}`)}},
		{Role: llms.ChatMessageTypeTool, Parts: []llms.ContentPart{llms.ToolCallResponse{ToolCallID: "1", Content: "x"}}},
		{Role: llms.ChatMessageTypeAI, Parts: []llms.ContentPart{llms.TextContent{Text: "a"}}},
	}
	out := conversationOnly(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "q", testutil.TextOf(out[0]))
	assert.Equal(t, "a", testutil.TextOf(out[1]))
}

func TestQueryToolsMode(t *testing.T) {
	llm := testutil.NewScriptedModel(
		testutil.Reply{ToolCalls: []llms.ToolCall{toolCall("call_1", models.RetrieveToolName, `{"query":"revenue"}`)}},
		testutil.Reply{Content: "100"},
		testutil.Reply{Content: "You asked about revenue."},
	)
	r := newTestRAG(t, llm, &fakeIndex{chunks: scored("Revenue, 2023 = 100")}, config.ModeTools)

	msg, err := r.Query(context.Background(), "What was revenue?", "t")
	require.NoError(t, err)
	assert.Equal(t, "100", msg.Content)
	assert.Len(t, msg.References, 1)

	// the thread checkpoint is replayed on the next turn
	msg, err = r.Query(context.Background(), "What did I ask?", "t")
	require.NoError(t, err)
	assert.Equal(t, "You asked about revenue.", msg.Content)
	assert.Empty(t, msg.References)
	assert.Len(t, llm.Calls[2], 3)
}
