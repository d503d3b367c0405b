package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Reply is one scripted model turn.
type Reply struct {
	Content   string
	ToolCalls []llms.ToolCall
	Err       error
}

// ScriptedModel is an llms.Model that replays replies in order and records every call.
// When the script runs out, Fallback (if set) computes the reply from the messages.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  []Reply
	Fallback func(messages []llms.MessageContent) Reply
	Calls    [][]llms.MessageContent
	Options  []llms.CallOptions
}

var _ llms.Model = (*ScriptedModel)(nil)

func NewScriptedModel(replies ...Reply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

func (m *ScriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.Options = append(m.Options, opts)
	var reply Reply
	switch {
	case len(m.replies) > 0:
		reply = m.replies[0]
		m.replies = m.replies[1:]
	case m.Fallback != nil:
		reply = m.Fallback(messages)
	default:
		reply = Reply{Err: errors.New("scripted model: no reply left")}
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:   reply.Content,
		ToolCalls: reply.ToolCalls,
	}}}, nil
}

func (m *ScriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// TextOf concatenates the text parts of a message.
func TextOf(msg llms.MessageContent) string {
	var s string
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			s += t.Text
		}
	}
	return s
}
