package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const maxRetrieveResults = 20

// RetrieveInput is the retrieve tool's argument.
type RetrieveInput struct {
	Query      string `json:"query" jsonschema:"Search query for the uploaded document"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Number of chunks to return, defaults to the configured top k"`
}

// Excerpt is a Reference with absent provenance omitted rather than null.
type Excerpt struct {
	Text       string    `json:"text"`
	PageNumber int       `json:"page_number,omitempty"`
	BBox       []float64 `json:"bbox,omitempty" jsonschema:"Bounding box as left, bottom, right, top"`
}

type RetrieveOutput struct {
	Results []Excerpt `json:"results"`
}

// AskInput is the ask tool's argument.
type AskInput struct {
	Query    string `json:"query" jsonschema:"Question about the uploaded document"`
	ThreadID string `json:"thread_id,omitempty" jsonschema:"Conversation id, defaults to 'default'"`
}

type AskOutput struct {
	Answer     string    `json:"answer"`
	References []Excerpt `json:"references"`
}

// NewMCPServer registers the retrieve and ask tools over svc.
func NewMCPServer(svc Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pdf-rag",
		Version: "v0.1.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        models.RetrieveToolName,
		Description: "Retrieve the chunks of the uploaded document most similar to a query, with page numbers and bounding boxes.",
	}, makeRetrieveHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about the uploaded document. Answers in the same thread share conversation history.",
	}, makeAskHandler(svc))

	return server
}

// NewMCPHandler serves the tools over streamable HTTP without MCP sessions.
func NewMCPHandler(svc Service) http.Handler {
	server := NewMCPServer(svc)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

func makeRetrieveHandler(svc Service) func(context.Context, *mcp.CallToolRequest, RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
		if input.Query == "" {
			return nil, RetrieveOutput{}, fmt.Errorf("query is required")
		}
		k := min(input.MaxResults, maxRetrieveResults)
		_, refs, err := svc.Retrieve(ctx, input.Query, k)
		if err != nil {
			return nil, RetrieveOutput{}, fmt.Errorf("retrieve failed: %w", err)
		}
		return nil, RetrieveOutput{Results: excerpts(refs)}, nil
	}
}

func makeAskHandler(svc Service) func(context.Context, *mcp.CallToolRequest, AskInput) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
		if input.Query == "" {
			return nil, AskOutput{}, fmt.Errorf("query is required")
		}
		threadID := input.ThreadID
		if threadID == "" {
			threadID = config.DefaultThreadID
		}
		msg, err := svc.Query(ctx, input.Query, threadID)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}
		return nil, AskOutput{Answer: msg.Content, References: excerpts(msg.References)}, nil
	}
}

func excerpts(refs []models.Reference) []Excerpt {
	out := make([]Excerpt, 0, len(refs))
	for _, ref := range refs {
		e := Excerpt{Text: ref.Text, BBox: ref.BBox}
		if ref.PageNumber != nil {
			e.PageNumber = *ref.PageNumber
		}
		out = append(out, e)
	}
	return out
}
