package models

const (
	ContextSeparator = "\n"
	ToolSeparator    = "\n"

	NoDocumentMessage = "No PDF uploaded yet."

	RetrieveToolName        = "retrieve"
	RetrieveToolDescription = "Retrieve information related to a query from the uploaded financial statement."
)

var (
	SystemPrompt = "You are an expert financial analyst. Use the following data retrieved from a financial statement to answer the question. " +
		"Tables have been converted into triplet notation i.e. <row_name>, <col_name> = <cell_value>. " +
		"If you don't know the answer, say that you don't know.\n"

	ToolResultTemplate = "Source: %s\nContent: %s"
)

// token budgets of the embedding models we know about
var embedModelTokens = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2":  256,
	"sentence-transformers/all-mpnet-base-v2": 384,
	"nomic-embed-text":                        2048,
	"text-embedding-3-small":                  8191,
	"text-embedding-ada-002":                  8191,
}

const (
	DefaultChunkSize = 1000
	charsPerToken    = 4
	maxChunkSize     = 4000
)

// ChunkSizeForModel maps an embedding model id to a chunk size in characters.
func ChunkSizeForModel(modelID string) int {
	tokens, ok := embedModelTokens[modelID]
	if !ok {
		return DefaultChunkSize
	}
	size := tokens * charsPerToken
	if size < DefaultChunkSize {
		return DefaultChunkSize
	}
	return min(size, maxChunkSize)
}
