package models

// Reference points an answer back at the chunk that supported it.
// Bbox is ordered [left, bottom, right, top].
type Reference struct {
	PageNumber *int      `json:"pageNumber"`
	BBox       []float64 `json:"bbox"`
	Text       string    `json:"text"`
}

func NewReference(c Chunk) Reference {
	ref := Reference{Text: c.Content}
	prov, ok := c.FirstProvenance()
	if !ok {
		return ref
	}
	page := prov.PageNo
	ref.PageNumber = &page
	if prov.BBox != nil {
		ref.BBox = []float64{prov.BBox.L, prov.BBox.B, prov.BBox.R, prov.BBox.T}
	}
	return ref
}

func NewReferences(chunks []ScoredChunk) []Reference {
	refs := make([]Reference, 0, len(chunks))
	for _, sc := range chunks {
		refs = append(refs, NewReference(sc.Chunk))
	}
	return refs
}

// Message is one assistant turn returned to the client.
type Message struct {
	Content    string      `json:"content"`
	References []Reference `json:"references"`
}

type QueryResponse struct {
	Messages []Message `json:"messages"`
}

type QueryRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
}
