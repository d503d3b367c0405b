package models

import "encoding/json"

// BoundingBox is a region in PDF user space with a bottom-left origin.
type BoundingBox struct {
	L float64 `json:"l"`
	T float64 `json:"t"`
	R float64 `json:"r"`
	B float64 `json:"b"`
}

type Provenance struct {
	PageNo int          `json:"page_no"`
	BBox   *BoundingBox `json:"bbox,omitempty"`
}

// DocItem is one structural element (paragraph, table, slide) a chunk was built from.
type DocItem struct {
	Label string       `json:"label"`
	Prov  []Provenance `json:"prov,omitempty"`
}

type ChunkMeta struct {
	Source   string    `json:"source,omitempty"`
	Position int       `json:"position"`
	Items    []DocItem `json:"doc_items,omitempty"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	Meta    ChunkMeta `json:"meta"`
}

type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// FirstProvenance returns the first provenance entry of the first doc item.
func (c Chunk) FirstProvenance() (Provenance, bool) {
	if len(c.Meta.Items) == 0 || len(c.Meta.Items[0].Prov) == 0 {
		return Provenance{}, false
	}
	return c.Meta.Items[0].Prov[0], true
}

// MetaJSON serializes the chunk metadata, used for payload storage and tool output.
func (c Chunk) MetaJSON() string {
	b, err := json.Marshal(c.Meta)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func ParseMeta(raw string) (ChunkMeta, error) {
	var meta ChunkMeta
	if raw == "" {
		return meta, nil
	}
	err := json.Unmarshal([]byte(raw), &meta)
	return meta, err
}
