package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceReordersBBox(t *testing.T) {
	chunk := Chunk{
		Content: "Revenue, 2023 = 100",
		Meta: ChunkMeta{Items: []DocItem{{
			Label: "text",
			Prov:  []Provenance{{PageNo: 3, BBox: &BoundingBox{L: 10, T: 50, R: 90, B: 5}}},
		}}},
	}

	ref := NewReference(chunk)

	require.NotNil(t, ref.PageNumber)
	assert.Equal(t, 3, *ref.PageNumber)
	assert.Equal(t, []float64{10, 5, 90, 50}, ref.BBox)
	assert.Equal(t, "Revenue, 2023 = 100", ref.Text)
}

func TestNewReferenceWithoutProvenance(t *testing.T) {
	tests := []struct {
		name string
		meta ChunkMeta
	}{
		{"no doc items", ChunkMeta{}},
		{"first item without prov", ChunkMeta{Items: []DocItem{{Label: "text"}, {Label: "text", Prov: []Provenance{{PageNo: 2}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := NewReference(Chunk{Content: "plain", Meta: tt.meta})

			assert.Nil(t, ref.PageNumber)
			assert.Nil(t, ref.BBox)
			assert.Equal(t, "plain", ref.Text)

			b, err := json.Marshal(ref)
			require.NoError(t, err)
			assert.JSONEq(t, `{"pageNumber":null,"bbox":null,"text":"plain"}`, string(b))
		})
	}
}

func TestNewReferencePageWithoutBBox(t *testing.T) {
	chunk := Chunk{Content: "Sheet", Meta: ChunkMeta{Items: []DocItem{{Label: "table", Prov: []Provenance{{PageNo: 2}}}}}}

	ref := NewReference(chunk)

	require.NotNil(t, ref.PageNumber)
	assert.Equal(t, 2, *ref.PageNumber)
	assert.Nil(t, ref.BBox)
}

func TestMetaJSONRoundTripKeepsProvenance(t *testing.T) {
	chunk := Chunk{Meta: ChunkMeta{Source: "a.pdf", Position: 4, Items: []DocItem{{
		Label: "text",
		Prov:  []Provenance{{PageNo: 1, BBox: &BoundingBox{L: 1, T: 4, R: 3, B: 2}}},
	}}}}

	meta, err := ParseMeta(chunk.MetaJSON())
	require.NoError(t, err)
	assert.Equal(t, chunk.Meta, meta)
}

func TestChunkSizeForModel(t *testing.T) {
	assert.Equal(t, 1024, ChunkSizeForModel("sentence-transformers/all-MiniLM-L6-v2"))
	assert.Equal(t, DefaultChunkSize, ChunkSizeForModel("unknown"))
	assert.Equal(t, 4000, ChunkSizeForModel("text-embedding-3-small"))
}
