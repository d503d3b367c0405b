package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
	"pdf-rag/internal/testutil"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestParser(size int) *Parser {
	return New(config.RAGConfig{ChunkSize: size})
}

func glyphs(s string, x, y, size float64) []pdf.Text {
	var out []pdf.Text
	for i, r := range s {
		out = append(out, pdf.Text{S: string(r), X: x + float64(i)*size*0.5, Y: y, W: size * 0.5, FontSize: size})
	}
	return out
}

func TestGroupLinesOrdersTopToBottomLeftToRight(t *testing.T) {
	var texts []pdf.Text
	texts = append(texts, glyphs("second", 72, 700, 10)...)
	texts = append(texts, glyphs("first", 72, 720, 10)...)
	// glyphs drawn right to left on one baseline
	right := glyphs("world", 200, 680, 10)
	left := glyphs("hello", 72, 680, 10)
	texts = append(texts, right...)
	texts = append(texts, left...)

	lines := groupLines(texts)

	require.Len(t, lines, 3)
	assert.Equal(t, "first", lines[0].text)
	assert.Equal(t, "second", lines[1].text)
	assert.Equal(t, "hello world", lines[2].text)
}

func TestBuildLineBoundingBox(t *testing.T) {
	line, ok := buildLine(glyphs("Revenue", 10, 100, 10))
	require.True(t, ok)

	assert.Equal(t, 10.0, line.box.L)
	assert.Equal(t, 45.0, line.box.R)
	assert.Equal(t, 98.0, line.box.B)
	assert.Equal(t, 110.0, line.box.T)
	assert.Greater(t, line.box.T, line.box.B)
}

func TestBuildLineSkipsBlank(t *testing.T) {
	_, ok := buildLine(glyphs("   ", 10, 100, 10))
	assert.False(t, ok)
}

func TestGroupBlocksSplitsOnGap(t *testing.T) {
	lines := []textLine{
		{text: "a", box: models.BoundingBox{T: 730, B: 718}, size: 12},
		{text: "b", box: models.BoundingBox{T: 714, B: 702}, size: 12},
		{text: "c", box: models.BoundingBox{T: 600, B: 588}, size: 12},
	}

	blocks := groupBlocks(lines)

	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0], 2)
	assert.Len(t, blocks[1], 1)
}

func TestParsePDFCarriesProvenance(t *testing.T) {
	path := testutil.WritePDF(t, "statement.pdf",
		[]string{"Income statement", "Revenue, 2023 = 100"},
		[]string{"Balance sheet", "Cash, 2023 = 40"},
	)

	chunks, err := newTestParser(1000).Parse(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	for i, c := range chunks {
		prov, ok := c.FirstProvenance()
		require.True(t, ok)
		assert.Equal(t, i+1, prov.PageNo)
		require.NotNil(t, prov.BBox)
		assert.GreaterOrEqual(t, prov.BBox.T, prov.BBox.B)
		assert.GreaterOrEqual(t, prov.BBox.R, prov.BBox.L)
		assert.Equal(t, "statement.pdf", c.Meta.Source)
		assert.Equal(t, i, c.Meta.Position)
		assert.NotEmpty(t, c.ID)
	}
	assert.Contains(t, chunks[0].Content, "Revenue, 2023 = 100")
	assert.Contains(t, chunks[1].Content, "Cash, 2023 = 40")
}

func TestParsePDFRespectsChunkSize(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, "Operating expenses line item with a reasonably long label")
	}
	path := testutil.WritePDF(t, "long.pdf", lines)

	chunks, err := newTestParser(200).Parse(path)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 200)
		prov, ok := c.FirstProvenance()
		require.True(t, ok)
		assert.Equal(t, 1, prov.PageNo)
	}
}

func TestParseEmptyPDF(t *testing.T) {
	path := testutil.WritePDF(t, "blank.pdf", []string{})

	chunks, err := newTestParser(1000).Parse(path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestParseFailures(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pdf"), 0o644))
	unsupported := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(unsupported, []byte{0x89}, 0o644))

	for _, path := range []string{garbage, unsupported, filepath.Join(dir, "missing.pdf")} {
		_, err := newTestParser(1000).Parse(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrConversionFailed), err.Error())
	}
}

func TestParseTextHasNoProvenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("net income rose. ", 20)), 0o644))

	chunks, err := newTestParser(100).Parse(path)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		_, ok := c.FirstProvenance()
		assert.False(t, ok)
		assert.LessOrEqual(t, len(c.Content), 100)
	}
}

const (
	docxBody = `<w:document xmlns:w="w"><w:body>` +
		`<w:p><w:r><w:t>Balance sheet</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p/></w:tc><w:tc><w:p><w:r><w:t>2023</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Revenue</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>100</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>Audited</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	docxRels  = `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
	slideBody = `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody>` +
		`<a:p><a:r><a:t>%s</a:t></a:r></a:p>` +
		`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
)

// writeZip builds an OOXML package from name -> content entries.
func writeZip(t *testing.T, path string, entries [][2]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e[0])
		require.NoError(t, err)
		_, err = fw.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func writeWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"", "2023"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Revenue", "100"}))
	require.NoError(t, f.SaveAs(path))
}

func TestParseOfficeAndTextFormats(t *testing.T) {
	type page struct {
		label string
		no    int
	}
	tests := []struct {
		name    string
		file    string
		write   func(t *testing.T, path string)
		content []string
		pages   []page
	}{
		{
			name: "docx renders tables as triplets",
			file: "report.docx",
			write: func(t *testing.T, path string) {
				writeZip(t, path, [][2]string{
					{"word/document.xml", docxBody},
					{"word/_rels/document.xml.rels", docxRels},
				})
			},
			content: []string{"Balance sheet\nRevenue, 2023 = 100\nAudited"},
		},
		{
			name: "pptx pages are slide numbers",
			file: "deck.pptx",
			write: func(t *testing.T, path string) {
				writeZip(t, path, [][2]string{
					{"ppt/slides/slide2.xml", fmt.Sprintf(slideBody, "Outlook")},
					{"ppt/slides/slide1.xml", fmt.Sprintf(slideBody, "Quarterly results")},
					{"ppt/slides/_rels/slide1.xml.rels", docxRels},
				})
			},
			content: []string{"Quarterly results", "Outlook"},
			pages:   []page{{labelSlide, 1}, {labelSlide, 2}},
		},
		{
			name:    "xlsx",
			file:    "statement.xlsx",
			write:   writeWorkbook,
			content: []string{"Sheet: Sheet1\nRevenue, 2023 = 100"},
			pages:   []page{{labelTable, 1}},
		},
		{
			name:    "xlsm",
			file:    "statement.xlsm",
			write:   writeWorkbook,
			content: []string{"Sheet: Sheet1\nRevenue, 2023 = 100"},
			pages:   []page{{labelTable, 1}},
		},
		{
			name:    "xltx",
			file:    "statement.xltx",
			write:   writeWorkbook,
			content: []string{"Sheet: Sheet1\nRevenue, 2023 = 100"},
			pages:   []page{{labelTable, 1}},
		},
		{
			name: "md",
			file: "notes.md",
			write: func(t *testing.T, path string) {
				src := "# Results\n\n| | 2023 |\n|---|---|\n| Revenue | 100 |\n"
				require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
			},
			content: []string{"Results\nRevenue, 2023 = 100"},
		},
		{
			name: "txt",
			file: "notes.txt",
			write: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("Revenue was 100 in 2023."), 0o644))
			},
			content: []string{"Revenue was 100 in 2023."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			tt.write(t, path)

			chunks, err := newTestParser(1000).Parse(path)
			require.NoError(t, err)
			require.Len(t, chunks, len(tt.content))

			for i, c := range chunks {
				assert.Equal(t, tt.content[i], c.Content)
				assert.Equal(t, tt.file, c.Meta.Source)
				assert.Equal(t, i, c.Meta.Position)

				prov, ok := c.FirstProvenance()
				if tt.pages == nil {
					assert.False(t, ok)
					continue
				}
				require.True(t, ok)
				assert.Equal(t, tt.pages[i].label, c.Meta.Items[0].Label)
				assert.Equal(t, tt.pages[i].no, prov.PageNo)
				assert.Nil(t, prov.BBox)
			}
		})
	}
}

func TestWordLinesRendersTables(t *testing.T) {
	doc := `<w:document xmlns:w="w"><w:body>` +
		`<w:p><w:r><w:t>Intro</w:t></w:r></w:p>` +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p/></w:tc><w:tc><w:p><w:r><w:t>2023</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2022</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>Net</w:t></w:r></w:p><w:p><w:r><w:t>income</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:tbl><w:tr><w:tc><w:p><w:r><w:t>20</w:t></w:r></w:p></w:tc></w:tr></w:tbl></w:tc>` +
		`<w:tc><w:p><w:r><w:t>15</w:t></w:r></w:p></w:tc></w:tr>` +
		`</w:tbl>` +
		`<w:p><w:r><w:t>Outro</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	lines, err := wordLines(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Intro",
		"Net income, 2023 = 20",
		"Net income, 2022 = 15",
		"Outro",
	}, lines)
}

func TestWordLinesRejectsMalformedXML(t *testing.T) {
	_, err := wordLines(strings.NewReader(`<w:document><w:body><w:p>`))
	assert.Error(t, err)
}

func TestTriplets(t *testing.T) {
	rows := [][]string{
		{"", "2023", "2022"},
		{"Revenue", "100", "90"},
		{"Cost of sales", "", "40"},
		{"", "", ""},
	}

	assert.Equal(t, []string{
		"Revenue, 2023 = 100",
		"Revenue, 2022 = 90",
		"Cost of sales, 2022 = 40",
	}, Triplets(rows))
}

func TestTripletsSingleColumn(t *testing.T) {
	assert.Equal(t, []string{"only", "values"}, Triplets([][]string{{"only"}, {"values"}}))
	assert.Nil(t, Triplets(nil))
}

func TestMarkdownLines(t *testing.T) {
	src := []byte("# Results\n\nRevenue grew\nstrongly.\n\n| | 2023 |\n|---|---|\n| Revenue | 100 |\n\n```\ncode\n```\n")

	lines := MarkdownLines(src)

	assert.Equal(t, []string{
		"Results",
		"Revenue grew strongly.",
		"Revenue, 2023 = 100",
		"code",
	}, lines)
}

func TestXMLParagraphs(t *testing.T) {
	doc := `<w:document xmlns:w="w"><w:body><w:p><w:r><w:t>Net </w:t></w:r><w:r><w:t>income</w:t></w:r></w:p><w:p></w:p><w:p><w:r><w:t>Equity</w:t></w:r></w:p></w:body></w:document>`

	paragraphs, err := xmlParagraphs(strings.NewReader(doc), "p", "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"Net income", "Equity"}, paragraphs)
}

func TestChunkContent(t *testing.T) {
	assert.Nil(t, chunkContent("abc", 0, 0))
	assert.Equal(t, []string{"short"}, chunkContent("short", 10, 2))

	parts := chunkContent(strings.Repeat("word ", 50), 40, 10)
	require.Greater(t, len(parts), 1)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 40)
	}
}

func TestNewDerivesChunkSizeFromModel(t *testing.T) {
	p := New(config.RAGConfig{EmbedModelID: "sentence-transformers/all-MiniLM-L6-v2"})
	assert.Equal(t, 1024, p.ChunkSize())
}
