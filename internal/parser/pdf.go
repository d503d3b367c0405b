package parser

import (
	"math"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"pdf-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

const (
	// fraction of the font size used to estimate glyph width when the font has no widths table
	avgGlyphWidth = 0.5
	descent       = 0.2
	wordGap       = 0.3
	blockGap      = 0.8
)

// textLine is a run of glyphs sharing a baseline.
type textLine struct {
	text string
	box  models.BoundingBox
	size float64
}

func (p *Parser) parsePDF(filePath string) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines := groupLines(page.Content().Text)
		for _, block := range groupBlocks(lines) {
			chunks = append(chunks, p.blockChunks(block, i)...)
		}
	}
	return p.mergePeers(chunks), nil
}

// groupLines clusters glyphs by baseline, top of page first, and orders each line left to right.
func groupLines(texts []pdf.Text) []textLine {
	if len(texts) == 0 {
		return nil
	}
	glyphs := make([]pdf.Text, len(texts))
	copy(glyphs, texts)
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].Y > glyphs[j].Y })

	var lines []textLine
	start := 0
	for i := 1; i <= len(glyphs); i++ {
		if i < len(glyphs) && sameBaseline(glyphs[start], glyphs[i]) {
			continue
		}
		if line, ok := buildLine(glyphs[start:i]); ok {
			lines = append(lines, line)
		}
		start = i
	}
	return lines
}

func sameBaseline(a, b pdf.Text) bool {
	tol := math.Max(math.Max(a.FontSize, b.FontSize)*0.5, 1)
	return math.Abs(a.Y-b.Y) <= tol
}

func buildLine(glyphs []pdf.Text) (textLine, bool) {
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })

	var b strings.Builder
	box := models.BoundingBox{L: math.Inf(1), B: math.Inf(1), R: math.Inf(-1), T: math.Inf(-1)}
	size := 0.0
	inked := false
	var prevEnd float64
	for i, g := range glyphs {
		w := glyphWidth(g)
		if i > 0 && g.X-prevEnd > g.FontSize*wordGap && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(g.S, " ") {
			b.WriteString(" ")
		}
		b.WriteString(g.S)
		prevEnd = math.Max(prevEnd, g.X+w)

		if strings.TrimSpace(g.S) == "" {
			continue
		}
		inked = true
		size = math.Max(size, g.FontSize)
		box.L = math.Min(box.L, g.X)
		box.R = math.Max(box.R, g.X+w)
		box.B = math.Min(box.B, g.Y-g.FontSize*descent)
		box.T = math.Max(box.T, g.Y+g.FontSize)
	}

	text := strings.Join(strings.Fields(b.String()), " ")
	if !inked || text == "" {
		return textLine{}, false
	}
	return textLine{text: text, box: box, size: size}, true
}

func glyphWidth(g pdf.Text) float64 {
	if g.W > 0 {
		return g.W
	}
	return g.FontSize * avgGlyphWidth * float64(utf8.RuneCountInString(g.S))
}

// groupBlocks splits lines into paragraphs at vertical gaps larger than a blank line.
func groupBlocks(lines []textLine) [][]textLine {
	var blocks [][]textLine
	var cur []textLine
	for _, line := range lines {
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			if prev.box.B-line.box.T > prev.size*blockGap {
				blocks = append(blocks, cur)
				cur = nil
			}
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

// blockChunks packs the lines of one paragraph into chunks, each with the union box of its lines.
func (p *Parser) blockChunks(block []textLine, page int) []models.Chunk {
	var chunks []models.Chunk
	var cur []textLine
	length := 0
	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		box := cur[0].box
		for i, l := range cur {
			texts[i] = l.text
			box = union(box, l.box)
		}
		b := box
		chunks = append(chunks, p.split(strings.Join(texts, "\n"), pageItem(labelText, page, &b))...)
		cur, length = nil, 0
	}
	for _, line := range block {
		if length > 0 && length+len(line.text)+1 > p.chunkSize {
			flush()
		}
		cur = append(cur, line)
		length += len(line.text) + 1
	}
	flush()
	return chunks
}

// mergePeers joins adjacent small chunks of the same page while they fit in one chunk.
func (p *Parser) mergePeers(chunks []models.Chunk) []models.Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	merged := []models.Chunk{chunks[0]}
	for _, c := range chunks[1:] {
		last := &merged[len(merged)-1]
		lp, lok := last.FirstProvenance()
		cp, cok := c.FirstProvenance()
		if lok && cok && lp.PageNo == cp.PageNo && lp.BBox != nil && cp.BBox != nil &&
			len(last.Content)+len(c.Content)+2 <= p.chunkSize {
			box := union(*lp.BBox, *cp.BBox)
			last.Content = last.Content + "\n\n" + c.Content
			last.Meta.Items = pageItem(labelText, lp.PageNo, &box)
			continue
		}
		merged = append(merged, c)
	}
	return merged
}

func union(a, b models.BoundingBox) models.BoundingBox {
	return models.BoundingBox{
		L: math.Min(a.L, b.L),
		T: math.Max(a.T, b.T),
		R: math.Max(a.R, b.R),
		B: math.Min(a.B, b.B),
	}
}
