package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkOverlap = 0
	defaultPageNumber   = 1

	labelText  = "text"
	labelTable = "table"
	labelSlide = "slide"
)

// Parser converts a document on disk into provenance-carrying chunks.
type Parser struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.TextSplitter
}

func New(cfg config.RAGConfig) *Parser {
	size := cfg.ChunkSize
	if size <= 0 {
		size = models.ChunkSizeForModel(cfg.EmbedModelID)
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}

	return &Parser{
		chunkSize:    size,
		chunkOverlap: overlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

func (p *Parser) ChunkSize() int { return p.chunkSize }

// Supported reports whether the file extension has a converter.
func Supported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".txt", ".md":
		return true
	}
	return false
}

// Parse dispatches on the file extension. Every failure wraps models.ErrConversionFailed.
func (p *Parser) Parse(filePath string) (chunks []models.Chunk, err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed streams
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("%w: %s: %v", models.ErrConversionFailed, filepath.Base(filePath), r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		chunks, err = p.parsePDF(filePath)
	case ".docx":
		chunks, err = p.parseDOCX(filePath)
	case ".pptx":
		chunks, err = p.parsePPTX(filePath)
	case ".xlsx":
		chunks, err = p.parseXLSX(filePath)
	case ".xlsm", ".xltx":
		chunks, err = p.parseWorkbook(filePath)
	case ".txt":
		chunks, err = p.parseText(filePath)
	case ".md":
		chunks, err = p.parseMarkdown(filePath)
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %q", models.ErrConversionFailed, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrConversionFailed, filepath.Base(filePath), err)
	}

	finalize(chunks, filepath.Base(filePath))
	log.Debug().Str("file", filePath).Int("chunks", len(chunks)).Msg("Parsed document")
	return chunks, nil
}

// finalize assigns ids, positions and the source name
func finalize(chunks []models.Chunk, source string) {
	for i := range chunks {
		chunks[i].ID = helper.ShortID()
		chunks[i].Meta.Source = source
		chunks[i].Meta.Position = i
	}
}

// split plain text with the recursive splitter, all pieces share items
func (p *Parser) split(content string, items []models.DocItem) []models.Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	pieces := []string{content}
	if len(content) > p.chunkSize {
		var err error
		pieces, err = p.splitter.SplitText(content)
		if err != nil {
			log.Warn().Err(err).Msg("Falling back to fixed size split")
			pieces = chunkContent(content, p.chunkSize, p.chunkOverlap)
		}
	}

	var chunks []models.Chunk
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content: piece,
			Meta:    models.ChunkMeta{Items: items},
		})
	}
	return chunks
}

// packLines greedily joins lines into chunks no larger than chunkSize
func (p *Parser) packLines(lines []string, items []models.DocItem) []models.Chunk {
	var chunks []models.Chunk
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			chunks = append(chunks, p.split(buf.String(), items)...)
			buf.Reset()
		}
	}
	for _, line := range lines {
		if buf.Len() > 0 && buf.Len()+len(line)+1 > p.chunkSize {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
	}
	flush()
	return chunks
}

// chunk content into chunks with maxChars and overlapChars
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}
	content = strings.TrimSpace(content)
	if len(content) == 0 {
		return nil
	}
	if len(content) <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := min(start+maxChars, len(content))

		// prefer a clean break in the last 10% of the window
		if end < len(content) {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(content[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(content) {
			break
		}
		start = max(end-overlapChars, start+1)
	}
	return chunks
}

func pageItem(label string, page int, box *models.BoundingBox) []models.DocItem {
	return []models.DocItem{{
		Label: label,
		Prov:  []models.Provenance{{PageNo: page, BBox: box}},
	}}
}
