package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pdf-rag/internal/models"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (p *Parser) parseDOCX(filePath string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml body
	lines, err := wordLines(strings.NewReader(r.Editable().GetContent()))
	if err != nil {
		return nil, err
	}
	return p.packLines(lines, nil), nil
}

// wordLines reads a WordprocessingML body into lines: one per paragraph, and one
// triplet per cell for each top level table. Nested tables flatten into their cell.
func wordLines(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines      []string
		rows       [][]string
		row        []string
		cell       strings.Builder
		para       strings.Builder
		inText     bool
		tableDepth int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					rows = nil
				}
			case "tr":
				if tableDepth == 1 {
					row = nil
				}
			case "tc":
				if tableDepth == 1 {
					cell.Reset()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					continue
				}
				if tableDepth == 0 {
					lines = append(lines, text)
					continue
				}
				if cell.Len() > 0 {
					cell.WriteByte(' ')
				}
				cell.WriteString(text)
			case "tc":
				if tableDepth == 1 {
					row = append(row, cell.String())
					cell.Reset()
				}
			case "tr":
				if tableDepth == 1 {
					rows = append(rows, row)
				}
			case "tbl":
				if tableDepth == 1 {
					lines = append(lines, Triplets(rows)...)
				}
				tableDepth--
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if text := strings.TrimSpace(para.String()); text != "" {
		lines = append(lines, text)
	}
	return lines, nil
}

func (p *Parser) parsePPTX(filePath string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var chunks []models.Chunk
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, err
		}
		paragraphs, err := xmlParagraphs(rc, "p", "t")
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		chunks = append(chunks, p.packLines(paragraphs, pageItem(labelSlide, s.num, nil))...)
	}
	return chunks, nil
}

func (p *Parser) parseXLSX(filePath string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for sheetNum, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				cells[i] = cell.String()
			}
			rows = append(rows, cells)
		}
		chunks = append(chunks, p.tableChunks(sheet.Name, rows, sheetNum+1)...)
	}
	return chunks, nil
}

// parseWorkbook reads macro-enabled workbooks and templates through excelize
func (p *Parser) parseWorkbook(filePath string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		chunks = append(chunks, p.tableChunks(sheetName, rows, sheetNum+1)...)
	}
	return chunks, nil
}

// tableChunks serializes a sheet as triplets, one per line, chunked by size.
func (p *Parser) tableChunks(sheetName string, rows [][]string, page int) []models.Chunk {
	lines := Triplets(rows)
	if len(lines) == 0 {
		return nil
	}
	header := "Sheet: " + sheetName
	items := pageItem(labelTable, page, nil)

	var chunks []models.Chunk
	for _, c := range p.packLines(lines, items) {
		c.Content = header + "\n" + c.Content
		chunks = append(chunks, c)
	}
	return chunks
}

// Triplets renders a table as "<row_name>, <col_name> = <cell_value>" lines, using the
// first row for column names and the first column for row names. Tables without both
// a header row and a label column are returned row by row.
func Triplets(rows [][]string) []string {
	rows = trimRows(rows)
	if len(rows) == 0 {
		return nil
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if len(rows) < 2 || width < 2 {
		var lines []string
		for _, r := range rows {
			if line := strings.TrimSpace(strings.Join(r, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		return lines
	}

	header := rows[0]
	var lines []string
	for i, row := range rows[1:] {
		rowName := cellAt(row, 0)
		if rowName == "" {
			rowName = fmt.Sprintf("Row %d", i+1)
		}
		for c := 1; c < len(row); c++ {
			value := strings.TrimSpace(row[c])
			if value == "" {
				continue
			}
			colName := cellAt(header, c)
			if colName == "" {
				colName = fmt.Sprintf("Column %d", c+1)
			}
			lines = append(lines, fmt.Sprintf("%s, %s = %s", rowName, colName, value))
		}
	}
	return lines
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// drop fully empty rows
func trimRows(rows [][]string) [][]string {
	var out [][]string
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// xmlParagraphs collects the character data of textTag elements, one string per paraTag.
// Namespaces are ignored so it serves both WordprocessingML and DrawingML.
func xmlParagraphs(r io.Reader, paraTag, textTag string) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paragraphs []string
	var cur strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textTag {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				if s := strings.TrimSpace(cur.String()); s != "" {
					paragraphs = append(paragraphs, s)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}
	return paragraphs, nil
}
