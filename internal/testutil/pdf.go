// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const (
	pageTop    = 720
	lineHeight = 16
	fontSize   = 12
	leftMargin = 72
	glyphWidth = 600
)

// PDF builds a valid PDF with one page per entry; each string is drawn as its own line
// in 12pt Helvetica starting at the top left margin.
func PDF(pages ...[]string) []byte {
	var objects []string
	// 1 catalog, 2 pages, 3 font, then a page and content object per page
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", widths()),
	)
	for i, lines := range pages {
		var stream strings.Builder
		for j, line := range lines {
			fmt.Fprintf(&stream, "BT /F1 %d Tf %d %d Td (%s) Tj ET\n", fontSize, leftMargin, pageTop-j*lineHeight, escape(line))
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", stream.Len(), stream.String()),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// WritePDF writes PDF(pages...) under t.TempDir and returns its path.
func WritePDF(t testing.TB, name string, pages ...[]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, PDF(pages...), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

// uniform glyph widths so text extraction sees word gaps
func widths() string {
	w := make([]string, 126-32+1)
	for i := range w {
		w[i] = strconv.Itoa(glyphWidth)
	}
	return strings.Join(w, " ")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s)
}

// LineTop returns the baseline y of the n-th line drawn by PDF.
func LineTop(n int) float64 { return float64(pageTop - n*lineHeight) }
