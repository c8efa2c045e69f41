package parsers

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts plain text from PDF files, page by page.
type PDFParser struct{}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) Extensions() []string { return []string{".pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, parseError("pdf", path, "failed to parse PDF", err)
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		// Pages with broken text streams are skipped rather than
		// failing the document.
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	content := strings.Join(parts, "\n\n")
	if content == "" {
		return nil, parseError("pdf", path, "no extractable text", nil)
	}

	result := &Result{
		Content:   content,
		Title:     titleFromPath(path),
		WordCount: len(strings.Fields(content)),
		Pages:     totalPages,
	}
	result.addMeta("pages", strconv.Itoa(totalPages))
	return result, nil
}
