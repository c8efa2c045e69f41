package parsers

import (
	"bytes"
	"context"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var xmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// DocxParser extracts text from Word documents.
type DocxParser struct{}

func (p *DocxParser) Name() string { return "docx" }

func (p *DocxParser) Extensions() []string { return []string{".docx"} }

func (p *DocxParser) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, parseError("docx", path, "failed to read Word document", err)
	}
	defer doc.Close()

	content := extractDocxText(doc.Editable().GetContent())
	if content == "" {
		return nil, parseError("docx", path, "no extractable text", nil)
	}

	paragraphs := strings.Count(content, "\n") + 1

	result := &Result{
		Content:   content,
		Title:     titleFromPath(path),
		WordCount: len(strings.Fields(content)),
		Pages:     paragraphs,
	}
	result.addMeta("paragraphs", strconv.Itoa(paragraphs))
	return result, nil
}

// extractDocxText converts WordprocessingML into plain text: paragraph ends
// become newlines, remaining tags are dropped, entities are unescaped.
func extractDocxText(raw string) string {
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	raw = xmlTagPattern.ReplaceAllString(raw, " ")
	raw = html.UnescapeString(raw)

	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}
