package parsers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+?)\s*#*\s*$`)
	linkPattern      = regexp.MustCompile(`!?\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	codeFencePattern = regexp.MustCompile("(?m)^```([A-Za-z0-9_+-]*)\\s*$")
)

// MarkdownParser extracts text, YAML frontmatter, and document structure
// from markdown files.
type MarkdownParser struct{}

func (p *MarkdownParser) Name() string { return "markdown" }

func (p *MarkdownParser) Extensions() []string { return []string{".md", ".markdown"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	text := cleanUTF8(string(raw))
	if text == "" && len(raw) > 0 {
		return nil, parseError("markdown", path, "file is not valid UTF-8 text", nil)
	}

	result := &Result{}

	front, body := splitFrontmatter(text)
	if front != "" {
		p.applyFrontmatter(front, result)
	}

	for _, m := range headingPattern.FindAllStringSubmatch(body, -1) {
		result.addMeta("headings", m[2])
		if result.Title == "" {
			result.Title = m[2]
		}
	}
	for _, m := range linkPattern.FindAllStringSubmatch(body, -1) {
		result.addMeta("links", m[2])
	}
	for _, m := range codeFencePattern.FindAllStringSubmatch(body, -1) {
		if m[1] != "" {
			result.addMeta("code_langs", strings.ToLower(m[1]))
		}
	}

	if result.Title == "" {
		result.Title = titleFromPath(path)
	}

	// Link targets would pollute the index; keep only the link text.
	result.Content = linkPattern.ReplaceAllString(body, "$1")
	result.WordCount = len(strings.Fields(result.Content))
	return result, nil
}

// applyFrontmatter folds frontmatter fields into the result. Unparseable
// frontmatter is ignored rather than failing the whole document.
func (p *MarkdownParser) applyFrontmatter(front string, result *Result) {
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(front), &fields); err != nil {
		return
	}

	for key, value := range fields {
		key = strings.ToLower(key)
		switch v := value.(type) {
		case string:
			if key == "title" {
				result.Title = v
				continue
			}
			result.addMeta(key, v)
		case []any:
			for _, item := range v {
				result.addMeta(key, fmt.Sprint(item))
			}
		case nil:
		default:
			result.addMeta(key, fmt.Sprint(v))
		}
	}
}

// splitFrontmatter separates a leading YAML frontmatter block, delimited by
// --- lines, from the document body.
func splitFrontmatter(text string) (front, body string) {
	const delim = "---"

	rest, found := strings.CutPrefix(text, delim+"\n")
	if !found {
		if rest, found = strings.CutPrefix(text, delim+"\r\n"); !found {
			return "", text
		}
	}

	for _, end := range []string{"\n" + delim + "\n", "\n" + delim + "\r\n"} {
		if idx := strings.Index(rest, end); idx >= 0 {
			return rest[:idx], rest[idx+len(end):]
		}
	}
	// Closing delimiter at EOF without a trailing newline.
	if trimmed, found := strings.CutSuffix(rest, "\n"+delim); found {
		return trimmed, ""
	}
	return "", text
}
