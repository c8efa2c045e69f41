package parsers

import (
	"context"
	"regexp"
	"strings"
)

const (
	maxEntityMatches = 20
	maxTitleLength   = 100
)

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s)>\]"']+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// TextParser handles plain text and log files.
type TextParser struct{}

func (p *TextParser) Name() string { return "text" }

func (p *TextParser) Extensions() []string { return []string{".txt", ".log"} }

func (p *TextParser) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	content := cleanUTF8(string(raw))
	if content == "" && len(raw) > 0 {
		return nil, parseError("text", path, "file is not valid UTF-8 text", nil)
	}

	title := titleFromContent(content)
	if title == "" {
		title = titleFromPath(path)
	}

	result := &Result{
		Content:   content,
		Title:     title,
		WordCount: len(strings.Fields(content)),
	}

	if urls := dedupeMatches(urlPattern.FindAllString(content, -1)); len(urls) > 0 {
		result.addMeta("urls", urls...)
	}
	if emails := dedupeMatches(emailPattern.FindAllString(content, -1)); len(emails) > 0 {
		result.addMeta("emails", emails...)
	}
	return result, nil
}

// titleFromContent takes the first non-empty line as the title when it is
// short enough to plausibly be one.
func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > maxTitleLength {
			return ""
		}
		return line
	}
	return ""
}

func dedupeMatches(matches []string) []string {
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
		if len(out) >= maxEntityMatches {
			break
		}
	}
	return out
}
