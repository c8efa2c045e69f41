package store

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// BuildSnippet extracts a window of at most width bytes around the earliest
// occurrence of any token, trimmed to word boundaries, with ellipses marking
// truncation and matched tokens wrapped in ** markers. When no token occurs
// in the content the snippet is the leading window.
func BuildSnippet(content string, tokens []string, width int) string {
	if width <= 0 {
		width = snippetWidthBytes
	}
	if content == "" {
		return ""
	}

	lower := strings.ToLower(content)

	earliest := -1
	for _, token := range tokens {
		if idx := strings.Index(lower, token); idx >= 0 && (earliest == -1 || idx < earliest) {
			earliest = idx
		}
	}
	if earliest < 0 {
		earliest = 0
	}

	start := earliest - width/2
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(content) {
		end = len(content)
		if start = end - width; start < 0 {
			start = 0
		}
	}

	// Keep rune boundaries intact before adjusting to word boundaries.
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	if start > 0 {
		if idx := strings.IndexAny(content[start:end], " \t\n"); idx >= 0 && start+idx < earliest {
			start += idx + 1
		}
	}
	if end < len(content) {
		if idx := strings.LastIndexAny(content[start:end], " \t\n"); idx >= 0 && start+idx > earliest {
			end = start + idx
		}
	}

	snippet := strings.TrimSpace(content[start:end])
	snippet = highlightTokens(snippet, tokens)

	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet += "..."
	}
	return snippet
}

// highlightTokens wraps whole-word token occurrences in ** markers.
func highlightTokens(s string, tokens []string) string {
	if len(tokens) == 0 {
		return s
	}

	quoted := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token != "" {
			quoted = append(quoted, regexp.QuoteMeta(token))
		}
	}
	if len(quoted) == 0 {
		return s
	}

	re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	if err != nil {
		return s
	}
	return re.ReplaceAllString(s, "**$1**")
}
