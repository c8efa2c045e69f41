package store

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnippet_ShortContentNoEllipses(t *testing.T) {
	got := BuildSnippet("the answer lives here", []string{"answer"}, 200)
	assert.Equal(t, "the **answer** lives here", got)
}

func TestBuildSnippet_CentersOnEarliestHit(t *testing.T) {
	content := strings.Repeat("x ", 200) + "needle in the haystack"
	got := BuildSnippet(content, []string{"needle", "haystack"}, 200)

	assert.True(t, strings.HasPrefix(got, "..."), "mid-file window needs a leading ellipsis")
	assert.Contains(t, got, "**needle**")
	assert.Contains(t, got, "**haystack**")
	assert.LessOrEqual(t, len(got), 200+6+4*len("****"))
}

func TestBuildSnippet_NoHitFallsBackToLeadingWindow(t *testing.T) {
	content := strings.Repeat("alpha beta gamma ", 40)
	got := BuildSnippet(content, []string{"zzz"}, 100)

	assert.False(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."), "truncated tail needs a trailing ellipsis")
	assert.True(t, strings.HasPrefix(got, "alpha beta gamma"))
	assert.NotContains(t, got, "**")
}

func TestBuildSnippet_TrimsToWordBoundaries(t *testing.T) {
	content := strings.Repeat("word ", 100) + "target" + strings.Repeat(" word", 100)
	got := BuildSnippet(content, []string{"target"}, 120)

	stripped := strings.TrimSuffix(strings.TrimPrefix(got, "..."), "...")
	for _, field := range strings.Fields(strings.ReplaceAll(stripped, "**", "")) {
		assert.Contains(t, []string{"word", "target"}, field, "window must not cut words in half")
	}
}

func TestBuildSnippet_KeepsRuneBoundaries(t *testing.T) {
	// Continuous two-byte runes with no spaces force the byte window onto
	// rune boundaries; an odd width would otherwise split a rune.
	content := strings.Repeat("ü", 300)
	got := BuildSnippet(content, nil, 199)

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 100, utf8.RuneCountInString(strings.TrimSuffix(got, "...")))
}

func TestBuildSnippet_MultibyteAroundHit(t *testing.T) {
	content := strings.Repeat("é", 300) + " needle"
	got := BuildSnippet(content, []string{"needle"}, 200)

	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "**needle**")
}

func TestBuildSnippet_EmptyContent(t *testing.T) {
	assert.Equal(t, "", BuildSnippet("", []string{"x"}, 200))
}

func TestBuildSnippet_DefaultWidth(t *testing.T) {
	content := strings.Repeat("pad ", 100)
	got := BuildSnippet(content, nil, 0)
	assert.LessOrEqual(t, len(got), snippetWidthBytes+3)
}

func TestHighlightTokens_WholeWordsOnly(t *testing.T) {
	got := highlightTokens("go golang going", []string{"go"})
	assert.Equal(t, "**go** golang going", got)
}

func TestHighlightTokens_CaseInsensitivePreservesOriginal(t *testing.T) {
	got := highlightTokens("Docker docker DOCKER", []string{"docker"})
	assert.Equal(t, "**Docker** **docker** **DOCKER**", got)
}

func TestHighlightTokens_EmptyTokenList(t *testing.T) {
	assert.Equal(t, "unchanged", highlightTokens("unchanged", nil))
	assert.Equal(t, "unchanged", highlightTokens("unchanged", []string{""}))
}
