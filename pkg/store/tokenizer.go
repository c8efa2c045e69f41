package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords are dropped from both the index and queries when enabled.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true,
}

// Tokenize converts text to canonical search tokens: lowercase, letters,
// digits and underscore only, minimum two runes, stop words optionally
// dropped. Indexing and query parsing share this function; they must never
// diverge.
func Tokenize(text string, dropStopWords bool) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if utf8.RuneCountInString(tok) < 2 {
			return
		}
		if dropStopWords && stopWords[tok] {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// NormalizeText returns the canonical space-joined token form of text,
// used for phrase matching.
func NormalizeText(text string, dropStopWords bool) string {
	return strings.Join(Tokenize(text, dropStopWords), " ")
}

// BuildPostings counts term frequencies over tokens.
func BuildPostings(tokens []string) map[string]int {
	postings := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		postings[tok]++
	}
	return postings
}

// ParseQuery parses the search syntax: bare words become positive tokens,
// "quoted phrases" match contiguously, -word excludes, filetype:md filters.
// A query with no positive tokens and no phrases is invalid.
func ParseQuery(raw string, dropStopWords bool) (SearchQuery, error) {
	var q SearchQuery

	rest := raw

	// Pull out quoted phrases first so their content is not split on
	// whitespace below.
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			// Unbalanced quote: treat the remainder as plain terms.
			rest = rest[:start] + " " + rest[start+1:]
			break
		}
		phrase := rest[start+1 : start+1+end]
		rest = rest[:start] + " " + rest[start+2+end:]

		if normalized := NormalizeText(phrase, dropStopWords); normalized != "" {
			q.Phrases = append(q.Phrases, normalized)
		}
	}

	seen := make(map[string]bool)
	for _, field := range strings.Fields(rest) {
		switch {
		case strings.HasPrefix(strings.ToLower(field), "filetype:"):
			ft := strings.ToLower(field[len("filetype:"):])
			ft = strings.TrimPrefix(ft, ".")
			if ft != "" {
				q.FileTypes = append(q.FileTypes, ft)
			}
		case strings.HasPrefix(field, "-") && len(field) > 1:
			for _, tok := range Tokenize(field[1:], dropStopWords) {
				q.Excluded = append(q.Excluded, tok)
			}
		default:
			for _, tok := range Tokenize(field, dropStopWords) {
				if !seen[tok] {
					seen[tok] = true
					q.Terms = append(q.Terms, tok)
				}
			}
		}
	}

	if len(q.Terms) == 0 && len(q.Phrases) == 0 {
		return q, invalidQueryError("query contains no searchable terms")
	}

	return q, nil
}

// lookupTokens returns the distinct tokens used to find candidate
// documents: positive terms plus the tokens inside phrases.
func (q SearchQuery) lookupTokens() []string {
	seen := make(map[string]bool, len(q.Terms))
	var tokens []string
	for _, t := range q.Terms {
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	for _, p := range q.Phrases {
		for _, t := range strings.Split(p, " ") {
			if t != "" && !seen[t] {
				seen[t] = true
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}
