package store

import "time"

// Document is one indexed file.
type Document struct {
	ID             int64     `json:"id"`
	Path           string    `json:"path"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	NormalizedText string    `json:"-"`
	ContentHash    string    `json:"content_hash"`
	SizeBytes      int64     `json:"size_bytes"`
	MTime          time.Time `json:"mtime"`
	FileType       string    `json:"file_type"`
	IndexedAt      time.Time `json:"indexed_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Metadata is a multimap of document attributes. It is replaced wholesale
// on every reindex.
type Metadata map[string][]string

// Set replaces all values for key.
func (m Metadata) Set(key, value string) {
	m[key] = []string{value}
}

// Add appends a value for key.
func (m Metadata) Add(key, value string) {
	m[key] = append(m[key], value)
}

// SearchQuery is the parsed form of a search string.
type SearchQuery struct {
	// Terms are the positive tokens from the canonical tokenizer.
	Terms []string
	// Phrases are quoted phrases, stored as their token-joined canonical
	// form, matched as contiguous substrings of the normalized text.
	Phrases []string
	// Excluded drops any document containing one of these tokens.
	Excluded []string
	// FileTypes filters by document file type (lowercase, no dot).
	FileTypes []string
	// Limit caps the result count. Zero means the configured default.
	Limit int
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Document      Document
	Score         float64
	Snippet       string
	MatchedTokens []string
}

// Stats summarizes store contents.
type Stats struct {
	DocumentCount     int64            `json:"document_count"`
	TokenCount        int64            `json:"token_count"`
	DatabaseSizeBytes int64            `json:"database_size_bytes"`
	ByFileType        map[string]int64 `json:"by_file_type"`
}

// QueryStats tracks search activity since the store was opened.
type QueryStats struct {
	TotalQueries int64 `json:"total_queries"`
	SlowQueries  int64 `json:"slow_queries"`
	CacheHits    int64 `json:"cache_hits"`
	CacheMisses  int64 `json:"cache_misses"`
}
