// Package parsers extracts indexable text and metadata from document files.
// Dispatch is by file extension; registering a parser for an extension that
// is already claimed replaces the earlier claim.
package parsers

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kadirpekel/mydocs-mcp/pkg/registry"
)

// Result is the extracted content of a single document.
type Result struct {
	// Content is the text to index and search.
	Content string

	// Title comes from document metadata when available, otherwise the
	// file name.
	Title string

	// Metadata holds extracted key/value pairs; keys may repeat.
	Metadata map[string][]string

	// WordCount is the whitespace-separated word count of Content.
	WordCount int

	// Pages counts pages for paginated formats and sheets for workbooks.
	Pages int
}

func (r *Result) addMeta(key string, values ...string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string][]string)
	}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			r.Metadata[key] = append(r.Metadata[key], v)
		}
	}
}

// Parser extracts content from one family of file formats.
type Parser interface {
	// Name identifies the parser for registration and logging.
	Name() string

	// Extensions lists the file extensions this parser claims, with dot.
	Extensions() []string

	// Parse extracts content from raw, the file's bytes. The path is for
	// titles, metadata, and error context only; parsers never touch the
	// filesystem, so one read of the file serves both hashing and parsing.
	Parse(ctx context.Context, path string, raw []byte) (*Result, error)
}

// Registry routes files to parsers by extension.
type Registry struct {
	byName *registry.BaseRegistry[Parser]

	mu    sync.RWMutex
	byExt map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: registry.NewBaseRegistry[Parser](),
		byExt:  make(map[string]Parser),
	}
}

// DefaultRegistry creates a registry with all built-in parsers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range []Parser{
		&MarkdownParser{},
		&TextParser{},
		&PDFParser{},
		&DocxParser{},
		&XlsxParser{},
	} {
		// Built-in names never collide.
		_ = r.Register(p)
	}
	return r
}

// Register adds a parser and claims its extensions. A parser name may only
// be registered once; extension claims overwrite earlier ones.
func (r *Registry) Register(p Parser) error {
	if err := r.byName.Register(p.Name(), p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.byExt[normalizeExt(ext)] = p
	}
	return nil
}

// ForPath returns the parser claiming the path's extension.
func (r *Registry) ForPath(path string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return p, ok
}

// Parse extracts content from raw using the parser registered for the
// path's extension.
func (r *Registry) Parse(ctx context.Context, path string, raw []byte) (*Result, error) {
	p, ok := r.ForPath(path)
	if !ok {
		return nil, unsupportedTypeError(path, filepath.Ext(path))
	}
	return p.Parse(ctx, path, raw)
}

// Extensions returns all claimed extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FileType returns the lowercased extension of path without the dot, for
// storage and filetype: query filters.
func FileType(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// cleanUTF8 validates content and strips invalid sequences. Files where more
// than half the bytes are invalid are rejected as binary garbage.
func cleanUTF8(content string) string {
	if utf8.ValidString(content) {
		return content
	}

	cleaned := strings.ToValidUTF8(content, "")
	if len(content) > 0 {
		invalidRatio := float64(len(content)-len(cleaned)) / float64(len(content))
		if invalidRatio > 0.5 {
			return ""
		}
	}
	return cleaned
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
