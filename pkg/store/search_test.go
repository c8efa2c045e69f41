package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
)

func mustQuery(t *testing.T, raw string) SearchQuery {
	t.Helper()
	q, err := ParseQuery(raw, true)
	require.NoError(t, err)
	return q
}

func TestSearch_RanksByTermFrequency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sparse := indexDoc(t, s, "/docs/sparse.md", "kubernetes mentioned once among other words", "md", nil)
	dense := indexDoc(t, s, "/docs/dense.md", "kubernetes kubernetes kubernetes cluster notes", "md", nil)
	// A document without the token keeps the idf above zero.
	indexDoc(t, s, "/docs/unrelated.md", "nothing relevant in this one", "md", nil)

	results, total, err := s.Search(ctx, mustQuery(t, "kubernetes"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, total)
	assert.Equal(t, dense, results[0].Document.ID, "higher term frequency should rank first")
	assert.Equal(t, sparse, results[1].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearch_RareTokenScoresHigher(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "common" appears in every document, "obscure" in one.
	for i := 0; i < 5; i++ {
		indexDoc(t, s, fmt.Sprintf("/docs/f%d.md", i), "common filler text", "md", nil)
	}
	target := indexDoc(t, s, "/docs/target.md", "common obscure", "md", nil)

	results, _, err := s.Search(ctx, mustQuery(t, "common obscure"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, target, results[0].Document.ID, "document with the rare token should rank first")
}

func TestSearch_FilenameBonus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inName := indexDoc(t, s, "/docs/deployment.md", "deployment steps listed", "md", nil)
	indexDoc(t, s, "/docs/other.md", "deployment steps listed", "md", nil)

	results, _, err := s.Search(ctx, mustQuery(t, "deployment"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, inName, results[0].Document.ID, "term in filename should rank first")
}

func TestSearch_TieBreakers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := indexDoc(t, s, "/docs/tie-a.md", "identical twin content", "md", nil)
	newer := indexDoc(t, s, "/docs/tie-b.md", "identical twin content", "md", nil)

	// Pin timestamps so scores tie exactly, then newer updated_at wins.
	base := time.Now().UTC().Truncate(time.Second)
	_, err := s.db.Exec(`UPDATE documents SET updated_at = ? WHERE id = ?`, base.Add(-time.Hour), older)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE documents SET updated_at = ? WHERE id = ?`, base, newer)
	require.NoError(t, err)
	s.cache.invalidate()

	results, _, err := s.Search(ctx, mustQuery(t, "twin"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, newer, results[0].Document.ID, "newer updated_at should win ties")

	// Same updated_at: lower id wins.
	_, err = s.db.Exec(`UPDATE documents SET updated_at = ?`, base)
	require.NoError(t, err)
	s.cache.invalidate()

	results, _, err = s.Search(ctx, mustQuery(t, "twin"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, older, results[0].Document.ID, "lower id should win exact ties")
	assert.Equal(t, newer, results[1].Document.ID)
}

func TestSearch_FileTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mdID := indexDoc(t, s, "/docs/guide.md", "shared topic", "md", nil)
	indexDoc(t, s, "/docs/guide.txt", "shared topic", "txt", nil)

	results, total, err := s.Search(ctx, mustQuery(t, "topic filetype:md"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, mdID, results[0].Document.ID)

	// Multiple filters OR together.
	_, total, err = s.Search(ctx, mustQuery(t, "topic filetype:md filetype:txt"))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestSearch_Exclusions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keep := indexDoc(t, s, "/docs/keep.md", "caching strategies overview", "md", nil)
	indexDoc(t, s, "/docs/drop.md", "caching with redis cluster", "md", nil)

	results, total, err := s.Search(ctx, mustQuery(t, "caching -redis"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, keep, results[0].Document.ID)
}

func TestSearch_Phrases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contiguous := indexDoc(t, s, "/docs/yes.md", "robust error handling matters", "md", nil)
	indexDoc(t, s, "/docs/no.md", "error causes and handling tips", "md", nil)

	results, total, err := s.Search(ctx, mustQuery(t, `"error handling"`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, contiguous, results[0].Document.ID)
}

func TestSearch_PhraseCrossesPunctuation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Normalization strips punctuation, so the phrase still matches.
	id := indexDoc(t, s, "/docs/p.md", "Error: handling begins here", "md", nil)

	results, _, err := s.Search(ctx, mustQuery(t, `"error handling"`))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Document.ID)
}

func TestSearch_LimitAndTotal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		indexDoc(t, s, fmt.Sprintf("/docs/bulk-%02d.md", i), "bulk corpus entry", "md", nil)
	}

	q := mustQuery(t, "bulk")
	q.Limit = 10
	results, total, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, 30, total)
}

func TestSearch_DefaultAndCappedLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		indexDoc(t, s, fmt.Sprintf("/docs/lim-%02d.md", i), "limit corpus", "md", nil)
	}

	// Zero limit falls back to the configured default (20).
	results, total, err := s.Search(ctx, mustQuery(t, "limit"))
	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.Equal(t, 25, total)

	// Limits beyond the cap are clamped rather than rejected here; the
	// tool schema rejects them before they reach the store.
	q := mustQuery(t, "limit")
	q.Limit = 1000
	results, _, err = s.Search(ctx, q)
	require.NoError(t, err)
	assert.Len(t, results, 25)
}

func TestSearch_MatchedTokensAndSnippet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexDoc(t, s, "/docs/snip.md", strings.Repeat("padding words here. ", 30)+"The searched token appears deep in the file.", "md", nil)

	results, _, err := s.Search(ctx, mustQuery(t, "searched token"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, []string{"searched", "token"}, r.MatchedTokens)
	assert.Contains(t, r.Snippet, "**searched**")
	assert.Contains(t, r.Snippet, "**token**")
	assert.True(t, strings.HasPrefix(r.Snippet, "..."), "snippet from mid-file should have a leading ellipsis")
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Search(context.Background(), SearchQuery{})
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInvalidQuery, se.Code)
}

func TestSearch_NoResults(t *testing.T) {
	s := newTestStore(t)

	indexDoc(t, s, "/docs/x.md", "entirely unrelated", "md", nil)

	results, total, err := s.Search(context.Background(), mustQuery(t, "zzzyyyxxx"))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, total)
}

func TestSearch_CacheHitEqualsColdComputation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexDoc(t, s, "/docs/c1.md", "cached result verification", "md", nil)
	indexDoc(t, s, "/docs/c2.md", "cached twice as much cached", "md", nil)

	cold, coldTotal, err := s.Search(ctx, mustQuery(t, "cached"))
	require.NoError(t, err)

	warm, warmTotal, err := s.Search(ctx, mustQuery(t, "cached"))
	require.NoError(t, err)

	assert.Equal(t, cold, warm, "cache hit must return identical results")
	assert.Equal(t, coldTotal, warmTotal)

	qs := s.QueryStats()
	assert.Equal(t, int64(2), qs.TotalQueries)
	assert.Equal(t, int64(1), qs.CacheHits)
	assert.Equal(t, int64(1), qs.CacheMisses)
}

func TestSearch_CacheInvalidatedByWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexDoc(t, s, "/docs/v1.md", "invalidation subject", "md", nil)

	first, _, err := s.Search(ctx, mustQuery(t, "invalidation"))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Any write clears the cache, so the next search sees the new document.
	indexDoc(t, s, "/docs/v2.md", "another invalidation subject", "md", nil)

	second, total, err := s.Search(ctx, mustQuery(t, "invalidation"))
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.Equal(t, 2, total)

	require.NoError(t, s.DeleteByPath(ctx, "/docs/v2.md"))

	third, total, err := s.Search(ctx, mustQuery(t, "invalidation"))
	require.NoError(t, err)
	assert.Len(t, third, 1)
	assert.Equal(t, 1, total)
}

func TestSearch_WriteDuringComputeIsNotCached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexDoc(t, s, "/docs/race-1.md", "interleaved write subject", "md", nil)

	// Compute results the way Search does on a miss, capturing the cache
	// generation first.
	q := mustQuery(t, "interleaved")
	limit := s.cfg.MaxSearchResults
	gen := s.cache.snapshot()
	preWrite, preTotal, err := s.searchIndex(ctx, q, limit)
	require.NoError(t, err)
	require.Equal(t, 1, preTotal)

	// A write lands before the computed results reach the cache.
	indexDoc(t, s, "/docs/race-2.md", "interleaved write subject", "md", nil)

	// The stale rows must be refused, not parked until the TTL.
	s.cache.put(cacheKey(q, limit), gen, preWrite, preTotal)
	assert.Zero(t, s.cache.size(), "results computed before a write must not be cached after it")

	results, total, err := s.Search(ctx, mustQuery(t, "interleaved"))
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, results, 2)
}

func TestSearch_CacheTTLExpiry(t *testing.T) {
	cfg := config.Default().Store
	cfg.DatabasePath = filepath.Join(t.TempDir(), "ttl.db")
	cfg.QueryCacheTTL = 30 * time.Millisecond

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	indexDoc(t, s, "/docs/ttl.md", "expiring entry", "md", nil)

	_, _, err = s.Search(context.Background(), mustQuery(t, "expiring"))
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, _, err = s.Search(context.Background(), mustQuery(t, "expiring"))
	require.NoError(t, err)

	qs := s.QueryStats()
	assert.Equal(t, int64(0), qs.CacheHits, "expired entry must not serve hits")
	assert.Equal(t, int64(2), qs.CacheMisses)
}

func TestSearch_ConsistentDuringReindex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexDoc(t, s, "/docs/live.md", "stable old content", "md", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			content := fmt.Sprintf("stable version %d content", i)
			norm := NormalizeText(content, true)
			doc := &Document{
				Path:           "/docs/live.md",
				Title:          "live",
				Content:        content,
				NormalizedText: norm,
				ContentHash:    hashContent(content),
				SizeBytes:      int64(len(content)),
				FileType:       "md",
			}
			_, _, err := s.UpsertDocument(ctx, doc, nil, BuildPostings(Tokenize(norm, true)))
			assert.NoError(t, err)
		}
	}()

	// Concurrent readers must always see a complete document, never a
	// half-applied update.
	for i := 0; i < 50; i++ {
		results, _, err := s.Search(ctx, mustQuery(t, "stable"))
		require.NoError(t, err)
		if len(results) == 1 {
			content := results[0].Document.Content
			assert.True(t, strings.HasPrefix(content, "stable"), "content should be a complete version, got %q", content)
		}
	}
	<-done
}
