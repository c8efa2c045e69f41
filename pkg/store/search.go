package store

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxSearchLimit is the hard cap on result counts, regardless of the
	// configured default.
	MaxSearchLimit = 100

	// filenameBonus is added once when any positive term occurs in the
	// file name.
	filenameBonus = 2.0

	// Recency multiplies the score by (1 + recencyWeight * exp(-ageDays/recencyDecayDays)).
	recencyWeight     = 0.2
	recencyDecayDays  = 30.0
	snippetWidthBytes = 200
)

// sqlite allows at most 999 bound variables per statement by default.
const maxSQLVars = 900

type candidate struct {
	doc Document
	tfs map[string]int
}

// Search runs a parsed query against the index and returns ranked results
// plus the total number of matches before the limit was applied.
//
// Results are cached by canonical query form until the next write.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchResult, int, error) {
	if len(q.Terms) == 0 && len(q.Phrases) == 0 {
		return nil, 0, invalidQueryError("query contains no searchable terms")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.MaxSearchResults
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	s.totalQueries.Add(1)

	key := cacheKey(q, limit)
	if results, total, ok := s.cache.get(key); ok {
		s.cacheHits.Add(1)
		s.metrics.RecordCacheEvent(ctx, true)
		return results, total, nil
	}
	s.cacheMisses.Add(1)
	s.metrics.RecordCacheEvent(ctx, false)

	gen := s.cache.snapshot()
	start := time.Now()

	results, total, err := s.searchIndex(ctx, q, limit)
	if err != nil {
		return nil, 0, err
	}

	elapsed := time.Since(start)
	if s.cfg.SlowQueryThreshold > 0 && elapsed > s.cfg.SlowQueryThreshold {
		s.slowQueries.Add(1)
		slog.Warn("slow search query",
			"terms", strings.Join(q.Terms, " "),
			"duration", elapsed,
			"total_found", total)
	}

	s.cache.put(key, gen, results, total)
	return results, total, nil
}

func (s *Store) searchIndex(ctx context.Context, q SearchQuery, limit int) ([]SearchResult, int, error) {
	var totalDocs int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&totalDocs); err != nil {
		return nil, 0, storageError("search", "failed to count documents", err)
	}
	if totalDocs == 0 {
		return []SearchResult{}, 0, nil
	}

	lookup := q.lookupTokens()

	dfs, err := s.fetchDocumentFrequencies(ctx, lookup)
	if err != nil {
		return nil, 0, err
	}

	tfsByDoc, err := s.fetchPostings(ctx, lookup)
	if err != nil {
		return nil, 0, err
	}
	if len(tfsByDoc) == 0 {
		return []SearchResult{}, 0, nil
	}

	if len(q.Excluded) > 0 {
		excluded, err := s.fetchDocumentsWithTokens(ctx, q.Excluded)
		if err != nil {
			return nil, 0, err
		}
		for id := range excluded {
			delete(tfsByDoc, id)
		}
		if len(tfsByDoc) == 0 {
			return []SearchResult{}, 0, nil
		}
	}

	ids := make([]int64, 0, len(tfsByDoc))
	for id := range tfsByDoc {
		ids = append(ids, id)
	}

	candidates, err := s.fetchCandidates(ctx, ids, q.FileTypes)
	if err != nil {
		return nil, 0, err
	}

	now := time.Now()
	scored := make([]candidate, 0, len(candidates))
	for _, cand := range candidates {
		cand.tfs = tfsByDoc[cand.doc.ID]
		if !matchesPhrases(cand.doc.NormalizedText, q.Phrases) {
			continue
		}
		scored = append(scored, cand)
	}

	total := len(scored)

	type hit struct {
		cand  candidate
		score float64
	}
	hits := make([]hit, 0, len(scored))
	for _, cand := range scored {
		hits = append(hits, hit{cand: cand, score: scoreCandidate(cand, q.Terms, dfs, totalDocs, now)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].cand.doc.UpdatedAt.Equal(hits[j].cand.doc.UpdatedAt) {
			return hits[i].cand.doc.UpdatedAt.After(hits[j].cand.doc.UpdatedAt)
		}
		return hits[i].cand.doc.ID < hits[j].cand.doc.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		matched := make([]string, 0, len(h.cand.tfs))
		for token := range h.cand.tfs {
			matched = append(matched, token)
		}
		sort.Strings(matched)

		results = append(results, SearchResult{
			Document:      h.cand.doc,
			Score:         h.score,
			Snippet:       BuildSnippet(h.cand.doc.Content, lookup, snippetWidthBytes),
			MatchedTokens: matched,
		})
	}

	return results, total, nil
}

// scoreCandidate computes sum(tf * log((N+1)/(df+1))) with a filename bonus
// and a recency multiplier.
func scoreCandidate(cand candidate, terms []string, dfs map[string]int64, totalDocs int64, now time.Time) float64 {
	var score float64
	for token, tf := range cand.tfs {
		df := dfs[token]
		idf := math.Log(float64(totalDocs+1) / float64(df+1))
		score += float64(tf) * idf
	}

	base := strings.ToLower(filepath.Base(cand.doc.Path))
	for _, term := range terms {
		if strings.Contains(base, term) {
			score += filenameBonus
			break
		}
	}

	ageDays := now.Sub(cand.doc.UpdatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score *= 1 + recencyWeight*math.Exp(-ageDays/recencyDecayDays)

	return score
}

// matchesPhrases requires every phrase to occur as a contiguous token run
// in the normalized text.
func matchesPhrases(normalizedText string, phrases []string) bool {
	if len(phrases) == 0 {
		return true
	}
	padded := " " + normalizedText + " "
	for _, phrase := range phrases {
		if !strings.Contains(padded, " "+phrase+" ") {
			return false
		}
	}
	return true
}

func (s *Store) fetchDocumentFrequencies(ctx context.Context, tokens []string) (map[string]int64, error) {
	dfs := make(map[string]int64, len(tokens))
	for _, chunk := range chunkStrings(tokens, maxSQLVars) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT token, df FROM token_df WHERE token IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, storageError("search", "failed to read document frequencies", err)
		}
		for rows.Next() {
			var token string
			var df int64
			if err := rows.Scan(&token, &df); err != nil {
				rows.Close()
				return nil, storageError("search", "failed to scan document frequency", err)
			}
			dfs[token] = df
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storageError("search", "failed to iterate document frequencies", err)
		}
		rows.Close()
	}
	return dfs, nil
}

func (s *Store) fetchPostings(ctx context.Context, tokens []string) (map[int64]map[string]int, error) {
	tfsByDoc := make(map[int64]map[string]int)
	for _, chunk := range chunkStrings(tokens, maxSQLVars) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT document_id, token, tf FROM postings WHERE token IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, storageError("search", "failed to read postings", err)
		}
		for rows.Next() {
			var id int64
			var token string
			var tf int
			if err := rows.Scan(&id, &token, &tf); err != nil {
				rows.Close()
				return nil, storageError("search", "failed to scan posting", err)
			}
			tfs := tfsByDoc[id]
			if tfs == nil {
				tfs = make(map[string]int)
				tfsByDoc[id] = tfs
			}
			tfs[token] = tf
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storageError("search", "failed to iterate postings", err)
		}
		rows.Close()
	}
	return tfsByDoc, nil
}

func (s *Store) fetchDocumentsWithTokens(ctx context.Context, tokens []string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, chunk := range chunkStrings(tokens, maxSQLVars) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT DISTINCT document_id FROM postings WHERE token IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...)
		if err != nil {
			return nil, storageError("search", "failed to read excluded documents", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, storageError("search", "failed to scan excluded document", err)
			}
			ids[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storageError("search", "failed to iterate excluded documents", err)
		}
		rows.Close()
	}
	return ids, nil
}

func (s *Store) fetchCandidates(ctx context.Context, ids []int64, fileTypes []string) ([]candidate, error) {
	var candidates []candidate

	typeFilter := ""
	var typeArgs []any
	if len(fileTypes) > 0 {
		typeFilter = ` AND file_type IN (` + placeholders(len(fileTypes)) + `)`
		for _, ft := range fileTypes {
			typeArgs = append(typeArgs, strings.ToLower(strings.TrimPrefix(ft, ".")))
		}
	}

	for _, chunk := range chunkInt64s(ids, maxSQLVars-len(fileTypes)) {
		args := make([]any, 0, len(chunk)+len(typeArgs))
		for _, id := range chunk {
			args = append(args, id)
		}
		args = append(args, typeArgs...)

		rows, err := s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders(len(chunk))+`)`+typeFilter,
			args...)
		if err != nil {
			return nil, storageError("search", "failed to read candidate documents", err)
		}
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				rows.Close()
				return nil, storageError("search", "failed to scan candidate document", err)
			}
			candidates = append(candidates, candidate{doc: *doc})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storageError("search", "failed to iterate candidate documents", err)
		}
		rows.Close()
	}

	return candidates, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}

func chunkInt64s(values []int64, size int) [][]int64 {
	var chunks [][]int64
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}
