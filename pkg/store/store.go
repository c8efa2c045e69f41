package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/observability"
)

// Store persists documents, token postings, and document frequencies in a
// single SQLite database. Mutations are serialized through one writer
// goroutine; reads go straight to the connection pool.
type Store struct {
	db      *sql.DB
	cfg     config.StoreConfig
	metrics *observability.Metrics

	writes chan writeOp
	quit   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	cache *queryCache

	totalQueries atomic.Int64
	slowQueries  atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
}

type writeOp struct {
	fn   func() error
	done chan error
}

// Open opens or creates the database, applies pragmas, creates the schema,
// and starts the writer queue.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.DatabasePath, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageError("open", "failed to open database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageError("open", fmt.Sprintf("failed to connect to database at %s", cfg.DatabasePath), err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		writes: make(chan writeOp, 64),
		quit:   make(chan struct{}),
		cache:  newQueryCache(cfg.QueryCacheTTL),
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.writerLoop()

	slog.Debug("document store opened", "path", cfg.DatabasePath)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, ddl := range []string{
		createDocumentsTableSQL,
		createMetadataTableSQL,
		createPostingsTableSQL,
		createTokenDFTableSQL,
	} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return storageError("init", "failed to create schema", err)
		}
	}
	return nil
}

// SetMetrics attaches a metrics recorder for cache hit/miss counters. Call
// before the store serves queries; a nil recorder is a no-op.
func (s *Store) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Close drains the writer queue and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.quit)
	s.wg.Wait()
	return s.db.Close()
}

// writerLoop executes queued mutations one at a time. On shutdown it drains
// whatever is already queued before exiting.
func (s *Store) writerLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writes:
			op.done <- s.withRetry(op.fn)
		case <-s.quit:
			for {
				select {
				case op := <-s.writes:
					op.done <- s.withRetry(op.fn)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) enqueueWrite(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return storageError("write", "store is closed", nil)
	}

	op := writeOp{fn: fn, done: make(chan error, 1)}
	select {
	case s.writes <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var busyDelays = []time.Duration{
	10 * time.Millisecond,
	50 * time.Millisecond,
	250 * time.Millisecond,
}

// withRetry retries fn on SQLITE_BUSY up to three times with jittered
// backoff before giving up.
func (s *Store) withRetry(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= len(busyDelays) || !isBusy(err) {
			return err
		}
		delay := busyDelays[attempt] + time.Duration(rand.Int63n(int64(busyDelays[attempt])/2+1))
		slog.Debug("database busy, retrying write", "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)
	}
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// UpsertDocument inserts or updates a document by its unique path in one
// transaction: document row, wholesale metadata replacement, posting
// replacement with document-frequency maintenance. The query cache is
// invalidated on success.
func (s *Store) UpsertDocument(ctx context.Context, doc *Document, meta Metadata, postings map[string]int) (int64, bool, error) {
	if doc == nil || doc.Path == "" {
		return 0, false, storageError("upsert", "document path is required", nil)
	}

	var id int64
	var created bool
	err := s.enqueueWrite(ctx, func() error {
		var err error
		id, created, err = s.upsertTx(ctx, doc, meta, postings)
		return err
	})
	if err != nil {
		if isStoreError(err) {
			return 0, false, err
		}
		return 0, false, NewStoreError("upsert", CodeStorageError, "failed to upsert document", doc.Path, err)
	}

	s.cache.invalidate()
	return id, created, nil
}

func (s *Store) upsertTx(ctx context.Context, doc *Document, meta Metadata, postings map[string]int) (id int64, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE path = ?`, doc.Path).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
INSERT INTO documents (path, title, content, normalized_text, content_hash, size_bytes, mtime, file_type, indexed_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.Path, doc.Title, doc.Content, doc.NormalizedText, doc.ContentHash,
			doc.SizeBytes, doc.MTime, doc.FileType, now, now,
		)
		if err != nil {
			return 0, false, fmt.Errorf("failed to insert document: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, false, fmt.Errorf("failed to read inserted id: %w", err)
		}
		created = true

	case err != nil:
		return 0, false, fmt.Errorf("failed to look up document: %w", err)

	default:
		id = existingID
		if err = s.removeIndexEntries(ctx, tx, id); err != nil {
			return 0, false, err
		}
		_, err = tx.ExecContext(ctx, `
UPDATE documents
SET title = ?, content = ?, normalized_text = ?, content_hash = ?, size_bytes = ?, mtime = ?, file_type = ?, updated_at = ?
WHERE id = ?`,
			doc.Title, doc.Content, doc.NormalizedText, doc.ContentHash,
			doc.SizeBytes, doc.MTime, doc.FileType, now, id,
		)
		if err != nil {
			return 0, false, fmt.Errorf("failed to update document: %w", err)
		}
	}

	metaStmt, err := tx.PrepareContext(ctx, `INSERT INTO metadata (document_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer metaStmt.Close()

	for key, values := range meta {
		for _, value := range values {
			if _, err = metaStmt.ExecContext(ctx, id, key, value); err != nil {
				return 0, false, fmt.Errorf("failed to insert metadata: %w", err)
			}
		}
	}

	postingStmt, err := tx.PrepareContext(ctx, `INSERT INTO postings (document_id, token, tf) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare posting insert: %w", err)
	}
	defer postingStmt.Close()

	dfStmt, err := tx.PrepareContext(ctx, `
INSERT INTO token_df (token, df) VALUES (?, 1)
ON CONFLICT(token) DO UPDATE SET df = df + 1`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to prepare df upsert: %w", err)
	}
	defer dfStmt.Close()

	for token, tf := range postings {
		if _, err = postingStmt.ExecContext(ctx, id, token, tf); err != nil {
			return 0, false, fmt.Errorf("failed to insert posting: %w", err)
		}
		if _, err = dfStmt.ExecContext(ctx, token); err != nil {
			return 0, false, fmt.Errorf("failed to update document frequency: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit: %w", err)
	}
	return id, created, nil
}

// removeIndexEntries drops a document's postings and metadata inside tx,
// decrementing document frequencies first.
func (s *Store) removeIndexEntries(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `
UPDATE token_df SET df = df - 1
WHERE token IN (SELECT token FROM postings WHERE document_id = ?)`, id); err != nil {
		return fmt.Errorf("failed to decrement document frequencies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM token_df WHERE df <= 0`); err != nil {
		return fmt.Errorf("failed to prune document frequencies: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM postings WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// DeleteByPath removes a document and all its index entries.
// Returns a DOCUMENT_NOT_FOUND error when the path is not indexed.
func (s *Store) DeleteByPath(ctx context.Context, path string) error {
	return s.delete(ctx, `SELECT id FROM documents WHERE path = ?`, path)
}

// DeleteByID removes a document and all its index entries by id.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	return s.delete(ctx, `SELECT id FROM documents WHERE id = ?`, id)
}

func (s *Store) delete(ctx context.Context, lookupSQL string, ref any) error {
	err := s.enqueueWrite(ctx, func() error {
		return s.deleteTx(ctx, lookupSQL, ref)
	})
	if err != nil {
		if isStoreError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return storageError("delete", "failed to delete document", err)
	}

	s.cache.invalidate()
	return nil
}

func (s *Store) deleteTx(ctx context.Context, lookupSQL string, ref any) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	err = tx.QueryRowContext(ctx, lookupSQL, ref).Scan(&id)
	if err == sql.ErrNoRows {
		return notFoundError("delete", fmt.Sprintf("%v", ref))
	}
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}

	if err = s.removeIndexEntries(ctx, tx, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// RenamePath moves a document to a new path, keeping its id, postings, and
// metadata. The file type is refreshed from the new extension so filetype:
// filters stay truthful. Returns a DOCUMENT_NOT_FOUND error when from is not
// indexed.
func (s *Store) RenamePath(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return storageError("rename", "both paths are required", nil)
	}

	err := s.enqueueWrite(ctx, func() error {
		fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(to)), ".")
		res, err := s.db.ExecContext(ctx, `
UPDATE documents SET path = ?, file_type = ?, updated_at = ? WHERE path = ?`,
			to, fileType, time.Now().UTC(), from)
		if err != nil {
			return fmt.Errorf("failed to rename document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rename result: %w", err)
		}
		if n == 0 {
			return notFoundError("rename", from)
		}
		return nil
	})
	if err != nil {
		if isStoreError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return NewStoreError("rename", CodeStorageError, "failed to rename document", from, err)
	}

	s.cache.invalidate()
	return nil
}

const documentColumns = `id, path, title, content, normalized_text, content_hash, size_bytes, mtime, file_type, indexed_at, updated_at`

// GetByID fetches one document and its metadata.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, Metadata, error) {
	return s.get(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
}

// GetByPath fetches one document and its metadata by path.
func (s *Store) GetByPath(ctx context.Context, path string) (*Document, Metadata, error) {
	return s.get(ctx, `SELECT `+documentColumns+` FROM documents WHERE path = ?`, path)
}

func (s *Store) get(ctx context.Context, query string, ref any) (*Document, Metadata, error) {
	row := s.db.QueryRowContext(ctx, query, ref)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil, notFoundError("get", fmt.Sprintf("%v", ref))
	}
	if err != nil {
		return nil, nil, storageError("get", "failed to read document", err)
	}

	meta, err := s.getMetadata(ctx, doc.ID)
	if err != nil {
		return nil, nil, err
	}
	return doc, meta, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var mtime sql.NullTime
	err := row.Scan(
		&doc.ID, &doc.Path, &doc.Title, &doc.Content, &doc.NormalizedText,
		&doc.ContentHash, &doc.SizeBytes, &mtime, &doc.FileType,
		&doc.IndexedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if mtime.Valid {
		doc.MTime = mtime.Time
	}
	return &doc, nil
}

// GetByHash returns every document stored with the given content hash, in id
// order. The watcher uses this to recognize a moved file by its content.
func (s *Store) GetByHash(ctx context.Context, hash string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? ORDER BY id`, hash)
	if err != nil {
		return nil, storageError("get", "failed to read documents by hash", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageError("get", "failed to scan document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get", "failed to iterate documents", err)
	}
	return docs, nil
}

func (s *Store) getMetadata(ctx context.Context, id int64) (Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE document_id = ?`, id)
	if err != nil {
		return nil, storageError("get", "failed to read metadata", err)
	}
	defer rows.Close()

	meta := make(Metadata)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, storageError("get", "failed to scan metadata", err)
		}
		meta.Add(key, value)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get", "failed to iterate metadata", err)
	}
	return meta, nil
}

// Stats reports store contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.DocumentCount); err != nil {
		return stats, storageError("stats", "failed to count documents", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM token_df`).Scan(&stats.TokenCount); err != nil {
		return stats, storageError("stats", "failed to count tokens", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file_type, COUNT(*) FROM documents GROUP BY file_type`)
	if err != nil {
		return stats, storageError("stats", "failed to group by file type", err)
	}
	defer rows.Close()

	stats.ByFileType = make(map[string]int64)
	for rows.Next() {
		var ft string
		var count int64
		if err := rows.Scan(&ft, &count); err != nil {
			return stats, storageError("stats", "failed to scan file type counts", err)
		}
		stats.ByFileType[ft] = count
	}
	if err := rows.Err(); err != nil {
		return stats, storageError("stats", "failed to iterate file type counts", err)
	}

	if info, err := os.Stat(s.cfg.DatabasePath); err == nil {
		stats.DatabaseSizeBytes = info.Size()
	}

	return stats, nil
}

// QueryStats returns search counters accumulated since Open.
func (s *Store) QueryStats() QueryStats {
	return QueryStats{
		TotalQueries: s.totalQueries.Load(),
		SlowQueries:  s.slowQueries.Load(),
		CacheHits:    s.cacheHits.Load(),
		CacheMisses:  s.cacheMisses.Load(),
	}
}

func isStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
