package store

const (
	createDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    mtime TIMESTAMP,
    file_type TEXT NOT NULL,
    indexed_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
`

	createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS metadata (
    document_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_metadata_document_id ON metadata(document_id);
CREATE INDEX IF NOT EXISTS idx_metadata_key_value ON metadata(key, value);
`

	createPostingsTableSQL = `
CREATE TABLE IF NOT EXISTS postings (
    document_id INTEGER NOT NULL,
    token TEXT NOT NULL,
    tf INTEGER NOT NULL,
    PRIMARY KEY (document_id, token),
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_postings_token ON postings(token);
`

	createTokenDFTableSQL = `
CREATE TABLE IF NOT EXISTS token_df (
    token TEXT PRIMARY KEY,
    df INTEGER NOT NULL
);
`
)
