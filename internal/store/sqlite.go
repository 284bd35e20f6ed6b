package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLiteMetadataStore implements MetadataStore on SQLite via modernc.org/sqlite.
type SQLiteMetadataStore struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (or creates) the metadata database at path.
// File-backed stores take an advisory file lock so two processes cannot
// write the same index. An empty path opens an in-memory database.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	dsn := ":memory:"
	var lock *flock.Flock

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}

		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire metadata lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("metadata store at %s is locked by another process", path)
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	// Single writer avoids SQLite lock contention; reads share the same conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite; DSN params are ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteMetadataStore{db: db, path: path, lock: lock}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		vec_id      INTEGER NOT NULL DEFAULT -1,
		doc_id      TEXT NOT NULL DEFAULT '',
		doc_path    TEXT NOT NULL DEFAULT '',
		filename    TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL DEFAULT -1,
		content_id  TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_vec_id ON chunks(vec_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_location ON chunks(doc_path, chunk_index);

	CREATE TABLE IF NOT EXISTS images (
		vec_id      INTEGER PRIMARY KEY,
		doc_path    TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL DEFAULT -1,
		caption     TEXT NOT NULL DEFAULT '',
		uri         TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveChunks upserts chunks in one transaction.
func (s *SQLiteMetadataStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, vec_id, doc_id, doc_path, filename, chunk_index, content_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vec_id = excluded.vec_id,
			doc_id = excluded.doc_id,
			doc_path = excluded.doc_path,
			filename = excluded.filename,
			chunk_index = excluded.chunk_index,
			content_id = excluded.content_id,
			content = excluded.content,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, c := range chunks {
		created := c.CreatedAt.Unix()
		if c.CreatedAt.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.VecID, c.DocID, c.DocPath, c.Filename,
			c.ChunkIndex, c.ContentID, c.Content, created, now); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

const chunkColumns = `id, vec_id, doc_id, doc_path, filename, chunk_index, content_id, content, created_at, updated_at`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var created, updated int64
	if err := row.Scan(&c.ID, &c.VecID, &c.DocID, &c.DocPath, &c.Filename,
		&c.ChunkIndex, &c.ContentID, &c.Content, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return &c, nil
}

// GetChunk returns the chunk with the given id, or ErrNotFound.
func (s *SQLiteMetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// GetChunks batch-fetches chunks by id. Missing ids are skipped.
func (s *SQLiteMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*Chunk, 0, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunkByVecID resolves a chunk by its dense vector id.
func (s *SQLiteMetadataStore) GetChunkByVecID(ctx context.Context, vecID int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE vec_id = ?`, vecID)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk by vec id %d: %w", vecID, err)
	}
	return c, nil
}

// GetChunkByLocation resolves a chunk by (document path, chunk index).
func (s *SQLiteMetadataStore) GetChunkByLocation(ctx context.Context, docPath string, chunkIndex int) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE doc_path = ? AND chunk_index = ?`, docPath, chunkIndex)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk at %s#%d: %w", docPath, chunkIndex, err)
	}
	return c, nil
}

// ScanChunks streams every chunk to fn.
func (s *SQLiteMetadataStore) ScanChunks(ctx context.Context, fn func(*Chunk) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks`)
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return fmt.Errorf("scan chunk row: %w", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SaveImages upserts image assets in one transaction.
func (s *SQLiteMetadataStore) SaveImages(ctx context.Context, images []*ImageAsset) error {
	if len(images) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO images (vec_id, doc_path, chunk_index, caption, uri)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(vec_id) DO UPDATE SET
			doc_path = excluded.doc_path,
			chunk_index = excluded.chunk_index,
			caption = excluded.caption,
			uri = excluded.uri`)
	if err != nil {
		return fmt.Errorf("prepare image upsert: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		if _, err := stmt.ExecContext(ctx, img.VecID, img.DocPath, img.ChunkIndex, img.Caption, img.URI); err != nil {
			return fmt.Errorf("upsert image %d: %w", img.VecID, err)
		}
	}

	return tx.Commit()
}

// GetImageByVecID resolves an image by its cross-modal vector id.
func (s *SQLiteMetadataStore) GetImageByVecID(ctx context.Context, vecID int64) (*ImageAsset, error) {
	var img ImageAsset
	err := s.db.QueryRowContext(ctx,
		`SELECT vec_id, doc_path, chunk_index, caption, uri FROM images WHERE vec_id = ?`, vecID).
		Scan(&img.VecID, &img.DocPath, &img.ChunkIndex, &img.Caption, &img.URI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %d: %w", vecID, err)
	}
	return &img, nil
}

// HasDocPath reports whether any chunk references the document path.
func (s *SQLiteMetadataStore) HasDocPath(ctx context.Context, docPath string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE doc_path = ? LIMIT 1`, docPath).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check doc path %s: %w", docPath, err)
	}
	return true, nil
}

// GetState returns the value for a state key, or "" if unset.
func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state key-value pair.
func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database and releases the advisory lock.
func (s *SQLiteMetadataStore) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
