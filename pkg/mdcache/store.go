// Package mdcache persists the translation between a remote storage
// provider's native content hash (keyed by an opaque remote object id) and
// the MD5 digest S3 clients expect to see as an object's ETag. The remote
// driver is the sole consumer; this package knows nothing about buckets or
// objects beyond the identifiers it's handed.
package mdcache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed MD5 digest cache.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens a digest cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mdcache: create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mdcache: open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mdcache: ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Ensure(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ensure creates the schema if it does not already exist.
func (s *Store) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Digest is a cached MD5/native-hash pair for one remote object.
type Digest struct {
	RemoteID   string
	Bucket     string
	Key        string
	MD5        string
	NativeHash string
	Size       int64
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Put records (or replaces) the digest for remoteID.
func (s *Store) Put(ctx context.Context, d Digest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digests (remote_id, bucket, key, md5, native_hash, size, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(remote_id) DO UPDATE SET
			bucket=excluded.bucket, key=excluded.key, md5=excluded.md5,
			native_hash=excluded.native_hash, size=excluded.size, accessed_at=CURRENT_TIMESTAMP
	`, d.RemoteID, d.Bucket, d.Key, d.MD5, d.NativeHash, d.Size)
	if err != nil {
		return fmt.Errorf("mdcache: put %q: %w", d.RemoteID, err)
	}
	return nil
}

// Get looks up the digest for remoteID, touching its accessed_at timestamp.
func (s *Store) Get(ctx context.Context, remoteID string) (*Digest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT remote_id, bucket, key, md5, native_hash, size, created_at, accessed_at
		FROM digests WHERE remote_id = ?`, remoteID)

	var d Digest
	if err := row.Scan(&d.RemoteID, &d.Bucket, &d.Key, &d.MD5, &d.NativeHash, &d.Size, &d.CreatedAt, &d.AccessedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("mdcache: get %q: %w", remoteID, err)
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE digests SET accessed_at = CURRENT_TIMESTAMP WHERE remote_id = ?`, remoteID)
	return &d, nil
}

// Delete removes the cached digest for remoteID, if any.
func (s *Store) Delete(ctx context.Context, remoteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE remote_id = ?`, remoteID)
	if err != nil {
		return fmt.Errorf("mdcache: delete %q: %w", remoteID, err)
	}
	return nil
}

// Rename updates the bucket/key recorded for remoteID without touching its
// digest, used when the remote driver moves/renames an object in place.
func (s *Store) Rename(ctx context.Context, remoteID, bucket, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE digests SET bucket = ?, key = ? WHERE remote_id = ?`, bucket, key, remoteID)
	if err != nil {
		return fmt.Errorf("mdcache: rename %q: %w", remoteID, err)
	}
	return nil
}
