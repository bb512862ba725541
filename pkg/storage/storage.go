// Package storage defines the pluggable object storage abstraction used by
// the S3 gateway. A Storage is opened from a DSN against a registered
// driver; it exposes named Buckets, and each Bucket exposes byte-oriented
// object operations (Write, Open, Stat, Delete, Copy, Move, List).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Sentinel errors. Drivers must return errors compatible with errors.Is
// against these values.
var (
	ErrNotExist    = errors.New("storage: does not exist")
	ErrExist       = errors.New("storage: already exists")
	ErrPermission  = errors.New("storage: permission denied")
	ErrUnsupported = errors.New("storage: operation not supported")
	ErrInvalid     = errors.New("storage: invalid argument")
	ErrNotEmpty    = errors.New("storage: not empty")
)

// Options carries driver-specific, loosely-typed operation parameters
// (e.g. {"force": true}, {"recursive": true}, {"metadata": map[string]string{...}}).
// A nil Options is valid and means "defaults".
type Options map[string]any

// Bool reads a boolean option, tolerating bool, string ("true"/"1") and
// int/float representations. Missing or unparseable keys return false.
func (o Options) Bool(key string) bool {
	if o == nil {
		return false
	}
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true
		}
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// StringMap reads a map[string]string option.
func (o Options) StringMap(key string) map[string]string {
	if o == nil {
		return nil
	}
	if v, ok := o[key].(map[string]string); ok {
		return v
	}
	return nil
}

// String reads a string option.
func (o Options) String(key string) string {
	if o == nil {
		return ""
	}
	if v, ok := o[key].(string); ok {
		return v
	}
	return ""
}

// Features describes the capabilities a Storage/Bucket implementation
// advertises, keyed by capability name (e.g. "move", "directories",
// "object_move_server", "dir_move_server", "signed_url").
type Features map[string]bool

// BucketInfo describes a bucket.
type BucketInfo struct {
	Name      string
	CreatedAt time.Time
}

// ObjectInfo describes an object or a directory marker within a bucket.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	ETag        string
	Updated     time.Time
	IsDir       bool
	// Hash holds additional content digests keyed by algorithm name
	// ("etag", "md5", "blake2b", ...); drivers populate what they have
	// cheaply available.
	Hash map[string]string
}

// BucketIter iterates over BucketInfo values. Next returns (nil, nil) once
// exhausted. Close is idempotent.
type BucketIter interface {
	Next() (*BucketInfo, error)
	Close() error
}

// ObjectIter iterates over ObjectInfo values. Next returns (nil, nil) once
// exhausted. Close is idempotent.
type ObjectIter interface {
	Next() (*ObjectInfo, error)
	Close() error
}

// Bucket is a named collection of objects within a Storage.
type Bucket interface {
	// Name returns the sanitized bucket name this handle refers to.
	Name() string

	// Info returns metadata about the bucket itself. Returns ErrNotExist
	// if the bucket has not been created.
	Info(ctx context.Context) (*BucketInfo, error)

	// Write stores data under key, replacing any existing object. size is
	// the exact byte length of data if known, or -1 if unknown.
	Write(ctx context.Context, key string, data io.Reader, size int64, contentType string, opts Options) (*ObjectInfo, error)

	// Open returns a reader over the object's bytes starting at offset,
	// limited to limit bytes (0 means "to end"). The caller must Close
	// the returned reader.
	Open(ctx context.Context, key string, offset, limit int64, opts Options) (io.ReadCloser, *ObjectInfo, error)

	// Stat returns metadata for key without reading its contents.
	Stat(ctx context.Context, key string, opts Options) (*ObjectInfo, error)

	// Delete removes key. With Options{"recursive": true} and a key that
	// names a directory, removes the directory and everything under it.
	Delete(ctx context.Context, key string, opts Options) error

	// Copy duplicates srcKey from srcBucket (within the same Storage) to
	// dstKey in this bucket, leaving the source intact.
	Copy(ctx context.Context, dstKey, srcBucket, srcKey string, opts Options) (*ObjectInfo, error)

	// Move relocates srcKey from srcBucket to dstKey in this bucket,
	// removing the source.
	Move(ctx context.Context, dstKey, srcBucket, srcKey string, opts Options) (*ObjectInfo, error)

	// List enumerates objects whose key starts with prefix. limit bounds
	// the number of results (0 means unbounded); offset skips that many
	// matching entries first. Options "recursive" (default true),
	// "dirs_only", "files_only" narrow the listing.
	List(ctx context.Context, prefix string, limit, offset int, opts Options) (ObjectIter, error)

	// SignedURL returns a time-limited URL for method ("GET"/"PUT") against
	// key. Returns ErrUnsupported if the backend can't generate one.
	SignedURL(ctx context.Context, key, method string, expires time.Duration, opts Options) (string, error)

	// Features reports this bucket's capabilities.
	Features() Features
}

// Storage is an open connection to a storage backend, exposing bucket
// lifecycle operations and bucket handles.
type Storage interface {
	// CreateBucket creates a new bucket. Returns ErrExist if it already
	// exists, ErrInvalid for an empty/whitespace name.
	CreateBucket(ctx context.Context, name string, opts Options) (*BucketInfo, error)

	// DeleteBucket removes a bucket. Returns ErrNotExist if it doesn't
	// exist. Fails unless the bucket is empty, unless Options{"force": true}.
	DeleteBucket(ctx context.Context, name string, opts Options) error

	// Buckets lists buckets known to this storage, honoring limit/offset
	// (0/0 means unbounded/no skip).
	Buckets(ctx context.Context, limit, offset int, opts Options) (BucketIter, error)

	// Bucket returns a handle for name, sanitized. Never returns nil.
	// This does not verify the bucket exists; use Info to check.
	Bucket(name string) Bucket

	// Features reports this storage's capabilities.
	Features() Features

	// Close releases any resources held by this Storage. Idempotent.
	Close() error
}

// Driver opens a Storage from a DSN whose scheme the driver was registered
// under.
type Driver interface {
	Open(ctx context.Context, dsn string) (Storage, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name (the DSN scheme). It panics
// if name is empty, driver is nil, or a driver is already registered under
// name. Register is meant to be called from driver package init functions.
func Register(name string, driver Driver) {
	if name == "" {
		panic("storage: Register called with empty name")
	}
	if driver == nil {
		panic("storage: Register called with nil driver")
	}

	driversMu.Lock()
	defer driversMu.Unlock()

	if _, dup := drivers[name]; dup {
		panic("storage: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open parses dsn, looks up the driver for its scheme, and opens it.
//
// Recognized forms:
//   - "scheme://path" or "scheme:path" — dispatches to the driver
//     registered under "scheme".
//   - a bare absolute path (no "://" and no leading "scheme:") — dispatches
//     to the "local" driver if registered.
func Open(ctx context.Context, dsn string) (Storage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("storage: empty DSN")
	}

	scheme, err := dsnScheme(dsn)
	if err != nil {
		return nil, err
	}

	driversMu.RLock()
	driver, ok := drivers[scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q", scheme)
	}

	return driver.Open(ctx, dsn)
}

// dsnScheme extracts the driver name from a DSN. Bare absolute paths (no
// scheme) are treated as the "local" scheme.
func dsnScheme(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "/") || strings.HasPrefix(dsn, "./") || strings.HasPrefix(dsn, "../") {
		return "local", nil
	}

	if strings.HasPrefix(dsn, "://") {
		return "", fmt.Errorf("storage: empty scheme in DSN %q", dsn)
	}

	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("storage: parse DSN %q: %w", dsn, err)
		}
		if u.Scheme == "" {
			return "", fmt.Errorf("storage: missing scheme in DSN %q", dsn)
		}
		return u.Scheme, nil
	}

	idx := strings.Index(dsn, ":")
	if idx < 0 {
		return "", fmt.Errorf("storage: missing scheme in DSN %q", dsn)
	}
	return dsn[:idx], nil
}
