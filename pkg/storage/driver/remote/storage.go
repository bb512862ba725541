package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/holgern/s3gw/pkg/mdcache"
	"github.com/holgern/s3gw/pkg/storage"
)

// rootFolder is the implicit top-level folder id within a workspace; every
// bucket is a folder created directly beneath it.
const rootFolder = ""

// maxCreateFolderAttempts bounds the create-or-lookup retry loop used when
// two callers race to create the same bucket folder.
const maxCreateFolderAttempts = 3

// Storage bridges storage.Storage to a Box-like cloud drive workspace,
// translating bucket/key operations into folder/file operations and using
// an mdcache.Store to remember the MD5 each object needs as its ETag, since
// the provider's native hash is not MD5.
type Storage struct {
	cloud     cloudAPI
	workspace string
	cache     *mdcache.Store
	logger    *slog.Logger

	mu            sync.RWMutex
	bucketFolders map[string]string // sanitized bucket name -> folder id

	warnedMu sync.Mutex
	warned   map[string]bool // remote id -> already logged a cache-miss fallback warning
}

func newStorage(cloud cloudAPI, workspace string, cache *mdcache.Store, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		cloud:         cloud,
		workspace:     workspace,
		cache:         cache,
		logger:        logger.With("driver", "remote", "workspace", workspace),
		bucketFolders: make(map[string]string),
		warned:        make(map[string]bool),
	}
}

func sanitizeBucketName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	var parts []string
	for _, p := range strings.Split(name, "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, "-")
}

// folderID resolves the folder id backing an existing bucket, consulting
// and populating the in-memory cache.
func (s *Storage) folderID(ctx context.Context, bucket string) (string, error) {
	s.mu.RLock()
	id, ok := s.bucketFolders[bucket]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := s.cloud.FindFolder(ctx, s.workspace, rootFolder, bucket)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.bucketFolders[bucket] = id
	s.mu.Unlock()
	return id, nil
}

func (s *Storage) CreateBucket(ctx context.Context, name string, opts storage.Options) (*storage.BucketInfo, error) {
	name = sanitizeBucketName(name)

	var lastErr error
	for attempt := 0; attempt < maxCreateFolderAttempts; attempt++ {
		id, err := s.cloud.CreateFolder(ctx, s.workspace, rootFolder, name)
		if err == nil {
			s.mu.Lock()
			s.bucketFolders[name] = id
			s.mu.Unlock()
			return &storage.BucketInfo{Name: name, CreatedAt: time.Now()}, nil
		}
		if !errors.Is(err, ErrCloudConflict) {
			return nil, fmt.Errorf("remote: create bucket %q: %w", name, err)
		}
		lastErr = err

		// Someone else may have just created it (or it already existed);
		// look it up and treat that as the authoritative outcome.
		if _, lookErr := s.cloud.FindFolder(ctx, s.workspace, rootFolder, name); lookErr == nil {
			return nil, storage.ErrExist
		}
	}
	return nil, fmt.Errorf("remote: create bucket %q: %w", name, lastErr)
}

func (s *Storage) DeleteBucket(ctx context.Context, name string, opts storage.Options) error {
	name = sanitizeBucketName(name)
	id, err := s.folderID(ctx, name)
	if err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return storage.ErrNotExist
		}
		return err
	}

	if !opts.Bool("force") {
		files, err := s.cloud.ListFolder(ctx, s.workspace, id)
		if err != nil {
			return fmt.Errorf("remote: delete bucket %q: %w", name, err)
		}
		subs, err := s.cloud.ListSubfolders(ctx, s.workspace, id)
		if err != nil {
			return fmt.Errorf("remote: delete bucket %q: %w", name, err)
		}
		if len(files) > 0 || len(subs) > 0 {
			return fmt.Errorf("remote: bucket %q: %w", name, storage.ErrNotEmpty)
		}
	}

	if err := s.cloud.DeleteFolder(ctx, s.workspace, id); err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return storage.ErrNotExist
		}
		return fmt.Errorf("remote: delete bucket %q: %w", name, err)
	}

	s.mu.Lock()
	delete(s.bucketFolders, name)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Buckets(ctx context.Context, limit, offset int, opts storage.Options) (storage.BucketIter, error) {
	folders, err := s.cloud.ListSubfolders(ctx, s.workspace, rootFolder)
	if err != nil {
		return nil, fmt.Errorf("remote: list buckets: %w", err)
	}

	infos := make([]*storage.BucketInfo, 0, len(folders))
	for _, f := range folders {
		infos = append(infos, &storage.BucketInfo{Name: f.name})
	}
	sortBucketInfos(infos)

	if offset > 0 {
		if offset >= len(infos) {
			infos = nil
		} else {
			infos = infos[offset:]
		}
	}
	if limit > 0 && limit < len(infos) {
		infos = infos[:limit]
	}
	return &bucketIter{infos: infos}, nil
}

func (s *Storage) Bucket(name string) storage.Bucket {
	return &Bucket{s: s, name: sanitizeBucketName(name)}
}

func (s *Storage) Features() storage.Features {
	return storage.Features{
		"move":               true,
		"directories":        true,
		"object_move_server": true,
		"dir_move_server":    false,
	}
}

func (s *Storage) Close() error {
	return s.cache.Close()
}

// Cache returns the digest cache backing this workspace, for the "cache"
// admin CLI commands (stats, cleanup, vacuum, migrate).
func (s *Storage) Cache() *mdcache.Store {
	return s.cache
}

func (s *Storage) warnFallbackOnce(remoteID, bucket, key string) {
	s.warnedMu.Lock()
	defer s.warnedMu.Unlock()
	if s.warned[remoteID] {
		return
	}
	s.warned[remoteID] = true
	s.logger.Warn("digest cache miss, falling back to native hash as ETag",
		"bucket", bucket, "key", key, "remote_id", remoteID)
}

type bucketIter struct {
	infos []*storage.BucketInfo
	pos   int
}

func (it *bucketIter) Next() (*storage.BucketInfo, error) {
	if it.pos >= len(it.infos) {
		return nil, nil
	}
	info := it.infos[it.pos]
	it.pos++
	return info, nil
}

func (it *bucketIter) Close() error { return nil }

func sortBucketInfos(infos []*storage.BucketInfo) {
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && infos[j-1].Name > infos[j].Name; j-- {
			infos[j-1], infos[j] = infos[j], infos[j-1]
		}
	}
}
