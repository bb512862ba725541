package mdcache

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// RemoteObject describes one object found while walking a remote backend
// for migration, as reported by that backend's own listing.
type RemoteObject struct {
	RemoteID   string
	Bucket     string
	Key        string
	Size       int64
	NativeHash string
}

// RemoteLister is the narrow surface Migrate needs from a remote storage
// backend: enumerate every object it holds, and stream one open for
// hashing. A storage driver implements this directly against its own
// listing and download calls.
type RemoteLister interface {
	ListAll(ctx context.Context, bucket string) ([]RemoteObject, error)
	Open(ctx context.Context, remoteID string) (io.ReadCloser, error)
}

// MigrateStats summarizes a migrate run.
type MigrateStats struct {
	Scanned int
	Missing int
	Written int
	Skipped int
}

// Migrate walks src (optionally scoped to one bucket, or every bucket if
// bucket is empty) and writes a cache entry for every object that doesn't
// already have one, by streaming the object and computing its MD5. With
// dryRun, it only counts what would be written. concurrency bounds how
// many objects are hashed at once; values <= 0 default to 4.
func (s *Store) Migrate(ctx context.Context, src RemoteLister, bucket string, dryRun bool, concurrency int) (MigrateStats, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	objs, err := src.ListAll(ctx, bucket)
	if err != nil {
		return MigrateStats{}, fmt.Errorf("mdcache: migrate: list remote objects: %w", err)
	}

	var stats MigrateStats
	stats.Scanned = len(objs)

	var missing []RemoteObject
	for _, obj := range objs {
		existing, err := s.Get(ctx, obj.RemoteID)
		if err != nil {
			return stats, fmt.Errorf("mdcache: migrate: check %q: %w", obj.RemoteID, err)
		}
		if existing != nil {
			stats.Skipped++
			continue
		}
		missing = append(missing, obj)
	}
	stats.Missing = len(missing)

	if dryRun {
		return stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, obj := range missing {
		obj := obj
		g.Go(func() error {
			rc, err := src.Open(gctx, obj.RemoteID)
			if err != nil {
				return fmt.Errorf("mdcache: migrate: open %q: %w", obj.RemoteID, err)
			}
			defer rc.Close()

			h := md5.New()
			if _, err := io.Copy(h, rc); err != nil {
				return fmt.Errorf("mdcache: migrate: hash %q: %w", obj.RemoteID, err)
			}

			digest := Digest{
				RemoteID:   obj.RemoteID,
				Bucket:     obj.Bucket,
				Key:        obj.Key,
				MD5:        fmt.Sprintf("%x", h.Sum(nil)),
				NativeHash: obj.NativeHash,
				Size:       obj.Size,
			}
			if err := s.Put(gctx, digest); err != nil {
				return fmt.Errorf("mdcache: migrate: put %q: %w", obj.RemoteID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Written = len(missing)
	return stats, nil
}
