package remote

import (
	"context"
	"io"

	"github.com/holgern/s3gw/pkg/mdcache"
)

// ListAll and Open let Storage serve as an mdcache.RemoteLister, so "cache
// migrate" can walk this workspace's objects directly.
var _ mdcache.RemoteLister = (*Storage)(nil)

// ListAll enumerates every object in bucket (or every bucket this workspace
// holds, if bucket is empty), for use by mdcache.Store.Migrate.
func (s *Storage) ListAll(ctx context.Context, bucket string) ([]mdcache.RemoteObject, error) {
	var buckets []string
	if bucket != "" {
		buckets = []string{sanitizeBucketName(bucket)}
	} else {
		folders, err := s.cloud.ListSubfolders(ctx, s.workspace, rootFolder)
		if err != nil {
			return nil, err
		}
		for _, f := range folders {
			buckets = append(buckets, f.name)
		}
	}

	var out []mdcache.RemoteObject
	for _, name := range buckets {
		b := &Bucket{s: s, name: name}
		folderID, err := s.folderID(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := walkAllFiles(ctx, s, folderID, "", func(key string, f cloudFile) {
			out = append(out, mdcache.RemoteObject{
				RemoteID:   f.id,
				Bucket:     b.name,
				Key:        key,
				Size:       f.size,
				NativeHash: f.nativeHash,
			})
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Open streams remoteID's bytes for migrate to hash.
func (s *Storage) Open(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	return s.cloud.DownloadFile(ctx, s.workspace, remoteID)
}

// walkAllFiles recursively visits every file under folderID, calling fn
// with each file's full key relative to the bucket root.
func walkAllFiles(ctx context.Context, s *Storage, folderID, pathPrefix string, fn func(key string, f cloudFile)) error {
	files, err := s.cloud.ListFolder(ctx, s.workspace, folderID)
	if err != nil {
		return err
	}
	for _, f := range files {
		fn(pathPrefix+f.name, f)
	}

	subs, err := s.cloud.ListSubfolders(ctx, s.workspace, folderID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := walkAllFiles(ctx, s, sub.id, pathPrefix+sub.name+"/", fn); err != nil {
			return err
		}
	}
	return nil
}
