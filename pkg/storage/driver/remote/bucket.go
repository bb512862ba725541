package remote

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/holgern/s3gw/pkg/mdcache"
	"github.com/holgern/s3gw/pkg/storage"
)

// cacheDigest builds the mdcache row recorded for a remote object.
func cacheDigest(remoteID, bucket, key, md5sum, nativeHash string, size int64) mdcache.Digest {
	return mdcache.Digest{
		RemoteID:   remoteID,
		Bucket:     bucket,
		Key:        key,
		MD5:        md5sum,
		NativeHash: nativeHash,
		Size:       size,
	}
}

// Bucket is a storage.Bucket backed by one folder in a remote.Storage's
// workspace.
type Bucket struct {
	s    *Storage
	name string
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Info(ctx context.Context) (*storage.BucketInfo, error) {
	if _, err := b.s.folderID(ctx, b.name); err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}
	return &storage.BucketInfo{Name: b.name}, nil
}

// resolveDir walks dirs beneath the bucket's root folder, creating
// intermediate folders along the way when create is true (retrying with a
// lookup on a name conflict from a racing writer), or failing with
// ErrCloudNotFound when create is false and a segment doesn't exist.
func (b *Bucket) resolveDir(ctx context.Context, dirs []string, create bool) (string, error) {
	folderID, err := b.s.folderID(ctx, b.name)
	if err != nil {
		return "", err
	}

	for _, seg := range dirs {
		id, err := b.s.cloud.FindFolder(ctx, b.s.workspace, folderID, seg)
		switch {
		case err == nil:
			folderID = id
			continue
		case !errors.Is(err, ErrCloudNotFound):
			return "", err
		case !create:
			return "", ErrCloudNotFound
		}

		var lastErr error
		created := false
		for attempt := 0; attempt < maxCreateFolderAttempts; attempt++ {
			newID, cErr := b.s.cloud.CreateFolder(ctx, b.s.workspace, folderID, seg)
			if cErr == nil {
				folderID = newID
				created = true
				break
			}
			if !errors.Is(cErr, ErrCloudConflict) {
				return "", cErr
			}
			lastErr = cErr
			if id, lookErr := b.s.cloud.FindFolder(ctx, b.s.workspace, folderID, seg); lookErr == nil {
				folderID = id
				created = true
				break
			}
		}
		if !created {
			return "", fmt.Errorf("remote: create folder %q: %w", seg, lastErr)
		}
	}
	return folderID, nil
}

func (b *Bucket) findFile(ctx context.Context, key string) (cloudFile, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return cloudFile{}, storage.ErrPermission
	}
	dirs, name := splitKey(clean)

	folderID, err := b.resolveDir(ctx, dirs, false)
	if err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return cloudFile{}, storage.ErrNotExist
		}
		return cloudFile{}, err
	}

	files, err := b.s.cloud.ListFolder(ctx, b.s.workspace, folderID)
	if err != nil {
		return cloudFile{}, err
	}
	for _, f := range files {
		if f.name == name {
			return f, nil
		}
	}
	return cloudFile{}, storage.ErrNotExist
}

// etagFor resolves the MD5 ETag for a cloud file, preferring the mdcache
// entry and falling back to the native hash (with a one-time warning) when
// the cache has no entry or its recorded size no longer matches the file.
func (b *Bucket) etagFor(ctx context.Context, f cloudFile) string {
	d, err := b.s.cache.Get(ctx, f.id)
	if err == nil && d != nil && d.Size == f.size {
		return d.MD5
	}
	b.s.warnFallbackOnce(f.id, b.name, f.name)
	return f.nativeHash
}

func (b *Bucket) toObjectInfo(ctx context.Context, key string, f cloudFile) *storage.ObjectInfo {
	etag := b.etagFor(ctx, f)
	return &storage.ObjectInfo{
		Bucket:      b.name,
		Key:         key,
		Size:        f.size,
		ContentType: f.contentType,
		ETag:        etag,
		Updated:     f.modTime,
		Hash:        map[string]string{"md5": etag, "blake2b": f.nativeHash},
	}
}

func (b *Bucket) Write(ctx context.Context, key string, data io.Reader, size int64, contentType string, opts storage.Options) (*storage.ObjectInfo, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return nil, storage.ErrPermission
	}
	dirs, name := splitKey(clean)

	folderID, err := b.resolveDir(ctx, dirs, true)
	if err != nil {
		return nil, err
	}

	md5h := md5.New()
	fileID, fsize, nativeHash, err := b.s.cloud.UploadFile(ctx, b.s.workspace, folderID, name, contentType, opts.StringMap("metadata"), io.TeeReader(data, md5h))
	if err != nil {
		return nil, fmt.Errorf("remote: write %q: %w", key, err)
	}
	md5sum := fmt.Sprintf("%x", md5h.Sum(nil))

	if err := b.s.cache.Put(ctx, cacheDigest(fileID, b.name, clean, md5sum, nativeHash, fsize)); err != nil {
		b.s.logger.Warn("digest cache write failed, object stored but ETag will fall back to native hash",
			"bucket", b.name, "key", clean, "error", err)
	}

	return &storage.ObjectInfo{
		Bucket:      b.name,
		Key:         clean,
		Size:        fsize,
		ContentType: contentType,
		ETag:        md5sum,
		Updated:     time.Now(),
		Hash:        map[string]string{"md5": md5sum, "blake2b": nativeHash},
	}, nil
}

func (b *Bucket) Open(ctx context.Context, key string, offset, limit int64, opts storage.Options) (io.ReadCloser, *storage.ObjectInfo, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return nil, nil, storage.ErrPermission
	}

	f, err := b.findFile(ctx, clean)
	if err != nil {
		return nil, nil, err
	}

	rc, err := b.s.cloud.DownloadFile(ctx, b.s.workspace, f.id)
	if err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return nil, nil, storage.ErrNotExist
		}
		return nil, nil, err
	}

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, offset); err != nil {
			rc.Close()
			return nil, nil, fmt.Errorf("remote: open %q: seek: %w", key, err)
		}
	}

	var reader io.Reader = rc
	if limit > 0 {
		reader = io.LimitReader(rc, limit)
	}

	info := b.toObjectInfo(ctx, clean, f)
	return &readCloserWrapper{Reader: reader, closer: rc}, info, nil
}

type readCloserWrapper struct {
	io.Reader
	closer io.Closer
}

func (r *readCloserWrapper) Close() error { return r.closer.Close() }

func (b *Bucket) Stat(ctx context.Context, key string, opts storage.Options) (*storage.ObjectInfo, error) {
	clean, ok := cleanKey(key)
	if !ok {
		return nil, storage.ErrPermission
	}
	f, err := b.findFile(ctx, clean)
	if err != nil {
		return nil, err
	}
	return b.toObjectInfo(ctx, clean, f), nil
}

func (b *Bucket) Delete(ctx context.Context, key string, opts storage.Options) error {
	clean, ok := cleanKey(key)
	if !ok {
		return storage.ErrPermission
	}
	dirs, name := splitKey(clean)

	folderID, err := b.resolveDir(ctx, dirs, false)
	if err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			if opts.Bool("recursive") {
				return nil
			}
			return storage.ErrNotExist
		}
		return err
	}

	// A key naming a directory: delete recursively if asked.
	if subID, err := b.s.cloud.FindFolder(ctx, b.s.workspace, folderID, name); err == nil {
		if !opts.Bool("recursive") {
			return fmt.Errorf("remote: delete %q: %w", key, storage.ErrInvalid)
		}
		if err := b.s.cloud.DeleteFolder(ctx, b.s.workspace, subID); err != nil {
			return fmt.Errorf("remote: delete %q: %w", key, err)
		}
		return nil
	}

	f, err := b.findFile(ctx, clean)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := b.s.cloud.DeleteFile(ctx, b.s.workspace, f.id); err != nil {
		if !errors.Is(err, ErrCloudNotFound) {
			return fmt.Errorf("remote: delete %q: %w", key, err)
		}
	}
	if err := b.s.cache.Delete(ctx, f.id); err != nil {
		b.s.logger.Warn("digest cache delete failed", "bucket", b.name, "key", clean, "error", err)
	}
	return nil
}

func (b *Bucket) Copy(ctx context.Context, dstKey, srcBucket, srcKey string, opts storage.Options) (*storage.ObjectInfo, error) {
	return b.copyOrMove(ctx, dstKey, srcBucket, srcKey, opts, false)
}

func (b *Bucket) Move(ctx context.Context, dstKey, srcBucket, srcKey string, opts storage.Options) (*storage.ObjectInfo, error) {
	return b.copyOrMove(ctx, dstKey, srcBucket, srcKey, opts, true)
}

func (b *Bucket) copyOrMove(ctx context.Context, dstKey, srcBucket, srcKey string, opts storage.Options, move bool) (*storage.ObjectInfo, error) {
	dstClean, ok := cleanKey(dstKey)
	if !ok {
		return nil, storage.ErrPermission
	}
	src := &Bucket{s: b.s, name: sanitizeBucketName(srcBucket)}
	srcClean, ok := cleanKey(srcKey)
	if !ok {
		return nil, storage.ErrPermission
	}

	srcFile, err := src.findFile(ctx, srcClean)
	if err != nil {
		return nil, err
	}

	dstDirs, dstName := splitKey(dstClean)
	dstFolderID, err := b.resolveDir(ctx, dstDirs, true)
	if err != nil {
		return nil, err
	}

	newID, err := b.s.cloud.CopyFile(ctx, b.s.workspace, srcFile.id, dstFolderID, dstName)
	if err != nil {
		return nil, fmt.Errorf("remote: copy %q -> %q: %w", srcKey, dstKey, err)
	}

	// Content is unchanged by a server-side copy, so the MD5 carries over;
	// a real provider without server-side copy would stream-download and
	// re-upload here instead, recomputing both hashes at the destination.
	srcDigest, _ := b.s.cache.Get(ctx, srcFile.id)
	md5sum := srcFile.nativeHash
	if srcDigest != nil {
		md5sum = srcDigest.MD5
	}
	if err := b.s.cache.Put(ctx, cacheDigest(newID, b.name, dstClean, md5sum, srcFile.nativeHash, srcFile.size)); err != nil {
		b.s.logger.Warn("digest cache write failed after copy", "bucket", b.name, "key", dstClean, "error", err)
	}

	if move {
		if err := src.s.cloud.DeleteFile(ctx, src.s.workspace, srcFile.id); err != nil && !errors.Is(err, ErrCloudNotFound) {
			return nil, fmt.Errorf("remote: move %q: delete source: %w", srcKey, err)
		}
		_ = src.s.cache.Delete(ctx, srcFile.id)
	}

	return &storage.ObjectInfo{
		Bucket:      b.name,
		Key:         dstClean,
		Size:        srcFile.size,
		ContentType: srcFile.contentType,
		ETag:        md5sum,
		Updated:     time.Now(),
		Hash:        map[string]string{"md5": md5sum, "blake2b": srcFile.nativeHash},
	}, nil
}

func (b *Bucket) List(ctx context.Context, prefix string, limit, offset int, opts storage.Options) (storage.ObjectIter, error) {
	recursive := true
	if _, ok := opts["recursive"]; ok {
		recursive = opts.Bool("recursive")
	}
	dirsOnly := opts.Bool("dirs_only")
	filesOnly := opts.Bool("files_only")

	prefix = strings.ReplaceAll(prefix, "\\", "/")
	prefix = strings.TrimPrefix(prefix, "/")

	baseDirs := []string{}
	namePrefix := prefix
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		baseDirs = strings.Split(prefix[:idx], "/")
		namePrefix = prefix[idx+1:]
	}

	folderID, err := b.resolveDir(ctx, baseDirs, false)
	if err != nil {
		if errors.Is(err, ErrCloudNotFound) {
			return &objectIter{}, nil
		}
		return nil, err
	}

	var infos []*storage.ObjectInfo
	var walk func(ctx context.Context, folderID, pathPrefix, namePrefix string) error
	walk = func(ctx context.Context, folderID, pathPrefix, namePrefix string) error {
		if !dirsOnly {
			files, err := b.s.cloud.ListFolder(ctx, b.s.workspace, folderID)
			if err != nil {
				return err
			}
			for _, f := range files {
				if !strings.HasPrefix(f.name, namePrefix) {
					continue
				}
				key := pathPrefix + f.name
				infos = append(infos, b.toObjectInfo(ctx, key, f))
			}
		}

		subs, err := b.s.cloud.ListSubfolders(ctx, b.s.workspace, folderID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if !strings.HasPrefix(sub.name, namePrefix) {
				continue
			}
			if !filesOnly {
				infos = append(infos, &storage.ObjectInfo{
					Bucket: b.name,
					Key:    pathPrefix + sub.name + "/",
					IsDir:  true,
				})
			}
			if recursive {
				if err := walk(ctx, sub.id, pathPrefix+sub.name+"/", ""); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(ctx, folderID, pathPrefixOf(prefix), namePrefix); err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

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
	return &objectIter{infos: infos}, nil
}

// pathPrefixOf returns the directory portion of prefix, including its
// trailing slash, or "" if prefix names no directory.
func pathPrefixOf(prefix string) string {
	idx := strings.LastIndex(prefix, "/")
	if idx < 0 {
		return ""
	}
	return prefix[:idx+1]
}

func (b *Bucket) SignedURL(ctx context.Context, key, method string, expires time.Duration, opts storage.Options) (string, error) {
	return "", fmt.Errorf("remote: signed URLs: %w", storage.ErrUnsupported)
}

func (b *Bucket) Features() storage.Features {
	return b.s.Features()
}

type objectIter struct {
	infos []*storage.ObjectInfo
	pos   int
}

func (it *objectIter) Next() (*storage.ObjectInfo, error) {
	if it.pos >= len(it.infos) {
		return nil, nil
	}
	info := it.infos[it.pos]
	it.pos++
	return info, nil
}

func (it *objectIter) Close() error { return nil }
