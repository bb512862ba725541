package remote_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/holgern/s3gw/pkg/storage"
	_ "github.com/holgern/s3gw/pkg/storage/driver/remote"
)

func openTestStorage(t *testing.T, workspace string) storage.Storage {
	t.Helper()
	cache := filepath.Join(t.TempDir(), "mdcache.db")
	dsn := "remote:" + workspace + "?cache=" + cache
	st, err := storage.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open %q: %v", dsn, err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRemoteCreateAndDeleteBucket(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())

	if _, err := st.CreateBucket(ctx, "photos", nil); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	if _, err := st.CreateBucket(ctx, "photos", nil); !errors.Is(err, storage.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}

	if err := st.DeleteBucket(ctx, "photos", nil); err != nil {
		t.Fatalf("delete bucket: %v", err)
	}
	if err := st.DeleteBucket(ctx, "photos", nil); !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestRemoteDeleteBucketNotEmpty(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())
	if _, err := st.CreateBucket(ctx, "docs", nil); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	b := st.Bucket("docs")
	if _, err := b.Write(ctx, "a.txt", bytes.NewReader([]byte("hi")), 2, "text/plain", nil); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := st.DeleteBucket(ctx, "docs", nil); err == nil {
		t.Fatal("expected delete to fail on non-empty bucket")
	}
	if err := st.DeleteBucket(ctx, "docs", storage.Options{"force": true}); err != nil {
		t.Fatalf("force delete: %v", err)
	}
}

func TestRemoteWriteStatOpenList(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())
	if _, err := st.CreateBucket(ctx, "bucket", nil); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	b := st.Bucket("bucket")

	content := []byte("hello remote world")
	info, err := b.Write(ctx, "dir/nested/file.txt", bytes.NewReader(content), int64(len(content)), "text/plain", nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", info.Size, len(content))
	}
	if info.ETag == "" {
		t.Fatal("expected non-empty ETag")
	}

	stat, err := b.Stat(ctx, "dir/nested/file.txt", nil)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.ETag != info.ETag {
		t.Fatalf("stat ETag %q != write ETag %q", stat.ETag, info.ETag)
	}

	rc, readInfo, err := b.Open(ctx, "dir/nested/file.txt", 0, 0, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("read content mismatch: got %q want %q", got, content)
	}
	if readInfo.ETag != info.ETag {
		t.Fatalf("open ETag %q != write ETag %q", readInfo.ETag, info.ETag)
	}

	iter, err := b.List(ctx, "dir/", 0, 0, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer iter.Close()
	var keys []string
	for {
		obj, err := iter.Next()
		if err != nil {
			t.Fatalf("list next: %v", err)
		}
		if obj == nil {
			break
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 entries (nested/ dir and file), got %v", keys)
	}
}

func TestRemoteCopyAndMove(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())
	if _, err := st.CreateBucket(ctx, "src", nil); err != nil {
		t.Fatalf("create src: %v", err)
	}
	if _, err := st.CreateBucket(ctx, "dst", nil); err != nil {
		t.Fatalf("create dst: %v", err)
	}

	content := []byte("copy me")
	srcBucket := st.Bucket("src")
	if _, err := srcBucket.Write(ctx, "a.txt", bytes.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("write: %v", err)
	}

	dstBucket := st.Bucket("dst")
	copied, err := dstBucket.Copy(ctx, "b.txt", "src", "a.txt", nil)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if copied.ETag == "" {
		t.Fatal("expected non-empty ETag on copy")
	}

	if _, err := srcBucket.Stat(ctx, "a.txt", nil); err != nil {
		t.Fatalf("expected source to still exist after copy: %v", err)
	}

	moved, err := dstBucket.Move(ctx, "c.txt", "src", "a.txt", nil)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ETag != copied.ETag {
		t.Fatalf("moved ETag %q != copied ETag %q", moved.ETag, copied.ETag)
	}
	if _, err := srcBucket.Stat(ctx, "a.txt", nil); !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("expected source removed after move, got %v", err)
	}
}

func TestRemoteDeleteObject(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())
	if _, err := st.CreateBucket(ctx, "bucket", nil); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	b := st.Bucket("bucket")
	if _, err := b.Write(ctx, "k", bytes.NewReader([]byte("v")), 1, "text/plain", nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := b.Delete(ctx, "k", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := b.Stat(ctx, "k", nil); !errors.Is(err, storage.ErrNotExist) {
		t.Fatalf("expected ErrNotExist after delete, got %v", err)
	}
	// Deleting again is idempotent from the bucket handle's perspective
	// when the caller already knows it's gone; mirrors local driver.
	if err := b.Delete(ctx, "k", storage.Options{"recursive": true}); err != nil {
		t.Fatalf("delete missing key with recursive: %v", err)
	}
}

func TestRemotePathTraversalRejected(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, t.Name())
	if _, err := st.CreateBucket(ctx, "bucket", nil); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	b := st.Bucket("bucket")
	if _, err := b.Write(ctx, "../escape.txt", bytes.NewReader([]byte("x")), 1, "text/plain", nil); !errors.Is(err, storage.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}
