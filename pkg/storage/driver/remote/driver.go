// Package remote implements a storage.Driver against a Box-like cloud drive
// API: buckets map to top-level folders in a workspace, objects map to
// files, and the native content hash the provider returns on upload is not
// MD5 — so every object's MD5/ETag is tracked on the side in an mdcache
// store, keyed by the provider's opaque remote object id.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/holgern/s3gw/pkg/mdcache"
	"github.com/holgern/s3gw/pkg/storage"
)

func init() {
	storage.Register("remote", &driver{})
}

type driver struct{}

// Open parses a DSN of the form "remote:<workspace>?cache=<path>" (or
// "remote://<workspace>?cache=<path>") and returns a Storage backed by the
// in-process cloud drive simulator, sharing one simulator instance across
// all workspaces opened by this process.
func (driver) Open(ctx context.Context, dsn string) (storage.Storage, error) {
	workspace, cachePath, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if workspace == "" {
		return nil, fmt.Errorf("remote: DSN %q: missing workspace id", dsn)
	}
	if cachePath == "" {
		return nil, fmt.Errorf("remote: DSN %q: missing cache= path", dsn)
	}

	cache, err := mdcache.Open(cachePath)
	if err != nil {
		return nil, err
	}

	return newStorage(sharedCloud(), workspace, cache, slog.Default()), nil
}

// parseDSN extracts the workspace id and cache path from a remote DSN.
func parseDSN(dsn string) (workspace, cachePath string, err error) {
	rest := dsn
	switch {
	case strings.HasPrefix(rest, "remote://"):
		rest = rest[len("remote://"):]
	case strings.HasPrefix(rest, "remote:"):
		rest = rest[len("remote:"):]
	default:
		return "", "", fmt.Errorf("remote: DSN %q: missing remote: scheme", dsn)
	}

	path, query, _ := strings.Cut(rest, "?")
	workspace = strings.Trim(path, "/")

	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return "", "", fmt.Errorf("remote: DSN %q: parse query: %w", dsn, err)
		}
		cachePath = values.Get("cache")
	}
	return workspace, cachePath, nil
}

var (
	sharedCloudOnce sync.Once
	sharedCloudInst *fakeCloud
)

// sharedCloud returns the single in-process cloud drive simulator backing
// every remote.Storage in this process, so that multiple opened DSNs
// against the same workspace observe the same data.
func sharedCloud() *fakeCloud {
	sharedCloudOnce.Do(func() {
		sharedCloudInst = newFakeCloud()
	})
	return sharedCloudInst
}
