package s3

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holgern/s3gw/pkg/storage"
)

// s3ResponseBufferSize is the buffer size used when streaming GET bodies
// that are too large for the response cache.
const s3ResponseBufferSize = 8 * 1024 * 1024

var s3BufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, s3ResponseBufferSize)
		return &buf
	},
}

func getS3Buffer() []byte {
	return *s3BufferPool.Get().(*[]byte)
}

func putS3Buffer(buf []byte) {
	if cap(buf) >= s3ResponseBufferSize {
		s3BufferPool.Put(&buf)
	}
}

// handleObject handles object level operations mounted at:
//
//	basePath/:bucket/*key
//
// It covers:
//
//	GET    basePath/:bucket/*key  -> GetObject
//	PUT    basePath/:bucket/*key  -> PutObject or CopyObject (x-amz-copy-source)
//	DELETE basePath/:bucket/*key  -> DeleteObject
//	HEAD   basePath/:bucket/*key  -> HeadObject
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	switch req.Op {
	case OpGetObject:
		return s.handleGetObject(w, r, req)
	case OpPutObject:
		return s.handlePutObject(w, r, req)
	case OpCopyObject:
		return s.handleCopyObject(w, r, req)
	case OpDeleteObject:
		return s.handleDeleteObject(w, r, req)
	case OpHeadObject:
		return s.handleHeadObject(w, r, req)
	default:
		return ErrMethodNotAllowed
	}
}

// handleGetObject implements:
//
//	GET basePath/:bucket/*key
//
// It supports single-range requests via the Range header:
//   - Range: bytes=start-end
//   - Range: bytes=start-
//   - Range: bytes=-suffix
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)
	rangeHeader := r.Header.Get("Range")

	if rangeHeader == "" && !s.cfg.DisableResponseCache {
		if cached, ok := responseCache.Get(req.Bucket, req.Key); ok {
			serveCachedResponse(w, r, cached)
			return nil
		}
	}

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	meta, err := b.Stat(ctx, req.Key, storage.Options{})
	if err != nil {
		return mapError(err)
	}

	size := meta.Size
	if size < 0 {
		size = 0
	}

	w.Header().Set("Accept-Ranges", "bytes")

	var (
		start      int64
		end        int64
		length     int64
		isPartial  bool
		openOffset int64
		openLimit  int64
	)

	if rangeHeader != "" && strings.HasPrefix(rangeHeader, "bytes=") && size > 0 {
		spec := strings.TrimPrefix(rangeHeader, "bytes=")
		parts := strings.SplitN(spec, "-", 2)

		if len(parts) == 2 {
			var parseErr error

			switch {
			case parts[0] == "" && parts[1] != "":
				suffixLen, errParse := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
				if errParse == nil && suffixLen > 0 {
					if suffixLen > size {
						suffixLen = size
					}
					start = size - suffixLen
					end = size - 1
					isPartial = true
				}

			case parts[0] != "" && parts[1] == "":
				start, parseErr = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
				if parseErr == nil && start >= 0 && start < size {
					end = size - 1
					isPartial = true
				}

			case parts[0] != "" && parts[1] != "":
				start, parseErr = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
				if parseErr == nil && start >= 0 && start < size {
					end, parseErr = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
					if parseErr == nil && end >= start {
						if end >= size {
							end = size - 1
						}
						isPartial = true
					}
				}
			}
		}
	}

	if isPartial {
		length = end - start + 1
		openOffset = start
		openLimit = length
	} else {
		openOffset = 0
		openLimit = 0
		length = size
	}

	rc, obj, err := b.Open(ctx, req.Key, openOffset, openLimit, storage.Options{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		_ = rc.Close()
	}()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "binary/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	if obj.ETag != "" {
		w.Header().Set("ETag", quoteRawETag(obj.ETag))
	}
	if !obj.Updated.IsZero() {
		w.Header().Set("Last-Modified", obj.Updated.UTC().Format(http.TimeFormat))
	}
	if length > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	}

	if isPartial {
		w.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10),
		)
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead {
		return nil
	}

	if !isPartial && length > 0 && length <= ResponseCacheMaxItemSize {
		data := make([]byte, length)
		n, _ := io.ReadFull(rc, data)
		data = data[:n]

		w.Write(data)

		if !s.cfg.DisableResponseCache {
			responseCache.Put(req.Bucket, req.Key, &ResponseCacheEntry{
				ContentType:  contentType,
				ETag:         obj.ETag,
				LastModified: obj.Updated,
				Data:         data,
				Size:         int64(n),
			})
		}
	} else {
		buf := getS3Buffer()
		defer putS3Buffer(buf)
		_, _ = io.CopyBuffer(w, rc, buf)
	}
	return nil
}

// serveCachedResponse writes a cached response directly.
func serveCachedResponse(w http.ResponseWriter, r *http.Request, cached *ResponseCacheEntry) {
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	if cached.ETag != "" {
		w.Header().Set("ETag", quoteRawETag(cached.ETag))
	}
	if !cached.LastModified.IsZero() {
		w.Header().Set("Last-Modified", cached.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(cached.Size, 10))
	w.Header().Set("Accept-Ranges", "bytes")

	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		w.Write(cached.Data)
	}
}

// handlePutObject implements:
//
//	PUT basePath/:bucket/*key
//
// when x-amz-copy-source is not set.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	body := r.Body
	size := r.ContentLength

	if req.chunked != nil {
		body = io.NopCloser(newChunkedBodyReader(r.Body, req.chunked))
		if dcl := r.Header.Get("X-Amz-Decoded-Content-Length"); dcl != "" {
			if n, err := strconv.ParseInt(dcl, 10, 64); err == nil {
				size = n
			}
		}
	}

	if s.cfg.MaxObjectSize > 0 && size > s.cfg.MaxObjectSize {
		return ErrEntityTooLarge
	}

	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "binary/octet-stream"
	}

	meta := map[string]string{}
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-amz-meta-") {
			continue
		}
		key := strings.TrimPrefix(lower, "x-amz-meta-")
		if key == "" || len(values) == 0 {
			continue
		}
		meta[key] = values[0]
	}

	opts := storage.Options{}
	if len(meta) > 0 {
		opts["metadata"] = meta
	}

	obj, err := b.Write(ctx, req.Key, body, size, contentType, opts)
	if err != nil {
		return mapError(err)
	}

	responseCache.Invalidate(req.Bucket, req.Key)

	etag := obj.ETag
	if etag == "" && obj.Hash != nil {
		if v := obj.Hash["etag"]; v != "" {
			etag = v
		} else if v := obj.Hash["md5"]; v != "" {
			etag = v
		}
	}

	if etag != "" {
		w.Header().Set("ETag", quoteRawETag(etag))
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// copyObjectResult is the XML body returned by CopyObject.
type copyObjectResult struct {
	XMLName      xml.Name  `xml:"CopyObjectResult"`
	LastModified time.Time `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
}

// handleCopyObject implements:
//
//	PUT basePath/:bucket/*key with header x-amz-copy-source
func (s *Server) handleCopyObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	dstBucket := req.Bucket
	dstKey := req.Key

	src := r.Header.Get("x-amz-copy-source")
	src = strings.TrimSpace(src)
	src = strings.TrimPrefix(src, "/")
	parts := strings.SplitN(src, "/", 2)
	if len(parts) != 2 {
		return ErrInvalidRequest
	}
	srcBucket := parts[0]
	srcKey := parts[1]

	db := s.stor.Bucket(dstBucket)
	if db == nil {
		return ErrNoSuchBucket
	}

	obj, err := db.Copy(ctx, dstKey, srcBucket, srcKey, storage.Options{})
	if err != nil {
		return mapError(err)
	}

	responseCache.Invalidate(dstBucket, dstKey)

	etag := obj.ETag
	if etag == "" && obj.Hash != nil {
		if v := obj.Hash["etag"]; v != "" {
			etag = v
		}
	}

	mod := obj.Updated
	if mod.IsZero() {
		mod = s.cfg.Clock().UTC()
	}

	_ = writeXML(w, http.StatusOK, copyObjectResult{
		LastModified: mod.UTC(),
		ETag:         quoteRawETag(etag),
	})
	return nil
}

// handleDeleteObject implements:
//
//	DELETE basePath/:bucket/*key
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	err := b.Delete(ctx, req.Key, storage.Options{})
	// S3 returns 204 for a successful delete, even if the key never
	// existed; ErrNotExist is not an error from the client's perspective.
	if err != nil && !errors.Is(err, storage.ErrNotExist) {
		return mapError(err)
	}

	responseCache.Invalidate(req.Bucket, req.Key)

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// handleHeadObject implements:
//
//	HEAD basePath/:bucket/*key
func (s *Server) handleHeadObject(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	obj, err := b.Stat(ctx, req.Key, storage.Options{})
	if err != nil {
		return mapError(err)
	}

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ETag != "" {
		w.Header().Set("ETag", quoteRawETag(obj.ETag))
	}
	if !obj.Updated.IsZero() {
		w.Header().Set("Last-Modified", obj.Updated.UTC().Format(http.TimeFormat))
	}
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	return nil
}
