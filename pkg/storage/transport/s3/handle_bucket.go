package s3

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/holgern/s3gw/pkg/storage"
)

// ListBucketsResult is the XML body for ListBuckets.
type ListBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Buckets struct {
		Buckets []Bucket `xml:"Bucket"`
	} `xml:"Buckets"`
}

// Bucket is one entry in a ListBuckets response.
type Bucket struct {
	Name         string    `xml:"Name"`
	CreationDate time.Time `xml:"CreationDate"`
}

// GetBucketLocationResult is the XML body for GetBucketLocation.
type GetBucketLocationResult struct {
	XMLName            xml.Name `xml:"LocationConstraint"`
	Xmlns              string   `xml:"xmlns,attr"`
	LocationConstraint string   `xml:",chardata"`
}

// Contents is one object entry in a ListObjects/ListObjectsV2 response.
type Contents struct {
	Key          string    `xml:"Key"`
	LastModified time.Time `xml:"LastModified"`
	ETag         string    `xml:"ETag"`
	Size         int64     `xml:"Size"`
	StorageClass string    `xml:"StorageClass"`
}

// CommonPrefix groups a shared key prefix under a delimiter.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// ListBucketResult is the XML body for ListObjects (V1).
type ListBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	Xmlns          string         `xml:"xmlns,attr"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Marker         string         `xml:"Marker"`
	NextMarker     string         `xml:"NextMarker,omitempty"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	MaxKeys        int            `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []Contents     `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ListBucketResultV2 is the XML body for ListObjectsV2.
type ListBucketResultV2 struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	Contents              []Contents     `xml:"Contents"`
	CommonPrefixes        []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// deleteObjectsRequest is the XML body POST .../bucket?delete carries:
// up to 1000 objects to remove in one call.
type deleteObjectsRequest struct {
	XMLName xml.Name `xml:"Delete"`
	Quiet   bool     `xml:"Quiet"`
	Objects []struct {
		Key       string `xml:"Key"`
		VersionId string `xml:"VersionId,omitempty"`
	} `xml:"Object"`
}

// maxDeleteObjects is the largest batch a single DeleteObjects call may
// name, matching real S3's limit.
const maxDeleteObjects = 1000

// deleteResultEntry is one <Deleted> or <Error> element of a
// DeleteResult response. Its XMLName is set per instance so a single
// ordered slice can carry both kinds and preserve the caller's input
// order in the serialized XML.
type deleteResultEntry struct {
	XMLName   xml.Name
	Key       string `xml:"Key"`
	VersionId string `xml:"VersionId,omitempty"`
	Code      string `xml:"Code,omitempty"`
	Message   string `xml:"Message,omitempty"`
}

// DeleteResult is the XML body returned by DeleteObjects.
type DeleteResult struct {
	XMLName xml.Name `xml:"DeleteResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Entries []deleteResultEntry
}

// handleBucket handles bucket- and service-level operations mounted at:
//
//	basePath/              -> ListBuckets
//	basePath/:bucket        -> CreateBucket, DeleteBucket, HeadBucket,
//	                           GetBucketLocation, ListObjects(V2),
//	                           DeleteObjects
func (s *Server) handleBucket(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	switch req.Op {
	case OpListBuckets:
		return s.handleListBuckets(w, r, req)
	case OpCreateBucket:
		return s.handleCreateBucket(w, r, req)
	case OpDeleteBucket:
		return s.handleDeleteBucket(w, r, req)
	case OpHeadBucket:
		return s.handleHeadBucket(w, r, req)
	case OpGetBucketLocation:
		return s.handleGetBucketLocation(w, r, req)
	case OpListObjects:
		return s.handleListObjects(w, r, req)
	case OpListObjectsV2:
		return s.handleListObjectsV2(w, r, req)
	case OpDeleteObjects:
		return s.handleDeleteObjects(w, r, req)
	default:
		return ErrMethodNotAllowed
	}
}

func (s *Server) handleListBuckets(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	iter, err := s.stor.Buckets(ctx, 0, 0, nil)
	if err != nil {
		return mapError(err)
	}
	defer iter.Close()

	var result ListBucketsResult
	result.Xmlns = s3XMLNS
	for {
		info, err := iter.Next()
		if err != nil {
			return mapError(err)
		}
		if info == nil {
			break
		}
		result.Buckets.Buckets = append(result.Buckets.Buckets, Bucket{
			Name:         info.Name,
			CreationDate: info.CreatedAt.UTC(),
		})
	}

	_ = writeXML(w, http.StatusOK, result)
	return nil
}

func (s *Server) handleCreateBucket(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	if _, err := s.stor.CreateBucket(ctx, req.Bucket, storage.Options{}); err != nil {
		return mapError(err)
	}

	w.Header().Set("Location", "/"+req.Bucket)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Server) handleDeleteBucket(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	if err := s.stor.DeleteBucket(ctx, req.Bucket, storage.Options{}); err != nil {
		return mapError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleHeadBucket(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}
	if _, err := b.Info(ctx); err != nil {
		return mapError(err)
	}

	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Server) handleGetBucketLocation(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}
	if _, err := b.Info(ctx); err != nil {
		return mapError(err)
	}

	loc := s.cfg.Region
	if loc == "us-east-1" {
		loc = ""
	}

	_ = writeXML(w, http.StatusOK, GetBucketLocationResult{
		Xmlns:              s3XMLNS,
		LocationConstraint: loc,
	})
	return nil
}

// handleListObjects implements the legacy (V1) listing shape, cursored
// by a literal last-seen key via the "marker" query parameter.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	prefix := req.Query.Get("prefix")
	delimiter := req.Query.Get("delimiter")
	marker := req.Query.Get("marker")
	maxKeys := parseMaxKeys(req.Query)

	page, err := s.listBucketPage(ctx, b, prefix, delimiter, marker, maxKeys)
	if err != nil {
		return mapError(err)
	}

	result := ListBucketResult{
		Xmlns:          s3XMLNS,
		Name:           req.Bucket,
		Prefix:         prefix,
		Marker:         marker,
		Delimiter:      delimiter,
		MaxKeys:        maxKeys,
		IsTruncated:    page.truncated,
		Contents:       page.contents,
		CommonPrefixes: page.commonPrefixes,
	}
	if page.truncated {
		result.NextMarker = page.lastKey
	}

	_ = writeXML(w, http.StatusOK, result)
	return nil
}

// handleListObjectsV2 implements the modern listing shape, cursored by
// an opaque continuation token that encodes the last-seen key.
func (s *Server) handleListObjectsV2(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	prefix := req.Query.Get("prefix")
	delimiter := req.Query.Get("delimiter")
	maxKeys := parseMaxKeys(req.Query)

	startAfter := req.Query.Get("start-after")
	continuationToken := req.Query.Get("continuation-token")
	if continuationToken != "" {
		key, err := decodeContinuationToken(continuationToken)
		if err != nil {
			return ErrInvalidRequest.WithMessage("invalid continuation-token")
		}
		startAfter = key
	}

	page, err := s.listBucketPage(ctx, b, prefix, delimiter, startAfter, maxKeys)
	if err != nil {
		return mapError(err)
	}

	result := ListBucketResultV2{
		Xmlns:             s3XMLNS,
		Name:              req.Bucket,
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		KeyCount:          len(page.contents) + len(page.commonPrefixes),
		IsTruncated:       page.truncated,
		ContinuationToken: continuationToken,
		StartAfter:        req.Query.Get("start-after"),
		Contents:          page.contents,
		CommonPrefixes:    page.commonPrefixes,
	}
	if page.truncated {
		result.NextContinuationToken = encodeContinuationToken(page.lastKey)
	}

	_ = writeXML(w, http.StatusOK, result)
	return nil
}

// bucketPage is one page of a listing, shared by the V1 and V2 handlers.
type bucketPage struct {
	contents       []Contents
	commonPrefixes []CommonPrefix
	truncated      bool
	lastKey        string
}

// listBucketPage lists everything in b matching prefix (both drivers
// already return their full result set sorted lexicographically by key
// regardless of limit/offset, so asking for it unbounded costs nothing
// extra) and slices out the page starting just after startAfter, up to
// maxKeys entries. Using the last returned key as the resume cursor
// keeps pagination stable across concurrent inserts/deletes, unlike a
// numeric offset into a list that can shift underneath it.
func (s *Server) listBucketPage(ctx context.Context, b storage.Bucket, prefix, delimiter, startAfter string, maxKeys int) (bucketPage, error) {
	opts := storage.Options{"recursive": delimiter == ""}
	iter, err := b.List(ctx, prefix, 0, 0, opts)
	if err != nil {
		return bucketPage{}, err
	}
	defer iter.Close()

	var all []*storage.ObjectInfo
	for {
		obj, err := iter.Next()
		if err != nil {
			return bucketPage{}, err
		}
		if obj == nil {
			break
		}
		all = append(all, obj)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	start := 0
	if startAfter != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].Key > startAfter })
	}

	var page bucketPage
	prefixSeen := map[string]bool{}
	for _, obj := range all[start:] {
		if len(page.contents)+len(page.commonPrefixes) == maxKeys {
			page.truncated = true
			break
		}
		page.lastKey = obj.Key

		if obj.IsDir {
			if delimiter != "" && !prefixSeen[obj.Key] {
				prefixSeen[obj.Key] = true
				page.commonPrefixes = append(page.commonPrefixes, CommonPrefix{Prefix: obj.Key})
			}
			continue
		}

		page.contents = append(page.contents, Contents{
			Key:          obj.Key,
			LastModified: obj.Updated.UTC(),
			ETag:         quoteRawETag(obj.ETag),
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}
	return page, nil
}

// parseMaxKeys reads the "max-keys" query parameter, defaulting to and
// capping at 1000 (S3's own hard limit per listing page).
func parseMaxKeys(q stringGetter) int {
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}
	if maxKeys > maxDeleteObjects {
		maxKeys = maxDeleteObjects
	}
	return maxKeys
}

// stringGetter is the subset of url.Values parseMaxKeys needs; declared
// narrowly so it reads clearly as "anything with a Get method" rather
// than importing net/url here solely for the parameter type.
type stringGetter interface {
	Get(string) string
}

// encodeContinuationToken/decodeContinuationToken encode ListObjectsV2
// pagination state as base64(last-returned-key). The token is opaque to
// clients; base64 is just a convenient way to keep arbitrary key bytes
// URL-safe-ish in a single query value.
func encodeContinuationToken(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}

func decodeContinuationToken(token string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// handleDeleteObjects implements:
//
//	POST basePath/:bucket?delete
//
// Bucket.Delete is idempotent (a missing key is not an error), so every
// named key is reported Deleted regardless of whether it existed; only
// a genuine backend failure produces an <Error> entry.
func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request, req *Request) *S3Error {
	ctx := contextFromCtx(req)

	b := s.stor.Bucket(req.Bucket)
	if b == nil {
		return ErrNoSuchBucket
	}

	var body deleteObjectsRequest
	dec := xml.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return ErrInvalidRequest.WithMessage("malformed DeleteObjects request body")
	}
	if len(body.Objects) > maxDeleteObjects {
		return ErrInvalidRequest.WithMessage("too many objects in one DeleteObjects call")
	}

	result := DeleteResult{Xmlns: s3XMLNS}
	for _, obj := range body.Objects {
		err := b.Delete(ctx, obj.Key, storage.Options{})
		if err != nil && !errors.Is(err, storage.ErrNotExist) {
			s3err := mapError(err)
			result.Entries = append(result.Entries, deleteResultEntry{
				XMLName: xml.Name{Local: "Error"},
				Key:     obj.Key,
				Code:    s3err.Code,
				Message: s3err.Message,
			})
			continue
		}

		responseCache.Invalidate(req.Bucket, obj.Key)

		if body.Quiet {
			continue
		}
		result.Entries = append(result.Entries, deleteResultEntry{
			XMLName:   xml.Name{Local: "Deleted"},
			Key:       obj.Key,
			VersionId: obj.VersionId,
		})
	}

	_ = writeXML(w, http.StatusOK, result)
	return nil
}
