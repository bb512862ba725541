package s3

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Op identifies the S3 operation a parsed request maps to.
type Op int

const (
	OpUnknown Op = iota
	OpListBuckets
	OpCreateBucket
	OpDeleteBucket
	OpHeadBucket
	OpGetBucketLocation
	OpListObjects
	OpListObjectsV2
	OpDeleteObjects
	OpGetObject
	OpPutObject
	OpCopyObject
	OpDeleteObject
	OpHeadObject
)

// Request is a parsed, not-yet-authenticated S3 API call.
type Request struct {
	Op        Op
	Bucket    string
	Key       string
	RequestID string
	Query     url.Values

	raw *http.Request

	// chunked carries the rolling-signature state needed to verify a
	// STREAMING-AWS4-HMAC-SHA256-PAYLOAD body, set by SignerV4.Verify
	// when it authenticates the request's headers. Nil for any request
	// whose body isn't chunk-signed.
	chunked *chunkedSigningInfo
}

type ctxKey int

const requestContextKey ctxKey = iota

// contextFromCtx returns the request's context, augmented so downstream
// storage calls can be traced back to the originating S3 request id via
// RequestIDFromContext.
func contextFromCtx(r *Request) context.Context {
	return context.WithValue(r.raw.Context(), requestContextKey, r.RequestID)
}

// RequestIDFromContext returns the S3 request id associated with ctx, if
// any storage operation wants to log it.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestContextKey).(string)
	return id
}

// hasQueryKey reports whether q contains key, regardless of its value
// (S3 query-string flags like ?location or ?delete carry no value).
func hasQueryKey(q url.Values, key string) bool {
	_, ok := q[key]
	return ok
}

// parseRequest splits r's URL path (with basePath stripped) into a bucket
// and key and picks the Op implied by the HTTP method, query string, and
// presence of a key. basePath is stripped without requiring a trailing
// slash in either the configured path or the incoming request.
func parseRequest(basePath string, r *http.Request) (*Request, *S3Error) {
	path := strings.TrimPrefix(r.URL.Path, basePath)
	path = strings.TrimPrefix(path, "/")

	req := &Request{
		RequestID: generateRequestID(),
		Query:     r.URL.Query(),
		raw:       r,
	}

	if path == "" {
		if r.Method != http.MethodGet {
			return nil, ErrMethodNotAllowed
		}
		req.Op = OpListBuckets
		return req, nil
	}

	bucket, key, hasKey := strings.Cut(path, "/")
	req.Bucket = bucket
	if bucket == "" {
		return nil, ErrInvalidBucketName
	}

	if !hasKey || key == "" {
		// Bucket-level request: basePath/:bucket[?query]
		switch r.Method {
		case http.MethodPut:
			req.Op = OpCreateBucket
		case http.MethodDelete:
			req.Op = OpDeleteBucket
		case http.MethodHead:
			req.Op = OpHeadBucket
		case http.MethodGet:
			switch {
			case hasQueryKey(req.Query, "location"):
				req.Op = OpGetBucketLocation
			case hasQueryKey(req.Query, "marker"):
				// ListObjectsV2 is the default shape for a bare bucket GET;
				// the (legacy) V1 marker cursor only kicks in when a
				// caller actually supplies one.
				req.Op = OpListObjects
			default:
				req.Op = OpListObjectsV2
			}
		case http.MethodPost:
			if hasQueryKey(req.Query, "delete") {
				req.Op = OpDeleteObjects
			} else {
				return nil, ErrMethodNotAllowed
			}
		default:
			return nil, ErrMethodNotAllowed
		}
		return req, nil
	}

	req.Key = key
	switch r.Method {
	case http.MethodGet:
		req.Op = OpGetObject
	case http.MethodHead:
		req.Op = OpHeadObject
	case http.MethodDelete:
		req.Op = OpDeleteObject
	case http.MethodPut:
		if r.Header.Get("x-amz-copy-source") != "" {
			req.Op = OpCopyObject
		} else {
			req.Op = OpPutObject
		}
	default:
		return nil, ErrMethodNotAllowed
	}
	return req, nil
}

// authAndParse parses the request and, if the server has credentials
// configured, verifies its signature before returning it.
func (s *Server) authAndParse(r *http.Request) (*Request, *S3Error) {
	req, s3err := parseRequest(s.basePath, r)
	if s3err != nil {
		return nil, s3err
	}

	if s.cfg.Credentials == nil {
		return req, nil
	}
	if s.cfg.Signer == nil {
		return nil, ErrInternal.WithMessage("server has credentials but no signer configured")
	}
	if err := s.cfg.Signer.Verify(req, s.cfg); err != nil {
		if s3err, ok := err.(*S3Error); ok {
			return nil, s3err
		}
		return nil, ErrSignatureMismatch.WithInternal(err)
	}
	return req, nil
}
