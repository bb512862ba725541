// Package s3 implements an S3-compatible REST API surface over the
// storage package's backend-agnostic Storage/Bucket interfaces.
package s3

import (
	"net/http"
	"strings"

	"github.com/holgern/s3gw/pkg/storage"
)

// Server is an S3 REST API surface mounted at one base path against one
// Storage backend.
type Server struct {
	stor     storage.Storage
	cfg      *Config
	basePath string
}

// Register mounts an S3-compatible API surface at basePath on mux,
// against stor, using cfg (defaults applied in place). It returns the
// Server so callers can use it directly (e.g. in tests) without going
// through mux.
func Register(mux *http.ServeMux, basePath string, stor storage.Storage, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	basePath = strings.TrimSuffix(basePath, "/")
	s := &Server{stor: stor, cfg: cfg, basePath: basePath}

	pattern := basePath
	if pattern == "" {
		pattern = "/"
	} else {
		pattern += "/"
	}
	mux.HandleFunc(pattern, s.ServeHTTP)
	if basePath != "" {
		mux.HandleFunc(basePath, s.ServeHTTP)
	}
	return s
}

// ServeHTTP implements http.Handler, dispatching to the bucket- or
// object-level handler implied by the request path and method.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, s3err := s.authAndParse(r)
	if s3err != nil {
		writeError(w, s3err, "")
		return
	}
	w.Header().Set("x-amz-request-id", req.RequestID)
	debugLogRequest(s.cfg.Logger, req)

	var err *S3Error
	if req.Key != "" {
		err = s.handleObject(w, r, req)
	} else {
		err = s.handleBucket(w, r, req)
	}
	if err != nil {
		writeError(w, err, req.RequestID)
	}
}
