//go:build !s3debug

package s3

import "log/slog"

// debugLogRequest is a no-op in ordinary builds; build with -tags=s3debug
// to log every parsed request (see debug_on.go).
func debugLogRequest(logger *slog.Logger, req *Request) {}
