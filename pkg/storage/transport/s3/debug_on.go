//go:build s3debug

package s3

import "log/slog"

// debugLogRequest logs S3 request details when built with -tags=s3debug.
func debugLogRequest(logger *slog.Logger, req *Request) {
	logger.Info("s3 request",
		"op", req.Op,
		"bucket", req.Bucket,
		"key", req.Key,
		"request_id", req.RequestID,
	)
}
