package s3

import (
	"errors"
	"net/http"

	"github.com/holgern/s3gw/pkg/storage"
)

// S3Error is an S3-shaped error: an HTTP status plus the (Code, Message)
// pair serialized into the response body's <Error> XML document.
type S3Error struct {
	Status   int
	Code     string
	Message  string
	Resource string
	internal error
}

func (e *S3Error) Error() string {
	if e.internal != nil {
		return e.Code + ": " + e.Message + ": " + e.internal.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *S3Error) Unwrap() error { return e.internal }

// WithMessage returns a copy of e with Message replaced.
func (e *S3Error) WithMessage(msg string) *S3Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// WithInternal returns a copy of e carrying the underlying cause, exposed
// via errors.Unwrap but not serialized to the client.
func (e *S3Error) WithInternal(err error) *S3Error {
	cp := *e
	cp.internal = err
	return &cp
}

// WithResource returns a copy of e with Resource set (the bucket/key path
// that triggered it).
func (e *S3Error) WithResource(resource string) *S3Error {
	cp := *e
	cp.Resource = resource
	return &cp
}

// Standard S3 error values. Each WXxx variant returns a copy, so callers
// can chain WithMessage/WithInternal/WithResource without mutating the
// shared sentinel.
var (
	ErrNoSuchBucket          = &S3Error{Status: http.StatusNotFound, Code: "NoSuchBucket", Message: "The specified bucket does not exist"}
	ErrBucketNotEmpty        = &S3Error{Status: http.StatusConflict, Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty"}
	ErrBucketAlreadyExists   = &S3Error{Status: http.StatusConflict, Code: "BucketAlreadyExists", Message: "The requested bucket name is not available"}
	ErrNoSuchKey             = &S3Error{Status: http.StatusNotFound, Code: "NoSuchKey", Message: "The specified key does not exist"}
	ErrInvalidRequest        = &S3Error{Status: http.StatusBadRequest, Code: "InvalidRequest", Message: "The request is invalid"}
	ErrInvalidBucketName     = &S3Error{Status: http.StatusBadRequest, Code: "InvalidBucketName", Message: "The specified bucket is not valid"}
	ErrEntityTooLarge        = &S3Error{Status: http.StatusBadRequest, Code: "EntityTooLarge", Message: "Your proposed upload exceeds the maximum allowed size"}
	ErrAccessDenied          = &S3Error{Status: http.StatusForbidden, Code: "AccessDenied", Message: "Access denied"}
	ErrSignatureMismatch     = &S3Error{Status: http.StatusForbidden, Code: "SignatureDoesNotMatch", Message: "The request signature does not match"}
	ErrRequestTimeTooSkewed  = &S3Error{Status: http.StatusForbidden, Code: "RequestTimeTooSkewed", Message: "The difference between the request time and the server's time is too large"}
	ErrMissingSecurityHeader = &S3Error{Status: http.StatusForbidden, Code: "MissingSecurityHeader", Message: "Your request was missing a required header"}
	ErrMethodNotAllowed      = &S3Error{Status: http.StatusMethodNotAllowed, Code: "MethodNotAllowed", Message: "The specified method is not allowed"}
	ErrNotImplemented        = &S3Error{Status: http.StatusNotImplemented, Code: "NotImplemented", Message: "A header or operation you requested is not supported"}
	ErrServiceUnavailable    = &S3Error{Status: http.StatusServiceUnavailable, Code: "ServiceUnavailable", Message: "Please reduce your request rate"}
	ErrInternal              = &S3Error{Status: http.StatusInternalServerError, Code: "InternalError", Message: "We encountered an internal error"}
)

var errUnknownAccessKey = errors.New("s3: unknown access key")

// mapError translates a storage package error into its S3 equivalent.
func mapError(err error) *S3Error {
	var s3err *S3Error
	if errors.As(err, &s3err) {
		return s3err
	}

	switch {
	case errors.Is(err, errChunkSignatureMismatch):
		return ErrSignatureMismatch.WithInternal(err)
	case errors.Is(err, storage.ErrNotExist):
		return ErrNoSuchKey.WithInternal(err)
	case errors.Is(err, storage.ErrExist):
		return ErrBucketAlreadyExists.WithInternal(err)
	case errors.Is(err, storage.ErrPermission):
		return ErrAccessDenied.WithInternal(err)
	case errors.Is(err, storage.ErrUnsupported):
		return ErrNotImplemented.WithInternal(err)
	case errors.Is(err, storage.ErrInvalid):
		return ErrInvalidRequest.WithInternal(err)
	case errors.Is(err, storage.ErrNotEmpty):
		return ErrBucketNotEmpty.WithInternal(err)
	default:
		return ErrInternal.WithInternal(err)
	}
}
