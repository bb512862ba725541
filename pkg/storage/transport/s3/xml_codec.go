package s3

import (
	"crypto/rand"
	"encoding/xml"
	"net/http"

	"github.com/oklog/ulid/v2"
)

const s3XMLNS = "http://s3.amazonaws.com/doc/2006-03-01/"

// ErrorResponse is the XML body S3 clients expect on any non-2xx response.
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

// writeXML serializes v as the XML response body with status, preceded by
// the standard <?xml ...?> declaration S3 clients expect.
func writeXML(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	return enc.Encode(v)
}

// writeError writes e as an ErrorResponse, tagging it with requestID.
func writeError(w http.ResponseWriter, e *S3Error, requestID string) {
	_ = writeXML(w, e.Status, &ErrorResponse{
		Code:      e.Code,
		Message:   e.Message,
		Resource:  e.Resource,
		RequestID: requestID,
	})
}

// quoteRawETag wraps a raw hex digest in the quotes S3's ETag header and
// XML <ETag> elements carry.
func quoteRawETag(etag string) string {
	if etag == "" {
		return `""`
	}
	if etag[0] == '"' {
		return etag
	}
	return `"` + etag + `"`
}

// generateRequestID returns an opaque id surfaced in the x-amz-request-id
// response header and error bodies, for correlating client reports with
// server logs. crypto/rand.Reader is safe for concurrent use, unlike
// ulid.Monotonic's reader, so each call draws fresh entropy directly from
// it rather than sharing a monotonic source across requests.
func generateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
