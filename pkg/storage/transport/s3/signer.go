package s3

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SignerV4 verifies AWS request signatures. Despite the name (kept for
// compatibility with how callers already reference it) it dispatches
// across every scheme a current or legacy SDK/CLI might produce:
// SigV4 header auth, SigV2 header auth, and presigned URLs for both
// versions. A chunked STREAMING-AWS4-HMAC-SHA256-PAYLOAD body is
// authenticated separately, chunk by chunk, by newChunkedBodyReader
// once the header signature above has been verified.
type SignerV4 struct{}

const (
	v4Algorithm = "AWS4-HMAC-SHA256"
	v2Algorithm = "AWS"

	maxClockSkew = 15 * time.Minute
)

// Verify implements Signer.
func (SignerV4) Verify(req *Request, cfg *Config) error {
	r := req.raw
	auth := r.Header.Get("Authorization")

	switch {
	case strings.HasPrefix(auth, v4Algorithm+" "):
		return verifyV4Header(req, cfg, auth)
	case strings.HasPrefix(auth, v2Algorithm+" "):
		return verifyV2Header(req, cfg, auth)
	case auth != "":
		return ErrNotImplemented.WithMessage("unsupported Authorization scheme")
	case r.URL.Query().Get("X-Amz-Algorithm") == v4Algorithm:
		return verifyV4Presigned(req, cfg)
	case r.URL.Query().Get("AWSAccessKeyId") != "":
		return verifyV2Presigned(req, cfg)
	default:
		return ErrMissingSecurityHeader
	}
}

const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// streamingPayloadHash is the X-Amz-Content-Sha256 value a client sends
// when the body is a sequence of chunk-signed frames rather than a
// single hashed payload (see chunked.go).
const streamingPayloadHash = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

// chunkedSigningInfo carries what newChunkedBodyReader needs to extend
// the header signature's rolling HMAC chain across the body's chunks.
type chunkedSigningInfo struct {
	signingKey []byte
	scope      string
	dateTime   string
	seedSig    string
}

func verifyV4Header(req *Request, cfg *Config, auth string) error {
	r := req.raw

	fields, err := parseAuthHeader(strings.TrimPrefix(auth, v4Algorithm+" "))
	if err != nil {
		return ErrInvalidRequest.WithInternal(err)
	}

	credParts := strings.Split(fields["Credential"], "/")
	if len(credParts) != 5 {
		return ErrInvalidRequest.WithMessage("malformed Credential")
	}
	accessKeyID, date, region, service, terminator := credParts[0], credParts[1], credParts[2], credParts[3], credParts[4]
	if terminator != "aws4_request" {
		return ErrInvalidRequest.WithMessage("malformed Credential scope")
	}
	if service != "s3" {
		return ErrInvalidRequest.WithMessage("unexpected service in Credential scope")
	}

	cred, err := cfg.Credentials.Lookup(accessKeyID)
	if err != nil {
		return ErrAccessDenied.WithInternal(err)
	}

	signedHeaders := strings.Split(fields["SignedHeaders"], ";")
	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	if amzDate == "" {
		return ErrInvalidRequest.WithMessage("missing X-Amz-Date")
	}
	if err := checkSkew(amzDate, cfg.Clock()); err != nil {
		return err
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = emptyPayloadHash
	}

	canonicalReq := buildCanonicalRequest(r, signedHeaders, payloadHash)
	scope := fmt.Sprintf("%s/%s/%s/aws4_request", date, region, service)
	stringToSign := strings.Join([]string{
		v4Algorithm,
		amzDate,
		scope,
		hashHex(canonicalReq),
	}, "\n")

	signingKey := deriveSigningKeyV4(cred.SecretAccessKey, date, region, service)
	expected := hmacHex(signingKey, stringToSign)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(fields["Signature"])) != 1 {
		return ErrSignatureMismatch
	}

	if payloadHash == streamingPayloadHash {
		req.chunked = &chunkedSigningInfo{
			signingKey: signingKey,
			scope:      scope,
			dateTime:   amzDate,
			seedSig:    expected,
		}
	}
	return nil
}

// verifyV4Presigned verifies a "?X-Amz-Algorithm=AWS4-HMAC-SHA256&..."
// query-string-signed URL, used by SDK presigned GET/PUT requests. The
// payload itself is never hashed for these (UNSIGNED-PAYLOAD); only the
// URL's shape and expiry are authenticated.
func verifyV4Presigned(req *Request, cfg *Config) error {
	r := req.raw
	q := r.URL.Query()

	credParts := strings.Split(q.Get("X-Amz-Credential"), "/")
	if len(credParts) != 5 {
		return ErrInvalidRequest.WithMessage("malformed X-Amz-Credential")
	}
	accessKeyID, date, region, service, terminator := credParts[0], credParts[1], credParts[2], credParts[3], credParts[4]
	if terminator != "aws4_request" || service != "s3" {
		return ErrInvalidRequest.WithMessage("malformed X-Amz-Credential scope")
	}

	cred, err := cfg.Credentials.Lookup(accessKeyID)
	if err != nil {
		return ErrAccessDenied.WithInternal(err)
	}

	amzDate := q.Get("X-Amz-Date")
	if amzDate == "" {
		return ErrInvalidRequest.WithMessage("missing X-Amz-Date")
	}
	signedAt, err := time.Parse(v4DateLayout, amzDate)
	if err != nil {
		return ErrInvalidRequest.WithMessage("unparseable X-Amz-Date")
	}

	expiresIn, err := strconv.Atoi(q.Get("X-Amz-Expires"))
	if err != nil || expiresIn <= 0 {
		return ErrInvalidRequest.WithMessage("missing or invalid X-Amz-Expires")
	}
	if cfg.Clock().After(signedAt.Add(time.Duration(expiresIn) * time.Second)) {
		return ErrAccessDenied.WithMessage("presigned URL has expired")
	}

	signedHeaders := strings.Split(q.Get("X-Amz-SignedHeaders"), ";")
	providedSig := q.Get("X-Amz-Signature")

	canonicalReq := buildCanonicalRequest(r, signedHeaders, "UNSIGNED-PAYLOAD", "X-Amz-Signature")
	scope := fmt.Sprintf("%s/%s/%s/aws4_request", date, region, service)
	stringToSign := strings.Join([]string{v4Algorithm, amzDate, scope, hashHex(canonicalReq)}, "\n")

	signingKey := deriveSigningKeyV4(cred.SecretAccessKey, date, region, service)
	expected := hmacHex(signingKey, stringToSign)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(providedSig)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// verifyV2Header verifies the legacy "Authorization: AWS keyId:signature"
// header scheme, still emitted by some older clients and test tooling.
func verifyV2Header(req *Request, cfg *Config, auth string) error {
	r := req.raw

	rest := strings.TrimPrefix(auth, v2Algorithm+" ")
	accessKeyID, sig, ok := strings.Cut(rest, ":")
	if !ok {
		return ErrInvalidRequest.WithMessage("malformed Authorization header")
	}

	cred, err := cfg.Credentials.Lookup(accessKeyID)
	if err != nil {
		return ErrAccessDenied.WithInternal(err)
	}

	dateHeader := r.Header.Get("x-amz-date")
	if dateHeader == "" {
		dateHeader = r.Header.Get("Date")
	}
	if dateHeader == "" {
		return ErrInvalidRequest.WithMessage("missing Date header")
	}
	if err := checkSkew(dateHeader, cfg.Clock()); err != nil {
		return err
	}

	stringToSign := v2StringToSign(r)
	expected := base64.StdEncoding.EncodeToString(hmacSHA1(cred.SecretAccessKey, stringToSign))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// verifyV2Presigned verifies a "?AWSAccessKeyId=...&Expires=...&Signature=..."
// query-string-signed URL (the pre-SigV4 presign scheme).
func verifyV2Presigned(req *Request, cfg *Config) error {
	r := req.raw
	q := r.URL.Query()

	accessKeyID := q.Get("AWSAccessKeyId")
	providedSig := q.Get("Signature")
	expiresParam := q.Get("Expires")
	if accessKeyID == "" || providedSig == "" || expiresParam == "" {
		return ErrInvalidRequest.WithMessage("malformed presigned query parameters")
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return ErrInvalidRequest.WithMessage("malformed Expires")
	}
	if cfg.Clock().Unix() > expires {
		return ErrAccessDenied.WithMessage("presigned URL has expired")
	}

	cred, err := cfg.Credentials.Lookup(accessKeyID)
	if err != nil {
		return ErrAccessDenied.WithInternal(err)
	}

	stringToSign := v2PresignedStringToSign(r, expiresParam)
	expected := base64.StdEncoding.EncodeToString(hmacSHA1(cred.SecretAccessKey, stringToSign))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(providedSig)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// v4DateLayout is the compact ISO-8601 basic format SigV4 carries in
// X-Amz-Date ("20060102T150405Z").
const v4DateLayout = "20060102T150405Z"

// v2DateLayouts are the header date formats checkSkew tries for SigV2
// requests: x-amz-date is sometimes the same compact form V4 uses,
// but Date (and most x-amz-date values in the wild) is RFC 1123.
var v2DateLayouts = []string{time.RFC1123, time.RFC1123Z, v4DateLayout}

// checkSkew rejects a request whose signed timestamp is more than
// maxClockSkew away from now, in either direction.
func checkSkew(dateStr string, now time.Time) error {
	var (
		t   time.Time
		err error
	)
	for _, layout := range v2DateLayouts {
		t, err = time.Parse(layout, dateStr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return ErrInvalidRequest.WithMessage("unparseable request date")
	}
	if d := now.Sub(t); d > maxClockSkew || d < -maxClockSkew {
		return ErrRequestTimeTooSkewed
	}
	return nil
}

func parseAuthHeader(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("s3: malformed Authorization field %q", part)
		}
		out[k] = v
	}
	for _, want := range []string{"Credential", "SignedHeaders", "Signature"} {
		if _, ok := out[want]; !ok {
			return nil, fmt.Errorf("s3: Authorization missing %s", want)
		}
	}
	return out, nil
}

func buildCanonicalRequest(r *http.Request, signedHeaders []string, payloadHash string, excludeQueryKeys ...string) string {
	canonicalHeaders := make([]string, 0, len(signedHeaders))
	for _, h := range signedHeaders {
		lower := strings.ToLower(h)
		var values []string
		if lower == "host" {
			// net/http splits the Host header out of r.Header into r.Host.
			values = []string{r.Host}
		} else {
			values = r.Header.Values(http.CanonicalHeaderKey(h))
		}
		joined := strings.Join(trimAll(values), ",")
		canonicalHeaders = append(canonicalHeaders, lower+":"+joined)
	}

	lines := []string{
		r.Method,
		canonicalURI(r.URL.Path),
		canonicalQuery(r.URL.Query(), excludeQueryKeys...),
		strings.Join(canonicalHeaders, "\n") + "\n",
		strings.Join(signedHeaders, ";"),
		payloadHash,
	}
	return strings.Join(lines, "\n")
}

func trimAll(vs []string) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func canonicalQuery(q url.Values, exclude ...string) string {
	excl := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excl[e] = true
	}

	keys := make([]string, 0, len(q))
	for k := range q {
		if excl[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	first := true
	for _, k := range keys {
		values := append([]string(nil), q[k]...)
		sort.Strings(values)
		for _, v := range values {
			if !first {
				b.WriteByte('&')
			}
			first = false
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// v2Subresources lists, in the fixed order S3 requires, the query
// parameters that participate in a SigV2 CanonicalizedResource when
// present, regardless of their position in the actual query string.
var v2Subresources = []string{
	"acl", "delete", "location", "logging", "notification", "partNumber",
	"policy", "requestPayment", "torrent", "uploadId", "uploads",
	"versionId", "versioning", "versions", "website",
}

func canonicalResourceV2(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	q := r.URL.Query()
	var sub []string
	for _, name := range v2Subresources {
		vs, ok := q[name]
		if !ok {
			continue
		}
		if len(vs) > 0 && vs[0] != "" {
			sub = append(sub, name+"="+vs[0])
		} else {
			sub = append(sub, name)
		}
	}
	if len(sub) == 0 {
		return path
	}
	return path + "?" + strings.Join(sub, "&")
}

func canonicalAmzHeadersV2(h http.Header) []string {
	grouped := map[string][]string{}
	for name, values := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-amz-") {
			continue
		}
		grouped[lower] = append(grouped[lower], trimAll(values)...)
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+":"+strings.Join(grouped[k], ","))
	}
	return lines
}

// v2StringToSign builds the SigV2 string-to-sign for a header-authenticated
// request: verb, Content-MD5, Content-Type, the Date line (x-amz-date
// takes priority over Date when both are present), the canonicalized
// x-amz-* headers, and the canonicalized resource.
func v2StringToSign(r *http.Request) string {
	dateLine := r.Header.Get("x-amz-date")
	if dateLine == "" {
		dateLine = r.Header.Get("Date")
	}
	return v2StringToSignWithDate(r, dateLine)
}

// v2PresignedStringToSign is v2StringToSign with the Date line replaced
// by the query string's numeric Expires value, per the SigV2 query-auth
// scheme.
func v2PresignedStringToSign(r *http.Request, expires string) string {
	return v2StringToSignWithDate(r, expires)
}

func v2StringToSignWithDate(r *http.Request, dateLine string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.Header.Get("Content-MD5"))
	b.WriteByte('\n')
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteByte('\n')
	b.WriteString(dateLine)
	b.WriteByte('\n')
	for _, line := range canonicalAmzHeadersV2(r.Header) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(canonicalResourceV2(r))
	return b.String()
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSum(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hmacHex(key []byte, data string) string {
	return hex.EncodeToString(hmacSum(key, data))
}

func hmacSHA1(secret, data string) []byte {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func deriveSigningKeyV4(secret, date, region, service string) []byte {
	kDate := hmacSum([]byte("AWS4"+secret), date)
	kRegion := hmacSum(kDate, region)
	kService := hmacSum(kRegion, service)
	return hmacSum(kService, "aws4_request")
}
