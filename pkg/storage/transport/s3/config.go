package s3

import (
	"log/slog"
	"time"
)

// Credential is one access key / secret key pair accepted by a server.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
}

// CredentialProvider resolves an access key id to its secret, for request
// signature verification.
type CredentialProvider interface {
	Lookup(accessKeyID string) (*Credential, error)
}

// staticCredentialProvider serves a fixed, in-memory set of credentials.
type staticCredentialProvider struct {
	creds map[string]*Credential
}

// NewStaticCredentialProvider returns a CredentialProvider backed by a fixed
// map of access key id to Credential.
func NewStaticCredentialProvider(creds map[string]*Credential) CredentialProvider {
	return &staticCredentialProvider{creds: creds}
}

func (p *staticCredentialProvider) Lookup(accessKeyID string) (*Credential, error) {
	cred, ok := p.creds[accessKeyID]
	if !ok {
		return nil, errUnknownAccessKey
	}
	return cred, nil
}

// Signer verifies that an incoming request carries a valid signature for
// the credential it claims.
type Signer interface {
	Verify(r *Request, cfg *Config) error
}

// Config configures one mounted S3 API surface.
type Config struct {
	// Region reported by GetBucketLocation and used in SigV4 verification.
	// Default "us-east-1".
	Region string

	// MaxObjectSize rejects PutObject/UploadPart bodies larger than this
	// many bytes with EntityTooLarge. 0 means unbounded.
	MaxObjectSize int64

	// Credentials resolves access keys for signature verification. If nil,
	// requests are not authenticated.
	Credentials CredentialProvider

	// Signer verifies request signatures against Credentials. Required
	// when Credentials is set.
	Signer Signer

	// Clock returns the current time; overridable for tests. Defaults to
	// time.Now.
	Clock func() time.Time

	// Logger receives structured request/error logs. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// DisableResponseCache turns off the small-object GET/HEAD response
	// cache.
	DisableResponseCache bool
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
