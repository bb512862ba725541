package mdcache

const schema = `
CREATE TABLE IF NOT EXISTS digests (
	remote_id   TEXT PRIMARY KEY,
	bucket      TEXT NOT NULL,
	key         TEXT NOT NULL,
	md5         TEXT NOT NULL,
	native_hash TEXT DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
	accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_digests_bucket_key ON digests(bucket, key);
`
