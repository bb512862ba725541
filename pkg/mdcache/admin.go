package mdcache

import (
	"context"
	"fmt"
)

// Stats summarizes the digest cache for the "cache stats" CLI command.
type Stats struct {
	Entries   int64
	TotalSize int64
}

// Stats reports the number of cached digests and their combined object size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM digests`)
	if err := row.Scan(&stats.Entries, &stats.TotalSize); err != nil {
		return stats, fmt.Errorf("mdcache: stats: %w", err)
	}
	return stats, nil
}

// Cleanup removes entries whose remote object is no longer referenced by
// the caller. alive is the complete current set of remote ids; anything in
// the cache but not in alive is deleted. Returns the number of rows removed.
func (s *Store) Cleanup(ctx context.Context, alive map[string]bool) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT remote_id FROM digests`)
	if err != nil {
		return 0, fmt.Errorf("mdcache: cleanup scan: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("mdcache: cleanup scan: %w", err)
		}
		if !alive[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()

	var removed int64
	for _, id := range stale {
		res, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE remote_id = ?`, id)
		if err != nil {
			return removed, fmt.Errorf("mdcache: cleanup delete %q: %w", id, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// Vacuum reclaims free space in the underlying database file.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	if err != nil {
		return fmt.Errorf("mdcache: vacuum: %w", err)
	}
	return nil
}
