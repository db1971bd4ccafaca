package offline

import (
	"fmt"
	"time"

	"github.com/ohartl/knowbase/internal/models"
)

// RetentionPolicy caps how many snapshots are kept per entity type.
// The most recently updated entries win; everything beyond the cap is
// deleted. Entity types without a cap are left alone. ArchivedWindow,
// when positive, additionally drops snapshots of archived entities not
// updated within the window.
type RetentionPolicy struct {
	MaxSnapshots   map[models.EntityType]int
	ArchivedWindow time.Duration
}

// CleanupSnapshots enforces the policy and returns how many entries
// were pruned. Meant to run periodically from the composition root.
func (s *Store) CleanupSnapshots(policy RetentionPolicy) (int, error) {
	pruned := 0

	if policy.ArchivedWindow > 0 {
		cutoff := s.now().Add(-policy.ArchivedWindow).UnixMilli()
		res, err := s.db.Exec(`
		DELETE FROM offline_entries
		WHERE json_extract(payload, '$.archived') = 1
		  AND updated_at < ?`, cutoff)
		if err != nil {
			return pruned, fmt.Errorf("failed to prune archived snapshots: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			pruned += int(n)
		}
	}

	for entityType, keep := range policy.MaxSnapshots {
		if keep < 0 {
			continue
		}

		query := `
		DELETE FROM offline_entries
		WHERE entity_type = ?
		  AND key NOT IN (
			SELECT key FROM offline_entries
			WHERE entity_type = ?
			ORDER BY updated_at DESC
			LIMIT ?
		  )`
		res, err := s.db.Exec(query, string(entityType), string(entityType), keep)
		if err != nil {
			return pruned, fmt.Errorf("failed to prune %s snapshots: %w", entityType, err)
		}

		n, err := res.RowsAffected()
		if err == nil {
			pruned += int(n)
		}
	}

	return pruned, nil
}
