package backup

import (
	"context"
	"log"
	"sort"
	"time"

	"fleetplane/internal/types"
)

// ============================================================================
// RETENTION / EVICTION
// ============================================================================

// EvictedBackup is one backup removed by Cleanup, tagged with whichever
// rule matched first.
type EvictedBackup struct {
	Backup types.BackupRecord   `json:"backup"`
	Reason types.EvictionReason `json:"reason"`
}

// EvictionFailure records a delete that failed mid-sweep. The sweep keeps
// going; one bad delete never aborts the loop.
type EvictionFailure struct {
	BackupUUID string `json:"backup_uuid"`
	Error      string `json:"error"`
}

// CleanupResult is the report returned to callers and scheduled jobs.
type CleanupResult struct {
	ServerUUID   string            `json:"server_uuid"`
	DeletedCount int               `json:"deleted_count"`
	Deleted      []EvictedBackup   `json:"deleted"`
	Failed       []EvictionFailure `json:"failed,omitempty"`
	Remaining    int               `json:"remaining"`
}

// Cleanup applies the retention policy to one server:
//
//  1. only completed, unlocked backups are eviction candidates;
//  2. the count rule marks the oldest backups beyond MaxPerServer;
//  3. the age rule independently marks anything older than RetentionDays,
//     deduplicated against the count rule by backup id;
//  4. marked backups are deleted one by one with per-item failure isolation.
func (m *Manager) Cleanup(ctx context.Context, serverUUID string) (*CleanupResult, error) {
	backups, err := m.List(ctx, serverUUID)
	if err != nil {
		return nil, err
	}

	var eligible []types.BackupRecord
	for _, b := range backups {
		if b.Eligible() {
			eligible = append(eligible, b)
		}
	}

	// Newest first, so the tail beyond the count ceiling is the oldest.
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.After(eligible[j].CreatedAt)
	})

	type marked struct {
		backup types.BackupRecord
		reason types.EvictionReason
	}
	var toDelete []marked
	seen := make(map[string]bool)

	if len(eligible) > m.policy.MaxPerServer {
		for _, b := range eligible[m.policy.MaxPerServer:] {
			toDelete = append(toDelete, marked{backup: b, reason: types.EvictExceededMaxCount})
			seen[b.UUID] = true
		}
	}

	cutoff := m.now().UTC().Add(-time.Duration(m.policy.RetentionDays) * 24 * time.Hour)
	for _, b := range eligible {
		if seen[b.UUID] {
			continue
		}
		if b.CreatedAt.Before(cutoff) {
			toDelete = append(toDelete, marked{backup: b, reason: types.EvictExceededRetention})
			seen[b.UUID] = true
		}
	}

	result := &CleanupResult{ServerUUID: serverUUID}
	for _, mk := range toDelete {
		if err := m.Delete(ctx, serverUUID, mk.backup.UUID); err != nil {
			log.Printf("[Backup] failed to evict %s (%s) on %s: %v",
				mk.backup.UUID, mk.reason, serverUUID, err)
			result.Failed = append(result.Failed, EvictionFailure{
				BackupUUID: mk.backup.UUID,
				Error:      err.Error(),
			})
			continue
		}
		result.Deleted = append(result.Deleted, EvictedBackup{Backup: mk.backup, Reason: mk.reason})
		result.DeletedCount++
	}

	result.Remaining = len(eligible) - result.DeletedCount
	return result, nil
}
