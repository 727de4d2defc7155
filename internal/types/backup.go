package types

import "time"

// BackupStatus is derived from the two panel booleans, never stored.
type BackupStatus string

const (
	BackupProcessing BackupStatus = "processing"
	BackupCompleted  BackupStatus = "completed"
	BackupLocked     BackupStatus = "locked"
)

// BackupRecord is one backup as the panel reports it, owned by exactly one
// server (referenced by UUID, never embedded).
type BackupRecord struct {
	UUID         string     `json:"uuid"`
	ServerUUID   string     `json:"server_uuid"`
	Name         string     `json:"name"`
	Checksum     string     `json:"checksum"`
	IgnoredFiles string     `json:"ignored_files"`
	SizeBytes    int64      `json:"size_bytes"`
	Successful   bool       `json:"successful"`
	Locked       bool       `json:"locked"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Status derives the display status. A successful backup reports completed
// even while locked; the lock still exempts it from eviction.
func (b BackupRecord) Status() BackupStatus {
	if b.Successful {
		return BackupCompleted
	}
	if b.Locked {
		return BackupLocked
	}
	return BackupProcessing
}

// Eligible reports whether automatic eviction may consider this backup.
func (b BackupRecord) Eligible() bool {
	return b.Status() == BackupCompleted && !b.Locked
}

// EvictionReason records which retention rule matched first.
type EvictionReason string

const (
	EvictExceededMaxCount  EvictionReason = "exceeded_max_count"
	EvictExceededRetention EvictionReason = "exceeded_retention"
)
