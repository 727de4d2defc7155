package db

import (
	"context"
	"time"

	"fleetplane/internal/types"
)

// ============================================================================
// TELEMETRY HISTORY
// ============================================================================

// History persists the ResourceSnapshots the monitoring job collects, so
// the ops API can chart per-server usage over time. The panel stays the
// source of truth for current state; these rows are samples, never read
// back as live telemetry.
type History struct {
	db *Service
}

func NewHistory(db *Service) *History {
	return &History{db: db}
}

const historySchema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id           BIGSERIAL PRIMARY KEY,
	server_uuid  TEXT NOT NULL,
	state        TEXT NOT NULL,
	memory_pct   DOUBLE PRECISION NOT NULL,
	cpu_pct      DOUBLE PRECISION NOT NULL,
	disk_pct     DOUBLE PRECISION NOT NULL,
	memory_bytes BIGINT NOT NULL,
	cpu_absolute BIGINT NOT NULL,
	disk_bytes   BIGINT NOT NULL,
	rx_bytes     BIGINT NOT NULL,
	tx_bytes     BIGINT NOT NULL,
	sampled_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_server_time_idx ON telemetry (server_uuid, sampled_at);
`

// EnsureSchema creates the telemetry table when missing.
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.execContext(ctx, historySchema); err != nil {
		return newDBError(ErrCodeSchemaFailed, "telemetry schema creation failed", err)
	}
	return nil
}

// SaveSnapshot stores one sample.
func (h *History) SaveSnapshot(ctx context.Context, snap *types.ResourceSnapshot) error {
	query := `
		INSERT INTO telemetry (
			server_uuid, state, memory_pct, cpu_pct, disk_pct,
			memory_bytes, cpu_absolute, disk_bytes, rx_bytes, tx_bytes, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	sampledAt := snap.Timestamp.UTC()
	if snap.Timestamp.IsZero() {
		sampledAt = time.Now().UTC()
	}

	_, err := h.db.execContext(ctx, query,
		snap.ServerUUID, string(snap.State),
		snap.Memory.Percentage, snap.CPU.Percentage, snap.Disk.Percentage,
		snap.Memory.Current, snap.CPU.Current, snap.Disk.Current,
		snap.NetworkRxBytes, snap.NetworkTxBytes, sampledAt,
	)
	return err
}

// Sample is one stored telemetry row.
type Sample struct {
	ServerUUID  string    `json:"server_uuid"`
	State       string    `json:"state"`
	MemoryPct   float64   `json:"memory_pct"`
	CPUPct      float64   `json:"cpu_pct"`
	DiskPct     float64   `json:"disk_pct"`
	MemoryBytes int64     `json:"memory_bytes"`
	CPUAbsolute int64     `json:"cpu_absolute"`
	DiskBytes   int64     `json:"disk_bytes"`
	RxBytes     int64     `json:"rx_bytes"`
	TxBytes     int64     `json:"tx_bytes"`
	SampledAt   time.Time `json:"sampled_at"`
}

// GetRecent returns up to limit samples for one server, oldest first.
func (h *History) GetRecent(ctx context.Context, serverUUID string, limit int) ([]Sample, error) {
	query := `
		SELECT server_uuid, state, memory_pct, cpu_pct, disk_pct,
		       memory_bytes, cpu_absolute, disk_bytes, rx_bytes, tx_bytes, sampled_at
		FROM telemetry
		WHERE server_uuid = $1
		ORDER BY sampled_at DESC
		LIMIT $2
	`

	rows, err := h.db.queryContext(ctx, query, serverUUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(
			&s.ServerUUID, &s.State, &s.MemoryPct, &s.CPUPct, &s.DiskPct,
			&s.MemoryBytes, &s.CPUAbsolute, &s.DiskBytes, &s.RxBytes, &s.TxBytes, &s.SampledAt,
		); err != nil {
			return nil, newDBError(ErrCodeQueryFailed, "telemetry scan failed", err)
		}
		samples = append(samples, s)
	}

	// Reverse to chronological order.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}

	return samples, rows.Err()
}

// PruneOlderThan deletes samples older than age and reports the count.
func (h *History) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-age)
	result, err := h.db.execContext(ctx, `DELETE FROM telemetry WHERE sampled_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
