package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"fleetplane/internal/panel"
	"fleetplane/internal/types"
)

// ============================================================================
// BACKUP MANAGER
// ============================================================================

// Policy is the per-fleet retention configuration. Loaded once, immutable.
type Policy struct {
	MaxPerServer  int
	RetentionDays int
	NamePrefix    string
}

// Manager handles backup CRUD and the retention/eviction policy. Like the
// server controller it holds no authoritative state; the panel is the sole
// writer and every listing is fresh.
type Manager struct {
	client *panel.Client
	policy Policy

	now func() time.Time // injectable for tests
}

func NewManager(client *panel.Client, policy Policy) *Manager {
	return &Manager{
		client: client,
		policy: policy,
		now:    time.Now,
	}
}

func (m *Manager) Policy() Policy {
	return m.policy
}

// ============================================================================
// WIRE MODELS
// ============================================================================

type backupAttributes struct {
	UUID         string     `json:"uuid"`
	Name         string     `json:"name"`
	IgnoredFiles string     `json:"ignored_files"`
	Checksum     string     `json:"checksum"`
	Bytes        int64      `json:"bytes"`
	IsSuccessful bool       `json:"is_successful"`
	IsLocked     bool       `json:"is_locked"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type backupObject struct {
	Attributes backupAttributes `json:"attributes"`
}

type backupListResponse struct {
	Data []backupObject `json:"data"`
}

type downloadResponse struct {
	Attributes struct {
		URL       string     `json:"url"`
		ExpiresAt *time.Time `json:"expires_at"`
	} `json:"attributes"`
}

func mapBackup(serverUUID string, a backupAttributes) types.BackupRecord {
	return types.BackupRecord{
		UUID:         a.UUID,
		ServerUUID:   serverUUID,
		Name:         a.Name,
		Checksum:     a.Checksum,
		IgnoredFiles: a.IgnoredFiles,
		SizeBytes:    a.Bytes,
		Successful:   a.IsSuccessful,
		Locked:       a.IsLocked,
		CreatedAt:    a.CreatedAt,
		CompletedAt:  a.CompletedAt,
	}
}

func backupsPath(serverUUID string) string {
	return fmt.Sprintf("/servers/%s/backups", shortID(serverUUID))
}

func shortID(identifier string) string {
	if len(identifier) > 8 {
		return identifier[:8]
	}
	return identifier
}

// ============================================================================
// CRUD
// ============================================================================

// CreateOptions are the caller-facing knobs for one backup.
type CreateOptions struct {
	Name         string
	IgnoredFiles string
	Locked       bool
}

// Create requests a new backup. The panel answers immediately with a
// processing record; completion shows up in later listings. When no name is
// given one is synthesized from the policy prefix and the current time.
func (m *Manager) Create(ctx context.Context, serverUUID string, opts CreateOptions) (*types.BackupRecord, error) {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s", m.policy.NamePrefix, m.now().UTC().Format("2006-01-02T15-04-05"))
	}

	body := map[string]interface{}{
		"name":      name,
		"is_locked": opts.Locked,
	}
	if opts.IgnoredFiles != "" {
		body["ignored"] = opts.IgnoredFiles
	}

	raw, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodPost, backupsPath(serverUUID), body)
	if err != nil {
		return nil, attachBackupContext(err, serverUUID, "")
	}

	var obj backupObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable backup", err).
			WithContext("server", serverUUID)
	}

	record := mapBackup(serverUUID, obj.Attributes)
	return &record, nil
}

// List fetches every backup the panel holds for one server.
func (m *Manager) List(ctx context.Context, serverUUID string) ([]types.BackupRecord, error) {
	raw, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodGet, backupsPath(serverUUID), nil)
	if err != nil {
		return nil, attachBackupContext(err, serverUUID, "")
	}

	var resp backupListResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable backup list", err).
			WithContext("server", serverUUID)
	}

	records := make([]types.BackupRecord, 0, len(resp.Data))
	for _, obj := range resp.Data {
		records = append(records, mapBackup(serverUUID, obj.Attributes))
	}
	return records, nil
}

// Get re-reads one backup; polling this is how completion is observed.
func (m *Manager) Get(ctx context.Context, serverUUID, backupID string) (*types.BackupRecord, error) {
	raw, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodGet,
		backupsPath(serverUUID)+"/"+backupID, nil)
	if err != nil {
		if panel.IsCode(err, panel.ErrCodeNotFound) {
			return nil, panel.ErrBackupNotFound(backupID).WithContext("server", serverUUID)
		}
		return nil, attachBackupContext(err, serverUUID, backupID)
	}

	var obj backupObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable backup", err).
			WithContext("server", serverUUID).WithContext("backup", backupID)
	}

	record := mapBackup(serverUUID, obj.Attributes)
	return &record, nil
}

// DownloadURL is the single-use, time-boxed link the panel issues. It is
// returned as-is and never cached here.
type DownloadURL struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (m *Manager) GetDownloadURL(ctx context.Context, serverUUID, backupID string) (*DownloadURL, error) {
	raw, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodGet,
		backupsPath(serverUUID)+"/"+backupID+"/download", nil)
	if err != nil {
		if panel.IsCode(err, panel.ErrCodeNotFound) {
			return nil, panel.ErrBackupNotFound(backupID).WithContext("server", serverUUID)
		}
		return nil, attachBackupContext(err, serverUUID, backupID)
	}

	var resp downloadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, panel.NewError(panel.ErrCodeRequestFailed, "panel returned an unreadable download link", err).
			WithContext("server", serverUUID).WithContext("backup", backupID)
	}

	return &DownloadURL{URL: resp.Attributes.URL, ExpiresAt: resp.Attributes.ExpiresAt}, nil
}

// Delete removes one backup on the panel.
func (m *Manager) Delete(ctx context.Context, serverUUID, backupID string) error {
	_, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodDelete,
		backupsPath(serverUUID)+"/"+backupID, nil)
	if err != nil {
		if panel.IsCode(err, panel.ErrCodeNotFound) {
			return panel.ErrBackupNotFound(backupID).WithContext("server", serverUUID)
		}
		return attachBackupContext(err, serverUUID, backupID)
	}
	return nil
}

// Restore replays a backup onto the server. truncate wipes existing files
// first; it is destructive and must always be passed explicitly.
func (m *Manager) Restore(ctx context.Context, serverUUID, backupID string, truncate bool) error {
	body := map[string]bool{"truncate": truncate}
	_, err := m.client.Request(ctx, panel.SurfaceClient, http.MethodPost,
		backupsPath(serverUUID)+"/"+backupID+"/restore", body)
	if err != nil {
		if panel.IsCode(err, panel.ErrCodeNotFound) {
			return panel.ErrBackupNotFound(backupID).WithContext("server", serverUUID)
		}
		return attachBackupContext(err, serverUUID, backupID)
	}
	return nil
}

// ============================================================================
// AGGREGATION
// ============================================================================

// Stats is a fresh aggregation over the current listing.
type Stats struct {
	Total          int        `json:"total"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	Processing     int        `json:"processing"`
	Locked         int        `json:"locked"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	Oldest         *time.Time `json:"oldest,omitempty"`
	Newest         *time.Time `json:"newest,omitempty"`
}

func (m *Manager) Stats(ctx context.Context, serverUUID string) (*Stats, error) {
	backups, err := m.List(ctx, serverUUID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(backups)}
	for i := range backups {
		b := &backups[i]
		switch b.Status() {
		case types.BackupCompleted:
			stats.Completed++
		case types.BackupLocked:
			stats.Locked++
		case types.BackupProcessing:
			if b.CompletedAt != nil && !b.Successful {
				stats.Failed++
			} else {
				stats.Processing++
			}
		}
		stats.TotalSizeBytes += b.SizeBytes

		created := b.CreatedAt
		if stats.Oldest == nil || created.Before(*stats.Oldest) {
			t := created
			stats.Oldest = &t
		}
		if stats.Newest == nil || created.After(*stats.Newest) {
			t := created
			stats.Newest = &t
		}
	}
	return stats, nil
}

// ============================================================================
// FAN-OUT
// ============================================================================

// fan-out cap: the shared admission window is the real throttle, this just
// keeps bursts below the panel's tolerance.
const fanOutWorkers = 4

// ServerResult is one per-server outcome of a fan-out create.
type ServerResult struct {
	ServerUUID string              `json:"server_uuid"`
	Success    bool                `json:"success"`
	Backup     *types.BackupRecord `json:"backup,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// CreateMany fans out backup creation with independent per-server results.
// Partial failure is expected and reported per id, never escalated.
func (m *Manager) CreateMany(ctx context.Context, serverUUIDs []string, opts CreateOptions) []ServerResult {
	results := make([]ServerResult, len(serverUUIDs))

	sem := make(chan struct{}, fanOutWorkers)
	var wg sync.WaitGroup

	for i, uuid := range serverUUIDs {
		wg.Add(1)
		go func(i int, uuid string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := m.Create(ctx, uuid, opts)
			if err != nil {
				results[i] = ServerResult{ServerUUID: uuid, Error: err.Error()}
				return
			}
			results[i] = ServerResult{ServerUUID: uuid, Success: true, Backup: record}
		}(i, uuid)
	}

	wg.Wait()
	return results
}

func attachBackupContext(err error, serverUUID, backupID string) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*panel.APIError); ok {
		apiErr.WithContext("server", serverUUID)
		if backupID != "" {
			apiErr.WithContext("backup", backupID)
		}
		return apiErr
	}
	return err
}
