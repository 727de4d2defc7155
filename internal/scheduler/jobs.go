package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"fleetplane/internal/backup"
	"fleetplane/internal/events"
	"fleetplane/internal/notify"
	"fleetplane/internal/types"
)

// ============================================================================
// JOB DEPENDENCIES
// ============================================================================

// FleetService is the slice of the server controller the jobs need.
type FleetService interface {
	ListAll(ctx context.Context) ([]types.ServerRecord, error)
	Resources(ctx context.Context, serverUUID string) (*types.ResourceSnapshot, error)
}

// BackupService is the slice of the backup manager the jobs need.
type BackupService interface {
	Cleanup(ctx context.Context, serverUUID string) (*backup.CleanupResult, error)
	Create(ctx context.Context, serverUUID string, opts backup.CreateOptions) (*types.BackupRecord, error)
}

// HistoryStore persists telemetry snapshots. Optional; a nil store disables
// history without touching the sweep logic.
type HistoryStore interface {
	SaveSnapshot(ctx context.Context, snap *types.ResourceSnapshot) error
	PruneOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Job names. One live entry per name, enforced by the Scheduler registry.
const (
	JobDailyCleanup     = "daily-cleanup"
	JobHourlyMonitoring = "hourly-monitoring"
	JobWeeklyBackup     = "weekly-backup"
)

// Monitoring thresholds.
const (
	memoryAlertPercent = 90
	diskAlertPercent   = 85
	cpuAlertPercent    = 95
)

// Deps wires the recurring jobs to their collaborators.
type Deps struct {
	Fleet            FleetService
	Backups          BackupService
	Notifier         notify.Notifier
	Hub              *events.Hub
	History          HistoryStore
	AdminAddress     string
	HistoryRetention time.Duration
	SweepTimeout     time.Duration
}

// Jobs owns the three recurring sweeps. Every sweep isolates per-server
// failures; errors never propagate out of a tick.
type Jobs struct {
	deps Deps
	now  func() time.Time
}

func NewJobs(deps Deps) *Jobs {
	if deps.SweepTimeout <= 0 {
		deps.SweepTimeout = 10 * time.Minute
	}
	return &Jobs{deps: deps, now: time.Now}
}

// RegisterAll installs the three jobs on the scheduler.
func (j *Jobs) RegisterAll(s *Scheduler, cleanupSpec, monitorSpec, backupSpec string) error {
	if err := s.Register(JobDailyCleanup, cleanupSpec, j.RunCleanup); err != nil {
		return fmt.Errorf("register %s: %w", JobDailyCleanup, err)
	}
	if err := s.Register(JobHourlyMonitoring, monitorSpec, j.RunMonitoring); err != nil {
		return fmt.Errorf("register %s: %w", JobHourlyMonitoring, err)
	}
	if err := s.Register(JobWeeklyBackup, backupSpec, j.RunWeeklyBackup); err != nil {
		return fmt.Errorf("register %s: %w", JobWeeklyBackup, err)
	}
	return nil
}

func (j *Jobs) sweepContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.deps.SweepTimeout)
}

// ============================================================================
// DAILY CLEANUP
// ============================================================================

// CleanupSummary aggregates one fleet-wide retention sweep.
type CleanupSummary struct {
	ServersChecked int                    `json:"servers_checked"`
	TotalDeleted   int                    `json:"total_deleted"`
	PerServer      []backup.CleanupResult `json:"per_server,omitempty"`
	Failures       []string               `json:"failures,omitempty"`
}

func (j *Jobs) RunCleanup() {
	ctx, cancel := j.sweepContext()
	defer cancel()
	j.CleanupSweep(ctx)
}

// CleanupSweep runs retention over every server. One server's failure is
// logged and skipped; the sweep continues. A notification goes out only
// when at least one backup was deleted.
func (j *Jobs) CleanupSweep(ctx context.Context) *CleanupSummary {
	summary := &CleanupSummary{}

	servers, err := j.deps.Fleet.ListAll(ctx)
	if err != nil {
		log.Printf("[Jobs] cleanup sweep: listing fleet failed: %v", err)
		summary.Failures = append(summary.Failures, fmt.Sprintf("fleet listing: %v", err))
		return summary
	}

	for _, srv := range servers {
		summary.ServersChecked++
		result, err := j.deps.Backups.Cleanup(ctx, srv.UUID)
		if err != nil {
			log.Printf("[Jobs] cleanup for %s (%s) failed: %v", srv.Name, srv.UUID, err)
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", srv.Name, err))
			continue
		}
		if result.DeletedCount > 0 {
			summary.TotalDeleted += result.DeletedCount
			summary.PerServer = append(summary.PerServer, *result)
		}
	}

	if j.deps.History != nil && j.deps.HistoryRetention > 0 {
		if pruned, err := j.deps.History.PruneOlderThan(ctx, j.deps.HistoryRetention); err != nil {
			log.Printf("[Jobs] history prune failed: %v", err)
		} else if pruned > 0 {
			log.Printf("[Jobs] pruned %d telemetry rows", pruned)
		}
	}

	if j.deps.Hub != nil {
		j.deps.Hub.Publish(events.New(events.TypeCleanupSweep, summary))
	}

	if summary.TotalDeleted > 0 {
		text := fmt.Sprintf("🧹 Backup cleanup: removed %d backups across %d of %d servers",
			summary.TotalDeleted, len(summary.PerServer), summary.ServersChecked)
		j.notifyAdmin(ctx, text)
	}

	return summary
}

// ============================================================================
// HOURLY MONITORING
// ============================================================================

// MonitoringSummary aggregates one monitoring sweep.
type MonitoringSummary struct {
	ServersChecked int           `json:"servers_checked"`
	Alerts         []types.Alert `json:"alerts,omitempty"`
	CriticalCount  int           `json:"critical_count"`
}

func (j *Jobs) RunMonitoring() {
	ctx, cancel := j.sweepContext()
	defer cancel()
	j.MonitoringSweep(ctx)
}

// MonitoringSweep fetches a snapshot for every server and computes alerts.
// A fetch failure becomes a monitoring_error alert for that server rather
// than a skipped server. All alerts are computed and published on the hub;
// only the critical subset is pushed to the admin address.
func (j *Jobs) MonitoringSweep(ctx context.Context) *MonitoringSummary {
	summary := &MonitoringSummary{}

	servers, err := j.deps.Fleet.ListAll(ctx)
	if err != nil {
		log.Printf("[Jobs] monitoring sweep: listing fleet failed: %v", err)
		return summary
	}

	for _, srv := range servers {
		summary.ServersChecked++

		snap, err := j.deps.Fleet.Resources(ctx, srv.UUID)
		if err != nil {
			summary.Alerts = append(summary.Alerts, types.Alert{
				ServerUUID: srv.UUID,
				ServerName: srv.Name,
				Kind:       types.AlertMonitoringError,
				Message:    fmt.Sprintf("telemetry fetch failed: %v", err),
				Timestamp:  j.now().UTC(),
			})
			continue
		}

		if j.deps.History != nil {
			if err := j.deps.History.SaveSnapshot(ctx, snap); err != nil {
				log.Printf("[Jobs] saving snapshot for %s failed: %v", srv.UUID, err)
			}
		}

		summary.Alerts = append(summary.Alerts, j.checkSnapshot(srv, snap)...)
	}

	for _, alert := range summary.Alerts {
		if alert.Kind.Critical() {
			summary.CriticalCount++
		}
		if j.deps.Hub != nil {
			j.deps.Hub.Publish(events.New(events.TypeMonitorAlert, alert))
		}
	}

	if summary.CriticalCount > 0 {
		j.notifyAdmin(ctx, formatCriticalAlerts(summary.Alerts))
	}

	return summary
}

func (j *Jobs) checkSnapshot(srv types.ServerRecord, snap *types.ResourceSnapshot) []types.Alert {
	var alerts []types.Alert
	now := j.now().UTC()

	add := func(kind types.AlertKind, msg string, value float64) {
		alerts = append(alerts, types.Alert{
			ServerUUID: srv.UUID,
			ServerName: srv.Name,
			Kind:       kind,
			Message:    msg,
			Value:      value,
			Timestamp:  now,
		})
	}

	if snap.Memory.Percentage > memoryAlertPercent {
		add(types.AlertHighMemory,
			fmt.Sprintf("memory at %.0f%%", snap.Memory.Percentage), snap.Memory.Percentage)
	}
	if snap.Disk.Percentage > diskAlertPercent {
		add(types.AlertHighDisk,
			fmt.Sprintf("disk at %.0f%%", snap.Disk.Percentage), snap.Disk.Percentage)
	}
	if snap.CPU.Percentage > cpuAlertPercent {
		add(types.AlertHighCPU,
			fmt.Sprintf("cpu at %.0f%%", snap.CPU.Percentage), snap.CPU.Percentage)
	}
	if snap.State == types.StateStopped || snap.State == types.StateOffline {
		add(types.AlertServerOffline, fmt.Sprintf("server is %s", snap.State), 0)
	}

	return alerts
}

func formatCriticalAlerts(alerts []types.Alert) string {
	var b strings.Builder
	b.WriteString("⚠️ Server alerts:")
	for _, a := range alerts {
		if !a.Kind.Critical() {
			continue
		}
		fmt.Fprintf(&b, "\n• %s: %s", a.ServerName, a.Message)
	}
	return b.String()
}

// ============================================================================
// WEEKLY BACKUP
// ============================================================================

// WeeklySummary aggregates one fleet-wide backup run.
type WeeklySummary struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Failures  []string `json:"failures,omitempty"`
}

func (j *Jobs) RunWeeklyBackup() {
	ctx, cancel := j.sweepContext()
	defer cancel()
	j.WeeklyBackupSweep(ctx)
}

// WeeklyBackupSweep creates a dated backup for every non-suspended server.
// Suspended servers are skipped, not attempted and not counted as failures.
func (j *Jobs) WeeklyBackupSweep(ctx context.Context) *WeeklySummary {
	summary := &WeeklySummary{}

	servers, err := j.deps.Fleet.ListAll(ctx)
	if err != nil {
		log.Printf("[Jobs] weekly backup sweep: listing fleet failed: %v", err)
		return summary
	}

	name := fmt.Sprintf("weekly-%s", j.now().UTC().Format("2006-01-02"))
	for _, srv := range servers {
		if srv.Suspended || srv.State == types.StateSuspended {
			summary.Skipped++
			continue
		}

		summary.Attempted++
		if _, err := j.deps.Backups.Create(ctx, srv.UUID, backup.CreateOptions{Name: name}); err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", srv.Name, err))
			log.Printf("[Jobs] weekly backup for %s (%s) failed: %v", srv.Name, srv.UUID, err)
			continue
		}
		summary.Succeeded++
	}

	if j.deps.Hub != nil {
		j.deps.Hub.Publish(events.New(events.TypeWeeklyBackup, summary))
	}

	text := fmt.Sprintf("💾 Weekly backups: %d succeeded, %d failed, %d suspended servers skipped",
		summary.Succeeded, summary.Failed, summary.Skipped)
	j.notifyAdmin(ctx, text)

	return summary
}

func (j *Jobs) notifyAdmin(ctx context.Context, text string) {
	if j.deps.Notifier == nil || j.deps.AdminAddress == "" {
		return
	}
	if err := j.deps.Notifier.SendText(ctx, j.deps.AdminAddress, text); err != nil {
		log.Printf("[Jobs] admin notification failed: %v", err)
	}
}
