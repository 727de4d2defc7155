package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetplane/internal/backup"
	"fleetplane/internal/config"
	"fleetplane/internal/events"
	"fleetplane/internal/panel"
	"fleetplane/internal/scheduler"
	"fleetplane/internal/types"
)

// ============================================================================
// FAKES
// ============================================================================

type fakeConnectivity struct {
	appOK, clientOK bool
}

func (f *fakeConnectivity) TestConnectivity(ctx context.Context) (bool, bool) {
	return f.appOK, f.clientOK
}

type fakeFleet struct {
	servers   []types.ServerRecord
	listErr   error
	snapshots map[string]*types.ResourceSnapshot
	resErrs   map[string]error
}

func (f *fakeFleet) ListAll(ctx context.Context) ([]types.ServerRecord, error) {
	return f.servers, f.listErr
}

func (f *fakeFleet) Resources(ctx context.Context, serverUUID string) (*types.ResourceSnapshot, error) {
	if err := f.resErrs[serverUUID]; err != nil {
		return nil, err
	}
	if snap, ok := f.snapshots[serverUUID]; ok {
		return snap, nil
	}
	return &types.ResourceSnapshot{ServerUUID: serverUUID, State: types.StateRunning}, nil
}

// fakeBackups satisfies both the facade and the scheduler job interfaces.
type fakeBackups struct {
	createdFor []string
}

func (f *fakeBackups) CreateMany(ctx context.Context, serverUUIDs []string, opts backup.CreateOptions) []backup.ServerResult {
	f.createdFor = serverUUIDs
	results := make([]backup.ServerResult, len(serverUUIDs))
	for i, id := range serverUUIDs {
		results[i] = backup.ServerResult{ServerUUID: id, Success: true}
	}
	return results
}

func (f *fakeBackups) Cleanup(ctx context.Context, serverUUID string) (*backup.CleanupResult, error) {
	return &backup.CleanupResult{ServerUUID: serverUUID}, nil
}

func (f *fakeBackups) Create(ctx context.Context, serverUUID string, opts backup.CreateOptions) (*types.BackupRecord, error) {
	return &types.BackupRecord{UUID: "new", ServerUUID: serverUUID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		PanelURL:             "https://panel.example.com",
		AppAPIKey:            "ptla_test",
		ClientAPIKey:         "ptlc_test",
		RequestTimeout:       15 * time.Second,
		RateLimitMaxRequests: 60,
		RateLimitWindow:      time.Minute,
		MaxBackupsPerServer:  5,
		BackupNamePrefix:     "auto",
		RetentionDays:        30,
		SchedulerEnabled:     true,
		CleanupSchedule:      "@daily",
		MonitorSchedule:      "@hourly",
		BackupSchedule:       "@weekly",
	}
}

func newTestIntegration(cfg *config.Config, conn *fakeConnectivity, fleet *fakeFleet, backups *fakeBackups) *Integration {
	hub := events.NewHub()
	sched := scheduler.New(hub)
	jobs := scheduler.NewJobs(scheduler.Deps{
		Fleet:   fleet,
		Backups: backups,
		Hub:     hub,
	})
	return New(cfg, conn, fleet, backups, sched, jobs)
}

// ============================================================================
// INIT / SHUTDOWN
// ============================================================================

func TestInitStartsScheduler(t *testing.T) {
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true, clientOK: true}, &fakeFleet{}, &fakeBackups{})

	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer i.Shutdown()

	if !i.Initialized() {
		t.Error("facade should report initialized")
	}
	if !i.sched.Running() {
		t.Error("scheduler should be running")
	}
	if got := i.sched.JobCount(); got != 3 {
		t.Errorf("job count = %d, want 3", got)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true, clientOK: true}, &fakeFleet{}, &fakeBackups{})

	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer i.Shutdown()

	// A second Init is a no-op: no error, no duplicate jobs.
	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("repeated init errored: %v", err)
	}
	if got := i.sched.JobCount(); got != 3 {
		t.Errorf("job count after double init = %d, want 3", got)
	}
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.PanelURL = ""
	cfg.AppAPIKey = "bad"
	i := newTestIntegration(cfg, &fakeConnectivity{appOK: true, clientOK: true}, &fakeFleet{}, &fakeBackups{})

	err := i.Init(context.Background())
	if err == nil {
		t.Fatal("invalid config should fail init")
	}
	var vErr *config.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected aggregated validation error, got %T", err)
	}
	if len(vErr.Violations) < 2 {
		t.Errorf("violations = %v, want both reported", vErr.Violations)
	}
	if i.Initialized() {
		t.Error("failed init must not mark the facade initialized")
	}
}

func TestInitRefusesWhenBothSurfacesDown(t *testing.T) {
	i := newTestIntegration(testConfig(), &fakeConnectivity{}, &fakeFleet{}, &fakeBackups{})

	err := i.Init(context.Background())
	if !panel.IsCode(err, panel.ErrCodeUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
}

func TestInitToleratesPartialConnectivity(t *testing.T) {
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true}, &fakeFleet{}, &fakeBackups{})

	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("partial connectivity should still initialize: %v", err)
	}
	i.Shutdown()
}

func TestInitHonorsSchedulerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SchedulerEnabled = false
	i := newTestIntegration(cfg, &fakeConnectivity{appOK: true, clientOK: true}, &fakeFleet{}, &fakeBackups{})

	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer i.Shutdown()

	if i.sched.Running() {
		t.Error("scheduler should stay stopped when disabled")
	}
	if got := i.sched.JobCount(); got != 0 {
		t.Errorf("job count = %d, want 0", got)
	}
}

func TestShutdownBeforeInitIsSafe(t *testing.T) {
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true, clientOK: true}, &fakeFleet{}, &fakeBackups{})
	i.Shutdown()
	if i.Initialized() {
		t.Error("facade should not be initialized")
	}
}

// ============================================================================
// HEALTH
// ============================================================================

func TestHealthCheckClassification(t *testing.T) {
	conn := &fakeConnectivity{appOK: true, clientOK: true}
	i := newTestIntegration(testConfig(), conn, &fakeFleet{}, &fakeBackups{})
	if err := i.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer i.Shutdown()

	health := i.HealthCheck(context.Background())
	if health.Overall != "healthy" {
		t.Errorf("overall = %s, want healthy", health.Overall)
	}

	conn.clientOK = false
	health = i.HealthCheck(context.Background())
	if health.Overall != "degraded" {
		t.Errorf("overall with one surface down = %s, want degraded", health.Overall)
	}
	if health.Components["panel_client"] != "unhealthy" {
		t.Errorf("panel_client = %s", health.Components["panel_client"])
	}
	if health.Components["panel_application"] != "healthy" {
		t.Errorf("panel_application = %s", health.Components["panel_application"])
	}
}

// ============================================================================
// CONVENIENCE OPERATIONS
// ============================================================================

func TestBackupAllServersSkipsSuspended(t *testing.T) {
	fleet := &fakeFleet{servers: []types.ServerRecord{
		{UUID: "s1", Name: "alpha", State: types.StateRunning},
		{UUID: "s2", Name: "beta", Suspended: true},
		{UUID: "s3", Name: "gamma", State: types.StateSuspended},
	}}
	backups := &fakeBackups{}
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true, clientOK: true}, fleet, backups)

	results, err := i.BackupAllServers(context.Background(), backup.CreateOptions{})
	if err != nil {
		t.Fatalf("backup all failed: %v", err)
	}
	if len(results) != 1 || results[0].ServerUUID != "s1" {
		t.Errorf("results = %+v, want only s1", results)
	}
}

func TestFleetOverviewPartialFailure(t *testing.T) {
	fleet := &fakeFleet{
		servers: []types.ServerRecord{
			{UUID: "up", Name: "alpha", State: types.StateRunning},
			{UUID: "broken", Name: "beta", State: types.StateRunning},
			{UUID: "frozen", Name: "gamma", Suspended: true},
		},
		snapshots: map[string]*types.ResourceSnapshot{
			"up": {ServerUUID: "up", State: types.StateRunning,
				Memory: types.ResourceUsage{Percentage: 40}},
		},
		resErrs: map[string]error{"broken": errors.New("telemetry timeout")},
	}
	i := newTestIntegration(testConfig(), &fakeConnectivity{appOK: true, clientOK: true}, fleet, &fakeBackups{})

	overview, err := i.FleetOverview(context.Background())
	if err != nil {
		t.Fatalf("overview failed: %v", err)
	}

	if overview.Total != 3 {
		t.Errorf("total = %d, want 3", overview.Total)
	}
	if overview.Counts["running"] != 1 || overview.Counts["error"] != 1 || overview.Counts["suspended"] != 1 {
		t.Errorf("counts = %v", overview.Counts)
	}

	for _, entry := range overview.Servers {
		switch entry.UUID {
		case "up":
			if entry.Status != "running" || entry.MemoryPct != 40 {
				t.Errorf("up entry = %+v", entry)
			}
		case "broken":
			if entry.Status != "error" || entry.Error == "" {
				t.Errorf("broken entry = %+v", entry)
			}
		case "frozen":
			if entry.Status != "suspended" {
				t.Errorf("frozen entry = %+v", entry)
			}
		}
	}
}
