package integration

import (
	"context"
	"fmt"
	"log"
	"sync"

	"fleetplane/internal/backup"
	"fleetplane/internal/config"
	"fleetplane/internal/monitor"
	"fleetplane/internal/panel"
	"fleetplane/internal/scheduler"
	"fleetplane/internal/types"
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// FleetService is the server controller slice the facade consumes.
type FleetService interface {
	ListAll(ctx context.Context) ([]types.ServerRecord, error)
	Resources(ctx context.Context, serverUUID string) (*types.ResourceSnapshot, error)
}

// BackupService is the backup manager slice the facade consumes.
type BackupService interface {
	CreateMany(ctx context.Context, serverUUIDs []string, opts backup.CreateOptions) []backup.ServerResult
}

// Connectivity is the probe surface of the panel client.
type Connectivity interface {
	TestConnectivity(ctx context.Context) (appOK, clientOK bool)
}

// ============================================================================
// INTEGRATION FACADE
// ============================================================================

// Integration is the composition root the command front end talks to. All
// collaborators are constructor-injected; nothing here reaches for a global.
type Integration struct {
	cfg     *config.Config
	client  Connectivity
	servers FleetService
	backups BackupService
	sched   *scheduler.Scheduler
	jobs    *scheduler.Jobs
	host    *monitor.HostMonitor

	mu          sync.Mutex
	initialized bool
}

func New(cfg *config.Config, client Connectivity, servers FleetService, backups BackupService,
	sched *scheduler.Scheduler, jobs *scheduler.Jobs) *Integration {
	return &Integration{
		cfg:     cfg,
		client:  client,
		servers: servers,
		backups: backups,
		sched:   sched,
		jobs:    jobs,
		host:    monitor.NewHostMonitor(),
	}
}

// Init validates the configuration (reporting every violation at once),
// gates on connectivity, and starts the scheduler unless disabled. Calling
// it twice without a Shutdown is a warning-level no-op, never an error.
func (i *Integration) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.initialized {
		log.Println("[Integration] WARNING: Init called twice without Shutdown, ignoring")
		return nil
	}

	if err := i.cfg.Validate(); err != nil {
		return err
	}

	appOK, clientOK := i.client.TestConnectivity(ctx)
	if !appOK && !clientOK {
		return panel.NewError(panel.ErrCodeUnreachable, "panel is unreachable on both surfaces", nil)
	}
	if !appOK || !clientOK {
		log.Printf("[Integration] WARNING: partial connectivity (application=%t client=%t)", appOK, clientOK)
	}

	if i.cfg.SchedulerEnabled {
		if err := i.jobs.RegisterAll(i.sched, i.cfg.CleanupSchedule, i.cfg.MonitorSchedule, i.cfg.BackupSchedule); err != nil {
			return fmt.Errorf("scheduler registration failed: %w", err)
		}
		i.sched.Start()
	} else {
		log.Println("[Integration] scheduler disabled by configuration")
	}

	i.initialized = true
	log.Println("[Integration] initialized")
	return nil
}

// Shutdown stops the scheduler and marks the facade uninitialized. Safe to
// call at any time, including before Init.
func (i *Integration) Shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return
	}
	i.sched.StopAll()
	i.initialized = false
	log.Println("[Integration] shut down")
}

func (i *Integration) Initialized() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.initialized
}

// ============================================================================
// STATUS / HEALTH
// ============================================================================

type Status struct {
	Initialized      bool               `json:"initialized"`
	ApplicationAPI   bool               `json:"application_api"`
	ClientAPI        bool               `json:"client_api"`
	SchedulerRunning bool               `json:"scheduler_running"`
	JobCount         int                `json:"job_count"`
	Jobs             []string           `json:"jobs"`
	Host             *monitor.HostStats `json:"host,omitempty"`
}

// GetStatus is a read-only aggregation; a host-stats failure degrades the
// payload, never the call.
func (i *Integration) GetStatus(ctx context.Context) *Status {
	appOK, clientOK := i.client.TestConnectivity(ctx)

	status := &Status{
		Initialized:      i.Initialized(),
		ApplicationAPI:   appOK,
		ClientAPI:        clientOK,
		SchedulerRunning: i.sched.Running(),
		JobCount:         i.sched.JobCount(),
		Jobs:             i.sched.JobNames(),
	}

	if hostStats, err := i.host.Stats(); err != nil {
		log.Printf("[Integration] host stats unavailable: %v", err)
	} else {
		status.Host = hostStats
	}

	return status
}

type Health struct {
	Overall    string            `json:"overall"` // healthy | degraded | unhealthy
	Components map[string]string `json:"components"`
}

// HealthCheck classifies overall health: degraded when any checked
// component is unhealthy, unhealthy only when the check itself blows up.
func (i *Integration) HealthCheck(ctx context.Context) (health *Health) {
	health = &Health{Overall: "healthy", Components: map[string]string{}}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Integration] health check panicked: %v", r)
			health.Overall = "unhealthy"
			health.Components["check"] = fmt.Sprintf("panic: %v", r)
		}
	}()

	appOK, clientOK := i.client.TestConnectivity(ctx)
	health.Components["panel_application"] = healthWord(appOK)
	health.Components["panel_client"] = healthWord(clientOK)
	if !appOK || !clientOK {
		health.Overall = "degraded"
	}

	if i.cfg.SchedulerEnabled {
		running := i.sched.Running()
		health.Components["scheduler"] = healthWord(running)
		if i.Initialized() && !running {
			health.Overall = "degraded"
		}
	} else {
		health.Components["scheduler"] = "disabled"
	}

	return health
}

func healthWord(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// ============================================================================
// CONVENIENCE OPERATIONS
// ============================================================================

// BackupAllServers fans out backup creation to every non-suspended server.
func (i *Integration) BackupAllServers(ctx context.Context, opts backup.CreateOptions) ([]backup.ServerResult, error) {
	servers, err := i.servers.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var uuids []string
	for _, srv := range servers {
		if srv.Suspended || srv.State == types.StateSuspended {
			continue
		}
		uuids = append(uuids, srv.UUID)
	}

	return i.backups.CreateMany(ctx, uuids, opts), nil
}

// ServerOverview is one fleet-overview entry. Status "error" carries the
// fetch failure instead of aborting the sweep.
type ServerOverview struct {
	UUID      string  `json:"uuid"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	MemoryPct float64 `json:"memory_pct,omitempty"`
	CPUPct    float64 `json:"cpu_pct,omitempty"`
	DiskPct   float64 `json:"disk_pct,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type Overview struct {
	Total   int              `json:"total"`
	Counts  map[string]int   `json:"counts"`
	Servers []ServerOverview `json:"servers"`
}

// FleetOverview lists the fleet and classifies every server by its live
// telemetry. Suspended servers are classified without a telemetry fetch.
func (i *Integration) FleetOverview(ctx context.Context) (*Overview, error) {
	servers, err := i.servers.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	overview := &Overview{Total: len(servers), Counts: map[string]int{}}

	for _, srv := range servers {
		entry := ServerOverview{UUID: srv.UUID, Name: srv.Name}

		if srv.Suspended || srv.State == types.StateSuspended {
			entry.Status = "suspended"
			overview.Counts["suspended"]++
			overview.Servers = append(overview.Servers, entry)
			continue
		}

		snap, err := i.servers.Resources(ctx, srv.UUID)
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
			overview.Counts["error"]++
			overview.Servers = append(overview.Servers, entry)
			continue
		}

		entry.Status = classifyState(snap.State)
		entry.MemoryPct = snap.Memory.Percentage
		entry.CPUPct = snap.CPU.Percentage
		entry.DiskPct = snap.Disk.Percentage
		overview.Counts[entry.Status]++
		overview.Servers = append(overview.Servers, entry)
	}

	return overview, nil
}

func classifyState(state types.ServerState) string {
	switch state {
	case types.StateRunning, types.StateStarting:
		return "running"
	case types.StateStopped, types.StateStopping, types.StateOffline:
		return "stopped"
	case types.StateSuspended:
		return "suspended"
	case types.StateInstalling:
		return "installing"
	case types.StateTransferring:
		return "transferring"
	}
	return "unknown"
}
