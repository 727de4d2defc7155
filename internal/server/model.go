package server

import (
	"time"

	"fleetplane/internal/types"
)

// ============================================================================
// WIRE MODELS
// ============================================================================

// serverAttributes is the panel's application-surface server object.
type serverAttributes struct {
	ID         int64  `json:"id"`
	UUID       string `json:"uuid"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Suspended  bool   `json:"suspended"`
	Status     string `json:"status"`
	Limits     struct {
		Memory int64 `json:"memory"`
		Swap   int64 `json:"swap"`
		Disk   int64 `json:"disk"`
		IO     int64 `json:"io"`
		CPU    int64 `json:"cpu"`
	} `json:"limits"`
	User       int64 `json:"user"`
	Node       int64 `json:"node"`
	Allocation int64 `json:"allocation"`
}

type serverObject struct {
	Attributes serverAttributes `json:"attributes"`
}

type serverListResponse struct {
	Data []serverObject `json:"data"`
	Meta struct {
		Pagination struct {
			Total       int `json:"total"`
			Count       int `json:"count"`
			PerPage     int `json:"per_page"`
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

// statsAttributes is the client-surface telemetry object.
type statsAttributes struct {
	CurrentState string `json:"current_state"`
	IsSuspended  bool   `json:"is_suspended"`
	Resources    struct {
		MemoryBytes      int64 `json:"memory_bytes"`
		MemoryLimitBytes int64 `json:"memory_limit_bytes"`
		CPUAbsolute      int64 `json:"cpu_absolute"`
		CPULimit         int64 `json:"cpu_limit"`
		DiskBytes        int64 `json:"disk_bytes"`
		DiskLimitBytes   int64 `json:"disk_limit_bytes"`
		NetworkRxBytes   int64 `json:"network_rx_bytes"`
		NetworkTxBytes   int64 `json:"network_tx_bytes"`
	} `json:"resources"`
}

type statsObject struct {
	Attributes statsAttributes `json:"attributes"`
}

// ============================================================================
// MAPPING
// ============================================================================

func normalizeState(s string) types.ServerState {
	switch types.ServerState(s) {
	case types.StateInstalling, types.StateStarting, types.StateRunning,
		types.StateStopping, types.StateStopped, types.StateOffline,
		types.StateSuspended, types.StateTransferring:
		return types.ServerState(s)
	}
	return types.StateUnknown
}

func mapServer(a serverAttributes) types.ServerRecord {
	return types.ServerRecord{
		ID:      a.ID,
		UUID:    a.UUID,
		ShortID: a.Identifier,
		Name:    a.Name,
		State:   normalizeState(a.Status),
		Limits: types.ResourceLimits{
			MemoryMB:   a.Limits.Memory,
			DiskMB:     a.Limits.Disk,
			CPUPercent: a.Limits.CPU,
			SwapMB:     a.Limits.Swap,
			IOWeight:   a.Limits.IO,
		},
		Suspended:    a.Suspended,
		OwnerID:      a.User,
		NodeID:       a.Node,
		AllocationID: a.Allocation,
	}
}

func mapSnapshot(serverUUID string, a statsAttributes) types.ResourceSnapshot {
	r := a.Resources
	return types.ResourceSnapshot{
		ServerUUID:     serverUUID,
		State:          normalizeState(a.CurrentState),
		Suspended:      a.IsSuspended,
		Memory:         types.NewResourceUsage(r.MemoryBytes, r.MemoryLimitBytes),
		CPU:            types.NewResourceUsage(r.CPUAbsolute, r.CPULimit),
		Disk:           types.NewResourceUsage(r.DiskBytes, r.DiskLimitBytes),
		NetworkRxBytes: r.NetworkRxBytes,
		NetworkTxBytes: r.NetworkTxBytes,
		Timestamp:      time.Now().UTC(),
	}
}
