package types

import (
	"math"
	"time"
)

// ServerState is the lifecycle state reported by the remote panel. It is
// projected, never tracked locally: a power signal does not change it.
type ServerState string

const (
	StateInstalling   ServerState = "installing"
	StateStarting     ServerState = "starting"
	StateRunning      ServerState = "running"
	StateStopping     ServerState = "stopping"
	StateStopped      ServerState = "stopped"
	StateOffline      ServerState = "offline"
	StateSuspended    ServerState = "suspended"
	StateTransferring ServerState = "transferring"
	StateUnknown      ServerState = "unknown"
)

// ResourceLimits holds the configured ceilings for one server.
type ResourceLimits struct {
	MemoryMB   int64 `json:"memory_mb"`
	DiskMB     int64 `json:"disk_mb"`
	CPUPercent int64 `json:"cpu_percent"`
	SwapMB     int64 `json:"swap_mb"`
	IOWeight   int64 `json:"io_weight"`
}

// ServerRecord is one server as the panel reports it. Identity fields are
// immutable; State/Limits are whatever the last fetch returned.
type ServerRecord struct {
	ID           int64          `json:"id"`
	UUID         string         `json:"uuid"`
	ShortID      string         `json:"short_id"`
	Name         string         `json:"name"`
	State        ServerState    `json:"state"`
	Limits       ResourceLimits `json:"limits"`
	Suspended    bool           `json:"suspended"`
	OwnerID      int64          `json:"owner_id"`
	NodeID       int64          `json:"node_id"`
	AllocationID int64          `json:"allocation_id"`
}

// Pagination is passed through from the panel response, never computed here.
type Pagination struct {
	Current    int `json:"current"`
	PerPage    int `json:"per_page"`
	PageCount  int `json:"page_count"`
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`
}

// ResourceUsage is a current/limit pair with a precomputed percentage.
type ResourceUsage struct {
	Current    int64   `json:"current"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// NewResourceUsage computes the percentage with a zero-limit guard:
// unlimited resources report 0%, never a division by zero.
func NewResourceUsage(current, limit int64) ResourceUsage {
	u := ResourceUsage{Current: current, Limit: limit}
	if limit > 0 {
		u.Percentage = math.Round(float64(current) / float64(limit) * 100)
	}
	return u
}

// ResourceSnapshot is point-in-time telemetry for one server. Built fresh
// on every query and never persisted as authoritative state.
type ResourceSnapshot struct {
	ServerUUID     string        `json:"server_uuid"`
	State          ServerState   `json:"state"`
	Suspended      bool          `json:"suspended"`
	Memory         ResourceUsage `json:"memory"`
	CPU            ResourceUsage `json:"cpu"`
	Disk           ResourceUsage `json:"disk"`
	NetworkRxBytes int64         `json:"network_rx_bytes"`
	NetworkTxBytes int64         `json:"network_tx_bytes"`
	Timestamp      time.Time     `json:"timestamp"`
}
