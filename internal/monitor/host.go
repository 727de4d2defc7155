package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// HostStats is the local process host's resource usage, reported alongside
// fleet status so operators can tell a sick bot host from a sick panel.
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
	DiskUsedGB    uint64  `json:"disk_used_gb"`
	DiskTotalGB   uint64  `json:"disk_total_gb"`
	NetRxKBps     uint64  `json:"net_rx_kbps"`
	NetTxKBps     uint64  `json:"net_tx_kbps"`
}

// HostMonitor samples the local host. Network rates are deltas between
// consecutive samples, so the first call reports zero.
type HostMonitor struct {
	mu         sync.Mutex
	lastRx     uint64
	lastTx     uint64
	lastSample time.Time
}

func NewHostMonitor() *HostMonitor {
	return &HostMonitor{}
}

// Stats takes one sample of the host.
func (m *HostMonitor) Stats() (*HostStats, error) {
	stats := &HostStats{}

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU stats: %w", err)
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory stats: %w", err)
	}
	stats.MemoryUsedMB = memInfo.Used / 1024 / 1024
	stats.MemoryTotalMB = memInfo.Total / 1024 / 1024

	diskUsage, err := disk.Usage("/")
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}
	stats.DiskUsedGB = diskUsage.Used / 1024 / 1024 / 1024
	stats.DiskTotalGB = diskUsage.Total / 1024 / 1024 / 1024

	netIO, err := net.IOCounters(false)
	if err != nil {
		return nil, fmt.Errorf("failed to get network stats: %w", err)
	}

	var currentRx, currentTx uint64
	if len(netIO) > 0 {
		currentRx = netIO[0].BytesRecv
		currentTx = netIO[0].BytesSent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.lastSample.IsZero() {
		elapsed := now.Sub(m.lastSample).Seconds()
		if elapsed > 0 && currentRx >= m.lastRx && currentTx >= m.lastTx {
			stats.NetRxKBps = uint64(float64(currentRx-m.lastRx) / 1024 / elapsed)
			stats.NetTxKBps = uint64(float64(currentTx-m.lastTx) / 1024 / elapsed)
		}
	}
	m.lastRx = currentRx
	m.lastTx = currentTx
	m.lastSample = now

	return stats, nil
}
