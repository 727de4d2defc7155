package monitor

import (
	"testing"
	"time"
)

func TestHostMonitorStats(t *testing.T) {
	m := NewHostMonitor()

	stats, err := m.Stats()
	if err != nil {
		t.Fatalf("failed to get host stats: %v", err)
	}

	if stats.CPUPercent < 0 || stats.CPUPercent > 100 {
		t.Errorf("CPU percent out of range: %f", stats.CPUPercent)
	}
	if stats.MemoryTotalMB == 0 {
		t.Error("MemoryTotalMB should not be zero")
	}
	if stats.MemoryUsedMB > stats.MemoryTotalMB {
		t.Error("MemoryUsedMB should not exceed MemoryTotalMB")
	}
	if stats.DiskTotalGB == 0 {
		t.Error("DiskTotalGB should not be zero")
	}
	if stats.DiskUsedGB > stats.DiskTotalGB {
		t.Error("DiskUsedGB should not exceed DiskTotalGB")
	}

	// The first sample has no delta; network rates must be zero.
	if stats.NetRxKBps != 0 || stats.NetTxKBps != 0 {
		t.Errorf("first sample net rates = %d/%d, want 0/0", stats.NetRxKBps, stats.NetTxKBps)
	}

	time.Sleep(1100 * time.Millisecond)

	stats2, err := m.Stats()
	if err != nil {
		t.Fatalf("failed to get host stats on second call: %v", err)
	}
	if stats2.CPUPercent < 0 || stats2.CPUPercent > 100 {
		t.Errorf("CPU percent out of range on second call: %f", stats2.CPUPercent)
	}
}
