package types

import "time"

// AlertKind classifies one monitoring finding.
type AlertKind string

const (
	AlertHighMemory      AlertKind = "high_memory"
	AlertHighDisk        AlertKind = "high_disk"
	AlertHighCPU         AlertKind = "high_cpu"
	AlertServerOffline   AlertKind = "server_offline"
	AlertMonitoringError AlertKind = "monitoring_error"
)

// Critical reports whether this kind is pushed to the admin notification
// address. Non-critical kinds are still computed and published on the
// events hub.
func (k AlertKind) Critical() bool {
	switch k {
	case AlertHighMemory, AlertHighDisk, AlertServerOffline:
		return true
	}
	return false
}

// Alert is one monitoring finding for one server.
type Alert struct {
	ServerUUID string    `json:"server_uuid"`
	ServerName string    `json:"server_name"`
	Kind       AlertKind `json:"kind"`
	Message    string    `json:"message"`
	Value      float64   `json:"value,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
