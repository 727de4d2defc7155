package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// EVENT HUB
// ============================================================================

type Type string

const (
	TypeCleanupSweep  Type = "cleanup_sweep"
	TypeMonitorAlert  Type = "monitor_alert"
	TypeWeeklyBackup  Type = "weekly_backup"
	TypeJobFailure    Type = "job_failure"
	TypePowerSignal   Type = "power_signal"
	TypeBackupCreated Type = "backup_created"
)

type Event struct {
	Type      Type        `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

func New(eventType Type, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}
}

// Hub is an in-process fan-out. Slow subscribers drop events instead of
// blocking publishers; scheduler jobs must never stall on a dead websocket.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.published.Add(1)
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, buffer)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *Hub) Snapshot() map[string]interface{} {
	h.mu.RLock()
	subscribers := len(h.subs)
	h.mu.RUnlock()

	return map[string]interface{}{
		"subscribers":      subscribers,
		"events_published": h.published.Load(),
		"events_dropped":   h.dropped.Load(),
	}
}
