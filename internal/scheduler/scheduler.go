package scheduler

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"fleetplane/internal/events"
)

// ============================================================================
// METRICS
// ============================================================================

type Metrics struct {
	ticksTotal  atomic.Uint64
	ticksFailed atomic.Uint64
	panics      atomic.Uint64
}

func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"ticks_total":  m.ticksTotal.Load(),
		"ticks_failed": m.ticksFailed.Load(),
		"panics":       m.panics.Load(),
	}
}

// ============================================================================
// SCHEDULER
// ============================================================================

// Scheduler runs named recurring jobs on one cron runner. Each name maps to
// at most one live entry: re-registering replaces the previous entry, so no
// two timers ever overlap for the same logical job. Job bodies are wrapped
// so a panic is logged and the next tick still fires.
type Scheduler struct {
	cron    *cron.Cron
	hub     *events.Hub
	metrics *Metrics

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func New(hub *events.Hub) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		hub:     hub,
		metrics: &Metrics{},
		entries: make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Register schedules task under name with the given cadence expression
// (cron spec or a descriptor like @daily). An existing entry under the same
// name is stopped first.
func (s *Scheduler) Register(name, spec string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		log.Printf("[Scheduler] replacing job %q", name)
		s.cron.Remove(old)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(spec, s.wrap(name, task))
	if err != nil {
		return err
	}
	s.entries[name] = id
	log.Printf("[Scheduler] registered job %q (%s)", name, spec)
	return nil
}

// wrap isolates one job execution: a panic inside the task body is caught
// and logged, and the entry stays registered for its next tick.
func (s *Scheduler) wrap(name string, task func()) func() {
	return func() {
		s.metrics.ticksTotal.Add(1)
		defer func() {
			if r := recover(); r != nil {
				s.metrics.panics.Add(1)
				s.metrics.ticksFailed.Add(1)
				log.Printf("[Scheduler] job %q panicked: %v", name, r)
				if s.hub != nil {
					s.hub.Publish(events.New(events.TypeJobFailure, map[string]interface{}{
						"job":   name,
						"panic": true,
					}))
				}
			}
		}()
		task()
	}
}

// Start begins firing ticks. Register works before or after Start.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	log.Printf("[Scheduler] started with %d jobs", len(s.entries))
}

// Stop halts tick dispatch but keeps the registry, so Start resumes it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
}

// StopAll stops every job and clears the registry. Used at shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	if s.running {
		s.cron.Stop()
		s.running = false
	}
	log.Println("[Scheduler] all jobs stopped")
}

// StopJob removes a single named job. Returns false when no such job exists.
func (s *Scheduler) StopJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	return true
}

func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
