package scheduler

import (
	"testing"

	"fleetplane/internal/events"
)

func TestRegisterReplacesExistingEntry(t *testing.T) {
	s := New(events.NewHub())

	if err := s.Register("sweep", "@daily", func() {}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := s.Register("sweep", "@hourly", func() {}); err != nil {
		t.Fatalf("second register failed: %v", err)
	}

	// One live entry per name, never two overlapping timers.
	if got := s.JobCount(); got != 1 {
		t.Errorf("job count = %d, want 1", got)
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	s := New(events.NewHub())
	if err := s.Register("sweep", "not a cron spec", func() {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if got := s.JobCount(); got != 0 {
		t.Errorf("job count = %d after failed register, want 0", got)
	}
}

func TestStopAllClearsRegistry(t *testing.T) {
	s := New(events.NewHub())
	s.Register("a", "@daily", func() {})
	s.Register("b", "@hourly", func() {})
	s.Start()

	s.StopAll()

	if s.Running() {
		t.Error("scheduler should not be running after StopAll")
	}
	if got := s.JobCount(); got != 0 {
		t.Errorf("job count = %d after StopAll, want 0", got)
	}
}

func TestStopKeepsRegistry(t *testing.T) {
	s := New(events.NewHub())
	s.Register("a", "@daily", func() {})
	s.Start()
	s.Stop()

	if s.Running() {
		t.Error("scheduler should be stopped")
	}
	if got := s.JobCount(); got != 1 {
		t.Errorf("job count = %d after Stop, want 1 (registry survives)", got)
	}
}

func TestStopJob(t *testing.T) {
	s := New(events.NewHub())
	s.Register("a", "@daily", func() {})

	if !s.StopJob("a") {
		t.Error("StopJob should report success for a registered job")
	}
	if s.StopJob("a") {
		t.Error("StopJob should report failure for an unknown job")
	}
}

func TestJobNamesSorted(t *testing.T) {
	s := New(events.NewHub())
	s.Register("zulu", "@daily", func() {})
	s.Register("alpha", "@daily", func() {})

	names := s.JobNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zulu" {
		t.Errorf("names = %v, want [alpha zulu]", names)
	}
}

func TestWrapRecoversPanics(t *testing.T) {
	hub := events.NewHub()
	_, ch := hub.Subscribe(4)

	s := New(hub)
	task := s.wrap("explosive", func() {
		panic("boom")
	})

	// The wrapped task must not propagate the panic.
	task()

	metrics := s.Metrics().Snapshot()
	if metrics["panics"].(uint64) != 1 {
		t.Errorf("panics = %v, want 1", metrics["panics"])
	}
	if metrics["ticks_failed"].(uint64) != 1 {
		t.Errorf("ticks_failed = %v, want 1", metrics["ticks_failed"])
	}

	select {
	case evt := <-ch:
		if evt.Type != events.TypeJobFailure {
			t.Errorf("event type = %s, want %s", evt.Type, events.TypeJobFailure)
		}
	default:
		t.Error("expected a job failure event on the hub")
	}

	// The same wrapped task still runs on its next tick.
	ran := false
	task2 := s.wrap("fine", func() { ran = true })
	task2()
	if !ran {
		t.Error("subsequent tick should still run")
	}
}
