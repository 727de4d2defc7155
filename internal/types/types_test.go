package types

import (
	"testing"
	"time"
)

func TestBackupStatusDerivation(t *testing.T) {
	cases := []struct {
		name       string
		successful bool
		locked     bool
		want       BackupStatus
	}{
		{"processing", false, false, BackupProcessing},
		{"completed", true, false, BackupCompleted},
		{"locked while incomplete", false, true, BackupLocked},
		// A successful backup reports completed even while locked.
		{"completed wins over locked", true, true, BackupCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := BackupRecord{Successful: tc.successful, Locked: tc.locked}
			if got := b.Status(); got != tc.want {
				t.Errorf("Status() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBackupEligibility(t *testing.T) {
	cases := []struct {
		name       string
		successful bool
		locked     bool
		want       bool
	}{
		{"completed and unlocked", true, false, true},
		{"completed but locked", true, true, false},
		{"processing", false, false, false},
		{"locked", false, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := BackupRecord{Successful: tc.successful, Locked: tc.locked}
			if got := b.Eligible(); got != tc.want {
				t.Errorf("Eligible() = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestNewResourceUsage(t *testing.T) {
	u := NewResourceUsage(512, 1024)
	if u.Percentage != 50 {
		t.Errorf("percentage = %f, want 50", u.Percentage)
	}

	u = NewResourceUsage(1, 3)
	if u.Percentage != 33 {
		t.Errorf("percentage = %f, want 33 (rounded)", u.Percentage)
	}

	// Unlimited resources report zero, never NaN.
	u = NewResourceUsage(512, 0)
	if u.Percentage != 0 {
		t.Errorf("zero limit percentage = %f, want 0", u.Percentage)
	}
	if u.Current != 512 {
		t.Errorf("current = %d, want 512", u.Current)
	}
}

func TestAlertCriticality(t *testing.T) {
	critical := []AlertKind{AlertHighMemory, AlertHighDisk, AlertServerOffline}
	for _, k := range critical {
		if !k.Critical() {
			t.Errorf("%s should be critical", k)
		}
	}

	informational := []AlertKind{AlertHighCPU, AlertMonitoringError}
	for _, k := range informational {
		if k.Critical() {
			t.Errorf("%s should not be critical", k)
		}
	}
}

func TestBackupRecordTimestamps(t *testing.T) {
	completed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b := BackupRecord{
		CreatedAt:   completed.Add(-time.Hour),
		CompletedAt: &completed,
	}
	if !b.CompletedAt.After(b.CreatedAt) {
		t.Error("completed timestamp should follow creation")
	}
}
