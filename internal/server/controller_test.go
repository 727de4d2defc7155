package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestListPassesFiltersThrough(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"data": [{"attributes": {"id": 1, "uuid": "u", "identifier": "s", "name": "a", "status": "running"}}],
			"meta": {"pagination": {"total": 57, "count": 1, "per_page": 25, "current_page": 3, "total_pages": 3}}
		}`))
	}))
	defer ts.Close()

	c := testController(ts.URL)
	servers, pagination, err := c.List(context.Background(), ListFilter{
		Page: 3, PerPage: 25, NameSearch: "lobby", OwnerUser: 9,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	for _, want := range []string{"page=3", "per_page=25", "filter%5Bname%5D=lobby", "filter%5Buser%5D=9"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	if len(servers) != 1 {
		t.Fatalf("got %d servers", len(servers))
	}
	// Pagination is a pass-through: the panel's numbers, not recomputed.
	if pagination.Current != 3 || pagination.TotalPages != 3 || pagination.TotalCount != 57 {
		t.Errorf("pagination = %+v", pagination)
	}
}

func TestResourcesZeroLimitPercentage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/client/servers/d3aac109/resources" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"attributes": {
				"current_state": "running",
				"is_suspended": false,
				"resources": {
					"memory_bytes": 536870912,
					"memory_limit_bytes": 1073741824,
					"cpu_absolute": 45,
					"cpu_limit": 0,
					"disk_bytes": 100,
					"disk_limit_bytes": 0,
					"network_rx_bytes": 10,
					"network_tx_bytes": 20
				}
			}
		}`))
	}))
	defer ts.Close()

	c := testController(ts.URL)
	snap, err := c.Resources(context.Background(), "d3aac109-e5e0-4331-b03e-3454f7e136dc")
	if err != nil {
		t.Fatalf("resources failed: %v", err)
	}

	if snap.Memory.Percentage != 50 {
		t.Errorf("memory percentage = %f, want 50", snap.Memory.Percentage)
	}
	// Unlimited CPU and disk report 0%, not NaN.
	if snap.CPU.Percentage != 0 || snap.Disk.Percentage != 0 {
		t.Errorf("unlimited percentages = cpu %f disk %f, want 0", snap.CPU.Percentage, snap.Disk.Percentage)
	}
	if snap.CPU.Current != 45 {
		t.Errorf("cpu current = %d, want 45", snap.CPU.Current)
	}
}

func TestPowerSignals(t *testing.T) {
	type call struct {
		path   string
		signal string
	}
	var calls []call
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		json.Unmarshal(body, &payload)
		calls = append(calls, call{path: r.URL.Path, signal: payload["signal"]})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := testController(ts.URL)
	ctx := context.Background()
	uuid := "d3aac109-e5e0-4331-b03e-3454f7e136dc"

	for _, op := range []struct {
		fn   func(context.Context, string) error
		want string
	}{
		{c.Start, "start"},
		{c.Stop, "stop"},
		{c.Restart, "restart"},
		{c.Kill, "kill"},
	} {
		if err := op.fn(ctx, uuid); err != nil {
			t.Fatalf("power %s failed: %v", op.want, err)
		}
	}

	if len(calls) != 4 {
		t.Fatalf("got %d calls", len(calls))
	}
	for i, want := range []string{"start", "stop", "restart", "kill"} {
		if calls[i].signal != want {
			t.Errorf("call %d signal = %q, want %q", i, calls[i].signal, want)
		}
		if calls[i].path != "/api/client/servers/d3aac109/power" {
			t.Errorf("call %d path = %q", i, calls[i].path)
		}
	}
}

func TestNormalizeState(t *testing.T) {
	if got := normalizeState("running"); got != "running" {
		t.Errorf("running normalized to %s", got)
	}
	if got := normalizeState("exploded"); got != "unknown" {
		t.Errorf("unrecognized state normalized to %s, want unknown", got)
	}
	if got := normalizeState(""); got != "unknown" {
		t.Errorf("empty state normalized to %s, want unknown", got)
	}
}
