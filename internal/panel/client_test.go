package panel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fleetplane/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		PanelURL:             baseURL,
		AppAPIKey:            "ptla_test_application_key",
		ClientAPIKey:         "ptlc_test_client_key",
		RequestTimeout:       5 * time.Second,
		RateLimitMaxRequests: 100,
		RateLimitWindow:      time.Minute,
	}
}

func TestRequestSurfaceRouting(t *testing.T) {
	var gotPath, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))

	if _, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil); err != nil {
		t.Fatalf("application request failed: %v", err)
	}
	if gotPath != "/api/application/servers" {
		t.Errorf("application path = %q", gotPath)
	}
	if gotAuth != "Bearer ptla_test_application_key" {
		t.Errorf("application auth = %q", gotAuth)
	}

	if _, err := c.Request(context.Background(), SurfaceClient, http.MethodGet, "/account", nil); err != nil {
		t.Fatalf("client request failed: %v", err)
	}
	if gotPath != "/api/client/account" {
		t.Errorf("client path = %q", gotPath)
	}
	if gotAuth != "Bearer ptlc_test_client_key" {
		t.Errorf("client auth = %q", gotAuth)
	}
}

func TestRequestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusUnauthorized, ErrCodeUnauthorized},
		{http.StatusForbidden, ErrCodeForbidden},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusTooManyRequests, ErrCodeRateLimited},
		{http.StatusInternalServerError, ErrCodeRemoteFault},
		{http.StatusUnprocessableEntity, ErrCodeRequestFailed},
		{http.StatusBadGateway, ErrCodeRequestFailed},
	}

	for _, tc := range cases {
		status := tc.status
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"errors":[{"code":"TestError","detail":"the panel said no"}]}`))
		}))

		c := NewClient(testConfig(ts.URL))
		_, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil)
		ts.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if got := CodeOf(err); got != tc.want {
			t.Errorf("status %d: code = %d, want %d", status, got, tc.want)
		}
	}
}

func TestRequestLocalRateLimitRejectsWithoutDispatch(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.RateLimitMaxRequests = 1
	c := NewClient(cfg)

	if _, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	// Second call is rejected locally. The server must not see it, and the
	// rejection must not be stamped on the window.
	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil)
		if !IsCode(err, ErrCodeRateLimitExceeded) {
			t.Fatalf("expected local rate limit rejection, got %v", err)
		}
	}

	if hits != 1 {
		t.Errorf("server saw %d requests, want 1", hits)
	}
	if got := c.Window().InFlight(); got != 1 {
		t.Errorf("window holds %d stamps, want 1", got)
	}
}

func TestRequestConcurrentAdmissionHoldsCeiling(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(100 * time.Millisecond) // keep requests in flight together
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.RateLimitMaxRequests = 2
	c := NewClient(cfg)

	const callers = 10
	var wg sync.WaitGroup
	var admitted, rejected atomic.Int64
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil)
			switch {
			case err == nil:
				admitted.Add(1)
			case IsCode(err, ErrCodeRateLimitExceeded):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// An in-flight request occupies its slot from the moment it is admitted,
	// so concurrent callers can never dispatch past the ceiling.
	if got := admitted.Load(); got != 2 {
		t.Errorf("admitted %d concurrent requests, want exactly 2", got)
	}
	if got := rejected.Load(); got != callers-2 {
		t.Errorf("rejected %d concurrent requests, want %d", got, callers-2)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestRequestTransportFailureIsUnreachable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1") // nothing listens here
	c := NewClient(cfg)

	_, err := c.Request(context.Background(), SurfaceApplication, http.MethodGet, "/servers", nil)
	if !IsCode(err, ErrCodeUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}

	// A dispatched attempt is stamped even when the transport fails.
	if got := c.Window().InFlight(); got != 1 {
		t.Errorf("window holds %d stamps, want 1", got)
	}
}

func TestRequestRemoteErrorDetailSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"ValidationError","detail":"name may not be empty"}]}`))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	_, err := c.Request(context.Background(), SurfaceApplication, http.MethodPost, "/servers", map[string]string{})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Context["detail"] != "name may not be empty" {
		t.Errorf("detail = %v", apiErr.Context["detail"])
	}
}

func TestTestConnectivityNeverErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/client/account" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL))
	appOK, clientOK := c.TestConnectivity(context.Background())
	if !appOK {
		t.Error("application surface should be reachable")
	}
	if clientOK {
		t.Error("client surface should be reported unusable")
	}
}
