package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
)

func testStatus() models.StatusData {
	return models.StatusData{
		SessionID: "test-session",
		State:     "capturing",
		Preset:    "MEDIUM",
		StartedAt: time.Now(),
		Spans:     1,
	}
}

func newTestAPI(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	server := NewServer(opts)
	ts := httptest.NewServer(server.GetMux())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestAPI(t, nil)

	var body models.HealthData
	if code := getJSON(t, ts.URL+"/api/health", &body); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if body.Status != "ok" {
		t.Errorf("health body = %+v", body)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestAPI(t, nil)

	var body models.VersionData
	if code := getJSON(t, ts.URL+"/api/version", &body); code != http.StatusOK {
		t.Fatalf("version status = %d", code)
	}
	if body.GoVersion == "" || body.Platform == "" {
		t.Errorf("version body missing runtime info: %+v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestAPI(t, &Options{Status: testStatus})

	var body models.StatusData
	if code := getJSON(t, ts.URL+"/api/status", &body); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if body.SessionID != "test-session" || body.State != "capturing" {
		t.Errorf("status body = %+v", body)
	}
}

func TestStatusWithoutSession(t *testing.T) {
	ts := newTestAPI(t, nil)
	if code := getJSON(t, ts.URL+"/api/status", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status without provider = %d, want 503", code)
	}
}

func TestPresetsEndpoint(t *testing.T) {
	ts := newTestAPI(t, &Options{Presets: presets.Builtin()})

	var body models.PresetData
	if code := getJSON(t, ts.URL+"/api/presets", &body); code != http.StatusOK {
		t.Fatalf("presets status = %d", code)
	}
	if body.Count != 3 {
		t.Fatalf("expected the 3 built-in presets, got %d", body.Count)
	}
	names := map[string]bool{}
	for _, p := range body.Presets {
		names[p.Name] = true
	}
	for _, want := range []string{"LOW", "MEDIUM", "HIGH"} {
		if !names[want] {
			t.Errorf("preset %s missing from %v", want, names)
		}
	}
}

func TestSessionsEndpoint(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jnl.Close()

	ctx := context.Background()
	id, err := jnl.BeginSpan(ctx, "session-a", 0, "HIGH", 2000)
	if err != nil {
		t.Fatalf("BeginSpan: %v", err)
	}
	if err := jnl.EndSpan(ctx, id, 42, 42*24664320, 0, journal.StatusCompleted); err != nil {
		t.Fatalf("EndSpan: %v", err)
	}

	ts := newTestAPI(t, &Options{Journal: jnl})

	var body models.SessionData
	if code := getJSON(t, ts.URL+"/api/sessions", &body); code != http.StatusOK {
		t.Fatalf("sessions status = %d", code)
	}
	if body.Count != 1 {
		t.Fatalf("expected one span, got %d", body.Count)
	}
	span := body.Spans[0]
	if span.SessionID != "session-a" || span.Preset != "HIGH" || span.Frames != 42 {
		t.Errorf("span body = %+v", span)
	}
	if span.Status != "completed" || span.EndedAt == nil {
		t.Errorf("span should be finalized: %+v", span)
	}

	// Filtering by session id.
	if code := getJSON(t, ts.URL+"/api/sessions?session_id=session-a", &body); code != http.StatusOK {
		t.Fatalf("filtered sessions status = %d", code)
	}
	if body.Count != 1 {
		t.Errorf("filter by session returned %d spans", body.Count)
	}
	if code := getJSON(t, ts.URL+"/api/sessions?session_id=other", &body); code != http.StatusOK {
		t.Fatalf("filtered sessions status = %d", code)
	}
	if body.Count != 0 {
		t.Errorf("foreign session returned %d spans", body.Count)
	}
}

func TestSessionsWithoutJournal(t *testing.T) {
	ts := newTestAPI(t, nil)

	var body models.SessionData
	if code := getJSON(t, ts.URL+"/api/sessions", &body); code != http.StatusOK {
		t.Fatalf("sessions status = %d", code)
	}
	if body.Count != 0 {
		t.Errorf("journal-less node should return no spans, got %d", body.Count)
	}
}

func TestBasicAuthGuardsProtectedRoutes(t *testing.T) {
	ts := newTestAPI(t, &Options{
		AuthUsername: "operator",
		AuthPassword: "fieldpass",
		Status:       testStatus,
	})

	// Health stays open for probes.
	if code := getJSON(t, ts.URL+"/api/health", nil); code != http.StatusOK {
		t.Errorf("health with auth enabled = %d", code)
	}

	// Protected route rejects anonymous calls.
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("401 should carry a WWW-Authenticate challenge")
	}

	// Correct credentials pass.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.SetBasicAuth("operator", "fieldpass")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", resp.StatusCode)
	}

	// Wrong password fails.
	req.SetBasicAuth("operator", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", resp.StatusCode)
	}
}

func TestLogLevelEndpoint(t *testing.T) {
	ts := newTestAPI(t, nil)

	// Register the module logger so the tune below has a target.
	logging.GetLogger("camera")

	put := func(body string) (int, []byte) {
		t.Helper()
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/logs/level", strings.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		return resp.StatusCode, data
	}

	code, data := put(`{"module":"camera","level":"debug"}`)
	if code != http.StatusOK {
		t.Fatalf("tune camera to debug = %d, want 200", code)
	}
	var applied models.LogLevelData
	if err := json.Unmarshal(data, &applied); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if applied.Module != "camera" || applied.Level != "debug" {
		t.Errorf("applied = %+v", applied)
	}

	if code, _ := put(`{"module":"camera","level":"loud"}`); code != http.StatusUnprocessableEntity {
		t.Errorf("bogus level = %d, want 422", code)
	}
	if code, _ := put(`{"module":"ghost","level":"debug"}`); code != http.StatusUnprocessableEntity {
		t.Errorf("unknown module = %d, want 422", code)
	}
}

func TestEventStream(t *testing.T) {
	bus := events.New()
	ts := newTestAPI(t, &Options{Bus: bus, Status: testStatus})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("event stream status = %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var name, data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && data != "":
				return name, data
			}
		}
		t.Fatalf("stream ended early: %v", scanner.Err())
		return "", ""
	}

	// The first event is the session snapshot for late joiners.
	name, data := readEvent()
	if name != "state-changed" {
		t.Errorf("first event = %q, want state-changed", name)
	}
	var snapshot events.SessionStateChangedEvent
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		t.Fatalf("decode snapshot %q: %v", data, err)
	}
	if snapshot.SessionID != "test-session" || snapshot.State != "capturing" {
		t.Errorf("snapshot = %+v", snapshot)
	}

	// A bus event published after connect reaches the stream.
	bus.Publish(events.CaptureErrorEvent{DevicePath: "/dev/video0", Message: "restarted"})
	name, data = readEvent()
	if name != "capture-error" {
		t.Errorf("second event = %q, want capture-error", name)
	}
	if !strings.Contains(data, "/dev/video0") {
		t.Errorf("capture-error data = %s", data)
	}
}

func TestMetricsMount(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ts := newTestAPI(t, &Options{PrometheusHandler: handler})

	if code := getJSON(t, ts.URL+"/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics mount = %d", code)
	}
}
