package session

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/camera"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/control"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/sink"
)

// Tiny geometry with a fast cadence keeps the orchestration tests quick.
var sessPreset = presets.Preset{
	Name:        "SESS",
	RawWidth:    16,
	RawHeight:   8,
	ImageWidth:  12,
	ImageHeight: 6,
	Framerate:   500,
}

// recordingSink counts sink traffic and can be scripted to fail.
type recordingSink struct {
	mu         sync.Mutex
	spans      []sink.SpanInfo
	frames     int
	ends       int
	closed     bool
	failWrites bool
}

func (r *recordingSink) BeginSpan(span sink.SpanInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, span)
	return nil
}

func (r *recordingSink) WriteFrame(buf []byte, timestampUS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return errors.New("receiver went away")
	}
	r.frames++
	return nil
}

func (r *recordingSink) EndSpan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *recordingSink) snapshot() (spans []sink.SpanInfo, ends int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sink.SpanInfo(nil), r.spans...), r.ends, r.closed
}

func newTestSession(t *testing.T, mutate func(*Options)) (*Session, *camera.Simulator, *recordingSink) {
	t.Helper()

	table, err := presets.NewTable(sessPreset)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	sim := camera.NewSimulator()
	rec := &recordingSink{}
	opts := Options{
		Gate:         control.NewGate(sessPreset.Name, 0),
		Presets:      table,
		Camera:       sim,
		Sink:         rec,
		Workers:      2,
		FrameTimeout: 250 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, sim, rec
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewRequiresCollaborators(t *testing.T) {
	table, _ := presets.NewTable(sessPreset)
	base := Options{
		Gate:    control.NewGate(sessPreset.Name, 0),
		Presets: table,
		Camera:  camera.NewSimulator(),
		Sink:    &recordingSink{},
	}

	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"gate", func(o *Options) { o.Gate = nil }},
		{"presets", func(o *Options) { o.Presets = nil }},
		{"camera", func(o *Options) { o.Camera = nil }},
		{"sink", func(o *Options) { o.Sink = nil }},
		{"control address", func(o *Options) { o.ControlAddr = "not-a-url" }},
	}
	for _, tc := range cases {
		opts := base
		tc.mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Errorf("%s: New should fail", tc.name)
		}
	}
}

func TestStandaloneSessionRunsToTimeout(t *testing.T) {
	s, _, rec := newTestSession(t, func(o *Options) {
		o.RunTimeout = 150 * time.Millisecond
	})

	errs := make(chan error, 1)
	go func() { errs <- s.Run(context.Background()) }()

	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("standalone session did not end at the run timeout")
	}

	spans, ends, closed := rec.snapshot()
	if len(spans) != 1 || ends != 1 {
		t.Fatalf("expected one sink span, got %d begins / %d ends", len(spans), ends)
	}
	if !closed {
		t.Error("sink should be closed after Run returns")
	}
	if rec.frameCount() == 0 {
		t.Error("standalone session should have produced frames")
	}
	if spans[0].SessionID != s.ID() || spans[0].Preset != sessPreset.Name {
		t.Errorf("span info mismatch: %+v", spans[0])
	}

	st := s.Status()
	if st.State != events.StateClosed {
		t.Errorf("status state = %q, want closed", st.State)
	}
	if !st.Standalone || st.Spans != 1 {
		t.Errorf("status = %+v", st)
	}
}

// controlServer speaks the operator side of the message protocol.
type controlServer struct {
	t     *testing.T
	ln    net.Listener
	conns chan net.Conn
}

func newControlServer(t *testing.T) *controlServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return &controlServer{t: t, ln: ln, conns: conns}
}

func (cs *controlServer) addr() string { return "tcp://" + cs.ln.Addr().String() }

func (cs *controlServer) accept() net.Conn {
	cs.t.Helper()
	select {
	case conn := <-cs.conns:
		cs.t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		cs.t.Fatal("node did not dial the control server")
		return nil
	}
}

// send writes one payload and pauses so consecutive sends stay distinct
// reads on the node side.
func (cs *controlServer) send(conn net.Conn, payload string) {
	cs.t.Helper()
	if _, err := conn.Write([]byte(payload)); err != nil {
		cs.t.Fatalf("write %q: %v", payload, err)
	}
	time.Sleep(50 * time.Millisecond)
}

func TestSessionFollowsControlProtocol(t *testing.T) {
	cs := newControlServer(t)
	dir := t.TempDir()
	jnl, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jnl.Close()

	s, sim, rec := newTestSession(t, func(o *Options) {
		o.ControlAddr = cs.addr()
		o.Journal = jnl
	})

	errs := make(chan error, 1)
	go func() { errs <- s.Run(context.Background()) }()
	conn := cs.accept()

	cs.send(conn, "EXPOSURE = 5000")
	cs.send(conn, "START")
	waitFor(t, 2*time.Second, func() bool { return rec.frameCount() >= 5 },
		"no frames after START")

	if st := s.Status(); st.State != events.StateCapturing {
		t.Errorf("status during capture = %q", st.State)
	}

	cs.send(conn, "STOP")
	waitFor(t, 2*time.Second, func() bool {
		_, ends, _ := rec.snapshot()
		return ends == 1
	}, "span did not end after STOP")

	firstSpanFrames := rec.frameCount()

	cs.send(conn, "START")
	waitFor(t, 2*time.Second, func() bool { return rec.frameCount() > firstSpanFrames },
		"no frames after second START")

	cs.send(conn, "CLOSE")
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after CLOSE")
	}

	if got := sim.Exposures(); len(got) != 1 || got[0] != 5000 {
		t.Errorf("exposure not applied at capture start: %v", got)
	}

	spans, ends, closed := rec.snapshot()
	if len(spans) != 2 || ends != 2 || !closed {
		t.Errorf("sink lifecycle: %d begins, %d ends, closed=%v", len(spans), ends, closed)
	}

	rows, err := jnl.BySession(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 journal spans, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != journal.StatusCompleted {
			t.Errorf("span %d status = %s, want completed", row.SpanIndex, row.Status)
		}
		if row.Frames == 0 {
			t.Errorf("span %d recorded no frames", row.SpanIndex)
		}
		if row.ExposureUS != 5000 {
			t.Errorf("span %d exposure = %d, want 5000", row.SpanIndex, row.ExposureUS)
		}
	}
}

func TestControlChannelLossIsFatal(t *testing.T) {
	cs := newControlServer(t)
	s, _, _ := newTestSession(t, func(o *Options) {
		o.ControlAddr = cs.addr()
	})

	errs := make(chan error, 1)
	go func() { errs <- s.Run(context.Background()) }()
	conn := cs.accept()

	// Server dies without CLOSE.
	conn.Close()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("losing the control channel should be fatal")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after the control channel dropped")
	}
}

func TestSinkFailureAbortsSession(t *testing.T) {
	dir := t.TempDir()
	jnl, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jnl.Close()

	var rec *recordingSink
	s, _, _ := newTestSession(t, func(o *Options) {
		rec = o.Sink.(*recordingSink)
		rec.failWrites = true
		o.Journal = jnl
	})

	errs := make(chan error, 1)
	go func() { errs <- s.Run(context.Background()) }()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("sink write failure should be fatal")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after the sink failed")
	}

	rows, err := jnl.BySession(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 journal span, got %d", len(rows))
	}
	if rows[0].Status != journal.StatusAborted {
		t.Errorf("span status = %s, want aborted", rows[0].Status)
	}
}

func TestSessionPublishesStateEvents(t *testing.T) {
	bus := events.New()
	states := make(chan string, 16)
	unsub := events.Subscribe(bus, func(e events.SessionStateChangedEvent) {
		states <- e.State
	})
	defer unsub()

	s, _, _ := newTestSession(t, func(o *Options) {
		o.Bus = bus
		o.RunTimeout = 100 * time.Millisecond
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The dispatcher delivers asynchronously; wait for the terminal state.
	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !seen[events.StateClosed] {
		select {
		case st := <-states:
			seen[st] = true
		case <-deadline:
			t.Fatalf("terminal state never arrived, saw %v", seen)
		}
	}
	if !seen[events.StateCapturing] {
		t.Error("capturing state was never published")
	}
}

func TestContextCancelStopsSession(t *testing.T) {
	s, _, rec := newTestSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- s.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return rec.frameCount() > 0 },
		"session never started capturing")
	cancel()

	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("cancellation should end the session cleanly, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after cancellation")
	}
}
