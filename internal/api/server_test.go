package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manifoldbus/manifold/bus"
	"github.com/manifoldbus/manifold/internal/infrastructure/config"
	"github.com/manifoldbus/manifold/internal/infrastructure/logging"
	"github.com/manifoldbus/manifold/internal/journal"
)

// fakeJournal is an in-memory journal.Repository for handler tests.
type fakeJournal struct {
	entries []journal.Entry
}

func (f *fakeJournal) Create(_ context.Context, entry *journal.Entry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeJournal) List(_ context.Context, filter journal.Filter) (*journal.ListResult, error) {
	var matched []journal.Entry
	for _, e := range f.entries {
		if filter.Bus != "" && e.Bus != filter.Bus {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		matched = append(matched, e)
	}
	if matched == nil {
		matched = []journal.Entry{}
	}
	return &journal.ListResult{Entries: matched, Total: len(matched)}, nil
}

// newTestServer builds a server over in-process buses and returns it with
// a running httptest listener.
func newTestServer(t *testing.T, repo journal.Repository) (*Server, *httptest.Server, map[string]*bus.Router) {
	t.Helper()

	buses := make(map[string]*bus.Router)
	for _, name := range []string{"local", "plant"} {
		r, err := bus.New(bus.Options{})
		if err != nil {
			t.Fatalf("creating bus %s: %v", name, err)
		}
		t.Cleanup(func() { _ = r.Close(context.Background()) })
		buses[name] = r
	}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "json"}, "test")
	srv, err := New(Deps{
		Logger:  logger,
		Buses:   buses,
		Journal: repo,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return srv, ts, buses
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec // test URL from httptest
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")

	if _, err := New(Deps{Buses: map[string]*bus.Router{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New() without buses should fail")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	var body map[string]any
	if status := getJSON(t, ts.URL+"/healthz", &body); status != http.StatusOK {
		t.Fatalf("GET /healthz status = %d", status)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	var body struct {
		Version string `json:"version"`
		Buses   []struct {
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"buses"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/status", &body); status != http.StatusOK {
		t.Fatalf("GET /api/v1/status status = %d", status)
	}

	if len(body.Buses) != 2 {
		t.Fatalf("len(buses) = %d, want 2", len(body.Buses))
	}
	// Sorted by name.
	if body.Buses[0].Name != "local" || body.Buses[1].Name != "plant" {
		t.Errorf("bus order = %s, %s", body.Buses[0].Name, body.Buses[1].Name)
	}
	for _, b := range body.Buses {
		if b.State != "ready" {
			t.Errorf("bus %s state = %q, want ready", b.Name, b.State)
		}
	}
}

func TestBusEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	var body struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/buses/local", &body); status != http.StatusOK {
		t.Fatalf("GET bus status = %d", status)
	}
	if body.Name != "local" || body.State != "ready" {
		t.Errorf("bus body = %+v", body)
	}

	if status := getJSON(t, ts.URL+"/api/v1/buses/unknown", nil); status != http.StatusNotFound {
		t.Errorf("unknown bus status = %d, want 404", status)
	}
}

func TestJournalEndpoint(t *testing.T) {
	repo := &fakeJournal{entries: []journal.Entry{
		{ID: "jrn-1", Bus: "local", Kind: journal.KindPublish, Topic: "a/b"},
		{ID: "jrn-2", Bus: "plant", Kind: journal.KindBridge, Topic: "c/d"},
	}}
	_, ts, _ := newTestServer(t, repo)

	var body struct {
		Entries []journal.Entry `json:"entries"`
		Total   int             `json:"total"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/journal?bus=plant", &body); status != http.StatusOK {
		t.Fatalf("GET journal status = %d", status)
	}
	if body.Total != 1 || body.Entries[0].ID != "jrn-2" {
		t.Errorf("journal body = %+v", body)
	}
}

func TestJournalEndpointBadLimit(t *testing.T) {
	_, ts, _ := newTestServer(t, &fakeJournal{})

	if status := getJSON(t, ts.URL+"/api/v1/journal?limit=abc", nil); status != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", status)
	}
}

func TestJournalEndpointDisabled(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	if status := getJSON(t, ts.URL+"/api/v1/journal", nil); status != http.StatusNotFound {
		t.Errorf("disabled journal status = %d, want 404", status)
	}
}

func TestTapStreamsMatchingMessages(t *testing.T) {
	_, ts, buses := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tap?bus=local&pattern=sensors/%23"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing tap: %v", err)
	}
	defer conn.Close()

	// The tap subscription is registered before the upgrade completes, so
	// a publish after a successful dial is observable.
	if err := buses["local"].Publish(context.Background(), "sensors/kitchen/temp", []byte("21.5")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	//nolint:errcheck // deadline to bound the test
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading tap message: %v", err)
	}

	var ev struct {
		Bus     string `json:"bus"`
		Topic   string `json:"topic"`
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding tap event: %v", err)
	}
	if ev.Bus != "local" || ev.Topic != "sensors/kitchen/temp" || ev.Payload != "21.5" {
		t.Errorf("tap event = %+v", ev)
	}
}

func TestTapEnqueueAfterDetach(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "json"}, "test")
	client := &tapClient{
		send:   make(chan []byte, 1),
		logger: logger,
	}

	client.enqueue(tapEvent{Bus: "local", Topic: "a/b", Payload: "x"})
	if len(client.send) != 1 {
		t.Fatalf("queued events = %d, want 1", len(client.send))
	}

	client.closeSend()
	// Repeated close is a no-op.
	client.closeSend()

	// A delivery racing the disconnect is dropped, not a panic on the
	// closed channel.
	client.enqueue(tapEvent{Bus: "local", Topic: "a/c", Payload: "y"})
}

func TestTapUnknownBus(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tap?bus=nope"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown bus should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %v, want 404", resp)
	}
}

func TestTapMalformedPattern(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	// '#' must be the final segment; 'a/#/b' is rejected before the upgrade.
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/tap?bus=local&pattern=a/%23/b"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial with malformed pattern should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("handshake response = %v, want 400", resp)
	}
}
