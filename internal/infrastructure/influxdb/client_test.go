package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/influxdb"
	"github.com/nerrad567/canvas-link/internal/state"
)

// fakeServer answers pings and records line-protocol writes.
type fakeServer struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(data))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "canvas",
		Bucket:        "history",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func sampleSnapshot() state.Snapshot {
	var s state.Snapshot
	s.State.Printer.Data.Connected = true
	s.State.Printer.Data.Fan = 50
	s.State.Printer.Data.Temperature.Nozzle = []state.Heater{{Actual: 209.5, Target: 210}}
	s.State.Printer.Data.Temperature.Bed = state.Heater{Actual: 60, Target: 60}
	s.State.Printer.Job.Progress = 12.5
	s.State.Printer.Job.Status.Name = state.JobStatusStart
	return s
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteSnapshot(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	if err := client.WriteSnapshot(context.Background(), "dev-1", sampleSnapshot(), at); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	client.Flush()

	writes := fake.Writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	line := writes[0]
	for _, want := range []string{
		"printer_state,device_id=dev-1,job_status=start ",
		"nozzle_actual=209.5",
		"fan=50i",
		"printer_connected=true",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q does not contain %q", line, want)
		}
	}
}

func TestWriteSnapshot_AfterClose(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	err = client.WriteSnapshot(context.Background(), "dev-1", sampleSnapshot(), time.Now())
	if !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteSnapshot() error = %v, want ErrNotConnected", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	client.Flush()
}

func TestWriteErrors_ReachCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"invalid","message":"bad line"}`)
	}))
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	got := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	if err := client.WriteSnapshot(context.Background(), "dev-1", sampleSnapshot(), time.Now()); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	client.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error never reached the callback")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestSnapshotPoint(t *testing.T) {
	var s state.Snapshot
	p := influxdb.SnapshotPoint("dev-2", s, time.Unix(10, 0))
	line := write.PointToLineProtocol(p, time.Second)

	if !strings.HasPrefix(line, "printer_state,device_id=dev-2 ") {
		t.Errorf("line = %q, want device tag only", line)
	}
	if strings.Contains(line, "nozzle_actual") {
		t.Errorf("line = %q, want no nozzle fields without tools", line)
	}
	if !strings.HasSuffix(strings.TrimSpace(line), " 10") {
		t.Errorf("line = %q, want timestamp 10", line)
	}
}
