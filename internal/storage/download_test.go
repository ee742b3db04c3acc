package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

type notifications struct {
	mu   sync.Mutex
	seen []DownloadProgress
}

func (n *notifications) Notify(command string, data any) {
	if command != CommandCanvasDownload {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, data.(DownloadProgress))
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func serveBytes(t *testing.T, data []byte, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(status)
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadAndExtract(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"cube.gcode":       "G28\n",
		"parts/vase.gcode": "G28\nG1 Z5\n",
	})
	srv := serveBytes(t, archive, http.StatusOK)

	watched := t.TempDir()
	notes := &notifications{}
	m, err := NewManager(config.StorageConfig{UploadsDir: t.TempDir(), WatchedDir: watched}, Options{Notifier: notes})
	if err != nil {
		t.Fatal(err)
	}

	files, err := m.DownloadAndExtract(context.Background(), srv.URL+"/print.zip", "Cube Project")
	if err != nil {
		t.Fatalf("DownloadAndExtract() error = %v", err)
	}
	if len(files) != 2 {
		t.Errorf("extracted = %v", files)
	}
	if data, err := os.ReadFile(filepath.Join(watched, "parts", "vase.gcode")); err != nil || string(data) != "G28\nG1 Z5\n" {
		t.Errorf("vase.gcode = %q, %v", data, err)
	}

	notes.mu.Lock()
	defer notes.mu.Unlock()
	first, last := notes.seen[0], notes.seen[len(notes.seen)-1]
	if first.Status != DownloadStarting || last.Status != DownloadReceived || first.Filename != "Cube Project" {
		t.Errorf("notifications = %+v", notes.seen)
	}
	final := notes.seen[len(notes.seen)-2]
	if final.Status != DownloadDownloading || final.Progress == nil || *final.Progress != 100 {
		t.Errorf("last progress = %+v", final)
	}
}

func TestDownloadAndExtract_HTTPError(t *testing.T) {
	srv := serveBytes(t, []byte("denied"), http.StatusForbidden)
	m, _ := NewManager(config.StorageConfig{UploadsDir: t.TempDir()}, Options{})

	if _, err := m.DownloadAndExtract(context.Background(), srv.URL, "x"); !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("DownloadAndExtract() error = %v, want ErrDownloadFailed", err)
	}
}

func TestDownloadAndExtract_NotZip(t *testing.T) {
	srv := serveBytes(t, []byte("not a zip"), http.StatusOK)
	m, _ := NewManager(config.StorageConfig{UploadsDir: t.TempDir()}, Options{})

	if _, err := m.DownloadAndExtract(context.Background(), srv.URL, "x"); !errors.Is(err, ErrInvalidArchive) {
		t.Errorf("DownloadAndExtract() error = %v, want ErrInvalidArchive", err)
	}
}

func TestExtractZip_RejectsParentRefs(t *testing.T) {
	archive := buildZip(t, map[string]string{"../evil.gcode": "G28"})
	dir := t.TempDir()

	if _, err := extractZip(archive, dir); !errors.Is(err, ErrInvalidArchive) {
		t.Errorf("extractZip() error = %v, want ErrInvalidArchive", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil.gcode")); err == nil {
		t.Error("entry escaped the extraction folder")
	}
}
