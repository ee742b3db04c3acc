package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	uploads := t.TempDir()
	drive := t.TempDir()
	m, err := NewManager(config.StorageConfig{
		UploadsDir: uploads,
		WatchedDir: filepath.Join(uploads, "watched"),
		Drives:     []string{drive, filepath.Join(drive, "missing")},
	}, Options{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, uploads, drive
}

func TestNewManager_RequiresUploads(t *testing.T) {
	if _, err := NewManager(config.StorageConfig{}, Options{}); err == nil {
		t.Error("NewManager() without uploads dir should fail")
	}
}

func TestDrives(t *testing.T) {
	m, _, drive := newTestManager(t)
	got := m.Drives()
	if len(got) != 2 || got[0] != "device/" || got[1] != filepath.ToSlash(drive)+"/" {
		t.Errorf("Drives() = %v", got)
	}
}

func TestResolve(t *testing.T) {
	m, uploads, drive := newTestManager(t)

	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"device/", uploads, nil},
		{"device/parts/cube.gcode", filepath.Join(uploads, "parts", "cube.gcode"), nil},
		{"device/../../etc/passwd", filepath.Join(uploads, "etc", "passwd"), nil},
		{filepath.Join(drive, "cube.gcode"), filepath.Join(drive, "cube.gcode"), nil},
		{"/etc/passwd", "", ErrOutsideStorage},
		{filepath.Join(drive, "..", "other"), "", ErrOutsideStorage},
	}
	for _, tt := range tests {
		got, err := m.Resolve(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Resolve(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListFolder(t *testing.T) {
	m, uploads, _ := newTestManager(t)
	writeFile(t, filepath.Join(uploads, "b.gcode"), "G28")
	writeFile(t, filepath.Join(uploads, "a.GCO"), "G28")
	writeFile(t, filepath.Join(uploads, "notes.txt"), "x")
	writeFile(t, filepath.Join(uploads, ".hidden.gcode"), "x")
	writeFile(t, filepath.Join(uploads, "parts", "c.g"), "G28")

	got, err := m.ListFolder("device/")
	if err != nil {
		t.Fatalf("ListFolder() error = %v", err)
	}
	names := make([]string, len(got))
	for i, e := range got {
		names[i] = e.Name
		if len(e.DateModified) != len("2006-01-02T15:04:05.000Z") {
			t.Errorf("DateModified = %q", e.DateModified)
		}
	}
	want := []string{"parts/", "a.GCO", "b.gcode"}
	if len(names) != len(want) {
		t.Fatalf("ListFolder() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListFolder() = %v, want %v", names, want)
		}
	}

	if _, err := m.ListFolder("device/missing/"); !errors.Is(err, ErrNotFolder) {
		t.Errorf("ListFolder(missing) error = %v, want ErrNotFolder", err)
	}
}

func TestRename(t *testing.T) {
	m, uploads, _ := newTestManager(t)
	writeFile(t, filepath.Join(uploads, "old.gcode"), "G28")

	entry, err := m.Rename("device/old.gcode", "device/new.gcode")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if entry.Name != "new.gcode" || entry.DateModified == "" {
		t.Errorf("Rename() = %+v", entry)
	}
	if _, err := os.Stat(filepath.Join(uploads, "new.gcode")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if _, err := m.Rename("device/new.gcode", "/tmp/elsewhere.gcode"); !errors.Is(err, ErrOutsideStorage) {
		t.Errorf("Rename() outside error = %v", err)
	}
}

func TestPreparePrint(t *testing.T) {
	m, uploads, drive := newTestManager(t)
	writeFile(t, filepath.Join(uploads, "parts", "cube.gcode"), "G28\nG1 X10\n")
	writeFile(t, filepath.Join(drive, "usb", "vase.gcode"), "G28\n")
	mtime := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(uploads, "parts", "cube.gcode"), mtime, mtime); err != nil {
		t.Fatal(err)
	}

	local, err := m.PreparePrint("device/parts/cube.gcode")
	if err != nil {
		t.Fatalf("PreparePrint(local) error = %v", err)
	}
	if local.PrintPath != "device/parts/cube.gcode" || local.UploadsPath != "parts/cube.gcode" || local.Name != "cube.gcode" || local.Size != 11 {
		t.Errorf("PreparePrint(local) = %+v", local)
	}
	if Timestamp(local.Modified) != "2024-05-06T07:08:09.000Z" {
		t.Errorf("Modified = %s", Timestamp(local.Modified))
	}

	ext, err := m.PreparePrint(filepath.Join(drive, "usb", "vase.gcode"))
	if err != nil {
		t.Fatalf("PreparePrint(external) error = %v", err)
	}
	if ext.PrintPath != "device/vase.gcode" || ext.UploadsPath != "vase.gcode" {
		t.Errorf("PreparePrint(external) = %+v", ext)
	}
	if data, err := os.ReadFile(filepath.Join(uploads, "vase.gcode")); err != nil || string(data) != "G28\n" {
		t.Errorf("copied file = %q, %v", data, err)
	}
}
