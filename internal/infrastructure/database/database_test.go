package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "nested", "test.db"), WALMode: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)
	if _, err := os.Stat(db.Path()); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{}); err == nil {
		t.Error("Open() without path should fail")
	}
}

func TestDSN(t *testing.T) {
	got := dsn(config.DatabaseConfig{Path: "/data/journal.db", BusyTimeout: 2})
	if !strings.HasPrefix(got, "file:/data/journal.db?") {
		t.Errorf("dsn = %q, want file: prefix", got)
	}
	for _, want := range []string{"_busy_timeout=2000", "_foreign_keys=on"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn = %q, missing %s", got, want)
		}
	}
	if strings.Contains(got, "_journal_mode") {
		t.Errorf("dsn = %q, WAL set without WALMode", got)
	}

	wal := dsn(config.DatabaseConfig{Path: "x.db", WALMode: true})
	if !strings.Contains(wal, "_journal_mode=WAL") || !strings.Contains(wal, "_busy_timeout=5000") {
		t.Errorf("dsn = %q, want WAL and default busy timeout", wal)
	}
}

func TestClose_Nil(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestMigrate(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/20260101_000000_first.up.sql":   {Data: []byte("CREATE TABLE a (id TEXT PRIMARY KEY);")},
		"sql/20260102_000000_second.up.sql":  {Data: []byte("ALTER TABLE a ADD COLUMN note TEXT;")},
		"sql/20260101_000000_first.down.sql": {Data: []byte("DROP TABLE a;")},
		"sql/README.md":                      {Data: []byte("ignored")},
	}
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO a (id, note) VALUES ('x', 'y')"); err != nil {
		t.Errorf("migrated schema unusable: %v", err)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || !applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}

	if err := db.Migrate(ctx, fsys, "sql"); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlier(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101_000000_ok.up.sql":  {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"20260102_000000_bad.up.sql": {Data: []byte("CREATE TABLE broken (")},
	}
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, fsys, "."); err == nil {
		t.Fatal("Migrate() should fail on bad SQL")
	}
	applied, _ := db.AppliedVersions(ctx)
	if !applied["20260101_000000"] || applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file, version, name string
		ok                  bool
	}{
		{"20260118_120000_command_journal.up.sql", "20260118_120000", "command_journal", true},
		{"20260118_120000.up.sql", "20260118_120000", "", true},
		{"20260118_120000_x.down.sql", "", "", false},
		{"notes.sql", "", "", false},
	}
	for _, tt := range tests {
		version, name, ok := parseMigrationFilename(tt.file)
		if version != tt.version || name != tt.name || ok != tt.ok {
			t.Errorf("parseMigrationFilename(%q) = %q, %q, %v", tt.file, version, name, ok)
		}
	}
}
