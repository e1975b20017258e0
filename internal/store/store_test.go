package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/roach88/atplug/internal/scanner"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testFile(path, content string) File {
	return File{Path: path, Digest: digest.FromString(content), Package: "example.com/fruit"}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"files", "plugs"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "index.db"))
	if err == nil {
		t.Error("Open() should fail for a path in a missing directory")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db returned %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestMigration_V1UniqueIndexExists(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_plugs_implementation_unique'",
	).Scan(&name)
	if err != nil {
		t.Fatalf("unique index missing: %v", err)
	}
}

func TestMigration_SchemaStartsAtV0(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("sql.Open() failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("schema failed: %v", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("user_version = %d, want 0", version)
	}
	var n int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_plugs_implementation_unique'",
	).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("schema.sql creates the unique index; it belongs to migrateToV1")
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("runMigrations() failed: %v", err)
	}
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_plugs_implementation_unique'",
	).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("unique index missing after migration")
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// Simulate a v0 database holding a stale duplicate.
	for _, stmt := range []string{
		"DROP INDEX idx_plugs_implementation_unique",
		"PRAGMA user_version = 0",
		"INSERT INTO files (path, digest, package) VALUES ('a.go', 'sha256:aa', 'p'), ('b.go', 'sha256:bb', 'p')",
		"INSERT INTO plugs (path, implementation, socket, line) VALUES ('a.go', 'p.T', 'p.S', 1), ('b.go', 'p.T', 'p.S', 2)",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	plugs, err := s.Plugs(context.Background())
	if err != nil {
		t.Fatalf("Plugs() failed: %v", err)
	}
	if len(plugs) != 1 {
		t.Fatalf("got %d plugs after migration, want 1", len(plugs))
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestReplaceFile(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	f := testFile("fruit/apple.go", "v1")
	plugs := []scanner.Plug{
		{Implementation: "example.com/fruit.Apple", Socket: "example.com/fruit.Fruit", File: f.Path, Line: 7},
		{Implementation: "example.com/fruit.Base", Socket: "example.com/fruit.Fruit", Abstract: true, File: f.Path, Line: 12},
	}
	if err := s.ReplaceFile(ctx, f, plugs); err != nil {
		t.Fatalf("ReplaceFile() failed: %v", err)
	}

	got, ok, err := s.FileDigest(ctx, f.Path)
	if err != nil || !ok {
		t.Fatalf("FileDigest() = %v, %v, %v", got, ok, err)
	}
	if got != f.Digest {
		t.Errorf("digest = %s, want %s", got, f.Digest)
	}

	stored, err := s.Plugs(ctx)
	if err != nil {
		t.Fatalf("Plugs() failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d plugs, want 2", len(stored))
	}
	if stored[0] != plugs[0] || stored[1] != plugs[1] {
		t.Errorf("plugs = %+v, want %+v", stored, plugs)
	}

	// Replacing drops plugs no longer in the file.
	f2 := testFile(f.Path, "v2")
	if err := s.ReplaceFile(ctx, f2, plugs[:1]); err != nil {
		t.Fatalf("second ReplaceFile() failed: %v", err)
	}
	stored, _ = s.Plugs(ctx)
	if len(stored) != 1 {
		t.Errorf("got %d plugs after replace, want 1", len(stored))
	}
	got, _, _ = s.FileDigest(ctx, f.Path)
	if got != f2.Digest {
		t.Errorf("digest not updated")
	}
}

func TestReplaceFile_MovesImplementation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	p := scanner.Plug{Implementation: "example.com/fruit.Apple", Socket: "example.com/fruit.Fruit", Line: 3}
	if err := s.ReplaceFile(ctx, testFile("old.go", "a"), []scanner.Plug{p}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceFile(ctx, testFile("new.go", "a"), []scanner.Plug{p}); err != nil {
		t.Fatal(err)
	}

	stored, err := s.Plugs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].File != "new.go" {
		t.Errorf("plugs = %+v, want one plug in new.go", stored)
	}
}

func TestRemoveFile_CascadesToPlugs(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	f := testFile("fruit/orange.go", "x")
	err := s.ReplaceFile(ctx, f, []scanner.Plug{{Implementation: "example.com/fruit.Orange", Socket: "example.com/fruit.Fruit"}})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveFile(ctx, f.Path); err != nil {
		t.Fatalf("RemoveFile() failed: %v", err)
	}
	if err := s.RemoveFile(ctx, "never-indexed.go"); err != nil {
		t.Errorf("RemoveFile() of unknown path failed: %v", err)
	}

	if _, ok, _ := s.FileDigest(ctx, f.Path); ok {
		t.Error("file still indexed")
	}
	plugs, _ := s.Plugs(ctx)
	if len(plugs) != 0 {
		t.Errorf("got %d plugs, want 0", len(plugs))
	}
}

func TestFilesAndPlugsForSocket(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if err := s.ReplaceFile(ctx, testFile("b.go", "b"), []scanner.Plug{
		{Implementation: "example.com/x.B", Socket: "example.com/x.S"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceFile(ctx, testFile("a.go", "a"), []scanner.Plug{
		{Implementation: "example.com/x.A", Socket: "example.com/x.Other"},
	}); err != nil {
		t.Fatal(err)
	}

	files, err := s.Files(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Path != "a.go" || files[1].Path != "b.go" {
		t.Errorf("files = %+v", files)
	}

	plugs, err := s.PlugsForSocket(ctx, "example.com/x.S")
	if err != nil {
		t.Fatal(err)
	}
	if len(plugs) != 1 || plugs[0].Implementation != "example.com/x.B" {
		t.Errorf("plugs = %+v", plugs)
	}

	empty, err := s.PlugsForSocket(ctx, "example.com/x.None")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", empty)
	}
}
