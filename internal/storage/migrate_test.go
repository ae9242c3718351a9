package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrationsOrdersSQLFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"002_indexes.sql": "CREATE INDEX IF NOT EXISTS idx ON t (a);",
		"001_init.sql":    "CREATE TABLE IF NOT EXISTS t (a INT);\n",
		"003_empty.sql":   "  \n",
		"README.md":       "not sql",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	migrations, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %+v", migrations)
	}
	if migrations[0].Name != "001_init.sql" || migrations[1].Name != "002_indexes.sql" {
		t.Fatalf("unexpected order: %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if migrations[0].SQL != "CREATE TABLE IF NOT EXISTS t (a INT);" {
		t.Errorf("sql not trimmed: %q", migrations[0].SQL)
	}
}

func TestLoadMigrationsMissingDir(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join(t.TempDir(), "absent"))
	if err != nil || len(migrations) != 0 {
		t.Fatalf("missing dir should yield nothing, got %v, %v", migrations, err)
	}
	if migrations, err := LoadMigrations(""); err != nil || migrations != nil {
		t.Fatalf("empty path should yield nothing, got %v, %v", migrations, err)
	}
}

func TestRepositoryMigrationsLoad(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Name != "001_init.sql" {
		t.Fatalf("expected 001_init.sql first, got %+v", migrations)
	}
}
