package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one schema script read from the migrations directory.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations reads every *.sql file in dir, ordered by file name.
// A missing directory yields no migrations.
func LoadMigrations(dir string) ([]Migration, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		body := strings.TrimSpace(string(data))
		if body == "" {
			continue
		}
		migrations = append(migrations, Migration{Name: name, SQL: body})
	}
	return migrations, nil
}

// Migrate applies the scripts in dir to the pool. Scripts must be idempotent;
// they run on every open.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}
