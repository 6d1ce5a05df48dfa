package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempDB(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guardian.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTable(t *testing.T, s *SQLiteStore, ddl string) {
	t.Helper()
	if _, err := s.DB().ExecContext(context.Background(), ddl); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestNew_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/dir/guardian.db"); err == nil {
		t.Error("expected error for unreachable path")
	}
}

func TestNew_Memory(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:): %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestTx(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		fnErr     error
		wantCount int
	}{
		{"commit", nil, 1},
		{"rollback", errBoom, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := tempDB(t)
			createTable(t, s, "CREATE TABLE alerts (id TEXT PRIMARY KEY)")

			err := s.Tx(ctx, func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, "INSERT INTO alerts (id) VALUES ('a1')"); err != nil {
					return err
				}
				return tc.fnErr
			})
			if !errors.Is(err, tc.fnErr) {
				t.Fatalf("Tx error = %v, want %v", err, tc.fnErr)
			}

			var count int
			if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&count); err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != tc.wantCount {
				t.Errorf("count = %d, want %d", count, tc.wantCount)
			}
		})
	}
}

func TestMigrate_AppliesInOrder(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	migrations := []Migration{
		{Version: 1, Description: "create devices", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE devices (id TEXT PRIMARY KEY)")
			return err
		}},
		{Version: 2, Description: "add battery", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("ALTER TABLE devices ADD COLUMN battery INTEGER")
			return err
		}},
	}
	if err := s.Migrate(ctx, "devices", migrations); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, "INSERT INTO devices (id, battery) VALUES ('STICK_001', 80)"); err != nil {
		t.Fatalf("insert after migration: %v", err)
	}

	var count int
	err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations WHERE component = 'devices'").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d migration records, want 2", count)
	}
}

func TestMigrate_SkipsApplied(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	calls := 0
	migrations := []Migration{
		{Version: 1, Description: "create table", Up: func(tx *sql.Tx) error {
			calls++
			_, err := tx.Exec("CREATE TABLE once (id INTEGER)")
			return err
		}},
	}
	for i := 0; i < 2; i++ {
		if err := s.Migrate(ctx, "once", migrations); err != nil {
			t.Fatalf("Migrate #%d: %v", i+1, err)
		}
	}
	if calls != 1 {
		t.Errorf("migration ran %d times, want 1", calls)
	}
}

func TestMigrate_ComponentsIsolated(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	for _, name := range []string{"telemetry", "devices"} {
		table := name + "_probe"
		err := s.Migrate(ctx, name, []Migration{{Version: 1, Description: table, Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE " + table + " (id INTEGER)")
			return err
		}}})
		if err != nil {
			t.Fatalf("Migrate(%s): %v", name, err)
		}
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations WHERE version = 1").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("version 1 recorded %d times, want once per component", count)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	migrations := []Migration{
		{Version: 1, Description: "ok", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE partial (id INTEGER)")
			return err
		}},
		{Version: 2, Description: "bad", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("NOT VALID SQL")
			return err
		}},
	}
	if err := s.Migrate(ctx, "partial", migrations); err == nil {
		t.Fatal("expected error from bad migration")
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations WHERE component = 'partial'").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("committed migrations = %d, want 1", count)
	}
}

func TestPragmas(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	var mode string
	if err := s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		wantErr error
		stored  string
	}{
		{"first run", []string{"0.2.0"}, nil, "0.2.0"},
		{"same version", []string{"0.2.0", "0.2.0"}, nil, "0.2.0"},
		{"upgrade", []string{"0.2.0", "0.3.0"}, nil, "0.3.0"},
		{"downgrade rejected", []string{"0.3.0", "0.2.0"}, ErrNewerSchema, "0.3.0"},
		{"dev passes", []string{"0.3.0", "dev", "0.1.0"}, nil, "0.1.0"},
		{"v prefix", []string{"v0.2.0", "0.2.1"}, nil, "0.2.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := tempDB(t)
			ctx := context.Background()

			var err error
			for _, v := range tc.steps {
				if err = s.CheckVersion(ctx, v); err != nil {
					break
				}
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("CheckVersion error = %v, want %v", err, tc.wantErr)
			}

			var stored string
			if err := s.DB().QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored); err != nil {
				t.Fatalf("query stored version: %v", err)
			}
			if stored != tc.stored {
				t.Errorf("stored = %q, want %q", stored, tc.stored)
			}
		})
	}
}
