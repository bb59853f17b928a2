// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/quickplay/lib/sqlitepool"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS members (
	room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	member TEXT NOT NULL
);
`

func TestPragmasApplied(t *testing.T) {
	pool := openTestPool(t, testSchema)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		var journalMode string
		err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
		}

		var foreignKeys int
		err = sqlitex.Execute(conn, "PRAGMA foreign_keys", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				foreignKeys = stmt.ColumnInt(0)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if foreignKeys != 1 {
			t.Errorf("foreign_keys = %d, want 1", foreignKeys)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}

func TestSchemaAppliedAndCascades(t *testing.T) {
	pool := openTestPool(t, testSchema)
	ctx := context.Background()

	err := pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO rooms (id, state) VALUES ('r1', 'searching');
			INSERT INTO members (room_id, member) VALUES ('r1', 'a'), ('r1', 'b');
			DELETE FROM rooms WHERE id = 'r1';
		`, nil)
	})
	if err != nil {
		t.Fatalf("script: %v", err)
	}

	var remaining int64
	err = pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COUNT(*) FROM members", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				remaining = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 0 {
		t.Errorf("members after cascade = %d, want 0", remaining)
	}
}

func TestConcurrentReads(t *testing.T) {
	pool := openTestPool(t, testSchema)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO rooms (id, state) VALUES
				('a', 'searching'), ('b', 'searching'), ('c', 'starting');
		`, nil)
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	const goroutineCount = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, goroutineCount)

	for range goroutineCount {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
				var count int64
				err := sqlitex.Execute(conn, "SELECT COUNT(*) FROM rooms WHERE state = ?", &sqlitex.ExecOptions{
					Args: []any{"searching"},
					ResultFunc: func(stmt *sqlite.Stmt) error {
						count = stmt.ColumnInt64(0)
						return nil
					},
				})
				if err != nil {
					return err
				}
				if count != 2 {
					return fmt.Errorf("count = %d, want 2", count)
				}
				return nil
			})
			if err != nil {
				errs <- err
			}
		}()
	}

	waitGroup.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestBadSchemaRejected(t *testing.T) {
	_, err := sqlitepool.Open(sqlitepool.Config{
		Path:   filepath.Join(t.TempDir(), "bad.db"),
		Schema: "CREATE TABLE (",
	})
	if err == nil {
		t.Fatal("expected error for malformed schema")
	}
}

func TestContextCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	pool.Put(conn)
}

func openTestPool(t *testing.T, schema string) *sqlitepool.Pool {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Schema: schema,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
