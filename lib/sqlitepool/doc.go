// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// persistent lobby directory.
//
// It wraps zombiezen.com/go/sqlite with WAL journaling, NORMAL
// synchronous, and a busy timeout so that the directory server's
// request handlers and its prune loop can share one database file
// without tripping over SQLITE_BUSY.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back, or use [Pool.With] which does both. Connections are not safe
// for concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the writer
//   - synchronous=NORMAL: survives process crashes; lobby records are
//     short-lived and rebuilt by heartbeats, so OS-crash durability is
//     not needed
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//   - foreign_keys=ON: participants rows cascade with their record
//   - temp_store=MEMORY
//
// # Schema
//
// [Config.Schema] is executed once by [Open] on a dedicated connection
// before the pool is handed out, so callers never race on table
// creation. Statements must be idempotent (CREATE ... IF NOT EXISTS).
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/quickplay/directory.db",
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
