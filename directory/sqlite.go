// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/quickplay/lib/clock"
	"github.com/bureau-foundation/quickplay/lib/codec"
	"github.com/bureau-foundation/quickplay/lib/sqlitepool"
)

// Schema is the SQLite layout of the directory. The state column
// duplicates data["state"] so searches can use the index.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	host_id      TEXT NOT NULL,
	capacity     INTEGER NOT NULL,
	state        TEXT NOT NULL,
	data         BLOB NOT NULL,
	created_at   INTEGER NOT NULL,
	heartbeat_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_state_seq ON records (state, seq);
CREATE INDEX IF NOT EXISTS records_heartbeat ON records (heartbeat_at);

CREATE TABLE IF NOT EXISTS participants (
	record_id   TEXT NOT NULL REFERENCES records (id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	participant TEXT NOT NULL,
	PRIMARY KEY (record_id, participant)
);
`

// SQLiteDirectory is a Directory persisted in SQLite. Every mutation
// runs in an IMMEDIATE transaction: the record is loaded, the shared
// rules are applied in Go, and the result is written back before the
// write lock is released.
type SQLiteDirectory struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// SQLiteOptions configures a SQLiteDirectory.
type SQLiteOptions struct {
	Path      string
	PoolSize  int
	Clock     clock.Clock
	RecordTTL time.Duration
	Logger    *slog.Logger
}

// OpenSQLite opens (creating if needed) the directory database.
func OpenSQLite(options SQLiteOptions) (*SQLiteDirectory, error) {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.RecordTTL <= 0 {
		options.RecordTTL = DefaultRecordTTL
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     options.Path,
		PoolSize: options.PoolSize,
		Schema:   Schema,
		Logger:   options.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening directory database: %w", err)
	}

	return &SQLiteDirectory{
		pool:   pool,
		clock:  options.Clock,
		ttl:    options.RecordTTL,
		logger: options.Logger,
	}, nil
}

// Close closes the database.
func (d *SQLiteDirectory) Close() error {
	return d.pool.Close()
}

// storageFailure turns a SQLite failure into an unavailable error,
// leaving directory errors and cancellation alone.
func storageFailure(op Op, err error) error {
	if err == nil {
		return nil
	}
	var directoryErr *Error
	if errors.As(err, &directoryErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return unavailable(op, err)
}

// loadRecord reads one record with its participants. Expired records
// are reported as not found.
func (d *SQLiteDirectory) loadRecord(conn *sqlite.Conn, id string, now int64) (*Record, error) {
	var record *Record
	var decodeErr error
	err := sqlitex.Execute(conn, `
		SELECT id, name, host_id, capacity, data, created_at, heartbeat_at
		FROM records WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record = &Record{
				ID:          stmt.ColumnText(0),
				Name:        stmt.ColumnText(1),
				HostID:      stmt.ColumnText(2),
				Capacity:    stmt.ColumnInt(3),
				CreatedAt:   stmt.ColumnInt64(5),
				HeartbeatAt: stmt.ColumnInt64(6),
			}
			blob := make([]byte, stmt.ColumnLen(4))
			stmt.ColumnBytes(4, blob)
			decodeErr = codec.Unmarshal(blob, &record.Data)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding data of record %s: %w", id, decodeErr)
	}
	if record == nil || expired(record, now, d.ttl) {
		return nil, notFound("record %s not found", id)
	}

	record.Participants = []string{}
	err = sqlitex.Execute(conn, `
		SELECT participant FROM participants
		WHERE record_id = ? ORDER BY position`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record.Participants = append(record.Participants, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// saveRecord writes record's row and replaces its participant list.
func saveRecord(conn *sqlite.Conn, record *Record) error {
	data, err := codec.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("encoding data of record %s: %w", record.ID, err)
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO records (id, name, host_id, capacity, state, data, created_at, heartbeat_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)
		ON CONFLICT (id) DO UPDATE SET
			state = excluded.state,
			data = excluded.data,
			heartbeat_at = excluded.heartbeat_at`, &sqlitex.ExecOptions{
		Args: []any{
			record.ID, record.Name, record.HostID, record.Capacity,
			string(record.State()), data, record.CreatedAt, record.HeartbeatAt,
		},
	})
	if err != nil {
		return err
	}

	if err := sqlitex.Execute(conn, "DELETE FROM participants WHERE record_id = ?", &sqlitex.ExecOptions{
		Args: []any{record.ID},
	}); err != nil {
		return err
	}
	for position, participant := range record.Participants {
		if err := sqlitex.Execute(conn, `
			INSERT INTO participants (record_id, position, participant) VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{record.ID, position, participant},
		}); err != nil {
			return err
		}
	}
	return nil
}

func deleteRecord(conn *sqlite.Conn, id string) error {
	return sqlitex.Execute(conn, "DELETE FROM records WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
	})
}

// mutate runs fn on the live record inside an IMMEDIATE transaction.
// fn returns whether the record should be deleted instead of saved.
func (d *SQLiteDirectory) mutate(ctx context.Context, op Op, id string, fn func(record *Record) (remove bool, err error)) (result *Record, err error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, storageFailure(op, err)
	}
	defer d.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageFailure(op, err)
	}
	defer endTransaction(&err)

	record, err := d.loadRecord(conn, id, clock.UnixMilli(d.clock))
	if err != nil {
		return nil, storageFailure(op, err)
	}

	remove, err := fn(record)
	if err != nil {
		return nil, err
	}
	if remove {
		if err = deleteRecord(conn, id); err != nil {
			return nil, storageFailure(op, err)
		}
		return record, nil
	}
	if err = saveRecord(conn, record); err != nil {
		return nil, storageFailure(op, err)
	}
	return record, nil
}

func (d *SQLiteDirectory) Search(ctx context.Context, filter Filter) ([]Record, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, storageFailure(OpSearch, err)
	}
	defer d.pool.Put(conn)

	now := clock.UnixMilli(d.clock)
	var ids []string
	err = sqlitex.Execute(conn, `
		SELECT r.id FROM records r
		WHERE (?1 = '' OR r.state = ?1)
		  AND r.heartbeat_at >= ?2
		  AND r.capacity - (SELECT COUNT(*) FROM participants p WHERE p.record_id = r.id) >= ?3
		ORDER BY r.seq
		LIMIT ?4 OFFSET ?5`, &sqlitex.ExecOptions{
		Args: []any{string(filter.State), now - d.ttl.Milliseconds(), filter.MinAvailableSlots, filter.limit(), max(filter.Offset, 0)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return nil, storageFailure(OpSearch, err)
	}

	results := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := d.loadRecord(conn, id, now)
		if IsCode(err, CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, storageFailure(OpSearch, err)
		}
		results = append(results, *record)
	}
	return results, nil
}

func (d *SQLiteDirectory) Create(ctx context.Context, request CreateRequest) (result *Record, err error) {
	record, err := newRecord(request, clock.UnixMilli(d.clock))
	if err != nil {
		return nil, err
	}

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, storageFailure(OpCreate, err)
	}
	defer d.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, storageFailure(OpCreate, err)
	}
	defer endTransaction(&err)

	if err = saveRecord(conn, record); err != nil {
		return nil, storageFailure(OpCreate, err)
	}

	d.logger.Debug("record created",
		"record_id", record.ID,
		"host_id", record.HostID,
		"capacity", record.Capacity,
	)
	return record, nil
}

func (d *SQLiteDirectory) Join(ctx context.Context, id, participant string) (*Record, error) {
	return d.mutate(ctx, OpJoin, id, func(record *Record) (bool, error) {
		return false, admit(record, participant)
	})
}

func (d *SQLiteDirectory) Get(ctx context.Context, id string) (*Record, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, storageFailure(OpGet, err)
	}
	defer d.pool.Put(conn)

	record, err := d.loadRecord(conn, id, clock.UnixMilli(d.clock))
	if err != nil {
		return nil, storageFailure(OpGet, err)
	}
	return record, nil
}

func (d *SQLiteDirectory) Update(ctx context.Context, id string, fields map[string]string) error {
	_, err := d.mutate(ctx, OpUpdate, id, func(record *Record) (bool, error) {
		return false, applyUpdate(record, fields)
	})
	return err
}

func (d *SQLiteDirectory) Heartbeat(ctx context.Context, id string) error {
	now := clock.UnixMilli(d.clock)
	_, err := d.mutate(ctx, OpHeartbeat, id, func(record *Record) (bool, error) {
		record.HeartbeatAt = now
		return false, nil
	})
	return err
}

func (d *SQLiteDirectory) Leave(ctx context.Context, id, participant string) error {
	_, err := d.mutate(ctx, OpLeave, id, func(record *Record) (bool, error) {
		return removeParticipant(record, participant)
	})
	return err
}

func (d *SQLiteDirectory) Delete(ctx context.Context, id string) error {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return storageFailure(OpDelete, err)
	}
	defer d.pool.Put(conn)

	if err := deleteRecord(conn, id); err != nil {
		return storageFailure(OpDelete, err)
	}
	if conn.Changes() == 0 {
		return notFound("record %s not found", id)
	}
	return nil
}

// Prune removes expired records and returns how many were removed.
func (d *SQLiteDirectory) Prune(ctx context.Context) (int, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer d.pool.Put(conn)

	cutoff := clock.UnixMilli(d.clock) - d.ttl.Milliseconds()
	if err := sqlitex.Execute(conn, "DELETE FROM records WHERE heartbeat_at < ?", &sqlitex.ExecOptions{
		Args: []any{cutoff},
	}); err != nil {
		return 0, fmt.Errorf("pruning expired records: %w", err)
	}
	return conn.Changes(), nil
}
