// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/quickplay/lib/clock"
)

// MemoryDirectory is an in-process Directory. Besides backing the
// directory service's --memory mode, it is the workhorse of the
// orchestrator tests: InjectFault makes the next calls of an operation
// fail as unavailable, and Calls counts every operation.
type MemoryDirectory struct {
	clock  clock.Clock
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
	order   []string
	faults  map[Op]int
	calls   map[Op]int
}

// MemoryOptions configures a MemoryDirectory. Zero values pick
// defaults.
type MemoryOptions struct {
	Clock     clock.Clock
	RecordTTL time.Duration
	Logger    *slog.Logger
}

// NewMemory returns an empty in-memory directory.
func NewMemory(options MemoryOptions) *MemoryDirectory {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.RecordTTL <= 0 {
		options.RecordTTL = DefaultRecordTTL
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryDirectory{
		clock:   options.Clock,
		ttl:     options.RecordTTL,
		logger:  options.Logger,
		records: make(map[string]*Record),
		faults:  make(map[Op]int),
		calls:   make(map[Op]int),
	}
}

// InjectFault makes the next count calls of op fail with
// CodeUnavailable before touching any record.
func (d *MemoryDirectory) InjectFault(op Op, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = count
}

// Calls returns how many times op has been called, faults included.
func (d *MemoryDirectory) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Len returns the number of stored records, expired ones included.
func (d *MemoryDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// enterLocked counts the call and consumes an injected fault.
func (d *MemoryDirectory) enterLocked(op Op) error {
	d.calls[op]++
	if d.faults[op] > 0 {
		d.faults[op]--
		return &Error{Code: CodeUnavailable, Message: string(op) + ": injected fault"}
	}
	return nil
}

// liveLocked returns the record if it exists and has not expired.
func (d *MemoryDirectory) liveLocked(id string) (*Record, error) {
	record, ok := d.records[id]
	if !ok || expired(record, clock.UnixMilli(d.clock), d.ttl) {
		return nil, notFound("record %s not found", id)
	}
	return record, nil
}

func (d *MemoryDirectory) removeLocked(id string) {
	delete(d.records, id)
	if index := slices.Index(d.order, id); index >= 0 {
		d.order = slices.Delete(d.order, index, index+1)
	}
}

func (d *MemoryDirectory) Search(ctx context.Context, filter Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpSearch); err != nil {
		return nil, err
	}

	now := clock.UnixMilli(d.clock)
	limit := filter.limit()
	skipped := 0
	results := []Record{}
	for _, id := range d.order {
		record := d.records[id]
		if expired(record, now, d.ttl) || !matches(record, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		results = append(results, *record.Clone())
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (d *MemoryDirectory) Create(ctx context.Context, request CreateRequest) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpCreate); err != nil {
		return nil, err
	}

	record, err := newRecord(request, clock.UnixMilli(d.clock))
	if err != nil {
		return nil, err
	}
	d.records[record.ID] = record
	d.order = append(d.order, record.ID)

	d.logger.Debug("record created",
		"record_id", record.ID,
		"host_id", record.HostID,
		"capacity", record.Capacity,
	)
	return record.Clone(), nil
}

func (d *MemoryDirectory) Join(ctx context.Context, id, participant string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpJoin); err != nil {
		return nil, err
	}

	record, err := d.liveLocked(id)
	if err != nil {
		return nil, err
	}
	if err := admit(record, participant); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpGet); err != nil {
		return nil, err
	}

	record, err := d.liveLocked(id)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func (d *MemoryDirectory) Update(ctx context.Context, id string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpUpdate); err != nil {
		return err
	}

	record, err := d.liveLocked(id)
	if err != nil {
		return err
	}
	return applyUpdate(record, fields)
}

func (d *MemoryDirectory) Heartbeat(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpHeartbeat); err != nil {
		return err
	}

	record, err := d.liveLocked(id)
	if err != nil {
		return err
	}
	record.HeartbeatAt = clock.UnixMilli(d.clock)
	return nil
}

func (d *MemoryDirectory) Leave(ctx context.Context, id, participant string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpLeave); err != nil {
		return err
	}

	record, err := d.liveLocked(id)
	if err != nil {
		return err
	}
	empty, err := removeParticipant(record, participant)
	if err != nil {
		return err
	}
	if empty {
		d.removeLocked(id)
		d.logger.Debug("record removed after last participant left", "record_id", id)
	}
	return nil
}

func (d *MemoryDirectory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enterLocked(OpDelete); err != nil {
		return err
	}

	if _, ok := d.records[id]; !ok {
		return notFound("record %s not found", id)
	}
	d.removeLocked(id)
	return nil
}

// Prune removes expired records and returns how many were removed.
func (d *MemoryDirectory) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := clock.UnixMilli(d.clock)
	var stale []string
	for _, id := range d.order {
		if expired(d.records[id], now, d.ttl) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		d.removeLocked(id)
	}
	return len(stale), nil
}
