// Package memstore is an in-memory record store with optimistic
// transactions. It backs dry runs and tests.
//
// A transaction reads committed data plus its own staged writes. At commit
// it fails if any field it read or wrote was committed by someone else
// after it began, which keeps concurrent group imports serializable.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// ErrNoTransaction is returned by Commit when Begin was not called.
var ErrNoTransaction = errors.New("memstore: no transaction in progress")

// ErrReleased is returned by calls on a released connection.
var ErrReleased = errors.New("memstore: connection released")

// DB holds the committed data and hands out connections.
type DB struct {
	mu       sync.Mutex
	nextID   core.RecordID
	seq      uint64
	records  map[core.RecordID]map[string][]core.Value
	fieldSeq map[string]uint64

	// forced counts commits that must be refused regardless of conflicts.
	forced int
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		records:  make(map[core.RecordID]map[string][]core.Value),
		fieldSeq: make(map[string]uint64),
	}
}

// Acquire returns a new connection. It never blocks.
func (db *DB) Acquire(ctx context.Context) (core.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Conn{db: db}, nil
}

// RefuseCommits makes the next n commits fail as conflicts.
func (db *DB) RefuseCommits(n int) {
	db.mu.Lock()
	db.forced += n
	db.mu.Unlock()
}

// Records returns the committed record ids in ascending order.
func (db *DB) Records() []core.RecordID {
	db.mu.Lock()
	defer db.mu.Unlock()
	ids := make([]core.RecordID, 0, len(db.records))
	for id := range db.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Get returns the committed values of field in record.
func (db *DB) Get(record core.RecordID, field string) []core.Value {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.records[record][field])
}

// Fields returns the committed field names of record, sorted.
func (db *DB) Fields(record core.RecordID) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	fields := make([]string, 0, len(db.records[record]))
	for f := range db.records[record] {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// Conn is one connection with at most one open transaction.
type Conn struct {
	db       *DB
	tx       *tx
	released bool
}

type write struct {
	record core.RecordID
	field  string
	value  core.Value
}

type tx struct {
	startSeq uint64
	created  []core.RecordID
	writes   []write
	touched  map[string]struct{}
}

func (c *Conn) check() error {
	if c.released {
		return ErrReleased
	}
	return nil
}

// Begin implements core.Store. An open transaction is discarded.
func (c *Conn) Begin(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.tx = &tx{startSeq: c.db.seq, touched: make(map[string]struct{})}
	return nil
}

// CreateRecord implements core.Store. Ids are never reused, even when the
// transaction that allocated one is aborted.
func (c *Conn) CreateRecord(ctx context.Context) (core.RecordID, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.nextID++
	id := c.db.nextID
	if c.tx != nil {
		c.tx.created = append(c.tx.created, id)
	} else {
		c.db.records[id] = make(map[string][]core.Value)
	}
	return id, nil
}

// FindRecords implements core.Store.
func (c *Conn) FindRecords(ctx context.Context, field string, value core.Value) ([]core.RecordID, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	var found core.RecordSet
	for id, fields := range c.db.records {
		if slices.Contains(fields[field], value) {
			found.Add(id)
		}
	}
	if c.tx != nil {
		c.tx.touched[field] = struct{}{}
		for _, w := range c.tx.writes {
			if w.field == field && w.value == value {
				found.Add(w.record)
			}
		}
	}
	return found.IDs(), nil
}

// WriteField implements core.Store. Adding a value the field already holds
// is rejected, as is writing to a record that does not exist.
func (c *Conn) WriteField(ctx context.Context, field string, value core.Value, record core.RecordID) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if !c.exists(record) || c.holds(record, field, value) {
		return false, nil
	}
	w := write{record: record, field: field, value: value}
	if c.tx == nil {
		c.db.apply([]write{w})
		return true, nil
	}
	c.tx.touched[field] = struct{}{}
	c.tx.writes = append(c.tx.writes, w)
	return true, nil
}

func (c *Conn) exists(record core.RecordID) bool {
	if _, ok := c.db.records[record]; ok {
		return true
	}
	return c.tx != nil && slices.Contains(c.tx.created, record)
}

func (c *Conn) holds(record core.RecordID, field string, value core.Value) bool {
	if slices.Contains(c.db.records[record][field], value) {
		return true
	}
	if c.tx == nil {
		return false
	}
	return slices.Contains(c.tx.writes, write{record: record, field: field, value: value})
}

// Commit implements core.Store.
func (c *Conn) Commit(ctx context.Context) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if c.tx == nil {
		return false, ErrNoTransaction
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	t := c.tx
	c.tx = nil

	if c.db.forced > 0 {
		c.db.forced--
		return false, nil
	}
	for field := range t.touched {
		if c.db.fieldSeq[field] > t.startSeq {
			return false, nil
		}
	}

	for _, id := range t.created {
		c.db.records[id] = make(map[string][]core.Value)
	}
	c.db.apply(t.writes)
	return true, nil
}

// apply commits writes. The caller holds db.mu.
func (db *DB) apply(writes []write) {
	db.seq++
	for _, w := range writes {
		fields := db.records[w.record]
		fields[w.field] = append(fields[w.field], w.value)
		db.fieldSeq[w.field] = db.seq
	}
}

// Abort implements core.Store.
func (c *Conn) Abort(ctx context.Context) error {
	c.tx = nil
	return nil
}

// Release implements core.Conn. An open transaction is discarded.
func (c *Conn) Release() {
	c.tx = nil
	c.released = true
}
