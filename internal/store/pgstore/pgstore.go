// Package pgstore keeps records in PostgreSQL as field/value rows.
//
// Each record is a row in records; every value it holds is a row in
// record_fields keyed by (record, field, kind, value), so a field can hold
// many values and adding one twice is refused. Group transactions run at
// SERIALIZABLE isolation and a serialization failure anywhere in the
// transaction surfaces as a refused commit, which the engine retries.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/recordimport/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLSTATE codes that mean "run the transaction again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store hands out connections from a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool. The caller keeps ownership of the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Acquire checks out a connection for exclusive use until Release.
func (s *Store) Acquire(ctx context.Context) (core.Conn, error) {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Get returns the values of field in record, oldest first.
func (s *Store) Get(ctx context.Context, record core.RecordID, field string) ([]core.Value, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, value FROM record_fields
		 WHERE record_id = $1 AND field = $2
		 ORDER BY added_at, kind, value`,
		int64(record), field)
	if err != nil {
		return nil, fmt.Errorf("get %s in %d: %w", field, record, err)
	}
	defer rows.Close()

	var values []core.Value
	for rows.Next() {
		var kindName, text string
		if err := rows.Scan(&kindName, &text); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		kind, ok := core.ParseKind(kindName)
		if !ok {
			return nil, fmt.Errorf("unknown kind %q in %s of %d", kindName, field, record)
		}
		v, err := core.ParseValue(kind, text)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// querier is satisfied by both a pooled connection and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is one database connection with at most one open transaction.
type Conn struct {
	conn *pgxpool.Conn
	tx   pgx.Tx

	// doomed is set once the open transaction hit a serialization failure;
	// it can only end in a refused commit.
	doomed bool
}

func (c *Conn) q() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// retryable reports whether err is a serialization failure or deadlock.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// fail records a retryable failure on the open transaction and reports
// whether err was one.
func (c *Conn) fail(err error) bool {
	if c.tx != nil && retryable(err) {
		c.doomed = true
		return true
	}
	return false
}

// Begin implements core.Store. An open transaction is rolled back first.
func (c *Conn) Begin(ctx context.Context) error {
	if err := c.Abort(ctx); err != nil {
		return err
	}
	tx, err := c.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	c.doomed = false
	return nil
}

// CreateRecord implements core.Store. A doomed transaction creates nothing;
// the group is retried once the commit is refused.
func (c *Conn) CreateRecord(ctx context.Context) (core.RecordID, error) {
	if c.doomed {
		return 0, nil
	}
	var id int64
	err := c.q().QueryRow(ctx, `INSERT INTO records DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		if c.fail(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("create record: %w", err)
	}
	return core.RecordID(id), nil
}

// FindRecords implements core.Store.
func (c *Conn) FindRecords(ctx context.Context, field string, value core.Value) ([]core.RecordID, error) {
	if c.doomed {
		return nil, nil
	}
	rows, err := c.q().Query(ctx,
		`SELECT DISTINCT record_id FROM record_fields
		 WHERE field = $1 AND kind = $2 AND value = $3
		 ORDER BY record_id`,
		field, value.Kind().String(), value.Text())
	if err != nil {
		if c.fail(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s=%s: %w", field, value, err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.RecordID, error) {
		var id int64
		err := row.Scan(&id)
		return core.RecordID(id), err
	})
	if err != nil {
		if c.fail(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find %s=%s: %w", field, value, err)
	}
	return ids, nil
}

// WriteField implements core.Store. Inside a transaction each write runs
// under its own savepoint so a refused row leaves the rest intact. A
// duplicate value or a missing record is a refusal, not an error.
func (c *Conn) WriteField(ctx context.Context, field string, value core.Value, record core.RecordID) (bool, error) {
	if c.doomed {
		return false, nil
	}
	const insert = `INSERT INTO record_fields (record_id, field, kind, value)
		VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`
	args := []any{int64(record), field, value.Kind().String(), value.Text()}

	if c.tx == nil {
		tag, err := c.conn.Exec(ctx, insert, args...)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				return false, nil
			}
			return false, fmt.Errorf("write %s: %w", field, err)
		}
		return tag.RowsAffected() == 1, nil
	}

	if _, err := c.tx.Exec(ctx, "SAVEPOINT write_field"); err != nil {
		if c.fail(err) {
			return false, nil
		}
		return false, fmt.Errorf("create savepoint: %w", err)
	}

	tag, err := c.tx.Exec(ctx, insert, args...)
	if err != nil {
		if c.fail(err) {
			return false, nil
		}
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false, fmt.Errorf("write %s: %w", field, err)
		}
		if _, err := c.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT write_field"); err != nil {
			return false, fmt.Errorf("rollback savepoint: %w", err)
		}
		return false, nil
	}

	if _, err := c.tx.Exec(ctx, "RELEASE SAVEPOINT write_field"); err != nil {
		if c.fail(err) {
			return false, nil
		}
		return false, fmt.Errorf("release savepoint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Commit implements core.Store.
func (c *Conn) Commit(ctx context.Context) (bool, error) {
	if c.tx == nil {
		return false, errors.New("commit: no transaction in progress")
	}
	if c.doomed {
		return false, c.Abort(ctx)
	}

	tx := c.tx
	c.tx = nil
	if err := tx.Commit(ctx); err != nil {
		if retryable(err) {
			return false, nil
		}
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Abort implements core.Store.
func (c *Conn) Abort(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	c.doomed = false
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Release implements core.Conn.
func (c *Conn) Release() {
	if c.tx != nil {
		_ = c.Abort(context.Background())
	}
	c.conn.Release()
}
