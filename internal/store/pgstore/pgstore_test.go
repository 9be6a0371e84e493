package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"not a pg error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

// testStore connects to TEST_DATABASE_URL inside a throwaway schema.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schema := "recordimport_" + uuid.NewString()[:8]
	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestStore_GroupTransaction(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	require.NoError(t, c.Begin(ctx))
	id, err := c.CreateRecord(ctx)
	require.NoError(t, err)

	ok, err := c.WriteField(ctx, "name", core.String("Jeff"), id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.WriteField(ctx, "name", core.String("Jeff"), id)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate value")

	ok, err = c.WriteField(ctx, "name", core.String("x"), id+1000)
	require.NoError(t, err)
	assert.False(t, ok, "missing record")

	ok, err = c.WriteField(ctx, "age", core.Int(30), id)
	require.NoError(t, err)
	assert.True(t, ok, "transaction survives refused writes")

	committed, err := c.Commit(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	found, err := c.FindRecords(ctx, "age", core.Int(30))
	require.NoError(t, err)
	assert.Equal(t, []core.RecordID{id}, found)

	found, err = c.FindRecords(ctx, "age", core.Long(30))
	require.NoError(t, err)
	assert.Empty(t, found, "kind is part of equality")

	got, err := s.Get(ctx, id, "name")
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.String("Jeff")}, got)
}

func TestStore_AbortDiscards(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	require.NoError(t, c.Begin(ctx))
	id, err := c.CreateRecord(ctx)
	require.NoError(t, err)
	_, err = c.WriteField(ctx, "k", core.Bool(true), id)
	require.NoError(t, err)
	require.NoError(t, c.Abort(ctx))

	found, err := c.FindRecords(ctx, "k", core.Bool(true))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestStore_ConcurrentConflictIsRefused(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer a.Release()
	b, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer b.Release()

	for _, c := range []core.Conn{a, b} {
		require.NoError(t, c.Begin(ctx))
		_, err := c.FindRecords(ctx, "ssn", core.Int(7))
		require.NoError(t, err)
	}
	for _, c := range []core.Conn{a, b} {
		id, err := c.CreateRecord(ctx)
		require.NoError(t, err)
		_, err = c.WriteField(ctx, "ssn", core.Int(7), id)
		require.NoError(t, err)
	}

	okA, err := a.Commit(ctx)
	require.NoError(t, err)
	okB, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, okA != okB, "exactly one of two overlapping transactions commits")
}

func TestConn_DoomedTransactionRunsNoStatements(t *testing.T) {
	// A nil pool connection panics on any statement.
	c := &Conn{doomed: true}
	ctx := context.Background()

	id, err := c.CreateRecord(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)

	found, err := c.FindRecords(ctx, "ssn", core.Int(7))
	require.NoError(t, err)
	assert.Empty(t, found)

	ok, err := c.WriteField(ctx, "ssn", core.Int(7), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SerializationFailureBeforeCreateRefusesCommit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	conn, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	c := conn.(*Conn)

	require.NoError(t, c.Begin(ctx))
	// Leave the transaction aborted the way a failed lookup does.
	_, err = c.tx.Exec(ctx, "SELECT 1/0")
	require.Error(t, err)
	require.True(t, c.fail(&pgconn.PgError{Code: codeSerializationFailure}))

	id, err := c.CreateRecord(ctx)
	require.NoError(t, err, "no statement runs in the aborted transaction")
	assert.Zero(t, id)

	committed, err := c.Commit(ctx)
	require.NoError(t, err)
	assert.False(t, committed, "the group is retried")

	require.NoError(t, c.Begin(ctx))
	id, err = c.CreateRecord(ctx)
	require.NoError(t, err)
	assert.NotZero(t, id)
	require.NoError(t, c.Abort(ctx))
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "records", DatabaseName("postgres://u:p@localhost:5432/records?sslmode=disable"))
	assert.Equal(t, "", DatabaseName("postgres://localhost"))
	assert.Equal(t, "", DatabaseName("://bad"))
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), config.DatabaseConfig{URL: "://bad", MaxConns: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database URL")
}

func TestStore_Reset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c, err := s.Acquire(ctx)
	require.NoError(t, err)
	defer c.Release()

	require.NoError(t, c.Begin(ctx))
	id, err := c.CreateRecord(ctx)
	require.NoError(t, err)
	_, err = c.WriteField(ctx, "k", core.Int(1), id)
	require.NoError(t, err)
	committed, err := c.Commit(ctx)
	require.NoError(t, err)
	require.True(t, committed)

	require.NoError(t, s.Reset(ctx))

	found, err := c.FindRecords(ctx, "k", core.Int(1))
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, c.Begin(ctx))
	again, err := c.CreateRecord(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Abort(ctx))
	assert.Equal(t, core.RecordID(1), again, "ids restart")
}
