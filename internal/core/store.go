package core

import "context"

// Store is one connection to the record store. Every call is a blocking
// round trip. An error means the connection itself failed; store-level
// refusals are reported through the boolean results instead.
//
// A Store is used by one group import at a time.
type Store interface {
	// CreateRecord allocates a new empty record.
	CreateRecord(ctx context.Context) (RecordID, error)

	// FindRecords returns every record where field equals value.
	FindRecords(ctx context.Context, field string, value Value) ([]RecordID, error)

	// WriteField adds value to field in record. False means the store
	// rejected this write; the transaction stays usable.
	WriteField(ctx context.Context, field string, value Value, record RecordID) (bool, error)

	// Begin stages a transaction for subsequent calls.
	Begin(ctx context.Context) error

	// Commit applies the staged transaction. False means it could not be
	// committed (for example a write conflict) and nothing was applied.
	Commit(ctx context.Context) (bool, error)

	// Abort discards the staged transaction, if any.
	Abort(ctx context.Context) error
}

// Conn is a Store checked out of a Pool.
type Conn interface {
	Store

	// Release returns the connection to its pool. The Conn must not be
	// used afterwards.
	Release()
}

// Pool hands out independent store connections.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}
