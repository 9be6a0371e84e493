package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/store/memstore"
)

// faultConn wraps a connection to refuse or fail selected calls.
type faultConn struct {
	core.Conn

	reject   func(field string, v core.Value) bool
	writeErr error

	writes int
	fields []string
	aborts int
}

func (f *faultConn) WriteField(ctx context.Context, field string, v core.Value, record core.RecordID) (bool, error) {
	f.writes++
	f.fields = append(f.fields, field)
	if f.writeErr != nil {
		return false, f.writeErr
	}
	if f.reject != nil && f.reject(field, v) {
		return false, nil
	}
	return f.Conn.WriteField(ctx, field, v, record)
}

func (f *faultConn) Abort(ctx context.Context) error {
	f.aborts++
	return f.Conn.Abort(ctx)
}

type recorder struct {
	mu        sync.Mutex
	created   int
	rejected  []string
	conflicts int
	attempts  []int
}

func (r *recorder) RecordCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *recorder) WriteRejected(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, field)
}

func (r *recorder) CommitConflict(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func (r *recorder) GroupImported(_ *core.ImportResult, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempts)
}

// group builds a RawGroup from field/value pairs.
func group(pairs ...string) *core.RawGroup {
	g := core.NewRawGroup()
	for i := 0; i+1 < len(pairs); i += 2 {
		g.Add(pairs[i], pairs[i+1])
	}
	return g
}

func conn(t *testing.T, db *memstore.DB) core.Conn {
	t.Helper()
	c, err := db.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(c.Release)
	return c
}

func mustImport(t *testing.T, im *core.Importer, g *core.RawGroup, resolveKey string) *core.ImportResult {
	t.Helper()
	res, err := im.ImportGroup(context.Background(), g, resolveKey)
	require.NoError(t, err)
	return res
}

func only(t *testing.T, s core.RecordSet) core.RecordID {
	t.Helper()
	require.Equal(t, 1, s.Len(), "records %s", s)
	return s.IDs()[0]
}

func annGroup() *core.RawGroup {
	return group("name", "Ann", "age", "30", "id", "@<ssn>@123-45-6789@<ssn>@")
}

func TestImportGroup_CreatesRecordWithoutResolveKey(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))

	res := mustImport(t, im, annGroup(), "")

	id := only(t, res.Records())
	assert.True(t, res.Created())
	assert.Zero(t, res.ErrorCount())
	assert.Equal(t, []core.Value{core.String("Ann")}, db.Get(id, "name"))
	assert.Equal(t, []core.Value{core.Int(30)}, db.Get(id, "age"))
	assert.Empty(t, db.Get(id, "id"), "unmatched reference writes nothing")
	assert.Equal(t, []core.RecordID{id}, db.Records())
}

func TestImportGroup_ResolvesIntoExistingRecord(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	first := mustImport(t, im, group("name", "Ann"), "")

	fc := &faultConn{Conn: conn(t, db)}
	rec := &recorder{}
	res := mustImport(t, core.NewImporter(fc, core.WithObserver(rec)), annGroup(), "name")

	assert.False(t, res.Created())
	assert.Zero(t, rec.created)
	assert.Equal(t, first.Records(), res.Records())
	id := only(t, res.Records())
	assert.Equal(t, []string{"name", "age"}, fc.fields, "resolve value is written like any other")
	require.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, "could not import name AS Ann IN 1", res.Errors()[0])
	assert.Equal(t, []core.Value{core.String("Ann")}, db.Get(id, "name"))
	assert.Equal(t, []core.Value{core.Int(30)}, db.Get(id, "age"))
	assert.Len(t, db.Records(), 1)
}

func TestImportGroup_RejectedWriteIsSoftError(t *testing.T) {
	db := memstore.New()
	fc := &faultConn{
		Conn: conn(t, db),
		reject: func(field string, v core.Value) bool {
			return field == "age" && v == core.Int(30)
		},
	}
	rec := &recorder{}
	im := core.NewImporter(fc, core.WithObserver(rec))

	res := mustImport(t, im, annGroup(), "")

	id := only(t, res.Records())
	require.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, "could not import age AS 30 IN 1", res.Errors()[0])
	assert.Equal(t, []string{"age"}, rec.rejected)
	assert.Equal(t, []core.Value{core.String("Ann")}, db.Get(id, "name"), "transaction still committed")
	assert.Empty(t, db.Get(id, "age"))
}

func TestImportGroup_FansOutToAllMatches(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	eng1 := only(t, mustImport(t, im, group("dept", "eng"), "").Records())
	eng2 := only(t, mustImport(t, im, group("dept", "eng"), "").Records())
	ops := only(t, mustImport(t, im, group("dept", "ops"), "").Records())

	res := mustImport(t, im, group("dept", "eng", "bonus", "5"), "dept")

	assert.Equal(t, core.NewRecordSet(eng1, eng2), res.Records())
	assert.Equal(t, []core.Value{core.Int(5)}, db.Get(eng1, "bonus"))
	assert.Equal(t, []core.Value{core.Int(5)}, db.Get(eng2, "bonus"))
	assert.Empty(t, db.Get(ops, "bonus"))
}

func TestImportGroup_UnionsResolveValues(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	a := only(t, mustImport(t, im, group("email", "a@x.io"), "").Records())
	b := only(t, mustImport(t, im, group("email", "b@x.io"), "").Records())

	res := mustImport(t, im, group("email", "a@x.io", "email", "b@x.io", "email", "", "vip", "true"), "email")

	assert.Equal(t, core.NewRecordSet(a, b), res.Records())
	assert.Equal(t, 2, res.ErrorCount(), "each record already holds its own email")
	assert.Equal(t, []core.Value{core.Bool(true)}, db.Get(a, "vip"))
	assert.Equal(t, []core.Value{core.Bool(true)}, db.Get(b, "vip"))
}

func TestImportGroup_ResolveValueWrittenToOtherTargets(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	a := only(t, mustImport(t, im, group("email", "a@x.io"), "").Records())
	b := only(t, mustImport(t, im, group("email", "b@x.io"), "").Records())

	mustImport(t, im, group("email", "a@x.io", "email", "b@x.io"), "email")

	assert.ElementsMatch(t, []core.Value{core.String("a@x.io"), core.String("b@x.io")}, db.Get(a, "email"))
	assert.ElementsMatch(t, []core.Value{core.String("a@x.io"), core.String("b@x.io")}, db.Get(b, "email"))
}

func TestImportGroup_NewRecordWhenResolveMisses(t *testing.T) {
	tests := []struct {
		name       string
		group      *core.RawGroup
		resolveKey string
	}{
		{"no match", group("name", "Bob"), "name"},
		{"key absent from group", group("age", "3"), "name"},
		{"only blank resolve values", group("name", " ", "age", "3"), "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memstore.New()
			im := core.NewImporter(conn(t, db))
			mustImport(t, im, group("name", "Ann"), "")

			res := mustImport(t, im, tt.group, tt.resolveKey)
			assert.True(t, res.Created())
			assert.Equal(t, 1, res.Records().Len())
			assert.Len(t, db.Records(), 2)
		})
	}
}

func TestImportGroup_SkipsBlankValues(t *testing.T) {
	db := memstore.New()
	fc := &faultConn{Conn: conn(t, db)}
	im := core.NewImporter(fc)

	res := mustImport(t, im, group("a", "", "b", "   ", "c", "1", "c", ""), "")

	assert.Equal(t, 1, fc.writes)
	assert.Zero(t, res.ErrorCount())
	assert.Equal(t, []string{"c"}, db.Fields(only(t, res.Records())))
}

func TestImportGroup_ExpandsDeferredReferences(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	p1 := only(t, mustImport(t, im, group("ssn", "1", "name", "Jeff"), "").Records())
	p2 := only(t, mustImport(t, im, group("ssn", "1", "name", "Jeff Jr"), "").Records())

	res := mustImport(t, im, group("name", "Ann", "friend", core.WrapResolvable("ssn", "1")), "")

	id := only(t, res.Records())
	assert.Equal(t, []core.Value{core.Link(p1), core.Link(p2)}, db.Get(id, "friend"))
}

func TestImportGroup_LinksAndQuotedStrings(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))
	target := only(t, mustImport(t, im, group("x", "1"), "").Records())

	res := mustImport(t, im, group("parent", "@1@", "zip", `"02139"`, "ratio", "0.5D"), "")

	id := only(t, res.Records())
	assert.Equal(t, []core.Value{core.Link(target)}, db.Get(id, "parent"))
	assert.Equal(t, []core.Value{core.String("02139")}, db.Get(id, "zip"))
	assert.Equal(t, []core.Value{core.Double(0.5)}, db.Get(id, "ratio"))
}

func TestImportGroup_DuplicateValueIsSoftError(t *testing.T) {
	db := memstore.New()
	im := core.NewImporter(conn(t, db))

	res := mustImport(t, im, group("tag", "x", "tag", "x", "tag", "y"), "")

	assert.Equal(t, 1, res.ErrorCount())
	assert.True(t, res.HasErrors())
	assert.Equal(t, []core.Value{core.String("x"), core.String("y")}, db.Get(only(t, res.Records()), "tag"))
}

func TestImportGroup_RetriesRefusedCommits(t *testing.T) {
	db := memstore.New()
	db.RefuseCommits(2)
	rec := &recorder{}
	im := core.NewImporter(conn(t, db), core.WithObserver(rec))

	res := mustImport(t, im, group("name", "Ann", "tag", "a"), "")

	assert.Equal(t, 2, rec.conflicts)
	assert.Equal(t, []int{3}, rec.attempts)
	assert.Equal(t, 1, rec.created, "refused attempts create nothing that lasts")
	assert.Zero(t, res.ErrorCount(), "failed attempts leave no soft errors behind")

	id := only(t, res.Records())
	assert.Equal(t, []core.RecordID{id}, db.Records(), "refused attempts left nothing behind")
	assert.Equal(t, []core.Value{core.String("a")}, db.Get(id, "tag"))
}

func TestImportGroup_GivesUpAfterMaxAttempts(t *testing.T) {
	db := memstore.New()
	db.RefuseCommits(10)
	im := core.NewImporter(conn(t, db), core.WithRetryPolicy(core.RetryPolicy{MaxAttempts: 3}))

	res, err := im.ImportGroup(context.Background(), group("a", "1"), "")

	assert.Nil(t, res)
	require.ErrorIs(t, err, core.ErrCommitConflict)
	var cce *core.CommitConflictError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, 3, cce.Attempts)
	assert.Empty(t, db.Records())
}

func TestImportGroup_BackOffStop(t *testing.T) {
	db := memstore.New()
	db.RefuseCommits(1)
	im := core.NewImporter(conn(t, db), core.WithRetryPolicy(core.RetryPolicy{
		NewBackOff: func() backoff.BackOff { return &backoff.StopBackOff{} },
	}))

	_, err := im.ImportGroup(context.Background(), group("a", "1"), "")

	var cce *core.CommitConflictError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, 1, cce.Attempts)
}

func TestImportGroup_CancelledWhileBackingOff(t *testing.T) {
	db := memstore.New()
	db.RefuseCommits(1)
	im := core.NewImporter(conn(t, db), core.WithRetryPolicy(core.RetryPolicy{
		NewBackOff: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) },
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := im.ImportGroup(ctx, group("a", "1"), "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestImportGroup_StoreErrorAborts(t *testing.T) {
	db := memstore.New()
	boom := errors.New("connection reset by peer")
	fc := &faultConn{Conn: conn(t, db), writeErr: boom}
	im := core.NewImporter(fc)

	res, err := im.ImportGroup(context.Background(), group("a", "1"), "")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fc.aborts)
	assert.Empty(t, db.Records())
}

func TestImportGroup_ConcurrentResolveConverges(t *testing.T) {
	db := memstore.New()
	var wg sync.WaitGroup
	for _, src := range []string{"a", "b", "c", "d"} {
		im := core.NewImporter(conn(t, db))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := im.ImportGroup(context.Background(), group("ssn", "1", "src", src), "ssn")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records := db.Records()
	require.Len(t, records, 1, "serialized imports resolve into the first record")
	assert.Len(t, db.Get(records[0], "src"), 4)
}
