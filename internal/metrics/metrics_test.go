package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/recordimport/internal/core"
)

func TestMetrics_ObserverCounters(t *testing.T) {
	m := New()

	m.RecordCreated()
	m.RecordCreated()
	m.WriteRejected("name")
	m.CommitConflict(1)
	m.CommitConflict(2)
	m.CommitConflict(3)
	m.GroupImported(nil, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writesRejected))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.commitConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.groupsImported))
}

func TestMetrics_FileImported(t *testing.T) {
	m := New()

	m.FileImported("csv", &core.FileReport{Duration: time.Second}, nil)
	m.FileImported("csv", &core.FileReport{}, &core.MalformedGroupError{Source: "a.csv", Line: 3})
	m.FileImported("json", nil, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("csv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("csv", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("json", "error")))
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordCreated()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.recordsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordsCreated))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	l := core.NewLimiter(3, time.Second)
	m.TrackLimiter(l)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()
	m.GroupImported(nil, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "recordimport_groups_imported_total 1")
	assert.Contains(t, string(body), "recordimport_imports_running 1")
	assert.Contains(t, string(body), "recordimport_import_slots 3")
}
