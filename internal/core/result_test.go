package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordSet(t *testing.T) {
	s := NewRecordSet(5, 1, 3, 1)
	s.Add(2)
	s.Add(5)

	assert.Equal(t, []RecordID{1, 2, 3, 5}, s.IDs())
	assert.Equal(t, 4, s.Len())
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(4))
	assert.Equal(t, "[1 2 3 5]", s.String())

	ids := s.IDs()
	ids[0] = 99
	assert.True(t, s.Contains(1), "IDs returns a copy")
}

func TestImportResult(t *testing.T) {
	g := NewRawGroup()
	g.Add("a", "1")
	r := newImportResult(g, Targets{Records: NewRecordSet(7), Created: true})

	assert.False(t, r.HasErrors())
	r.addError(writeRejected("a", Int(1), 7))
	r.addError(writeRejected("b", Link(2), 7))

	assert.Same(t, g, r.Data())
	assert.True(t, r.Created())
	assert.Equal(t, 2, r.ErrorCount())
	assert.Equal(t, []string{
		"could not import a AS 1 IN 7",
		"could not import b AS @2@ IN 7",
	}, r.Errors())
}

func TestRawGroup(t *testing.T) {
	g := NewRawGroup()
	g.Add("b", "1")
	g.Add("a", "x")
	g.Add("b", "2")

	assert.Equal(t, []string{"b", "a"}, g.Fields())
	assert.Equal(t, []string{"1", "2"}, g.Values("b"))
	assert.True(t, g.Has("a"))
	assert.False(t, g.Has("c"))
	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.Values("c"), "missing field")
	assert.Equal(t, `{b: ["1" "2"], a: ["x"]}`, g.String())

	var zero RawGroup
	zero.Add("k", "v")
	assert.Equal(t, []string{"k"}, zero.Fields())
}
