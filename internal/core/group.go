package core

import (
	"fmt"
	"strings"
)

// RawGroup is one logical unit of raw input (a CSV line, a JSON object)
// mapped from field name to the raw values seen for it, in order.
//
// Sources build a group with Add; once handed to an Importer it is only
// read, and it is retained on the ImportResult for inspection.
type RawGroup struct {
	fields []string
	values map[string][]string
}

// NewRawGroup returns an empty group.
func NewRawGroup() *RawGroup {
	return &RawGroup{values: make(map[string][]string)}
}

// Add appends a raw value to field. Repeating a field adds another value.
func (g *RawGroup) Add(field, value string) {
	if g.values == nil {
		g.values = make(map[string][]string)
	}
	if _, ok := g.values[field]; !ok {
		g.fields = append(g.fields, field)
	}
	g.values[field] = append(g.values[field], value)
}

// Fields returns field names in first-seen order.
func (g *RawGroup) Fields() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.fields))
	copy(out, g.fields)
	return out
}

// Values returns the raw values of field in insertion order.
func (g *RawGroup) Values(field string) []string {
	if g == nil {
		return nil
	}
	vals := g.values[field]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Has reports whether field appears in the group.
func (g *RawGroup) Has(field string) bool {
	if g == nil {
		return false
	}
	_, ok := g.values[field]
	return ok
}

// Len returns the number of distinct fields.
func (g *RawGroup) Len() int {
	if g == nil {
		return 0
	}
	return len(g.fields)
}

func (g *RawGroup) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, f := range g.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %q", f, g.values[f])
	}
	b.WriteString("}")
	return b.String()
}

// isBlank reports whether a raw value carries nothing worth writing.
func isBlank(raw string) bool {
	return strings.TrimSpace(raw) == ""
}
