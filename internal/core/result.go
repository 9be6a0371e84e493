package core

import (
	"fmt"
	"slices"
)

// RecordSet is an ordered set of record identifiers.
type RecordSet struct {
	ids []RecordID
}

// NewRecordSet builds a set from ids, dropping duplicates.
func NewRecordSet(ids ...RecordID) RecordSet {
	var s RecordSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id, keeping the set sorted.
func (s *RecordSet) Add(id RecordID) {
	i, found := slices.BinarySearch(s.ids, id)
	if found {
		return
	}
	s.ids = slices.Insert(s.ids, i, id)
}

// Contains reports whether id is in the set.
func (s RecordSet) Contains(id RecordID) bool {
	_, found := slices.BinarySearch(s.ids, id)
	return found
}

// Len returns the number of records.
func (s RecordSet) Len() int { return len(s.ids) }

// IDs returns the records in ascending order.
func (s RecordSet) IDs() []RecordID { return slices.Clone(s.ids) }

func (s RecordSet) String() string { return fmt.Sprint(s.ids) }

// ImportResult describes what happened when one group was imported: the raw
// data, the records it was written into and the writes the store rejected.
// Soft errors do not mean the transaction failed; the group committed with
// those writes missing.
type ImportResult struct {
	data    *RawGroup
	records RecordSet
	created bool
	errors  []string
}

func newImportResult(data *RawGroup, targets Targets) *ImportResult {
	return &ImportResult{data: data, records: targets.Records, created: targets.Created}
}

func (r *ImportResult) addError(msg string) {
	r.errors = append(r.errors, msg)
}

// Data returns the raw group that was imported.
func (r *ImportResult) Data() *RawGroup { return r.data }

// Records returns the records the group was written into. Never empty.
func (r *ImportResult) Records() RecordSet { return r.records }

// Created reports whether the group went into a newly created record.
func (r *ImportResult) Created() bool { return r.created }

// Errors returns the soft error messages in the order they occurred.
func (r *ImportResult) Errors() []string { return slices.Clone(r.errors) }

// ErrorCount returns the number of rejected writes.
func (r *ImportResult) ErrorCount() int { return len(r.errors) }

// HasErrors reports whether any write was rejected.
func (r *ImportResult) HasErrors() bool { return len(r.errors) > 0 }
