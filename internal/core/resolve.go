package core

import (
	"context"
	"fmt"
)

// Targets is the set of records a group is written into.
type Targets struct {
	Records RecordSet

	// Created is true when no record resolved and a new one was made.
	Created bool
}

// Resolver turns resolve keys and deferred references into records.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver that queries store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveTargets determines the records group is imported into. Every
// non-empty value of resolveKey is looked up and the matches are unioned.
// If resolveKey is empty, absent from the group or matches nothing, exactly
// one new record is created. The returned set is never empty.
//
// Resolve values are compared as data values; an @id@ literal is matched as
// a link stored under resolveKey, never used as a record id directly.
func (r *Resolver) ResolveTargets(ctx context.Context, group *RawGroup, resolveKey string) (Targets, error) {
	var t Targets

	if resolveKey != "" {
		for _, raw := range group.Values(resolveKey) {
			if isBlank(raw) {
				continue
			}
			values, err := r.expand(ctx, Infer(raw))
			if err != nil {
				return Targets{}, err
			}
			for _, v := range values {
				found, err := r.store.FindRecords(ctx, resolveKey, v)
				if err != nil {
					return Targets{}, fmt.Errorf("resolve %s=%s: %w", resolveKey, v, err)
				}
				for _, id := range found {
					t.Records.Add(id)
				}
			}
		}
	}

	if t.Records.Len() == 0 {
		id, err := r.store.CreateRecord(ctx)
		if err != nil {
			return Targets{}, fmt.Errorf("create record: %w", err)
		}
		t.Records.Add(id)
		t.Created = true
	}
	return t, nil
}

// ResolveDeferred returns one Link for every record where ref.Key equals
// ref.Value. No match yields no links and no error.
func (r *Resolver) ResolveDeferred(ctx context.Context, ref DeferredReference) ([]Value, error) {
	found, err := r.store.FindRecords(ctx, ref.Key, ref.Value)
	if err != nil {
		return nil, fmt.Errorf("resolve reference %s: %w", ref, err)
	}
	links := make([]Value, 0, len(found))
	for _, id := range NewRecordSet(found...).IDs() {
		links = append(links, Link(id))
	}
	return links, nil
}

// expand turns an inference result into the values to write.
func (r *Resolver) expand(ctx context.Context, in Inferred) ([]Value, error) {
	switch v := in.(type) {
	case Value:
		return []Value{v}, nil
	case DeferredReference:
		return r.ResolveDeferred(ctx, v)
	default:
		panic(fmt.Sprintf("core: unexpected inference result %T", in))
	}
}
