package core

// importer.go assembles a group into store writes and commits it.
//
// Each group runs through Idle -> Staged -> Committed, or back to Idle when
// the store refuses the commit. Inside Staged every write is independent: a
// rejected write is recorded on the result and the rest continue. Anything
// that returns an error from the store aborts the transaction and the group.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v5"
)

// Importer imports groups into one store connection. Calls to ImportGroup
// are serialized so staged transactions never interleave on the connection.
type Importer struct {
	store    Store
	resolver *Resolver
	retry    RetryPolicy
	logger   *slog.Logger
	observer Observer

	mu sync.Mutex
}

// Option configures an Importer.
type Option func(*Importer)

// WithRetryPolicy sets the commit retry policy. The default retries forever
// without delay.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(im *Importer) { im.retry = p }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// WithObserver registers an Observer for engine events.
func WithObserver(o Observer) Option {
	return func(im *Importer) {
		if o != nil {
			im.observer = o
		}
	}
}

// NewImporter returns an Importer writing through store.
func NewImporter(store Store, opts ...Option) *Importer {
	im := &Importer{
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(im)
	}
	im.resolver = NewResolver(store)
	return im
}

// ImportGroup writes group into the store as one transaction and returns the
// outcome. When resolveKey is set the group is written into every existing
// record whose resolveKey matches; otherwise into one new record.
//
// A refused commit retries the whole group according to the retry policy.
// Store errors are returned as-is and no result is produced.
func (im *Importer) ImportGroup(ctx context.Context, group *RawGroup, resolveKey string) (*ImportResult, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var b backoff.BackOff
	for attempt := 1; ; attempt++ {
		result, committed, err := im.attempt(ctx, group, resolveKey)
		if err != nil {
			return nil, err
		}
		if committed {
			if result.Created() {
				im.observer.RecordCreated()
			}
			im.observer.GroupImported(result, attempt)
			return result, nil
		}

		im.observer.CommitConflict(attempt)
		if im.retry.exhausted(attempt) {
			return nil, &CommitConflictError{Attempts: attempt}
		}

		if b == nil {
			b = im.retry.backOff()
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, &CommitConflictError{Attempts: attempt}
		}
		im.logger.Debug("commit refused, retrying group",
			"attempt", attempt,
			"delay", delay,
			"resolve_key", resolveKey,
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt runs one Idle -> Staged -> Committed pass.
func (im *Importer) attempt(ctx context.Context, group *RawGroup, resolveKey string) (*ImportResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := im.store.Begin(ctx); err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}

	result, err := im.apply(ctx, group, resolveKey)
	if err != nil {
		im.abort(ctx)
		return nil, false, err
	}

	committed, err := im.store.Commit(ctx)
	if err != nil {
		im.abort(ctx)
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return result, committed, nil
}

// apply performs every write of group inside the staged transaction.
func (im *Importer) apply(ctx context.Context, group *RawGroup, resolveKey string) (*ImportResult, error) {
	targets, err := im.resolver.ResolveTargets(ctx, group, resolveKey)
	if err != nil {
		return nil, err
	}
	result := newImportResult(group, targets)
	records := targets.Records.IDs()

	for _, field := range group.Fields() {
		for _, raw := range group.Values(field) {
			if isBlank(raw) {
				continue
			}
			values, err := im.resolver.expand(ctx, Infer(raw))
			if err != nil {
				return nil, err
			}
			for _, record := range records {
				for _, v := range values {
					ok, err := im.store.WriteField(ctx, field, v, record)
					if err != nil {
						return nil, fmt.Errorf("write %s=%s in %d: %w", field, v, record, err)
					}
					if !ok {
						result.addError(writeRejected(field, v, record))
						im.observer.WriteRejected(field)
					}
				}
			}
		}
	}
	return result, nil
}

// abort discards the staged transaction even when ctx is already done.
func (im *Importer) abort(ctx context.Context) {
	if err := im.store.Abort(context.WithoutCancel(ctx)); err != nil {
		im.logger.Warn("abort transaction", "error", err)
	}
}
