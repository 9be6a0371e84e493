package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// GroupSource produces the groups of one input file. Next returns io.EOF
// after the last group and a *MalformedGroupError when the input cannot be
// aligned with its header.
type GroupSource interface {
	Next() (*RawGroup, error)
}

// FileJob is one file to import.
type FileJob struct {
	Name       string
	ResolveKey string

	// Open is called by the worker that imports the job. If the returned
	// source implements io.Closer it is closed when the job ends.
	Open func() (GroupSource, error)
}

// FileReport summarises the import of one file.
type FileReport struct {
	ID             string
	Name           string
	ResolveKey     string
	Results        []*ImportResult
	Groups         int
	SoftErrors     int
	RecordsCreated int
	Duration       time.Duration

	// Err is the error that stopped the file, nil when every group was
	// imported.
	Err error
}

func (r *FileReport) add(result *ImportResult) {
	r.Results = append(r.Results, result)
	r.Groups++
	r.SoftErrors += result.ErrorCount()
	if result.Created() {
		r.RecordsCreated++
	}
}

// Settings configures a Service.
type Settings struct {
	// Workers bounds how many files are imported in parallel, each on its
	// own store connection. Values below 1 mean 1.
	Workers int

	// Limiter bounds the files imported at once across every caller of
	// the Service. Nil means a limiter with Workers slots that waits as
	// long as the caller's context allows.
	Limiter *Limiter

	Retry    RetryPolicy
	Logger   *slog.Logger
	Observer Observer
}

// Service imports whole files. It is the single engine behind every input
// format; formats differ only in the GroupSource they provide.
type Service struct {
	pool     Pool
	workers  int
	limiter  *Limiter
	retry    RetryPolicy
	logger   *slog.Logger
	observer Observer
}

// NewService creates a Service drawing connections from pool.
func NewService(pool Pool, s Settings) *Service {
	if s.Workers < 1 {
		s.Workers = 1
	}
	if s.Limiter == nil {
		s.Limiter = NewLimiter(s.Workers, 0)
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Observer == nil {
		s.Observer = nopObserver{}
	}
	return &Service{
		pool:     pool,
		workers:  s.Workers,
		limiter:  s.Limiter,
		retry:    s.Retry,
		logger:   s.Logger,
		observer: s.Observer,
	}
}

// Limiter returns the limiter every import of s takes a slot from.
func (s *Service) Limiter() *Limiter {
	return s.limiter
}

// ImportSource imports every group of src over one store connection,
// holding an import slot for the whole file.
//
// Groups are imported in order; soft errors are collected on the results.
// The first malformed group, store fault or exhausted retry stops the file:
// the report then holds the groups committed so far and the error is
// returned alongside it.
func (s *Service) ImportSource(ctx context.Context, name string, src GroupSource, resolveKey string) (*FileReport, error) {
	start := time.Now()
	report := &FileReport{
		ID:         uuid.New().String(),
		Name:       name,
		ResolveKey: resolveKey,
	}
	logger := s.logger.With("import_id", report.ID, "file", name)
	fail := func(err error) (*FileReport, error) {
		report.Duration = time.Since(start)
		report.Err = err
		return report, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return fail(err)
	}
	defer s.limiter.Release()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fail(fmt.Errorf("acquire store connection: %w", err))
	}
	defer conn.Release()

	im := NewImporter(conn,
		WithRetryPolicy(s.retry),
		WithLogger(logger),
		WithObserver(s.observer),
	)

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		group, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", name, err))
		}

		result, err := im.ImportGroup(ctx, group, resolveKey)
		if err != nil {
			return fail(fmt.Errorf("import %s group %d: %w", name, report.Groups+1, err))
		}
		report.add(result)

		logger.Debug("imported group",
			"group", report.Groups,
			"records", result.Records().String(),
			"errors", result.ErrorCount(),
		)
	}

	report.Duration = time.Since(start)
	logger.Info("import finished",
		"groups", report.Groups,
		"records_created", report.RecordsCreated,
		"soft_errors", report.SoftErrors,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// ImportFiles imports jobs concurrently, at most Workers at a time. Reports
// are returned in job order. The first fatal error cancels the jobs that
// have not finished; their reports hold whatever was committed.
func (s *Service) ImportFiles(ctx context.Context, jobs []FileJob) ([]*FileReport, error) {
	reports := make([]*FileReport, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, job := range jobs {
		g.Go(func() error {
			src, err := job.Open()
			if err != nil {
				err = fmt.Errorf("open %s: %w", job.Name, err)
				reports[i] = &FileReport{Name: job.Name, ResolveKey: job.ResolveKey, Err: err}
				return err
			}
			if c, ok := src.(io.Closer); ok {
				defer c.Close()
			}
			report, err := s.ImportSource(gctx, job.Name, src, job.ResolveKey)
			reports[i] = report
			return err
		})
	}

	err := g.Wait()
	return reports, err
}
