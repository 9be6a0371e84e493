// Package commands implements the importer subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/recordimport/internal/config"
	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
	"github.com/JonMunkholm/recordimport/internal/source"
	"github.com/JonMunkholm/recordimport/internal/store/memstore"
	"github.com/JonMunkholm/recordimport/internal/store/pgstore"
)

// ErrNoData is returned when --data is missing.
var ErrNoData = errors.New("--data is required")

// ImportCommand holds the flags for the import command.
type ImportCommand struct {
	data        string
	resolveKey  string
	delimiter   string
	header      []string
	links       []string
	sheet       string
	profile     string
	workers     int
	maxAttempts int
	dryRun      bool
	verbose     bool
	output      string

	// pool overrides the store; tests inject a memstore here.
	pool core.Pool
}

// NewImportCommand creates and configures the import command.
func NewImportCommand() *cobra.Command {
	return newImportCommand(&ImportCommand{})
}

func newImportCommand(c *ImportCommand) *cobra.Command {
	cobraCmd := &cobra.Command{
		Use:   "import [format]",
		Short: "Import a file or a directory of files",
		Long: `Import a file or every whitelisted file under a directory.

Format is one of csv, tsv, json or xlsx. It may come from --profile instead.
Files are imported in parallel, one store connection each. Within a file,
groups are committed one at a time in order.`,
		Example: `  importer import csv -d ~/data/people.csv -r ssn
  importer import json -d ./exports --workers 8
  importer import csv -d staff.csv -r ssn --link manager=ssn
  importer import --profile nightly.yaml --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: c.Run,
	}

	flags := cobraCmd.Flags()
	flags.StringVarP(&c.data, "data", "d", "", "File or directory to import (~ and $HOME are expanded)")
	flags.StringVarP(&c.resolveKey, "resolveKey", "r", "", "Field whose value identifies existing records")
	flags.StringVar(&c.delimiter, "delimiter", "", `Value delimiter for delimited files (default from IMPORT_DELIMITER; "tab" for \t)`)
	flags.StringSliceVar(&c.header, "header", nil, "Field names to use instead of the first line (delimited files)")
	flags.StringArrayVar(&c.links, "link", nil, "Write column as links to the records whose key holds its value, as column=key (repeatable)")
	flags.StringVar(&c.sheet, "sheet", "", "Sheet to read (xlsx, default first sheet)")
	flags.StringVar(&c.profile, "profile", "", "YAML import profile")
	flags.IntVarP(&c.workers, "workers", "w", 0, "Files imported in parallel (default from IMPORT_WORKERS)")
	flags.IntVar(&c.maxAttempts, "max-attempts", 0, "Commit attempts per group, 0 retries forever (default from IMPORT_MAX_ATTEMPTS)")
	flags.BoolVar(&c.dryRun, "dry-run", false, "Import into an in-memory store and discard it")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Log every imported group")
	flags.StringVarP(&c.output, "output", "o", "table", "Summary format: table or json")

	return cobraCmd
}

// plan is a fully resolved import run.
type plan struct {
	cfg        *config.Config
	format     source.Format
	resolveKey string
	opts       source.Options
	files      []string
}

// Run executes the import command.
func (c *ImportCommand) Run(cmd *cobra.Command, args []string) error {
	p, err := c.plan(cmd, args)
	if err != nil {
		return err
	}

	level := p.cfg.Logging.Level
	if c.verbose {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), level, p.cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, closePool, err := c.openPool(ctx, p.cfg, logger)
	if err != nil {
		return err
	}
	defer closePool()

	svc := core.NewService(pool, core.Settings{
		Workers: p.cfg.Import.Workers,
		Retry:   p.cfg.Import.RetryPolicy(),
		Logger:  logger,
	})

	jobs := make([]core.FileJob, len(p.files))
	for i, path := range p.files {
		jobs[i] = core.FileJob{
			Name:       path,
			ResolveKey: p.resolveKey,
			Open: func() (core.GroupSource, error) {
				src, err := source.Open(path, p.opts)
				if err != nil {
					return nil, err
				}
				return src, nil
			},
		}
	}

	logger.Info("import started",
		"files", len(jobs),
		"format", p.format,
		"resolve_key", p.resolveKey,
		"workers", p.cfg.Import.Workers,
		"dry_run", c.dryRun,
	)
	start := time.Now()
	reports, importErr := svc.ImportFiles(ctx, jobs)

	summary := newSummary(p.files, reports, time.Since(start))
	if err := c.render(cmd.OutOrStdout(), summary); err != nil {
		return err
	}

	if importErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), core.FormatUserError(importErr))
		return importErr
	}
	return nil
}

// plan merges environment, profile, arguments and flags, in that order of
// precedence from lowest to highest, then scans the input.
func (c *ImportCommand) plan(cmd *cobra.Command, args []string) (*plan, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	p := &plan{cfg: cfg}
	var formatName string
	delimiterSet := false
	if c.profile != "" {
		prof, err := config.LoadProfile(c.profile)
		if err != nil {
			return nil, err
		}
		prof.Apply(&cfg.Import)
		formatName = prof.Format
		p.resolveKey = prof.ResolveKey
		p.opts.Header = prof.Header
		p.opts.Sheet = prof.Sheet
		p.opts.Links = source.Links(prof.Links)
		delimiterSet = prof.Delimiter != ""
	}

	if len(args) > 0 {
		formatName = args[0]
	}
	if formatName == "" {
		return nil, errors.New("format is required: pass csv, tsv, json or xlsx, or set it in --profile")
	}
	if p.format, err = source.ParseFormat(formatName); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("resolveKey") {
		p.resolveKey = c.resolveKey
	}
	if flags.Changed("delimiter") {
		cfg.Import.Delimiter = c.delimiter
		delimiterSet = true
	}
	if flags.Changed("header") {
		p.opts.Header = c.header
	}
	if flags.Changed("link") {
		links, err := source.ParseLinks(c.links)
		if err != nil {
			return nil, err
		}
		merged := make(source.Links, len(p.opts.Links)+len(links))
		maps.Copy(merged, p.opts.Links)
		maps.Copy(merged, links)
		p.opts.Links = merged
	}
	if flags.Changed("sheet") {
		p.opts.Sheet = c.sheet
	}
	if flags.Changed("workers") {
		cfg.Import.Workers = c.workers
	}
	if flags.Changed("max-attempts") {
		cfg.Import.MaxAttempts = c.maxAttempts
	}
	if cfg.Import.Workers < 1 {
		return nil, errors.New("--workers must be positive")
	}
	if cfg.Import.MaxAttempts < 0 {
		return nil, errors.New("--max-attempts must be non-negative")
	}

	p.opts.Format = p.format
	p.opts.MaxBytes = cfg.Import.MaxFileSize
	if p.format == source.FormatCSV || delimiterSet {
		if p.opts.Delimiter, err = config.ParseDelimiter(cfg.Import.Delimiter); err != nil {
			return nil, fmt.Errorf("delimiter %w", err)
		}
	}

	if c.data == "" {
		return nil, ErrNoData
	}
	path, err := source.ExpandPath(c.data)
	if err != nil {
		return nil, err
	}
	patterns := cfg.Import.Whitelist
	if len(patterns) == 0 {
		patterns = p.format.DefaultWhitelist()
	}
	whitelist, err := source.NewWhitelist(patterns...)
	if err != nil {
		return nil, err
	}
	if p.files, err = source.Scan(path, whitelist); err != nil {
		return nil, err
	}
	if len(p.files) == 0 {
		return nil, fmt.Errorf("no files matching %v under %s", patterns, path)
	}
	return p, nil
}

// openPool returns the store the run writes to and a func releasing it.
func (c *ImportCommand) openPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.Pool, func(), error) {
	switch {
	case c.pool != nil:
		return c.pool, func() {}, nil
	case c.dryRun:
		logger.Info("dry run: importing into memory")
		return memstore.New(), func() {}, nil
	}

	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, fmt.Errorf("%w (or use --dry-run)", err)
	}
	// Each worker holds one connection for a whole file.
	if cfg.Database.MaxConns < cfg.Import.Workers {
		cfg.Database.MaxConns = cfg.Import.Workers
	}
	pool, err := pgstore.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database", "name", pgstore.DatabaseName(cfg.Database.URL))
	return pgstore.New(pool), pool.Close, nil
}

// NewFormatsCommand lists the supported formats.
func NewFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported formats and the files a directory scan picks up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return renderFormats(cmd.OutOrStdout())
		},
	}
}
