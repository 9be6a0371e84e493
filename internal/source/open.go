package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// Format names an input syntax.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatTSV, FormatJSON, FormatXLSX}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// DefaultWhitelist returns the file name patterns a directory scan picks up
// for f.
func (f Format) DefaultWhitelist() []string {
	ext := string(f)
	if f == FormatJSON {
		return []string{"*.json", "*.jsonl", "*.json.lz4", "*.jsonl.lz4"}
	}
	return []string{"*." + ext, "*." + ext + ".lz4"}
}

// Options control how input is parsed.
type Options struct {
	Format    Format
	Delimiter rune     // delimited formats only
	Header    []string // delimited formats only
	Sheet     string   // xlsx only
	MaxBytes  int64    // 0 means unlimited
	Links     Links    // columns written as links
}

// Source is a GroupSource over an open input that must be closed.
type Source struct {
	core.GroupSource
	closers []io.Closer
}

// Close releases the parser and the underlying input.
func (s *Source) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens the file at path for import. Files ending in .lz4 are
// decompressed on the fly.
func Open(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := NewSource(filepath.Base(path), f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closers = append([]io.Closer{f}, src.closers...)
	return src, nil
}

// NewSource parses r according to opts. name is used in errors; an .lz4
// suffix on it selects decompression.
func NewSource(name string, r io.Reader, opts Options) (*Source, error) {
	if strings.HasSuffix(strings.ToLower(name), ".lz4") {
		r = lz4.NewReader(r)
	}
	if opts.Format == FormatXLSX {
		// Binary container; only the size limit applies.
		x, err := NewXLSX(name, &LimitedReader{R: r, Max: opts.MaxBytes}, opts.Sheet)
		if err != nil {
			return nil, err
		}
		return &Source{GroupSource: WithLinks(x, opts.Links), closers: []io.Closer{x}}, nil
	}
	in := Normalize(r, opts.MaxBytes)

	switch opts.Format {
	case FormatCSV, FormatTSV:
		delim := opts.Delimiter
		if delim == 0 && opts.Format == FormatTSV {
			delim = '\t'
		}
		d := NewDelimited(name, in, DelimitedOptions{
			Delimiter: delim,
			Header:    opts.Header,
		})
		return &Source{GroupSource: WithLinks(withSizeLimit(d, in), opts.Links)}, nil
	case FormatJSON:
		return &Source{GroupSource: WithLinks(withSizeLimit(NewJSON(name, in), in), opts.Links)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
}

// capped fails a source once its input has passed the size limit. Parsers
// read ahead, so groups from a chunk read past the limit must not be
// returned even when the parser has them buffered.
type capped struct {
	core.GroupSource
	in *LimitedReader
}

func withSizeLimit(src core.GroupSource, in *LimitedReader) core.GroupSource {
	if in.Max <= 0 {
		return src
	}
	return &capped{GroupSource: src, in: in}
}

func (l *capped) Next() (*core.RawGroup, error) {
	group, err := l.GroupSource.Next()
	if l.in.Exceeded() {
		return nil, l.in.tooLarge()
	}
	return group, err
}
