package source

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// DefaultDelimiter separates values in a delimited line.
const DefaultDelimiter = ','

// maxLineSize bounds a single input line.
const maxLineSize = 4 << 20

// DelimitedOptions configures a Delimited source.
type DelimitedOptions struct {
	// Delimiter defaults to DefaultDelimiter.
	Delimiter rune

	// Header, when set, names the columns and every line is data. Otherwise
	// the first non-empty line is the header.
	Header []string
}

// Delimited reads one group per line of delimited text. Quoted values keep
// their quotes so the engine still sees them as forced strings; whitespace
// around each value is dropped. A header that repeats a name gives the
// group several values for that field.
//
// Records are line-oriented: a quoted value cannot span lines.
type Delimited struct {
	name    string
	scanner *bufio.Scanner
	delim   rune
	header  []string
	line    int
}

// NewDelimited reads delimited text from r. name is used in errors.
func NewDelimited(name string, r io.Reader, opts DelimitedOptions) *Delimited {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	d := &Delimited{name: name, scanner: sc, delim: opts.Delimiter}
	if d.delim == 0 {
		d.delim = DefaultDelimiter
	}
	if len(opts.Header) > 0 {
		d.header = cleanHeader(opts.Header)
	}
	return d
}

// Header returns the column names, reading the header line if needed.
func (d *Delimited) Header() ([]string, error) {
	if d.header != nil {
		return d.header, nil
	}
	text, err := d.nextLine()
	if err != nil {
		return nil, err
	}
	header := cleanHeader(Split(text, d.delim))
	for i, h := range header {
		if h == "" {
			return nil, &core.MalformedGroupError{
				Source: d.name,
				Line:   d.line,
				Reason: fmt.Sprintf("column %d has no name", i+1),
			}
		}
	}
	d.header = header
	return d.header, nil
}

// Next returns the group for the next data line.
func (d *Delimited) Next() (*core.RawGroup, error) {
	header, err := d.Header()
	if err != nil {
		return nil, err
	}
	text, err := d.nextLine()
	if err != nil {
		return nil, err
	}

	toks := Split(text, d.delim)
	if len(toks) != len(header) {
		return nil, &core.MalformedGroupError{
			Source: d.name,
			Line:   d.line,
			Reason: fmt.Sprintf("%d values for %d columns", len(toks), len(header)),
		}
	}

	group := core.NewRawGroup()
	for i, tok := range toks {
		group.Add(header[i], tok)
	}
	return group, nil
}

// nextLine skips blank lines and returns io.EOF at the end of input.
func (d *Delimited) nextLine() (string, error) {
	for d.scanner.Scan() {
		d.line++
		text := strings.TrimRight(d.scanner.Text(), "\r")
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s line %d: %w", d.name, d.line+1, err)
	}
	return "", io.EOF
}

// Split breaks line at delim, ignoring delimiters inside single or double
// quotes. Quotes are kept. Every token is trimmed of surrounding whitespace.
func Split(line string, delim rune) []string {
	var (
		toks  []string
		tok   strings.Builder
		quote rune
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			if strings.TrimSpace(tok.String()) == "" {
				quote = r
			}
		case r == delim:
			toks = append(toks, strings.TrimSpace(tok.String()))
			tok.Reset()
			continue
		}
		tok.WriteRune(r)
	}
	return append(toks, strings.TrimSpace(tok.String()))
}

// cleanHeader trims header names and strips quotes around them.
func cleanHeader(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if len(n) >= 2 && (n[0] == '"' || n[0] == '\'') && n[len(n)-1] == n[0] {
			n = strings.TrimSpace(n[1 : len(n)-1])
		}
		out[i] = n
	}
	return out
}
