package source

// encoding.go normalises raw input before it reaches a parser.
//
// Spreadsheet exports routinely start with a UTF-8 byte order mark and
// sometimes carry stray Latin-1 bytes. Both would otherwise leak into the
// first header name or into stored strings. The readers here fix that while
// streaming, so a file is never held in memory whole.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrFileTooLarge is returned by a LimitedReader once its limit is passed.
var ErrFileTooLarge = errors.New("file too large")

// SkipBOM returns a reader that drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces every byte that is not part of a valid UTF-8
// sequence with '?'. A multi-byte sequence split across reads is carried
// over to the next call rather than being mangled.
type UTF8Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	return &UTF8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err != nil), err
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Without final, an incomplete trailing sequence is kept for later.
func (s *UTF8Sanitizer) sanitize(data []byte, final bool) int {
	w := 0
	for r := 0; r < len(data); {
		if data[r] < utf8.RuneSelf {
			data[w] = data[r]
			w++
			r++
			continue
		}
		if !final && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			return w
		}
		ch, size := utf8.DecodeRune(data[r:])
		if ch == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

// LimitedReader counts the bytes read and fails with ErrFileTooLarge once
// more than Max bytes have come through. Max <= 0 disables the limit.
type LimitedReader struct {
	R   io.Reader
	Max int64
	N   int64 // bytes read so far
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	n, err := l.R.Read(p)
	l.N += int64(n)
	if l.Exceeded() {
		return n, l.tooLarge()
	}
	return n, err
}

// Exceeded reports whether more than Max bytes have been read.
func (l *LimitedReader) Exceeded() bool {
	return l.Max > 0 && l.N > l.Max
}

func (l *LimitedReader) tooLarge() error {
	return fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, l.Max)
}

// Normalize applies BOM skipping, UTF-8 sanitizing and the size limit, in
// that order.
func Normalize(r io.Reader, maxBytes int64) *LimitedReader {
	return &LimitedReader{R: NewUTF8Sanitizer(SkipBOM(r)), Max: maxBytes}
}
