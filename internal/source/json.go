package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/JonMunkholm/recordimport/internal/core"
)

// JSON reads one group per object from either a top-level array of objects
// or a stream of concatenated objects (JSON Lines).
//
// Scalars are handed to the engine as raw text: strings unchanged, numbers
// as written, booleans as true/false. Null is skipped and an array yields
// one value per element. Nested objects have no field mapping and make the
// input malformed.
type JSON struct {
	name    string
	dec     *json.Decoder
	array   bool
	started bool
	done    bool
	objects int
}

// NewJSON reads JSON from r. name is used in errors.
func NewJSON(name string, r io.Reader) *JSON {
	br := bufio.NewReader(r)
	j := &JSON{name: name}
	if c, err := firstNonSpace(br); err == nil && c == '[' {
		j.array = true
	}
	j.dec = json.NewDecoder(br)
	j.dec.UseNumber()
	return j
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

// Next returns the group for the next object.
func (j *JSON) Next() (*core.RawGroup, error) {
	if j.done {
		return nil, io.EOF
	}
	if j.array && !j.started {
		j.started = true
		if _, err := j.dec.Token(); err != nil {
			return nil, j.fault(err)
		}
	}

	if j.array {
		if !j.dec.More() {
			if _, err := j.dec.Token(); err != nil {
				return nil, j.fault(err)
			}
			j.done = true
			return nil, io.EOF
		}
	}

	tok, err := j.dec.Token()
	if errors.Is(err, io.EOF) && !j.array {
		j.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, j.fault(err)
	}
	j.objects++
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, j.malformed(fmt.Sprintf("expected an object, found %v", tok))
	}

	group := core.NewRawGroup()
	for j.dec.More() {
		keyTok, err := j.dec.Token()
		if err != nil {
			return nil, j.fault(err)
		}
		key, _ := keyTok.(string)
		if err := j.readValue(group, key, true); err != nil {
			return nil, err
		}
	}
	if _, err := j.dec.Token(); err != nil {
		return nil, j.fault(err)
	}
	return group, nil
}

// readValue adds the value of key to group. Arrays are only allowed at the
// top of a field.
func (j *JSON) readValue(group *core.RawGroup, key string, allowArray bool) error {
	tok, err := j.dec.Token()
	if err != nil {
		return j.fault(err)
	}
	switch v := tok.(type) {
	case nil:
	case string:
		group.Add(key, v)
	case json.Number:
		group.Add(key, v.String())
	case bool:
		if v {
			group.Add(key, "true")
		} else {
			group.Add(key, "false")
		}
	case json.Delim:
		if v != '[' || !allowArray {
			return j.malformed(fmt.Sprintf("field %q holds a nested %s", key, describe(v)))
		}
		for j.dec.More() {
			if err := j.readValue(group, key, false); err != nil {
				return err
			}
		}
		if _, err := j.dec.Token(); err != nil {
			return j.fault(err)
		}
	}
	return nil
}

func describe(d json.Delim) string {
	if d == '[' {
		return "array"
	}
	return "object"
}

// fault classifies a decoder error. Bad syntax and truncated input are
// malformed; anything else came from the reader and is returned wrapped.
func (j *JSON) fault(err error) error {
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return j.malformed(err.Error())
	}
	return fmt.Errorf("read %s: %w", j.name, err)
}

func (j *JSON) malformed(reason string) error {
	return &core.MalformedGroupError{
		Source: j.name,
		Reason: fmt.Sprintf("object %d: %s", max(j.objects, 1), reason),
	}
}
