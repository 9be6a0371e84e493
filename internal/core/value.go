package core

import (
	"fmt"
	"strconv"
)

// RecordID identifies a record in the store.
type RecordID int64

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindLink
)

var kindNames = [...]string{
	KindString: "string",
	KindBool:   "boolean",
	KindInt:    "integer",
	KindLong:   "long",
	KindFloat:  "float",
	KindDouble: "double",
	KindLink:   "link",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is a typed value that can be written to the store.
//
// The zero Value is the empty String. Values are comparable with ==;
// Float values are held at float32 precision so equality is exact.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	bit  bool
}

// Inferred is the outcome of Infer. It is implemented only by Value and
// DeferredReference, so a type switch over those two cases is exhaustive.
type Inferred interface {
	inferred()
}

func (Value) inferred() {}

// DeferredReference means "link to every record where Key equals Value".
// It exists only between inference and resolution and is never written.
type DeferredReference struct {
	Key   string
	Value Value
}

func (DeferredReference) inferred() {}

func (r DeferredReference) String() string {
	return fmt.Sprintf("%s=%s", r.Key, r.Value)
}

func String(s string) Value      { return Value{kind: KindString, str: s} }
func Bool(b bool) Value          { return Value{kind: KindBool, bit: b} }
func Int(i int32) Value          { return Value{kind: KindInt, num: int64(i)} }
func Long(i int64) Value         { return Value{kind: KindLong, num: i} }
func Float(f float32) Value      { return Value{kind: KindFloat, flt: float64(f)} }
func Double(f float64) Value     { return Value{kind: KindDouble, flt: f} }
func Link(record RecordID) Value { return Value{kind: KindLink, num: int64(record)} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the payload of a String value.
func (v Value) Str() string { return v.str }

// Bool returns the payload of a Bool value.
func (v Value) Bool() bool { return v.bit }

// Int64 returns the payload of Int, Long and Link values.
func (v Value) Int64() int64 { return v.num }

// Float64 returns the payload of Float and Double values.
func (v Value) Float64() float64 { return v.flt }

// Record returns the target of a Link value.
func (v Value) Record() RecordID { return RecordID(v.num) }

// IsLink reports whether v points at a record.
func (v Value) IsLink() bool { return v.kind == KindLink }

// Text returns the canonical text form of the payload. Links render as the
// bare record number; use String for the literal @id@ form.
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.bit)
	case KindInt, KindLong, KindLink:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 32)
	case KindDouble:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	default:
		return v.str
	}
}

func (v Value) String() string {
	if v.kind == KindLink {
		return "@" + v.Text() + "@"
	}
	return v.Text()
}

// ParseValue rebuilds a Value from its kind and canonical text, as produced
// by Text. It is the inverse used by stores that persist values as text.
func ParseValue(kind Kind, text string) (Value, error) {
	switch kind {
	case KindString:
		return String(text), nil
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", kind, text, err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", kind, text, err)
		}
		return Int(int32(i)), nil
	case KindLong, KindLink:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", kind, text, err)
		}
		if kind == KindLink {
			return Link(RecordID(i)), nil
		}
		return Long(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", kind, text, err)
		}
		return Float(float32(f)), nil
	case KindDouble:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse %s value %q: %w", kind, text, err)
		}
		return Double(f), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", kind)
	}
}

// ParseKind resolves a kind name as returned by Kind.String.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}
