package core

// convert.go infers typed values from raw text tokens.
//
// Raw import data carries no type information, so every token is classified
// by a fixed set of grammars. Order matters: a quoted "42" must stay a string
// and @<ssn>@123@<ssn>@ must not be read as a link or a number. Inference
// never fails; anything unrecognised is a String.

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// ResolvablePrepend and ResolvableAppend bracket the key of a resolvable
	// reference: @<key>@value@<key>@.
	ResolvablePrepend = "@<"
	ResolvableAppend  = ">@"

	linkSymbol   = "@"
	doubleSuffix = "D"
)

// numericRegex matches plain decimal numbers: integers, decimals and
// scientific notation. Hex floats, inf and nan are deliberately excluded.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Infer classifies a raw token. First match wins:
//
//  1. wrapped in matching ' or " quotes -> String without the quotes
//  2. @<key>@value@<key>@ -> DeferredReference{key, Infer(value)}
//  3. @<integer>@ -> Link
//  4. true / false (any case) -> Bool
//  5. <decimal>D -> Double
//  6. Int, then Long, then Float, then Double
//  7. String unchanged
func Infer(raw string) Inferred {
	if s, ok := unquote(raw); ok {
		return String(s)
	}
	if key, value, ok := parseResolvable(raw); ok {
		inner, isValue := Infer(value).(Value)
		if !isValue {
			inner = String(value)
		}
		return DeferredReference{Key: key, Value: inner}
	}
	if v, ok := parseLink(raw); ok {
		return v
	}
	if strings.EqualFold(raw, "true") {
		return Bool(true)
	}
	if strings.EqualFold(raw, "false") {
		return Bool(false)
	}
	if prefix, ok := strings.CutSuffix(raw, doubleSuffix); ok && numericRegex.MatchString(prefix) {
		if f, err := strconv.ParseFloat(prefix, 64); err == nil {
			return Double(f)
		}
	}
	if v, ok := parseNumber(raw); ok {
		return v
	}
	return String(raw)
}

// InferValue is Infer for callers that cannot use a deferred reference; the
// raw text is kept as a String in that case.
func InferValue(raw string) Value {
	if v, ok := Infer(raw).(Value); ok {
		return v
	}
	return String(raw)
}

// WrapResolvable builds the resolvable reference literal for key and value.
func WrapResolvable(key, value string) string {
	token := ResolvablePrepend + key + ResolvableAppend
	return token + value + token
}

func unquote(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	first, last := raw[0], raw[len(raw)-1]
	if first != last || (first != '"' && first != '\'') {
		return "", false
	}
	return raw[1 : len(raw)-1], true
}

func parseResolvable(raw string) (key, value string, ok bool) {
	if !strings.HasPrefix(raw, ResolvablePrepend) {
		return "", "", false
	}
	end := strings.Index(raw[len(ResolvablePrepend):], ResolvableAppend)
	if end <= 0 {
		return "", "", false
	}
	key = raw[len(ResolvablePrepend) : len(ResolvablePrepend)+end]
	if strings.Contains(key, ResolvablePrepend) {
		return "", "", false
	}
	token := ResolvablePrepend + key + ResolvableAppend
	if len(raw) <= 2*len(token) || !strings.HasSuffix(raw, token) {
		return "", "", false
	}
	return key, raw[len(token) : len(raw)-len(token)], true
}

func parseLink(raw string) (Value, bool) {
	if len(raw) < 3 || !strings.HasPrefix(raw, linkSymbol) || !strings.HasSuffix(raw, linkSymbol) {
		return Value{}, false
	}
	id, err := strconv.ParseInt(raw[1:len(raw)-1], 10, 64)
	if err != nil {
		return Value{}, false
	}
	return Link(RecordID(id)), true
}

func parseNumber(raw string) (Value, bool) {
	if !numericRegex.MatchString(raw) {
		return Value{}, false
	}
	if i, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return Int(int32(i)), true
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Long(i), true
	}
	if f, err := strconv.ParseFloat(raw, 32); err == nil {
		return Float(float32(f)), true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Double(f), true
	}
	return Value{}, false
}
