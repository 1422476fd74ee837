// Package variables provides the typed variable cells read by constraints and
// watched by variable end-triggers.
package variables

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the concrete type held by a variable cell.
type Kind string

const (
	KindBool      Kind = "bool"
	KindInt       Kind = "int"
	KindFloat     Kind = "float"
	KindString    Kind = "string"
	KindDate      Kind = "date"
	KindReference Kind = "reference"
)

// dateLayouts are tried in order when parsing date literals.
var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseKind maps a document type name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBool, KindInt, KindFloat, KindString, KindDate, KindReference:
		return k, nil
	case "integer":
		return KindInt, nil
	case "number", "double":
		return KindFloat, nil
	case "ref", "node":
		return KindReference, nil
	default:
		return "", fmt.Errorf("unknown variable type: %q", s)
	}
}

// Value is a tagged variable value. Only the field matching Kind is meaningful.
// Reference values hold the referenced node id in Str.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time
}

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func Date(t time.Time) Value { return Value{Kind: KindDate, Time: t} }
func Reference(id string) Value { return Value{Kind: KindReference, Str: id} }

// Parse converts raw text into a value of the given kind.
func Parse(kind Kind, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse int %q: %w", raw, err)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("parse float %q: %w", raw, err)
		}
		return Float(f), nil
	case KindString:
		return String(raw), nil
	case KindDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return Date(t), nil
			}
		}
		return Value{}, fmt.Errorf("parse date %q: unsupported layout", raw)
	case KindReference:
		return Reference(raw), nil
	default:
		return Value{}, fmt.Errorf("unknown variable type: %q", kind)
	}
}

// Numeric reports the value as a float64 when it is an int or float.
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// Equal compares two values using the equality test of their kind.
// Int and float values compare numerically.
func (v Value) Equal(o Value) bool {
	if a, ok := v.Numeric(); ok {
		b, ok := o.Numeric()
		return ok && a == b
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindString, KindReference:
		return v.Str == o.Str
	case KindDate:
		return v.Time.Equal(o.Time)
	}
	return false
}

// String renders the value the way Parse accepts it.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString, KindReference:
		return v.Str
	case KindDate:
		return v.Time.Format(time.RFC3339Nano)
	}
	return ""
}
