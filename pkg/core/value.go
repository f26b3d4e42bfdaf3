package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the dynamic type carried by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindTimestamp
	KindDate
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged scalar read from or written to a warehouse table.
// The zero Value is the SQL NULL.
//
// Values are compared with Equal and ordered with Compare; both follow
// SQL-ish semantics rather than Go semantics (NULL equals NULL for change
// detection, cross-family comparisons are errors instead of false).
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
}

// NullValue returns the SQL NULL value.
func NullValue() Value { return Value{kind: KindNull} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// IntValue returns a 64-bit integer value.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue returns a 64-bit floating point value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// TextValue returns a string value.
func TextValue(s string) Value { return Value{kind: KindText, s: s} }

// TimestampValue returns a timestamp value. The instant is normalized to
// UTC so that equal instants read through different drivers compare equal.
func TimestampValue(t time.Time) Value {
	return Value{kind: KindTimestamp, t: t.UTC()}
}

// DateValue returns a calendar date value. Any time-of-day component of t
// is discarded.
func DateValue(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Kind returns the dynamic kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is SQL NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload. Valid only for KindBool.
func (v Value) Bool() bool { return v.b }

// Int returns the integer payload. Valid only for KindInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Valid only for KindFloat.
func (v Value) Float() float64 { return v.f }

// Text returns the string payload. Valid only for KindText.
func (v Value) Text() string { return v.s }

// Time returns the time payload. Valid for KindTimestamp and KindDate.
func (v Value) Time() time.Time { return v.t }

// TypeMismatchError reports an attempt to compare values from incompatible
// type families. It aborts the run that triggered it; silently treating
// incomparable values as changed (or unchanged) would corrupt history.
type TypeMismatchError struct {
	Left  Kind
	Right Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot compare %s value with %s value", e.Left, e.Right)
}

// numeric reports whether the kind belongs to the numeric family.
func (k Kind) numeric() bool { return k == KindInt || k == KindFloat }

// temporal reports whether the kind belongs to the date/time family.
func (k Kind) temporal() bool { return k == KindTimestamp || k == KindDate }

// asFloat widens a numeric value to float64.
func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// asTime widens a temporal value to a timestamp. Dates become midnight UTC.
func (v Value) asTime() time.Time { return v.t }

// Equal reports whether two values are equal for change-detection purposes.
//
// NULL equals NULL and differs from every non-NULL value; neither case is an
// error. Within the numeric family ints and floats compare by magnitude, and
// within the temporal family a date equals a timestamp at midnight UTC of
// that date. Comparing across families returns a TypeMismatchError.
func Equal(a, b Value) (bool, error) {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind, nil
	}
	switch {
	case a.kind == b.kind:
		switch a.kind {
		case KindBool:
			return a.b == b.b, nil
		case KindInt:
			return a.i == b.i, nil
		case KindFloat:
			return a.f == b.f, nil
		case KindText:
			return a.s == b.s, nil
		case KindTimestamp, KindDate:
			return a.t.Equal(b.t), nil
		}
	case a.kind.numeric() && b.kind.numeric():
		return a.asFloat() == b.asFloat(), nil
	case a.kind.temporal() && b.kind.temporal():
		return a.asTime().Equal(b.asTime()), nil
	}
	return false, &TypeMismatchError{Left: a.kind, Right: b.kind}
}

// Compare orders two temporal values, returning -1, 0, or +1.
//
// Ordering is defined only for the temporal family: row versioning asks
// "did this record change after the one we already recorded", which is a
// question about instants. Every other kind, NULL included, returns a
// TypeMismatchError so that a miswired updated_at column fails the run
// instead of producing an arbitrary history.
func Compare(a, b Value) (int, error) {
	if !a.kind.temporal() || !b.kind.temporal() {
		return 0, &TypeMismatchError{Left: a.kind, Right: b.kind}
	}
	return a.asTime().Compare(b.asTime()), nil
}

// FromAny converts a value produced by database/sql row scanning into a
// Value. Unknown types are rendered through fmt and carried as text.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint64:
		if x > math.MaxInt64 {
			return FloatValue(float64(x))
		}
		return IntValue(int64(x))
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case string:
		return TextValue(x)
	case []byte:
		return TextValue(string(x))
	case time.Time:
		return TimestampValue(x)
	default:
		return TextValue(fmt.Sprint(x))
	}
}

// TimestampLayout is the layout used everywhere a timestamp crosses into
// SQL text. Microseconds are always written so literals stay fixed-width.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// String renders the value for logs and error messages. It is not a SQL
// literal; adapters own literal rendering.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindTimestamp:
		return v.t.Format(TimestampLayout)
	case KindDate:
		return v.t.Format("2006-01-02")
	default:
		return fmt.Sprintf("value(kind=%d)", int(v.kind))
	}
}

// ParseTimestamp parses the textual timestamp forms that show up in seed
// files and warehouse exports. It accepts RFC 3339, the space-separated SQL
// form with optional fractional seconds, and a bare date.
func ParseTimestamp(s string) (Value, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimestampValue(t), nil
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateValue(t), nil
	}
	return Value{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}
