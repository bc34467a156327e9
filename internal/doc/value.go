package doc

import (
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the types a document field may hold.
type Value interface {
	docValue()
}

// Null is an explicit JSON null.
type Null struct{}

func (Null) docValue() {}

// String is a string field.
type String string

func (String) docValue() {}

// Int is an integer field. Always int64.
type Int int64

func (Int) docValue() {}

// Bool is a boolean field.
type Bool bool

func (Bool) docValue() {}

// Timestamp is a point in time written by the backend or the client.
// The zero Timestamp is treated as absent by readers.
type Timestamp struct {
	Time time.Time
}

func (Timestamp) docValue() {}

// NewTimestamp returns a Timestamp truncated to microseconds, the
// precision both storage backends round-trip.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

// Array is an ordered list of values.
type Array []Value

func (Array) docValue() {}

// Object is a map of field names to values.
type Object map[string]Value

func (Object) docValue() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// Clone returns a deep copy of the object. Arrays and nested objects are
// copied so the result can be mutated without touching the receiver.
func (o Object) Clone() Object {
	if o == nil {
		return nil
	}
	out := make(Object, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case Array:
		out := make(Array, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Str returns the string stored under key, or "" when absent or not a string.
func (o Object) Str(key string) string {
	if s, ok := o[key].(String); ok {
		return string(s)
	}
	return ""
}

// Int64 returns the integer stored under key, or 0.
func (o Object) Int64(key string) int64 {
	if n, ok := o[key].(Int); ok {
		return int64(n)
	}
	return 0
}

// Arr returns the array stored under key, or nil.
func (o Object) Arr(key string) Array {
	if a, ok := o[key].(Array); ok {
		return a
	}
	return nil
}

// Obj returns the object stored under key, or nil.
func (o Object) Obj(key string) Object {
	if m, ok := o[key].(Object); ok {
		return m
	}
	return nil
}

// Equal reports whether two values are structurally equal. Object key
// order never matters; array order does.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case String, Int, Bool:
		return a == b
	case Timestamp:
		bv, ok := b.(Timestamp)
		return ok && av.Time.Equal(bv.Time)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
