package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind discriminates the scalar types a property value may hold.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindTime   ValueKind = "time"
)

// Value is a scalar property value: a string, a number, or a timestamp.
// A tagged struct instead of interface{} keeps comparison deterministic and
// type-checked across store implementations.
type Value struct {
	Kind ValueKind `json:"kind"`
	Str  string    `json:"str,omitempty"`
	Num  float64   `json:"num,omitempty"`
	Time time.Time `json:"time,omitempty"`
}

// StringValue creates a string-typed property value.
func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// NumberValue creates a number-typed property value.
func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// TimeValue creates a timestamp-typed property value.
func TimeValue(t time.Time) Value {
	return Value{Kind: KindTime, Time: t}
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindTime:
		return v.Time.Equal(other.Time)
	}
	return false
}

// Number returns the numeric payload and whether the value is numeric.
func (v Value) Number() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Num, true
}

// String renders the value for logs and diffs.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	}
	return ""
}

// Properties maps property names to scalar values. Insertion order is
// irrelevant; all comparisons go through the declared Schema.
type Properties map[string]Value

// Clone returns an independent copy of the property map.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MarshalJSON keeps empty maps stable in event payloads.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]Value(p))
}
