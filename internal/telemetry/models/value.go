package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind is the primitive type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is a property value restricted to string, number or boolean so the
// collector contract stays flat.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

func String(s string) Value { return Value{kind: KindString, str: s} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(i int) Value { return Number(float64(i)) }

// Number wraps a float. NaN and infinities are not representable in JSON and
// yield an invalid Value.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) Valid() bool  { return v.kind != KindInvalid }
func (v Value) Str() string  { return v.str }
func (v Value) Num() float64 { return v.num }
func (v Value) Truth() bool  { return v.b }

// String renders the value for logs and UA enrichment.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("cannot encode invalid property value")
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty property value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case 'n', '{', '[':
		return fmt.Errorf("property values must be string, number or boolean")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
	}
	return nil
}

// Properties is the free-form event payload.
type Properties map[string]Value

// Sanitized returns a copy without invalid values, plus the dropped keys.
func (p Properties) Sanitized() (Properties, []string) {
	out := make(Properties, len(p))
	var dropped []string
	for k, v := range p {
		if k == "" || !v.Valid() {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	return out, dropped
}
