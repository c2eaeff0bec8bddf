package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindText is a plain string.
	KindText Kind = iota
	// KindNumber is a float64.
	KindNumber
	// KindBool is a boolean.
	KindBool
	// KindList is an ordered list of nested trees produced by a group field.
	KindList
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single extracted value.
// Only the field matching Kind is meaningful.
type Value struct {
	kind   Kind
	text   string
	number float64
	flag   bool
	list   []Tree
}

// Text creates a text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number creates a numeric value.
func Number(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBool, flag: b}
}

// List creates a list value. A nil slice is stored as an empty list so it
// serializes as [] rather than null.
func List(trees []Tree) Value {
	if trees == nil {
		trees = []Tree{}
	}
	return Value{kind: KindList, list: trees}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Text returns the string content and whether v is a text value.
func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }

// Number returns the numeric content and whether v is a number.
func (v Value) Number() (float64, bool) { return v.number, v.kind == KindNumber }

// Bool returns the boolean content and whether v is a bool.
func (v Value) Bool() (bool, bool) { return v.flag, v.kind == KindBool }

// List returns the nested trees and whether v is a list.
func (v Value) List() ([]Tree, bool) { return v.list, v.kind == KindList }

// IsEmpty reports whether v carries no content.
// Empty text and empty lists are empty; numbers and booleans never are,
// including 0 and false.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindText:
		return v.text == ""
	case KindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// String renders v as a single cell of text.
// Lists are rendered as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.number)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindList:
		b, err := marshalUnescaped(v.list)
		if err != nil {
			return "[]"
		}
		return string(b)
	default:
		return v.text
	}
}

// FormatNumber renders f in its shortest decimal form.
// Whole numbers are printed without a fractional part.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
// NaN and infinities have no JSON representation and are written as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.number) || math.IsInf(v.number, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.number, 'f', -1, 64)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.flag)), nil
	case KindList:
		return marshalUnescaped(v.list)
	default:
		return marshalUnescaped(v.text)
	}
}

// marshalUnescaped encodes v without replacing <, > and & by \u escapes.
// Extracted values routinely contain markup.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
// It is used to read stored results back from the history database.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty JSON value")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[':
		var trees []Tree
		if err := json.Unmarshal(trimmed, &trees); err != nil {
			return err
		}
		*v = List(trees)
	case 'n':
		*v = Number(math.NaN())
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return err
		}
		*v = Number(f)
	}
	return nil
}
