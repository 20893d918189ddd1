package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Kind tells which shape a payload value has.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindMapping
)

type scalarType uint8

const (
	stringScalar scalarType = iota
	numberScalar
	boolScalar
)

// Value is a payload value: either a scalar or a flat mapping of scalars.
type Value struct {
	kind    Kind
	text    string
	stype   scalarType
	entries map[string]Value
}

// Entry is one rendered mapping entry.
type Entry struct {
	Key   string
	Value string
}

func String(s string) Value {
	return Value{kind: KindScalar, text: s, stype: stringScalar}
}

func Int(n int64) Value {
	return Value{kind: KindScalar, text: strconv.FormatInt(n, 10), stype: numberScalar}
}

// Bool renders true as "1" and false as an empty, but still present, scalar.
func Bool(b bool) Value {
	v := Value{kind: KindScalar, stype: boolScalar}
	if b {
		v.text = "1"
	}
	return v
}

func Mapping(m map[string]string) Value {
	entries := make(map[string]Value, len(m))
	for k, s := range m {
		entries[k] = String(s)
	}
	return Value{kind: KindMapping, entries: entries}
}

func IntMapping(m map[int64]int64) Value {
	entries := make(map[string]Value, len(m))
	for k, n := range m {
		entries[strconv.FormatInt(k, 10)] = Int(n)
	}
	return Value{kind: KindMapping, entries: entries}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Text returns the rendered scalar. It is empty for mappings.
func (v Value) Text() string {
	return v.text
}

// Skippable reports whether the value contributes nothing to a line key:
// an empty string scalar or an empty mapping.
func (v Value) Skippable() bool {
	switch v.kind {
	case KindScalar:
		return v.stype == stringScalar && v.text == ""
	case KindMapping:
		return len(v.entries) == 0
	}
	return true
}

// Entries returns mapping entries sorted by key. Integer keys sort
// numerically when every key is an integer, otherwise keys sort as strings.
func (v Value) Entries() []Entry {
	keys := sortedKeys(v.entries)
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{Key: k, Value: v.entries[k].text})
	}
	return out
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	numeric := true
	for k := range m {
		keys = append(keys, k)
		if _, err := strconv.ParseInt(k, 10, 64); err != nil {
			numeric = false
		}
	}
	if numeric {
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.ParseInt(keys[i], 10, 64)
			b, _ := strconv.ParseInt(keys[j], 10, 64)
			return a < b
		})
		return keys
	}
	sort.Strings(keys)
	return keys
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		switch v.stype {
		case numberScalar:
			return []byte(v.text), nil
		case boolScalar:
			return []byte(strconv.FormatBool(v.text == "1")), nil
		default:
			return json.Marshal(v.text)
		}
	case KindMapping:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range sortedKeys(v.entries) {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(k)
			buf.Write(name)
			buf.WriteByte(':')
			inner, err := v.entries[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(inner)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, ok, err := parseValue(data)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("payload value must not be null")
	}
	*v = parsed
	return nil
}

// Field is one named payload entry.
type Field struct {
	Name  string
	Value Value
}

// Payload is the ordered set of extra fields attached to a cart line. Field
// order matters: it is the order used when deriving line keys.
type Payload []Field

func (p Payload) Get(name string) (Value, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the named field in place or appends it.
func (p Payload) Set(name string, v Value) Payload {
	for i, f := range p {
		if f.Name == name {
			out := append(Payload(nil), p...)
			out[i].Value = v
			return out
		}
	}
	return append(p, Field{Name: name, Value: v})
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeField(&buf, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the field order of the source object. Null fields are
// dropped, arrays become mappings keyed by index.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	fields, err := decodeOrderedObject(data)
	if err != nil {
		return err
	}
	out := make(Payload, 0, len(fields))
	for _, f := range fields {
		v, ok, err := parseValue(f.raw)
		if err != nil {
			return fmt.Errorf("payload field %q: %w", f.name, err)
		}
		if !ok {
			continue
		}
		out = out.Set(f.name, v)
	}
	*p = out
	return nil
}

type rawField struct {
	name string
	raw  json.RawMessage
}

func decodeOrderedObject(data []byte) ([]rawField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var fields []rawField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, errors.New("expected an object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields = append(fields, rawField{name: name, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func parseValue(raw json.RawMessage) (Value, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Value{}, false, errors.New("empty value")
	}

	switch trimmed[0] {
	case 'n':
		return Value{}, false, nil
	case '{':
		fields, err := decodeOrderedObject(trimmed)
		if err != nil {
			return Value{}, false, err
		}
		entries := make(map[string]Value, len(fields))
		for _, f := range fields {
			entries[f.name] = parseInner(f.raw)
		}
		return Value{kind: KindMapping, entries: entries}, true, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Value{}, false, err
		}
		entries := make(map[string]Value, len(items))
		for i, item := range items {
			entries[strconv.Itoa(i)] = parseInner(item)
		}
		return Value{kind: KindMapping, entries: entries}, true, nil
	}

	v, err := parseScalar(trimmed)
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

// parseInner renders mapping members. Nested containers keep their compact
// JSON text as a string scalar.
func parseInner(raw json.RawMessage) Value {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return String(buf.String())
		}
		return String(string(trimmed))
	}
	if v, err := parseScalar(trimmed); err == nil {
		return v
	}
	return String("")
}

func parseScalar(raw []byte) (Value, error) {
	switch {
	case len(raw) == 0 || raw[0] == 'n':
		return String(""), nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	case raw[0] == 't' || raw[0] == 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return Value{}, err
	}
	return Value{kind: KindScalar, text: n.String(), stype: numberScalar}, nil
}

func writeField(buf *bytes.Buffer, name string, v any) error {
	key, err := json.Marshal(name)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}
