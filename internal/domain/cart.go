package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record field names owned by the line itself. Payload fields with these
// names are never merged into the stored record.
const (
	fieldVariantID = "variantId"
	fieldQuantity  = "quantity"
	fieldKey       = "key"
	fieldOptions   = "options"

	AttachmentsField = "attachments"
	CheckedOption    = "checked"
)

func reservedField(name string) bool {
	switch name {
	case fieldVariantID, fieldQuantity, fieldKey, fieldOptions:
		return true
	}
	return false
}

// CartLine is one stored cart entry: a variant, its quantity and whatever the
// storefront attached to it when it was added.
type CartLine struct {
	Key       string
	VariantID int64
	Quantity  int
	Options   Options
	Payload   Payload
}

// Attachments returns the bundled add-on selections (variant id to quantity).
func (l CartLine) Attachments() map[int64]int64 {
	v, ok := l.Payload.Get(AttachmentsField)
	if !ok || v.Kind() != KindMapping {
		return nil
	}
	out := make(map[int64]int64)
	for _, e := range v.Entries() {
		id, err := strconv.ParseInt(e.Key, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseInt(e.Value, 10, 64)
		if err != nil {
			continue
		}
		out[id] = qty
	}
	return out
}

func (l CartLine) Checked() bool {
	return l.Options.Checked()
}

// MarshalJSON writes the flat record form: the line fields followed by the
// payload fields in payload order.
func (l CartLine) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, fieldVariantID, l.VariantID); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, fieldQuantity, l.Quantity); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, fieldKey, l.Key); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	options := l.Options
	if options == nil {
		options = Options{}
	}
	if err := writeField(&buf, fieldOptions, options); err != nil {
		return nil, err
	}
	for _, f := range l.Payload {
		if reservedField(f.Name) {
			continue
		}
		buf.WriteByte(',')
		if err := writeField(&buf, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON hydrates a line from its record. Any field that is not a
// line field is kept as payload, in record order.
func (l *CartLine) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedObject(data)
	if err != nil {
		return fmt.Errorf("cart line: %w", err)
	}

	var line CartLine
	for _, f := range fields {
		switch f.name {
		case fieldVariantID:
			if err := json.Unmarshal(f.raw, &line.VariantID); err != nil {
				return fmt.Errorf("cart line variantId: %w", err)
			}
		case fieldQuantity:
			if err := json.Unmarshal(f.raw, &line.Quantity); err != nil {
				return fmt.Errorf("cart line quantity: %w", err)
			}
		case fieldKey:
			if err := json.Unmarshal(f.raw, &line.Key); err != nil {
				return fmt.Errorf("cart line key: %w", err)
			}
		case fieldOptions:
			if err := json.Unmarshal(f.raw, &line.Options); err != nil {
				return fmt.Errorf("cart line options: %w", err)
			}
		default:
			v, ok, err := parseValue(f.raw)
			if err != nil {
				return fmt.Errorf("cart line %q: %w", f.name, err)
			}
			if ok {
				line.Payload = line.Payload.Set(f.name, v)
			}
		}
	}
	*l = line
	return nil
}

// Options holds free-form per-line flags.
type Options map[string]any

// Checked reports whether the line takes part in checkout. A missing or
// null flag counts as checked.
func (o Options) Checked() bool {
	v, ok := o[CheckedOption]
	if !ok || v == nil {
		return true
	}
	switch c := v.(type) {
	case bool:
		return c
	case string:
		return c != "" && c != "0"
	case float64:
		return c != 0
	case int:
		return c != 0
	case int64:
		return c != 0
	case json.Number:
		f, err := c.Float64()
		return err == nil && f != 0
	}
	return true
}

// WithChecked returns a copy with the checked flag set.
func (o Options) WithChecked(checked bool) Options {
	out := make(Options, len(o)+1)
	for k, v := range o {
		out[k] = v
	}
	out[CheckedOption] = checked
	return out
}
