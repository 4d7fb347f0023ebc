package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnknownPrefix marks records whose message ID is absent from the dialect.
// Such records are never cached.
const UnknownPrefix = "UNKNOWN"

// Field is one named value inside a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is one decoded telemetry message.
//
// Fields keep the order in which the decoder produced them, which is the
// order of the message definition. A Record handed to the Cache must not be
// mutated afterwards.
type Record struct {
	// Type is the message type tag, e.g. "HEARTBEAT" or "UNKNOWN_4242".
	Type string

	// Fields are the message fields in definition order.
	Fields []Field
}

// NewRecord builds a record from a type tag and ordered fields.
func NewRecord(msgType string, fields ...Field) Record {
	f := make([]Field, len(fields))
	copy(f, fields)
	return Record{Type: msgType, Fields: f}
}

// IsUnknown reports whether the type tag belongs to the unknown category.
func IsUnknown(msgType string) bool {
	return msgType == "" || strings.HasPrefix(msgType, UnknownPrefix)
}

// IsUnknown reports whether r belongs to the unknown category.
func (r Record) IsUnknown() bool {
	return IsUnknown(r.Type)
}

// Get returns the value of the named field.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Printable returns a copy of r with every byte-sequence field rendered as
// hexadecimal text, so the record can be serialized to a text payload.
func (r Record) Printable() Record {
	out := Record{Type: r.Type, Fields: make([]Field, len(r.Fields))}
	for i, f := range r.Fields {
		out.Fields[i] = Field{Name: f.Name, Value: f.Value.Printable()}
	}
	return out
}

// Equal reports whether two records have the same type and fields in the
// same order.
func (r Record) Equal(o Record) bool {
	if r.Type != o.Type || len(r.Fields) != len(o.Fields) {
		return false
	}
	for i := range r.Fields {
		if r.Fields[i].Name != o.Fields[i].Name || !r.Fields[i].Value.Equal(o.Fields[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a JSON object whose keys are the field
// names in record order. The type tag is not added; decoders that want it in
// the payload carry it as a field.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := f.Value.appendJSON(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Serialize returns the UTF-8 text payload for r.
func (r Record) Serialize() (string, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
