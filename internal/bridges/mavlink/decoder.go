package mavlink

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// TypeField is the field carrying the message name in every decoded record.
// It matches the key used by MAVLink dictionary representations, and lets
// subscribers tell types apart on the shared topic.
const TypeField = "mavpackettype"

// messagePrefix is the Go type name prefix of gomavlib dialect messages.
const messagePrefix = "Message"

// Decode converts a gomavlib message into a telemetry record.
//
// Messages whose ID is missing from the dialect arrive as *message.MessageRaw
// and decode to the unknown category ("UNKNOWN_<id>"). Every other message
// becomes a record named after its MAVLink definition (e.g. "GLOBAL_POSITION_INT")
// with fields in definition order, prefixed by TypeField.
//
// Byte arrays are kept as raw bytes; call Record.Printable before
// serializing.
func Decode(msg message.Message) (telemetry.Record, error) {
	if msg == nil {
		return telemetry.Record{}, fmt.Errorf("%w: nil message", ErrDecodeFailed)
	}

	if raw, ok := msg.(*message.MessageRaw); ok {
		return telemetry.NewRecord(fmt.Sprintf("%s_%d", telemetry.UnknownPrefix, raw.ID)), nil
	}

	rv := reflect.ValueOf(msg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return telemetry.Record{}, fmt.Errorf("%w: unexpected message type %T", ErrDecodeFailed, msg)
	}
	rv = rv.Elem()
	rt := rv.Type()

	name := MessageName(rt.Name())
	fields := make([]telemetry.Field, 0, rt.NumField()+1)
	fields = append(fields, telemetry.Field{Name: TypeField, Value: telemetry.String(name)})

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}

		v, err := convertValue(rv.Field(i))
		if err != nil {
			return telemetry.Record{}, fmt.Errorf("%w: %s.%s: %w", ErrDecodeFailed, name, sf.Name, err)
		}
		fields = append(fields, telemetry.Field{Name: FieldName(sf), Value: v})
	}

	return telemetry.Record{Type: name, Fields: fields}, nil
}

// MessageName converts a gomavlib message type name to its MAVLink name.
//
// Example: "MessageGlobalPositionInt" → "GLOBAL_POSITION_INT",
// "MessageScaledImu2" → "SCALED_IMU2".
func MessageName(goName string) string {
	return strings.ToUpper(splitCamel(strings.TrimPrefix(goName, messagePrefix)))
}

// FieldName returns the MAVLink name of a message struct field.
// The mavname tag wins when present; otherwise the Go name is converted
// the same way the dialect generator derived it ("TimeBootMs" → "time_boot_ms").
func FieldName(sf reflect.StructField) string {
	if tag := sf.Tag.Get("mavname"); tag != "" {
		return tag
	}
	return strings.ToLower(splitCamel(sf.Name))
}

// splitCamel inserts an underscore before every upper-case letter except
// the first.
func splitCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// convertValue maps a reflected field onto the telemetry variant.
// Enum fields are named integer types and decode as integers.
func convertValue(v reflect.Value) (telemetry.Value, error) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return telemetry.Int(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return telemetry.Uint(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return telemetry.Float(v.Float()), nil
	case reflect.String:
		return telemetry.String(v.String()), nil
	case reflect.Array, reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return telemetry.Bytes(b), nil
		}

		items := make([]telemetry.Value, v.Len())
		for i := range items {
			item, err := convertValue(v.Index(i))
			if err != nil {
				return telemetry.Value{}, err
			}
			items[i] = item
		}
		return telemetry.List(items...), nil
	default:
		return telemetry.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedField, v.Kind())
	}
}
