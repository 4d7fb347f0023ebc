package mavlink

import (
	"testing"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mavbridge/internal/telemetry"
)

// MessageTestBlob exercises the field kinds the common dialect rarely
// combines in one message.
type MessageTestBlob struct {
	Data   [4]uint8
	Values [2]float32
	Label  string `mavname:"label_text"`
	Offset int16
}

func (*MessageTestBlob) GetID() uint32 { return 60000 }

func uintField(t *testing.T, r telemetry.Record, name string) uint64 {
	t.Helper()
	v, ok := r.Get(name)
	require.True(t, ok, "field %s missing", name)
	n, ok := v.AsUint()
	require.True(t, ok, "field %s is %s, want uint", name, v.Kind())
	return n
}

func TestDecode_Heartbeat(t *testing.T) {
	r, err := Decode(&common.MessageHeartbeat{
		Type:           2,
		CustomMode:     5,
		MavlinkVersion: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "HEARTBEAT", r.Type)
	require.NotEmpty(t, r.Fields)
	assert.Equal(t, TypeField, r.Fields[0].Name)
	name, _ := r.Fields[0].Value.AsString()
	assert.Equal(t, "HEARTBEAT", name)

	assert.Equal(t, uint64(2), uintField(t, r, "type"))
	assert.Equal(t, uint64(5), uintField(t, r, "custom_mode"))
	assert.Equal(t, uint64(3), uintField(t, r, "mavlink_version"))
	assert.False(t, r.IsUnknown())
}

func TestDecode_FloatAndSnakeCase(t *testing.T) {
	r, err := Decode(&common.MessageAttitude{TimeBootMs: 1000, Roll: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "ATTITUDE", r.Type)
	assert.Equal(t, uint64(1000), uintField(t, r, "time_boot_ms"))

	v, ok := r.Get("roll")
	require.True(t, ok)
	f, ok := v.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.5, f)
}

func TestDecode_String(t *testing.T) {
	r, err := Decode(&common.MessageStatustext{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "STATUSTEXT", r.Type)
	v, ok := r.Get("text")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "hello", s)
}

func TestDecode_UnknownMessage(t *testing.T) {
	r, err := Decode(&message.MessageRaw{ID: 4242, Payload: []byte{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, "UNKNOWN_4242", r.Type)
	assert.True(t, r.IsUnknown())
}

func TestDecode_ArraysAndTags(t *testing.T) {
	r, err := Decode(&MessageTestBlob{
		Data:   [4]uint8{0xde, 0xad, 0xbe, 0xef},
		Values: [2]float32{0.5, 1.5},
		Label:  "hi",
		Offset: -3,
	})
	require.NoError(t, err)
	assert.Equal(t, "TEST_BLOB", r.Type)

	data, ok := r.Get("data")
	require.True(t, ok)
	assert.Equal(t, telemetry.KindBytes, data.Kind())

	payload, err := r.Printable().Serialize()
	require.NoError(t, err)
	assert.Equal(t,
		`{"mavpackettype":"TEST_BLOB","data":"deadbeef","values":[0.5,1.5],"label_text":"hi","offset":-3}`,
		payload)
}

func TestDecode_Nil(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestMessageName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MessageHeartbeat", "HEARTBEAT"},
		{"MessageGlobalPositionInt", "GLOBAL_POSITION_INT"},
		{"MessageGps2Raw", "GPS2_RAW"},
		{"MessageScaledImu2", "SCALED_IMU2"},
		{"MessageVfrHud", "VFR_HUD"},
		{"MessageStatustext", "STATUSTEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageName(tt.in))
		})
	}
}
