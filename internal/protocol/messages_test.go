package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"join","touristId":"TID-1"}`))
	require.NoError(t, err)
	assert.Equal(t, &JoinMessage{Type: MsgTypeJoin, TouristID: "TID-1"}, msg)

	msg, err = ParseMessage([]byte(`{"type":"confirmSafety","touristId":"TID-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "User confirmed they are safe", msg.(*ConfirmSafetyMessage).Message)

	msg, err = ParseMessage([]byte(`{"type":"keepalive"}`))
	require.NoError(t, err)
	assert.IsType(t, &KeepaliveMessage{}, msg)
}

func TestParseMessage_Invalid(t *testing.T) {
	bad := []string{
		`not json`,
		`{"type":"join"}`,
		`{"type":"acknowledgeAnomaly","touristId":"TID-1"}`,
		`{"type":"emergencyResponse","touristId":"TID-1"}`,
		`{"type":"teleport"}`,
	}
	for _, b := range bad {
		_, err := ParseMessage([]byte(b))
		assert.Error(t, err, b)
	}
}

func TestEventMessage_PayloadIsRawJSON(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	msg, err := NewEventMessage("sosCancelled", "TID-1", SOSCancelledEvent{SOSID: "s1", Reason: "ok"}, at)
	require.NoError(t, err)

	data, err := EncodeEventMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeEventMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "sosCancelled", decoded.Event)
	assert.Equal(t, "TID-1", decoded.TouristID)
	assert.JSONEq(t, `{"sosId":"s1","touristId":"","reason":"ok","cancelledAt":"0001-01-01T00:00:00Z"}`, string(decoded.Payload))
	assert.True(t, at.Equal(decoded.Timestamp))
}
