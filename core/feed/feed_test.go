package feed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/model"
)

func TestParseLine_PayloadWithSpaces(t *testing.T) {
	msg, err := ParseLine(`position 7 {"x": 1, "y": 2, "address": {"host": "10.0.0.7", "port": 6007}}`)
	require.NoError(t, err)
	assert.Equal(t, TopicPosition, msg.Topic)
	assert.Equal(t, 7, msg.AgentID)
	assert.JSONEq(t, `{"x":1,"y":2,"address":{"host":"10.0.0.7","port":6007}}`, string(msg.Payload))
}

func TestParseLine_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"topic only":    "position",
		"no payload":    "status 3",
		"unknown topic": `speed 3 {"v":1}`,
		"bad id":        `status three {"status":"busy"}`,
		"bad json":      `status 3 {status:busy}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLine(line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage))
		})
	}
}

func TestFormatLineParsesBack(t *testing.T) {
	rec := model.AgentRecord{
		ID: 4, X: 2.5, Y: 3,
		Address:     model.Address{Host: "localhost", Port: 6004},
		Status:      model.StatusAvailable,
		MaxServices: 3,
	}
	msg, err := NewPosition(rec)
	require.NoError(t, err)
	line := FormatLine(msg)
	assert.Contains(t, line, "position 4 {")

	back, err := ParseLine(line)
	require.NoError(t, err)
	assert.Equal(t, msg.AgentID, back.AgentID)
	assert.JSONEq(t, string(msg.Payload), string(back.Payload))
}
