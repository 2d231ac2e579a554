package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadSurvivesRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wire    string
	}{
		{"object", Payload(`{"game":"chess","round":2}`), `{"game":"chess","round":2}`},
		{"raw text", Payload("move e2e4"), `"move e2e4"`},
		{"json string", Payload(`"123"`), `"123"`},
		{"number", Payload(`42`), `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			require.JSONEq(t, tt.wire, string(wire))

			var decoded Payload
			require.NoError(t, json.Unmarshal(wire, &decoded))
			require.Equal(t, string(tt.payload), string(decoded))

			again, err := json.Marshal(decoded)
			require.NoError(t, err)
			require.Equal(t, string(wire), string(again))
		})
	}
}

func TestPayloadEmpty(t *testing.T) {
	require.True(t, Payload(nil).Empty())
	require.True(t, Payload(" null ").Empty())
	require.False(t, Payload(`{}`).Empty())

	wire, err := json.Marshal(Payload(nil))
	require.NoError(t, err)
	require.Equal(t, "null", string(wire))
}
