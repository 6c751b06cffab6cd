package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinTopic(t *testing.T) {
	cases := []struct {
		desc     string
		base     string
		relative string
		topic    string
	}{
		{
			desc:     "base topic",
			base:     "fedasync",
			relative: RoundsCompletedTopic,
			topic:    "fedasync/fl/rounds/completed",
		},
		{
			desc:     "base topic with trailing slash",
			base:     "labs/fedasync/",
			relative: ControlTopic,
			topic:    "labs/fedasync/fl/control",
		},
		{
			desc:     "no base topic",
			relative: StatusTopic,
			topic:    "fl/status",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.topic, joinTopic(tc.base, tc.relative))
		})
	}
}

func TestDecode(t *testing.T) {
	cases := []struct {
		desc    string
		base    string
		topic   string
		payload string
		msg     Message
		err     bool
	}{
		{
			desc:    "control command",
			base:    "fedasync",
			topic:   "fedasync/fl/control",
			payload: `{"command":"step"}`,
			msg:     Message{Topic: ControlTopic, Payload: map[string]any{"command": "step"}},
		},
		{
			desc:    "no base topic",
			topic:   "fl/control",
			payload: `{"command":"run"}`,
			msg:     Message{Topic: ControlTopic, Payload: map[string]any{"command": "run"}},
		},
		{
			desc:    "topic outside base",
			base:    "fedasync",
			topic:   "other/fl/control",
			payload: `{}`,
			msg:     Message{Topic: "other/fl/control", Payload: map[string]any{}},
		},
		{
			desc:    "malformed payload",
			base:    "fedasync",
			topic:   "fedasync/fl/control",
			payload: `step`,
			err:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			msg, err := decode(tc.base, tc.topic, []byte(tc.payload))
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestStatusPayload(t *testing.T) {
	for _, status := range []string{StatusOnline, StatusOffline} {
		t.Run(status, func(t *testing.T) {
			var got Status
			require.NoError(t, json.Unmarshal(statusPayload(status, "fedasync"), &got))
			assert.Equal(t, status, got.Status)
			assert.Equal(t, "fedasync", got.ClientID)
			assert.False(t, got.Time.IsZero())
		})
	}
}
