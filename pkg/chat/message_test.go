package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel(" Support ")
	require.NoError(t, err)
	assert.Equal(t, ChannelSupport, ch)
	assert.Equal(t, ChannelAI, ch.Other())

	_, err = ParseChannel("sales")
	assert.Error(t, err)
}

func TestParseSender(t *testing.T) {
	tests := map[string]Sender{
		"user":    SenderUser,
		"ai":      SenderAI,
		"admin":   SenderSupport,
		"support": SenderSupport,
		"bot":     SenderSystem,
		"":        SenderSystem,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseSender(in), "sender %q", in)
	}
}

func TestMessageUnmarshalBackendRecord(t *testing.T) {
	raw := `{"id":7,"user_id":1,"sender":"admin","message_type":"image","content":null,
		"file_path":"admin/20240101_120000_cat.png","timestamp":"2024-01-01 12:30:05","username":"x"}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, SenderSupport, m.Sender)
	assert.Empty(t, m.Content)
	assert.Equal(t, "admin/20240101_120000_cat.png", m.FilePath)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 30, 5, 0, time.UTC), m.Timestamp)
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), ParseTimestamp("2024-03-02T08:00:00Z"))
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), ParseTimestamp("2024-03-02T08:00:00"))
	assert.True(t, ParseTimestamp("yesterday").IsZero())
	assert.True(t, ParseTimestamp("").IsZero())
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "sara", User{ID: 1, Username: "sara"}.DisplayName())
	assert.Equal(t, "user_1", User{ID: 1, SessionID: "user_1"}.DisplayName())
	assert.Equal(t, "user #4", User{ID: 4}.DisplayName())
}
