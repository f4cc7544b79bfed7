package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel is one of the two independent chat contexts.
type Channel string

const (
	ChannelAI      Channel = "ai"
	ChannelSupport Channel = "support"
)

// Channels lists every channel in display order.
var Channels = []Channel{ChannelAI, ChannelSupport}

// ParseChannel accepts "ai" or "support" in any case.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelAI:
		return ChannelAI, nil
	case ChannelSupport:
		return ChannelSupport, nil
	}
	return "", fmt.Errorf("unknown chat channel %q", s)
}

// Other returns the channel that is not c.
func (c Channel) Other() Channel {
	if c == ChannelAI {
		return ChannelSupport
	}
	return ChannelAI
}

func (c Channel) Valid() bool {
	return c == ChannelAI || c == ChannelSupport
}

type Sender string

const (
	SenderUser    Sender = "user"
	SenderAI      Sender = "ai"
	SenderSupport Sender = "support"
	SenderSystem  Sender = "system"
)

// ParseSender maps a wire sender onto the four known senders. The backend
// stores operator replies as "admin".
func ParseSender(s string) Sender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return SenderUser
	case "ai", "assistant":
		return SenderAI
	case "support", "admin":
		return SenderSupport
	default:
		return SenderSystem
	}
}

// MessageType is the value of the multipart message_type field.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
)

// Message is a single chat record as returned by the backend. It has no
// identity of its own.
type Message struct {
	Sender    Sender
	Content   string
	FilePath  string
	Timestamp time.Time
}

type wireMessage struct {
	Sender    string  `json:"sender"`
	Content   *string `json:"content"`
	FilePath  *string `json:"file_path"`
	Timestamp *string `json:"timestamp"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts RFC 3339 and the SQLite CURRENT_TIMESTAMP layout.
// Zone-less values are UTC. An unparseable value yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Sender: ParseSender(w.Sender)}
	if w.Content != nil {
		m.Content = *w.Content
	}
	if w.FilePath != nil {
		m.FilePath = *w.FilePath
	}
	if w.Timestamp != nil {
		m.Timestamp = ParseTimestamp(*w.Timestamp)
	}
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Sender: string(m.Sender)}
	if m.Content != "" {
		w.Content = &m.Content
	}
	if m.FilePath != "" {
		w.FilePath = &m.FilePath
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp.UTC().Format(time.RFC3339)
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

// User is a backend user record as seen by a support operator.
type User struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"session_id"`
	Username     string `json:"username,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
	MessageCount int    `json:"message_count"`
}

// DisplayName prefers the username and falls back to the session id.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.SessionID != "" {
		return u.SessionID
	}
	return fmt.Sprintf("user #%d", u.ID)
}
