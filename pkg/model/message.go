package model

import "time"

// MessageID is a session-scoped ordinal. It is strictly increasing in
// creation order and doubles as the sort key of the message log.
type MessageID int64

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single chat entry. It is never modified after creation.
type Message struct {
	ID        MessageID `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// IsAssistant returns true if the message was produced by the assistant
func (m *Message) IsAssistant() bool {
	return m.Sender == SenderAssistant
}
