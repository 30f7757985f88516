// Package domain contains core concepts of the chat room.
// Messages are immutable once appended; edits and deletions only happen
// through the message log by id.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the reserved recipient meaning "every participant".
const Broadcast = "Todos"

type Kind string

const (
	KindMessage        Kind = "message"
	KindPrivateMessage Kind = "private_message"
	KindStatus         Kind = "status"
)

// Message is a chat event as persisted by the message log.
type Message struct {
	ID   uuid.UUID
	From string
	To   string
	Text string
	Kind Kind
	At   time.Time
}

// DisplayTime renders the append instant for clients. Ordering never relies
// on it; the log's insertion sequence is the canonical order.
func (m Message) DisplayTime() string {
	return m.At.Format("15:04:05")
}

// VisibleTo reports whether a viewer should see this message: broadcasts,
// messages addressed to the viewer, and the viewer's own sent messages.
func (m Message) VisibleTo(viewer string) bool {
	return m.To == Broadcast || m.To == viewer || m.From == viewer
}

// MessageInput carries the caller-supplied fields of a new message.
// Content validity is enforced upstream by the transport validator.
type MessageInput struct {
	From string
	To   string
	Text string
	Kind Kind
}

// MessagePatch replaces the mutable fields of an existing message.
type MessagePatch struct {
	To   string
	Text string
	Kind Kind
}

// Window returns the last limit messages of seq in original order.
// A nil or non-positive limit means no truncation.
func Window(seq []Message, limit *int) []Message {
	if limit == nil || *limit <= 0 || len(seq) <= *limit {
		return seq
	}
	return seq[len(seq)-*limit:]
}
