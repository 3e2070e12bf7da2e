package model

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed-ish family of ledger event kinds. Unknown kinds pass
// through unvalidated for forward compatibility.
type Kind string

const (
	KindGroupAttach      Kind = "group.attach"
	KindGroupCreate      Kind = "group.create"
	KindGroupUpdate      Kind = "group.update"
	KindGroupStart       Kind = "group.start"
	KindGroupStop        Kind = "group.stop"
	KindGroupSetState    Kind = "group.set_state"
	KindGroupDelete      Kind = "group.delete"
	KindActorAdd         Kind = "actor.add"
	KindActorRemove      Kind = "actor.remove"
	KindActorUpdate      Kind = "actor.update"
	KindActorStart       Kind = "actor.start"
	KindActorStop        Kind = "actor.stop"
	KindChatMessage      Kind = "chat.message"
	KindChatRead         Kind = "chat.read"
	KindChatAck          Kind = "chat.ack"
	KindChatReaction     Kind = "chat.reaction"
	KindSystemNotify     Kind = "system.notify"
	KindSystemNotifyAck  Kind = "system.notify_ack"
	KindContextSync      Kind = "context.sync"
)

// Event is one line in ledger.jsonl.
type Event struct {
	V        int             `json:"v"`
	ID       string          `json:"id"`
	TS       string          `json:"ts"`
	Kind     Kind            `json:"kind"`
	GroupID  string          `json:"group_id"`
	ScopeKey string          `json:"scope_key,omitempty"`
	By       string          `json:"by"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Attachment describes a blob referenced from a chat.message event.
type Attachment struct {
	SHA256   string `json:"sha256"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ChatMessageData is the payload of a chat.message event.
type ChatMessageData struct {
	Text        string       `json:"text"`
	Format      string       `json:"format,omitempty"` // plain|markdown
	To          []string     `json:"to,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
	QuoteText   string       `json:"quote_text,omitempty"`
	Refs        []string     `json:"refs,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ClientID    string       `json:"client_id,omitempty"`
}

// ChatReadData is the payload of a chat.read event.
type ChatReadData struct {
	ActorID string `json:"actor_id"`
	EventID string `json:"event_id"`
	TS      string `json:"ts"`
}

// SystemNotifyData is the payload of a system.notify event.
type SystemNotifyData struct {
	Text string   `json:"text"`
	To   []string `json:"to,omitempty"`
}

// ValidateEventData validates data against the shape expected for kind, when
// kind is a known family; unknown kinds pass through unchecked.
func ValidateEventData(kind Kind, data json.RawMessage) error {
	switch kind {
	case KindChatMessage:
		var d ChatMessageData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("invalid chat.message data: %w", err)
		}
		if d.Text == "" {
			return fmt.Errorf("chat.message requires non-empty text")
		}
	case KindChatRead:
		var d ChatReadData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("invalid chat.read data: %w", err)
		}
		if d.ActorID == "" || d.EventID == "" {
			return fmt.Errorf("chat.read requires actor_id and event_id")
		}
	case KindSystemNotify:
		var d SystemNotifyData
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("invalid system.notify data: %w", err)
		}
		if d.Text == "" {
			return fmt.Errorf("system.notify requires non-empty text")
		}
	}
	return nil
}

// ReadCursor is the per-actor read position, stored in
// state/read_cursors.json.
type ReadCursor struct {
	EventID   string `json:"event_id"`
	TS        string `json:"ts"`
	UpdatedAt string `json:"updated_at"`
}

// Subscriber is an IM-bridge chat subscription record.
type Subscriber struct {
	ChatID        string `json:"-"`
	ThreadID      int    `json:"thread_id"`
	Subscribed    bool   `json:"subscribed"`
	Verbose       bool   `json:"verbose"`
	ChatTitle     string `json:"chat_title"`
	SubscribedAt  string `json:"subscribed_at"`
}
