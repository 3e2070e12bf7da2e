// Package bridge is the IM bridge core: the platform-agnostic adapter
// contract, cursor-tailed outbound pipeline, subscriber manager, inbound
// command grammar, rate limiting, dedup and blob storage shared by every
// adapter under internal/bridge/adapters. Grounded on the original
// implementation's ports/im package and the teacher's internal/channel
// framework.
package bridge

import "context"

// ChatType classifies a NormalizedMessage's originating chat.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// AttachmentMeta is an adapter-opaque handle an adapter returns from poll()
// and later resolves via DownloadAttachment.
type AttachmentMeta struct {
	ID       string
	Filename string
	MIMEType string
}

// NormalizedMessage is one inbound message, translated into the
// platform-agnostic shape every command parser and dedup map operates on.
type NormalizedMessage struct {
	ChatID      string
	ChatTitle   string
	ChatType    ChatType
	ThreadID    string
	Text        string
	Attachments []AttachmentMeta
	FromUser    string
	MessageID   string
	Routed      bool
}

// Adapter is the platform-agnostic contract every IM integration
// implements. Each method maps 1:1 to spec.md §4.5's adapter contract.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Poll(ctx context.Context) ([]NormalizedMessage, error)
	SendMessage(ctx context.Context, chatID, text, threadID string) error
	SendFile(ctx context.Context, chatID, filePath, filename, caption, threadID string) error
	GetChatTitle(ctx context.Context, chatID string) (string, error)
	DownloadAttachment(ctx context.Context, meta AttachmentMeta) ([]byte, error)
	FormatOutbound(by, to, text string, isSystem bool) string
	Name() string
}

// DefaultSummarize truncates text to maxLines lines and maxChars runes,
// appending an ellipsis marker when truncated. Adapters that don't need a
// platform-specific summarizer can call this directly.
func DefaultSummarize(text string, maxChars, maxLines int) string {
	lines := splitLines(text)
	truncatedLines := false
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		truncatedLines = true
	}
	out := joinLines(lines)
	truncatedChars := false
	if maxChars > 0 && len([]rune(out)) > maxChars {
		r := []rune(out)
		out = string(r[:maxChars])
		truncatedChars = true
	}
	if truncatedLines || truncatedChars {
		out += "…"
	}
	return out
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
