package slack

import (
	"context"
	"testing"
	"time"
)

func TestFormatOutboundSystemVsChat(t *testing.T) {
	a := New("xoxb-token", "xapp-token")
	if got := a.FormatOutbound("peer-a", "", "hello", true); got != "_[system]_ hello" {
		t.Fatalf("unexpected system formatting: %q", got)
	}
	if got := a.FormatOutbound("peer-a", "", "hello", false); got != "*PEER-A*: hello" {
		t.Fatalf("unexpected chat formatting: %q", got)
	}
}

func TestHandleSocketEventIgnoresBotMessages(t *testing.T) {
	a := New("xoxb-token", "xapp-token")
	a.handleSocketEvent([]byte(`{"event":{"type":"message","user":"U1","bot_id":"B1","text":"hi","channel":"C1"}}`))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msgs, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("bot-authored messages should not be queued, got %+v", msgs)
	}
}

func TestHandleSocketEventNormalizesDirectMessage(t *testing.T) {
	a := New("xoxb-token", "xapp-token")
	a.handleSocketEvent([]byte(`{"event":{"type":"message","user":"U1","text":"hello","channel":"D1","channel_type":"im","ts":"123.456"}}`))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one queued message, got %+v", msgs)
	}
	got := msgs[0]
	if got.ChatID != "D1" || got.Text != "hello" || got.FromUser != "U1" || got.ChatType != "private" {
		t.Fatalf("unexpected normalized message: %+v", got)
	}
}
