package dingtalk

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandleWebhookQueuesTextMessage(t *testing.T) {
	a := New("key", "secret", "robot-1", "127.0.0.1:0")
	body := []byte(`{
		"conversationId": "cid123",
		"conversationType": "2",
		"conversationTitle": "room",
		"senderNick": "alice",
		"msgId": "m1",
		"msgtype": "text",
		"sessionWebhook": "https://example.invalid/webhook",
		"text": {"content": "hello"}
	}`)
	req := httptest.NewRequest("POST", "/dingtalk/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.handleWebhook(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

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
	if got.ChatID != "cid123" || got.Text != "hello" || got.FromUser != "alice" || got.ChatType != "group" {
		t.Fatalf("unexpected normalized message: %+v", got)
	}

	a.mu.Lock()
	webhook := a.webhookByChat["cid123"]
	a.mu.Unlock()
	if webhook != "https://example.invalid/webhook" {
		t.Fatalf("expected sessionWebhook to be cached, got %q", webhook)
	}
}

func TestHandleWebhookIgnoresBlankText(t *testing.T) {
	a := New("key", "secret", "robot-1", "127.0.0.1:0")
	body := []byte(`{"conversationId": "cid123", "msgtype": "text", "text": {"content": "  "}}`)
	req := httptest.NewRequest("POST", "/dingtalk/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.handleWebhook(rec, req)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msgs, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("blank text should not be queued, got %+v", msgs)
	}
}

func TestFormatOutboundSystemVsChat(t *testing.T) {
	a := New("key", "secret", "robot-1", "127.0.0.1:0")
	if got := a.FormatOutbound("peer-a", "", "hello", true); got != "[system] hello" {
		t.Fatalf("unexpected system formatting: %q", got)
	}
	if got := a.FormatOutbound("peer-a", "", "hello", false); got != "PEER-A: hello" {
		t.Fatalf("unexpected chat formatting: %q", got)
	}
}
