package telegram

import (
	"encoding/json"
	"testing"
)

func TestFormatOutboundSystemVsChat(t *testing.T) {
	a := New("token")
	if got := a.FormatOutbound("peer-a", "", "hello", true); got != "_[system]_ hello" {
		t.Fatalf("unexpected system formatting: %q", got)
	}
	if got := a.FormatOutbound("peer-a", "", "hello", false); got != "*peer-a*: hello" {
		t.Fatalf("unexpected chat formatting: %q", got)
	}
}

func TestTGUpdateDecodesTextMessage(t *testing.T) {
	raw := `{
		"update_id": 42,
		"message": {
			"message_id": 7,
			"from": {"id": 1, "username": "alice"},
			"chat": {"id": 100, "type": "private"},
			"text": "hello"
		}
	}`
	var upd tgUpdate
	if err := json.Unmarshal([]byte(raw), &upd); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if upd.UpdateID != 42 || upd.Message == nil {
		t.Fatalf("unexpected decode: %+v", upd)
	}
	if upd.Message.Chat.Type != "private" || upd.Message.From.Username != "alice" {
		t.Fatalf("unexpected message fields: %+v", upd.Message)
	}
}
