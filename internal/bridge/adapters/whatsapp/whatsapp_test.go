package whatsapp

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestResolveJIDPlainNumberDefaultsToUserServer(t *testing.T) {
	jid := resolveJID("15551234567")
	if jid.User != "15551234567" || jid.Server != "s.whatsapp.net" {
		t.Fatalf("unexpected JID: %+v", jid)
	}
}

func TestResolveJIDParsesFullJID(t *testing.T) {
	jid := resolveJID("12345-67890@g.us")
	if jid.Server != "g.us" {
		t.Fatalf("expected group server, got %+v", jid)
	}
}

func TestExtractTextPrefersConversation(t *testing.T) {
	msg := &waE2E.Message{Conversation: proto.String("hello")}
	if got := extractText(msg); got != "hello" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractTextFallsBackToCaption(t *testing.T) {
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("a photo")}}
	if got := extractText(msg); got != "a photo" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestExtractTextNilMessage(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Fatalf("expected empty string for nil message, got %q", got)
	}
}

func TestFormatOutboundSystemVsChat(t *testing.T) {
	a := New("/tmp")
	if got := a.FormatOutbound("peer-a", "", "hello", true); got != "[system] hello" {
		t.Fatalf("unexpected system formatting: %q", got)
	}
	if got := a.FormatOutbound("peer-a", "", "hello", false); got != "*peer-a*: hello" {
		t.Fatalf("unexpected chat formatting: %q", got)
	}
}
