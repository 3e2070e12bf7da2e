package delivery

import (
	"strings"
	"testing"

	"github.com/cccckit/cccc/internal/model"
)

func TestRenderSingleLineWithSubmitEnter(t *testing.T) {
	out, err := Render(RenderOptions{By: "user", To: []string{"@all"}, Body: "hello", Submit: model.SubmitEnter})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(out, "[cccc] user → @all: ") {
		t.Fatalf("unexpected prefix: %q", out)
	}
	if !strings.HasSuffix(out, "\r") {
		t.Fatalf("expected \\r suffix for submit=enter, got %q", out)
	}
}

func TestRenderMultilineWithBracketedPaste(t *testing.T) {
	out, err := Render(RenderOptions{By: "peer-a", To: nil, Body: "line1\nline2", BracketedPaste: true, Submit: model.SubmitNone})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(out, bracketedPasteStart) || !strings.Contains(out, bracketedPasteEnd) {
		t.Fatalf("expected bracketed-paste wrapping, got %q", out)
	}
}

func TestRenderMultilineFileFallback(t *testing.T) {
	dir := t.TempDir()
	out, err := Render(RenderOptions{
		By: "peer-a", Body: "line1\nline2", BracketedPaste: false,
		Fallback: FallbackFile, DeliveryDir: dir, ActorID: "peer-a", Submit: model.SubmitNone,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Delivered as file") {
		t.Fatalf("expected file-fallback notice, got %q", out)
	}
}

func TestRenderReplyToTruncatedToEightChars(t *testing.T) {
	out, err := Render(RenderOptions{By: "user", Body: "hi", ReplyTo: "0123456789abcdef", Submit: model.SubmitNone})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "(reply:01234567)") {
		t.Fatalf("expected truncated reply marker, got %q", out)
	}
}
