// Package delivery renders ledger events into the text actually submitted
// to an actor's PTY, including bracketed-paste wrapping and the
// file/line-escape fallbacks for terminals without paste-mode support.
// Grounded on the original implementation's daemon/delivery.py.
package delivery

import (
	"fmt"
	"strings"

	"github.com/cccckit/cccc/internal/fsutil"
	"github.com/cccckit/cccc/internal/model"
)

const (
	bracketedPasteStart = "\x1b[200~"
	bracketedPasteEnd   = "\x1b[201~"
)

// FallbackMode selects how a multi-line payload is delivered when the
// target PTY has no bracketed-paste support.
type FallbackMode string

const (
	FallbackFile        FallbackMode = "file"
	FallbackLineEscape  FallbackMode = "line_escape"
)

// RenderOptions parametrizes Render.
type RenderOptions struct {
	By             string
	To             []string
	Body           string
	ReplyTo        string
	QuoteText      string
	BracketedPaste bool
	Fallback       FallbackMode
	Submit         model.Submit
	DeliveryDir    string // state/delivery, used only for FallbackFile
	ActorID        string // used to name the fallback file
}

// Render produces the final byte payload to write to the actor's PTY, per
// §4.4 steps 1-4.
func Render(opt RenderOptions) (string, error) {
	targets := opt.To
	if len(targets) == 0 {
		targets = []string{"@all"}
	}
	prefix := fmt.Sprintf("[cccc] %s → %s:", opt.By, strings.Join(targets, ", "))
	if opt.ReplyTo != "" {
		rid := opt.ReplyTo
		if len(rid) > 8 {
			rid = rid[:8]
		}
		prefix += fmt.Sprintf(" (reply:%s)", rid)
	}

	var text string
	if opt.QuoteText == "" && !strings.Contains(opt.Body, "\n") {
		text = prefix + ": " + opt.Body
	} else {
		lines := []string{prefix}
		if opt.QuoteText != "" {
			q := opt.QuoteText
			if len(q) > 80 {
				q = q[:80] + "…"
			}
			lines = append(lines, fmt.Sprintf("> %q", q))
		}
		lines = append(lines, opt.Body)
		text = strings.Join(lines, "\n")
	}
	multiline := strings.Contains(text, "\n")

	var payload string
	switch {
	case multiline && opt.BracketedPaste:
		payload = bracketedPasteStart + text + bracketedPasteEnd
	case multiline && opt.Fallback == FallbackFile:
		path := opt.DeliveryDir + "/" + opt.ActorID + ".txt"
		if err := fsutil.AtomicWriteText(path, []byte(text), 0o644); err != nil {
			return "", fmt.Errorf("delivery: write fallback file: %w", err)
		}
		payload = fmt.Sprintf("[cccc] Delivered as file (terminal has no bracketed-paste): %s", path)
	case multiline:
		payload = strings.ReplaceAll(text, "\n", `\n`)
	default:
		payload = text
	}

	return payload + submitSuffix(opt.Submit), nil
}

func submitSuffix(s model.Submit) string {
	switch s {
	case model.SubmitEnter:
		return "\r"
	case model.SubmitNewline:
		return "\n"
	default:
		return ""
	}
}

// InjectSystemPrompt renders the system-prompt refresh payload for an
// actor, submitted the same way as any other delivery.
func InjectSystemPrompt(prompt string, submit model.Submit) string {
	return prompt + submitSuffix(submit)
}
