// Package slack adapts Slack Socket Mode to the bridge.Adapter contract.
// Grounded on the teacher's channels/slack/main.go Socket Mode path
// (apps.connections.open handshake, envelope ack loop over
// gorilla/websocket), restructured around Poll() instead of a push
// subscription and trimmed to Socket Mode only — the spec has no ingress
// to host an Events API webhook.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cccckit/cccc/internal/bridge"
)

// Adapter implements bridge.Adapter over Slack Socket Mode.
type Adapter struct {
	botToken string
	appToken string
	client   *http.Client
	inbox    chan bridge.NormalizedMessage

	mu   sync.Mutex
	conn *websocket.Conn
}

// New returns a Slack adapter. botToken is xoxb-..., appToken is xapp-...
func New(botToken, appToken string) *Adapter {
	return &Adapter{
		botToken: botToken, appToken: appToken,
		client: &http.Client{Timeout: 30 * time.Second},
		inbox:  make(chan bridge.NormalizedMessage, 256),
	}
}

func (a *Adapter) Name() string { return "slack" }

func (a *Adapter) Connect(ctx context.Context) error {
	go a.runSocketMode(ctx)
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func (a *Adapter) openSocketModeConnection(ctx context.Context) (*websocket.Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://slack.com/api/apps.connections.open", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.appToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apps.connections.open: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK  bool   `json:"ok"`
		URL string `json:"url"`
		Err string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding connection response: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("apps.connections.open: %s", body.Err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, body.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

func (a *Adapter) runSocketMode(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, err := a.openSocketModeConnection(ctx)
		if err != nil {
			time.Sleep(5 * time.Second)
			continue
		}
		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		a.readSocketMode(ctx, conn)
		_ = conn.Close()
	}
}

type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

func (a *Adapter) readSocketMode(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env socketEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		switch env.Type {
		case "events_api":
			ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
			_ = conn.WriteMessage(websocket.TextMessage, ack)
			a.handleSocketEvent(env.Payload)
		case "interactive", "slash_commands":
			ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
			_ = conn.WriteMessage(websocket.TextMessage, ack)
		case "disconnect":
			return
		}
	}
}

func (a *Adapter) handleSocketEvent(payload json.RawMessage) {
	var inner struct {
		Event struct {
			Type     string `json:"type"`
			User     string `json:"user"`
			Text     string `json:"text"`
			Channel  string `json:"channel"`
			ChanType string `json:"channel_type"`
			TS       string `json:"ts"`
			ThreadTS string `json:"thread_ts"`
			BotID    string `json:"bot_id"`
			Files    []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Mimetype string `json:"mimetype"`
			} `json:"files"`
		} `json:"event"`
	}
	if err := json.Unmarshal(payload, &inner); err != nil {
		return
	}
	ev := inner.Event
	if ev.Type != "message" || ev.User == "" || ev.BotID != "" {
		return
	}
	chatType := bridge.ChatGroup
	if ev.ChanType == "im" {
		chatType = bridge.ChatPrivate
	}
	var atts []bridge.AttachmentMeta
	for _, f := range ev.Files {
		atts = append(atts, bridge.AttachmentMeta{ID: f.ID, Filename: f.Name, MIMEType: f.Mimetype})
	}
	msg := bridge.NormalizedMessage{
		ChatID: ev.Channel, ChatType: chatType, ThreadID: ev.ThreadTS,
		Text: ev.Text, Attachments: atts, FromUser: ev.User, MessageID: ev.TS,
	}
	select {
	case a.inbox <- msg:
	default:
	}
}

func (a *Adapter) Poll(ctx context.Context) ([]bridge.NormalizedMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-a.inbox:
		out := []bridge.NormalizedMessage{msg}
		for {
			select {
			case more := <-a.inbox:
				out = append(out, more)
			default:
				return out, nil
			}
		}
	case <-time.After(time.Second):
		return nil, nil
	}
}

func (a *Adapter) SendMessage(ctx context.Context, chatID, text, threadID string) error {
	payload := map[string]any{"channel": chatID, "text": text}
	if threadID != "" {
		payload["thread_ts"] = threadID
	}
	return a.post(ctx, "https://slack.com/api/chat.postMessage", payload)
}

func (a *Adapter) SendFile(ctx context.Context, chatID, filePath, filename, caption, threadID string) error {
	return a.SendMessage(ctx, chatID, caption+" ["+filename+"]", threadID)
}

func (a *Adapter) post(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.botToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (a *Adapter) GetChatTitle(ctx context.Context, chatID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://slack.com/api/conversations.info?channel="+chatID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.botToken)
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Channel.Name == "" {
		return chatID, nil
	}
	return body.Channel.Name, nil
}

func (a *Adapter) DownloadAttachment(ctx context.Context, meta bridge.AttachmentMeta) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://slack.com/api/files.info?file="+meta.ID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.botToken)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		File struct {
			URLPrivate string `json:"url_private"`
		} `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	fReq, err := http.NewRequestWithContext(ctx, http.MethodGet, body.File.URLPrivate, nil)
	if err != nil {
		return nil, err
	}
	fReq.Header.Set("Authorization", "Bearer "+a.botToken)
	fResp, err := a.client.Do(fReq)
	if err != nil {
		return nil, err
	}
	defer fResp.Body.Close()
	return io.ReadAll(fResp.Body)
}

func (a *Adapter) FormatOutbound(by, to, text string, isSystem bool) string {
	if isSystem {
		return "_[system]_ " + text
	}
	return "*" + strings.ToUpper(by) + "*: " + text
}
