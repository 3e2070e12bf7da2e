// Package discord adapts a discordgo gateway session to the bridge.Adapter
// contract. Grounded on the teacher's channels/discord/main.go session
// lifecycle (intents, message handler, graceful Open/Close), restructured
// from its NATS-publish shape into Poll()-based delivery the bridge pulls
// from instead of a push subscription.
package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cccckit/cccc/internal/bridge"
)

// Adapter implements bridge.Adapter over the Discord Gateway.
type Adapter struct {
	session  *discordgo.Session
	botToken string
	botID    string
	inbox    chan bridge.NormalizedMessage
	removeFn func()
}

// New returns a Discord adapter for the given bot token. Connect opens the
// gateway session; no network call happens until then.
func New(botToken string) *Adapter {
	return &Adapter{botToken: botToken, inbox: make(chan bridge.NormalizedMessage, 256)}
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) Connect(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + a.botToken)
	if err != nil {
		return fmt.Errorf("discord: new session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	a.removeFn = dg.AddHandler(a.messageCreate)
	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.session = dg
	if dg.State != nil && dg.State.User != nil {
		a.botID = dg.State.User.ID
	}
	return nil
}

func (a *Adapter) Disconnect() error {
	if a.removeFn != nil {
		a.removeFn()
	}
	if a.session == nil {
		return nil
	}
	return a.session.Close()
}

// messageCreate is the discordgo handler for MESSAGE_CREATE, pushed into the
// adapter's inbox for Poll to drain.
func (a *Adapter) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botID || m.Content == "" && len(m.Attachments) == 0 {
		return
	}
	chatType := bridge.ChatGroup
	if m.GuildID == "" {
		chatType = bridge.ChatPrivate
	}
	var atts []bridge.AttachmentMeta
	for _, att := range m.Attachments {
		atts = append(atts, bridge.AttachmentMeta{ID: att.URL, Filename: att.Filename, MIMEType: att.ContentType})
	}
	msg := bridge.NormalizedMessage{
		ChatID: m.ChannelID, ChatType: chatType, Text: m.Content,
		Attachments: atts, FromUser: m.Author.Username, MessageID: m.ID,
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
	_, err := a.session.ChannelMessageSend(chatID, text)
	return err
}

func (a *Adapter) SendFile(ctx context.Context, chatID, filePath, filename, caption, threadID string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = a.session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: caption,
		Files:   []*discordgo.File{{Name: filename, Reader: f}},
	})
	return err
}

func (a *Adapter) GetChatTitle(ctx context.Context, chatID string) (string, error) {
	ch, err := a.session.Channel(chatID)
	if err != nil {
		return "", err
	}
	if ch.Name != "" {
		return ch.Name, nil
	}
	return chatID, nil
}

func (a *Adapter) DownloadAttachment(ctx context.Context, meta bridge.AttachmentMeta) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.ID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discord: download attachment: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) FormatOutbound(by, to, text string, isSystem bool) string {
	if isSystem {
		return "_[system]_ " + text
	}
	return "**" + strings.ToUpper(by) + "**: " + text
}
