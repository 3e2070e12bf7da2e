package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/cccckit/cccc/internal/model"
)

// Config wires one Bridge instance to a single (group, platform) pair, per
// spec.md §4.5's one-process-per-group-per-platform model.
type Config struct {
	GroupID    string
	LedgerPath string
	StateDir   string // per-group state dir; holds cursor/subscribers/blobs/lock
	SocketPath string
	RatePerSec float64
	DedupTTL   time.Duration // 0 disables dedup (Slack/Discord rely on SDK semantics)
}

// Bridge runs one adapter's inbound/outbound loops against one group.
type Bridge struct {
	cfg    Config
	adp    Adapter
	daemon *DaemonClient
	subs   *SubscriberStore
	tailer *Tailer
	limit  *RateLimiter
	dedup  *DedupMap
	log    logr.Logger
	lock   *fileLockHandle
}

// New constructs a Bridge, loading/creating its state files under
// cfg.StateDir. It does not acquire the singleton lock or start polling;
// call Run for that.
func New(cfg Config, adp Adapter, log logr.Logger) (*Bridge, error) {
	subs, err := LoadSubscriberStore(cfg.StateDir + "/im_subscribers.json")
	if err != nil {
		return nil, fmt.Errorf("bridge: load subscribers: %w", err)
	}
	tailer, err := NewTailer(cfg.LedgerPath, cfg.StateDir+"/im_bridge_cursor.json")
	if err != nil {
		return nil, fmt.Errorf("bridge: load cursor: %w", err)
	}
	var dedup *DedupMap
	if cfg.DedupTTL > 0 {
		dedup = NewDedupMap(cfg.DedupTTL)
	}
	return &Bridge{
		cfg: cfg, adp: adp, daemon: NewDaemonClient(cfg.SocketPath),
		subs: subs, tailer: tailer, limit: NewRateLimiter(cfg.RatePerSec),
		dedup: dedup, log: log.WithName("bridge." + adp.Name()),
	}, nil
}

// Run acquires the singleton lock, connects the adapter, and blocks running
// the inbound and outbound loops until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	lock, err := acquireBridgeLock(b.cfg.StateDir + "/im_bridge.lock")
	if err != nil {
		return fmt.Errorf("bridge: another bridge process holds the lock for this group: %w", err)
	}
	b.lock = lock
	defer b.lock.release()

	if err := b.adp.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: connect: %w", err)
	}
	defer b.adp.Disconnect()

	errCh := make(chan error, 2)
	go func() { errCh <- b.runOutbound(ctx) }()
	go func() { errCh <- b.runInbound(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (b *Bridge) runOutbound(ctx context.Context) error {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			events, err := b.tailer.Poll()
			if err != nil {
				b.log.Error(err, "ledger tail failed")
				continue
			}
			for _, ev := range events {
				b.dispatchOutbound(ctx, ev)
			}
		}
	}
}

func (b *Bridge) dispatchOutbound(ctx context.Context, ev model.Event) {
	if ev.By == "user" {
		return
	}
	var text string
	switch ev.Kind {
	case model.KindSystemNotify:
		var d model.SystemNotifyData
		if err := unmarshalData(ev.Data, &d); err != nil {
			return
		}
		text = d.Text
	case model.KindChatMessage:
		var d model.ChatMessageData
		if err := unmarshalData(ev.Data, &d); err != nil {
			return
		}
		text = d.Text
	default:
		return
	}

	isSystem := ev.Kind == model.KindSystemNotify
	for _, sub := range b.subs.List() {
		if ev.Kind == model.KindChatMessage && !isSystem && !sub.Verbose && !targetsUser(ev) {
			continue
		}
		out := b.adp.FormatOutbound(ev.By, sub.ChatID, text, isSystem)
		b.limit.WaitAndAcquire(sub.ChatID)
		if err := b.adp.SendMessage(ctx, sub.ChatID, out, sub.ThreadID); err != nil {
			b.log.Error(err, "send failed", "chat_id", sub.ChatID)
		}
	}
}

func targetsUser(ev model.Event) bool {
	var d model.ChatMessageData
	if err := unmarshalData(ev.Data, &d); err != nil {
		return false
	}
	if len(d.To) == 0 {
		return true
	}
	for _, to := range d.To {
		if to == "user" {
			return true
		}
	}
	return false
}

func (b *Bridge) runInbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msgs, err := b.adp.Poll(ctx)
		if err != nil {
			b.log.Error(err, "poll failed")
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			b.handleInbound(ctx, msg)
		}
	}
}

func (b *Bridge) handleInbound(ctx context.Context, msg NormalizedMessage) {
	if b.dedup != nil && msg.MessageID != "" {
		key := msg.ChatID + ":" + msg.MessageID
		if b.dedup.Seen(key) {
			return
		}
	}

	routed := IsRouted(msg.Text, msg.Routed)
	if msg.ChatType != ChatPrivate && !routed {
		return
	}

	attachments, err := b.downloadAttachments(ctx, msg.Attachments)
	if err != nil {
		b.log.Error(err, "attachment download failed", "chat_id", msg.ChatID)
	}

	cmd, isCmd := ParseCommand(msg.Text)
	if !isCmd {
		b.relayMessage(msg.Text, nil, attachments)
		return
	}
	b.dispatchCommand(ctx, msg, cmd, attachments)
}

func (b *Bridge) downloadAttachments(ctx context.Context, metas []AttachmentMeta) ([]model.Attachment, error) {
	if len(metas) == 0 {
		return nil, nil
	}
	blobDir := b.cfg.StateDir + "/blobs"
	out := make([]model.Attachment, 0, len(metas))
	var firstErr error
	for _, meta := range metas {
		data, err := b.adp.DownloadAttachment(ctx, meta)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		att, err := StoreBlob(blobDir, meta.Filename, meta.MIMEType, data)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, att)
	}
	return out, firstErr
}

// relayMessage forwards free-form chat text (content messages, not
// "/"-commands) into the group as a chat.message event authored by "user".
func (b *Bridge) relayMessage(text string, to []string, attachments []model.Attachment) {
	if to == nil {
		to = ParseMentions(text)
	}
	args := map[string]any{"group_id": b.cfg.GroupID, "text": text, "to": toAny(to)}
	if len(attachments) > 0 {
		args["attachments"] = attachmentsToAny(attachments)
	}
	if _, err := b.daemon.Call("send", "user", args); err != nil {
		b.log.Error(err, "send failed")
	}
}

// dispatchCommand maps one parsed Command onto a daemon op or local
// subscriber-state mutation, replying to the originating chat.
func (b *Bridge) dispatchCommand(ctx context.Context, msg NormalizedMessage, cmd Command, attachments []model.Attachment) {
	switch cmd.Name {
	case "subscribe":
		if err := b.subs.Subscribe(msg.ChatID, msg.ThreadID); err != nil {
			b.reply(ctx, msg, "subscribe failed: "+err.Error())
			return
		}
		b.reply(ctx, msg, "subscribed")
	case "unsubscribe":
		if err := b.subs.Unsubscribe(msg.ChatID); err != nil {
			b.reply(ctx, msg, "unsubscribe failed: "+err.Error())
			return
		}
		b.reply(ctx, msg, "unsubscribed")
	case "verbose":
		verbose := cmd.Args != "off" && cmd.Args != "false"
		if err := b.subs.SetVerbose(msg.ChatID, verbose); err != nil {
			b.reply(ctx, msg, "verbose toggle failed: "+err.Error())
			return
		}
		b.reply(ctx, msg, fmt.Sprintf("verbose=%v", verbose))
	case "status", "context":
		resp, err := b.daemon.Call("group_show", "user", map[string]any{"group_id": b.cfg.GroupID})
		if err != nil {
			b.reply(ctx, msg, "error: "+err.Error())
			return
		}
		b.reply(ctx, msg, DefaultSummarize(fmt.Sprintf("%v", resp.Result), 1500, 40))
	case "pause":
		b.callAndReply(ctx, msg, "group_set_state", map[string]any{"group_id": b.cfg.GroupID, "paused": true})
	case "resume":
		b.callAndReply(ctx, msg, "group_set_state", map[string]any{"group_id": b.cfg.GroupID, "paused": false})
	case "launch":
		b.callAndReply(ctx, msg, "group_start", map[string]any{"group_id": b.cfg.GroupID})
	case "quit":
		b.callAndReply(ctx, msg, "group_stop", map[string]any{"group_id": b.cfg.GroupID})
	case "help":
		b.reply(ctx, msg, "commands: /subscribe /unsubscribe /verbose /status /context /pause /resume /launch /quit /send <text>")
	case "send":
		b.relayMessage(cmd.Args, cmd.To, attachments)
		b.reply(ctx, msg, "sent")
	}
}

func (b *Bridge) callAndReply(ctx context.Context, msg NormalizedMessage, op string, args map[string]any) {
	_, err := b.daemon.Call(op, "user", args)
	if err != nil {
		b.reply(ctx, msg, "error: "+err.Error())
		return
	}
	b.reply(ctx, msg, "ok")
}

func (b *Bridge) reply(ctx context.Context, msg NormalizedMessage, text string) {
	b.limit.WaitAndAcquire(msg.ChatID)
	if err := b.adp.SendMessage(ctx, msg.ChatID, text, msg.ThreadID); err != nil {
		b.log.Error(err, "reply failed", "chat_id", msg.ChatID)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func attachmentsToAny(atts []model.Attachment) []any {
	out := make([]any, len(atts))
	for i, a := range atts {
		out[i] = map[string]any{
			"sha256": a.SHA256, "filename": a.Filename, "mime_type": a.MIMEType, "size": a.Size,
		}
	}
	return out
}

func unmarshalData(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
