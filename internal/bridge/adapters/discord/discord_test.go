package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestFormatOutboundSystemVsChat(t *testing.T) {
	a := New("token")
	if got := a.FormatOutbound("peer-a", "", "hello", true); got != "_[system]_ hello" {
		t.Fatalf("unexpected system formatting: %q", got)
	}
	if got := a.FormatOutbound("peer-a", "", "hello", false); got != "**PEER-A**: hello" {
		t.Fatalf("unexpected chat formatting: %q", got)
	}
}

func TestMessageCreateIgnoresSelfAndEmpty(t *testing.T) {
	a := New("token")
	a.botID = "bot-1"

	a.messageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "bot-1"}, Content: "hi",
	}})
	a.messageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "user-1"}, Content: "",
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msgs, err := a.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages to be queued, got %+v", msgs)
	}
}

func TestMessageCreateQueuesNormalizedMessage(t *testing.T) {
	a := New("token")
	a.botID = "bot-1"

	a.messageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{ID: "user-1", Username: "alice"}, Content: "hello",
		ChannelID: "chan-1", ID: "msg-1",
	}})

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
	if got.ChatID != "chan-1" || got.Text != "hello" || got.FromUser != "alice" || got.MessageID != "msg-1" {
		t.Fatalf("unexpected normalized message: %+v", got)
	}
}
