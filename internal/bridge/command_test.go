package bridge

import "testing"

func TestParseCommandRecognizesAliasesAndMentionSuffix(t *testing.T) {
	cmd, ok := ParseCommand("/sub@cccc_bot")
	if !ok {
		t.Fatalf("expected /sub@cccc_bot to parse")
	}
	if cmd.Name != "subscribe" {
		t.Fatalf("expected alias to resolve to subscribe, got %q", cmd.Name)
	}
}

func TestParseCommandRejectsPlainChatter(t *testing.T) {
	if _, ok := ParseCommand("hey everyone"); ok {
		t.Fatalf("plain chatter should not parse as a command")
	}
	if _, ok := ParseCommand("/notarealcommand arg"); ok {
		t.Fatalf("unrecognized token should not parse as a command")
	}
}

func TestParseCommandSplitsArgsAndMentions(t *testing.T) {
	cmd, ok := ParseCommand("/send @peer-a @foreman please review")
	if !ok {
		t.Fatalf("expected /send to parse")
	}
	if cmd.Args != "@peer-a @foreman please review" {
		t.Fatalf("unexpected args: %q", cmd.Args)
	}
	if len(cmd.To) != 2 || cmd.To[0] != "peer-a" || cmd.To[1] != "@foreman" {
		t.Fatalf("unexpected recipients: %+v", cmd.To)
	}
}

func TestParseMentionsDedupesAndStripsPunctuation(t *testing.T) {
	got := ParseMentions("ping @peer-a, @peer-a @all.")
	if len(got) != 2 || got[0] != "peer-a" || got[1] != "@all" {
		t.Fatalf("unexpected mentions: %+v", got)
	}
}

func TestIsRouted(t *testing.T) {
	if !IsRouted("anything", true) {
		t.Fatalf("already-routed message should stay routed")
	}
	if !IsRouted("/status", false) {
		t.Fatalf("a recognized command should be routed")
	}
	if IsRouted("just chatting", false) {
		t.Fatalf("plain chatter should not be routed")
	}
}
