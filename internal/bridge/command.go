package bridge

import (
	"strings"
)

// Command is a parsed inbound command: the leading `/word`, its argument
// text, and any `@actor_id`/`@all`/`@foreman`/`@peers` mentions pulled out
// of the text as the recipient list.
type Command struct {
	Name string
	Args string
	To   []string
}

var commandNames = map[string]bool{
	"subscribe": true, "unsubscribe": true, "verbose": true, "status": true,
	"context": true, "pause": true, "resume": true, "launch": true,
	"quit": true, "help": true, "send": true,
}

var commandAliases = map[string]string{
	"sub": "subscribe", "unsub": "unsubscribe", "v": "verbose",
	"stat": "status", "ctx": "context", "s": "send",
}

// ParseCommand parses raw inbound text into a Command, or returns ok=false
// if it isn't a recognized "/command" message (plain chatter).
func ParseCommand(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	fields := strings.SplitN(trimmed, " ", 2)
	token := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Strip a "@BotName" suffix platforms append to slash commands in
	// group chats (e.g. "/status@cccc_bot").
	if i := strings.IndexByte(token, '@'); i >= 0 {
		token = token[:i]
	}
	if alias, ok := commandAliases[token]; ok {
		token = alias
	}
	if !commandNames[token] {
		return Command{}, false
	}
	args := ""
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return Command{Name: token, Args: args, To: ParseMentions(args)}, true
}

// ParseMentions extracts @actor_id / @all / @foreman / @peers tokens from
// text as a recipient list, preserving first-seen order and de-duping. The
// role tokens keep their "@" (the form the daemon's targeting rule
// matches); actor ids are returned without it.
func ParseMentions(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, word := range strings.Fields(text) {
		if !strings.HasPrefix(word, "@") {
			continue
		}
		name := strings.TrimRight(word, ".,!?:;")
		if name != "@all" && name != "@foreman" && name != "@peers" {
			name = strings.TrimPrefix(name, "@")
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// IsRouted reports whether a non-private-chat message was addressed to the
// bot: it either starts with "/send" or carries a recognized command.
func IsRouted(text string, alreadyRouted bool) bool {
	if alreadyRouted {
		return true
	}
	_, ok := ParseCommand(text)
	return ok
}
