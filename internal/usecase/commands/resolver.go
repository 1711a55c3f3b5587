package commands

import (
	"strings"

	"berryBot/internal/domain"
)

// Marker prefixes every command in chat.
const Marker = "!"

type Resolved struct {
	Command  Command
	Response string
}

// Resolve matches the whole message text after the marker, lower-cased,
// against builtins first and then customs. Anything else resolves to nothing
// and must not be answered.
func Resolve(msg domain.ChatMessage, builtins, customs Set) (Resolved, bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, Marker) {
		return Resolved{}, false
	}

	key := strings.ToLower(strings.TrimPrefix(text, Marker))
	if key == "" {
		return Resolved{}, false
	}

	cmd, ok := builtins.Lookup(key)
	if !ok {
		cmd, ok = customs.Lookup(key)
	}
	if !ok {
		return Resolved{}, false
	}

	response := strings.TrimSpace(cmd.Respond(msg))
	if response == "" {
		return Resolved{}, false
	}
	return Resolved{Command: cmd, Response: response}, true
}
