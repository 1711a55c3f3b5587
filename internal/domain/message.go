package domain

import "strings"

// ChatMessage is one chat line received on a channel.
type ChatMessage struct {
	Channel  string
	Username string
	UserID   string
	Text     string
}

// NormalizeChannel returns the registry key for a channel name: no leading
// '#', no surrounding spaces, lower-case.
func NormalizeChannel(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "#")
	return strings.ToLower(strings.TrimSpace(name))
}
