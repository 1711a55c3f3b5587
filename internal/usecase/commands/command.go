package commands

import (
	"strings"

	"berryBot/internal/domain"
)

// Kind tags the two command variants.
type Kind int

const (
	KindBuiltin Kind = iota + 1
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Command is either a built-in with a fixed response or a channel's custom
// command whose response is a template.
type Command struct {
	Kind     Kind
	Name     string
	Trigger  string
	Response string
}

// Respond renders the response for msg.
func (c Command) Respond(msg domain.ChatMessage) string {
	switch c.Kind {
	case KindBuiltin:
		return c.Response
	case KindCustom:
		return strings.NewReplacer(
			"{user}", msg.Username,
			"{channel}", msg.Channel,
		).Replace(c.Response)
	default:
		return ""
	}
}

// Set indexes commands by trigger. A Set is never mutated after NewSet.
type Set struct {
	byTrigger map[string]Command
}

// NewSet indexes cmds by their normalized trigger. Earlier entries win.
func NewSet(cmds ...Command) Set {
	s := Set{byTrigger: make(map[string]Command, len(cmds))}
	for _, cmd := range cmds {
		key := normalizeCommandName(cmd.Trigger)
		if key == "" {
			continue
		}
		if _, ok := s.byTrigger[key]; ok {
			continue
		}
		s.byTrigger[key] = cmd
	}
	return s
}

func (s Set) Lookup(trigger string) (Command, bool) {
	cmd, ok := s.byTrigger[trigger]
	return cmd, ok
}

func (s Set) Len() int {
	return len(s.byTrigger)
}

// CustomSet builds the lookup set of a channel's custom commands; aliases
// become extra triggers.
func CustomSet(list []domain.CustomCommand) Set {
	var cmds []Command
	for _, c := range list {
		name := normalizeCommandName(c.Name)
		if name == "" || strings.TrimSpace(c.Response) == "" {
			continue
		}
		cmds = append(cmds, Command{Kind: KindCustom, Name: name, Trigger: name, Response: c.Response})
		for _, alias := range normalizeAliasList(c.Aliases) {
			cmds = append(cmds, Command{Kind: KindCustom, Name: name, Trigger: alias, Response: c.Response})
		}
	}
	return NewSet(cmds...)
}

func normalizeCommandName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, Marker)
	return strings.ToLower(strings.TrimSpace(name))
}
