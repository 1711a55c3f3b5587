package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berryBot/internal/domain"
)

func chat(text string) domain.ChatMessage {
	return domain.ChatMessage{Channel: "foo", Username: "Alice", UserID: "7", Text: text}
}

func TestResolveBuiltins(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "ping", text: "!ping", want: "Pong!", ok: true},
		{name: "test", text: "!test", want: "Hello from BerryBot!", ok: true},
		{name: "upper case", text: "!PING", want: "Pong!", ok: true},
		{name: "surrounding spaces", text: "  !ping ", want: "Pong!", ok: true},
		{name: "no marker", text: "ping"},
		{name: "marker only", text: "!"},
		{name: "longer word", text: "!pingpong"},
		{name: "with arguments", text: "!ping now"},
		{name: "unknown", text: "!nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(chat(tt.text), Builtins(), Set{})
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Response)
		})
	}
}

func TestResolvePrefersBuiltins(t *testing.T) {
	customs := CustomSet([]domain.CustomCommand{
		{Channel: "foo", Name: "ping", Response: "custom pong"},
	})

	got, ok := Resolve(chat("!ping"), Builtins(), customs)
	require.True(t, ok)
	assert.Equal(t, KindBuiltin, got.Command.Kind)
	assert.Equal(t, "Pong!", got.Response)
}

func TestResolveCustomCommand(t *testing.T) {
	customs := CustomSet([]domain.CustomCommand{
		{Channel: "foo", Name: "Discord", Response: "{user}, join {channel} on discord", Aliases: []string{"!dc", " DC ", ""}},
		{Channel: "foo", Name: "empty", Response: "   "},
	})
	assert.Equal(t, 2, customs.Len())

	got, ok := Resolve(chat("!discord"), Builtins(), customs)
	require.True(t, ok)
	assert.Equal(t, KindCustom, got.Command.Kind)
	assert.Equal(t, "Alice, join foo on discord", got.Response)

	got, ok = Resolve(chat("!DC"), Builtins(), customs)
	require.True(t, ok)
	assert.Equal(t, "discord", got.Command.Name)

	_, ok = Resolve(chat("!empty"), Builtins(), customs)
	assert.False(t, ok)
}

func TestResolveIgnoresOtherChannelsCommands(t *testing.T) {
	_, ok := Resolve(chat("!discord"), Builtins(), Set{})
	assert.False(t, ok)
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("!Ping"))
	assert.True(t, IsReserved("test"))
	assert.False(t, IsReserved("discord"))
}

func TestNewSetKeepsFirstTrigger(t *testing.T) {
	s := NewSet(
		Command{Kind: KindCustom, Name: "a", Trigger: "x", Response: "first"},
		Command{Kind: KindCustom, Name: "b", Trigger: "!X", Response: "second"},
		Command{Kind: KindCustom, Name: "c", Trigger: "  "},
	)
	require.Equal(t, 1, s.Len())
	cmd, ok := s.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, "first", cmd.Response)
}
