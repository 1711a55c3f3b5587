package domain

import (
	"context"
	"time"
)

// CustomCommand is a per-channel trigger/response pair managed by the
// streamer. Response may reference {user} and {channel}.
type CustomCommand struct {
	Channel   string
	Name      string
	Response  string
	Aliases   []string
	UpdatedAt time.Time
}

type CustomCommandRepository interface {
	UpsertCustomCommand(ctx context.Context, cmd *CustomCommand) error
	GetCustomCommand(ctx context.Context, channel, name string) (*CustomCommand, error)
	ListCustomCommands(ctx context.Context, channel string) ([]*CustomCommand, error)
	DeleteCustomCommand(ctx context.Context, channel, name string) error
}

// CustomCommandSource returns the current custom commands of a channel. It is
// invoked once when a channel bot starts.
type CustomCommandSource interface {
	LoadCustomCommands(ctx context.Context, channel string) ([]CustomCommand, error)
}

// CustomCommandSourceFunc adapts a plain function to CustomCommandSource.
type CustomCommandSourceFunc func(ctx context.Context, channel string) ([]CustomCommand, error)

func (f CustomCommandSourceFunc) LoadCustomCommands(ctx context.Context, channel string) ([]CustomCommand, error) {
	return f(ctx, channel)
}
