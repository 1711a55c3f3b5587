package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"berryBot/internal/domain"
)

var (
	ErrInvalidName   = errors.New("invalid command name")
	ErrEmptyResponse = errors.New("command response is required")
	ErrReservedName  = errors.New("name is reserved by a built-in command")
	ErrNameInUse     = errors.New("name or alias already in use")
)

// CustomCommandManager validates and stores per-channel custom commands. It
// is also the bot's CustomCommandSource.
type CustomCommandManager struct {
	repo       domain.CustomCommandRepository
	isReserved func(string) bool
	now        func() time.Time
}

type UpdateCustomCommandInput struct {
	Channel    string
	Name       string
	Response   *string
	Aliases    []string
	HasAliases bool
}

func NewCustomCommandManager(repo domain.CustomCommandRepository) *CustomCommandManager {
	return &CustomCommandManager{
		repo:       repo,
		isReserved: IsReserved,
		now:        time.Now,
	}
}

func (m *CustomCommandManager) LoadCustomCommands(ctx context.Context, channel string) ([]domain.CustomCommand, error) {
	list, err := m.List(ctx, channel)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CustomCommand, 0, len(list))
	for _, cmd := range list {
		out = append(out, *cmd)
	}
	return out, nil
}

func (m *CustomCommandManager) List(ctx context.Context, channel string) ([]*domain.CustomCommand, error) {
	channel = domain.NormalizeChannel(channel)
	if channel == "" {
		return nil, fmt.Errorf("custom manager: empty channel")
	}
	list, err := m.repo.ListCustomCommands(ctx, channel)
	if err != nil {
		return nil, fmt.Errorf("custom manager: list: %w", err)
	}

	out := make([]*domain.CustomCommand, 0, len(list))
	for _, cmd := range list {
		if cmd == nil || normalizeCommandName(cmd.Name) == "" {
			continue
		}
		out = append(out, cloneCommand(cmd))
	}
	slices.SortFunc(out, func(a, b *domain.CustomCommand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Upsert creates or updates a custom command. The bool reports creation.
func (m *CustomCommandManager) Upsert(ctx context.Context, input UpdateCustomCommandInput) (*domain.CustomCommand, bool, error) {
	channel := domain.NormalizeChannel(input.Channel)
	if channel == "" {
		return nil, false, fmt.Errorf("custom manager: empty channel")
	}
	name := normalizeCommandName(input.Name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, false, fmt.Errorf("custom manager: %w: %q", ErrInvalidName, input.Name)
	}

	existing, err := m.repo.GetCustomCommand(ctx, channel, name)
	if err != nil {
		return nil, false, fmt.Errorf("custom manager: get: %w", err)
	}
	created := existing == nil
	if created {
		existing = &domain.CustomCommand{Channel: channel, Name: name}
	}

	if input.Response != nil {
		existing.Response = strings.TrimSpace(*input.Response)
	}
	if existing.Response == "" {
		return nil, false, fmt.Errorf("custom manager: %w", ErrEmptyResponse)
	}

	proposedAliases := existing.Aliases
	if input.HasAliases {
		proposedAliases = normalizeAliasList(input.Aliases)
	}
	if err := m.ensureNoConflicts(ctx, channel, name, created, proposedAliases, input.HasAliases); err != nil {
		return nil, false, err
	}
	existing.Aliases = proposedAliases
	existing.UpdatedAt = m.now().UTC()

	if err := m.repo.UpsertCustomCommand(ctx, existing); err != nil {
		return nil, false, fmt.Errorf("custom manager: upsert: %w", err)
	}
	return cloneCommand(existing), created, nil
}

// Delete removes a custom command. The bool reports whether it existed.
func (m *CustomCommandManager) Delete(ctx context.Context, channel, name string) (bool, error) {
	channel = domain.NormalizeChannel(channel)
	key := normalizeCommandName(name)
	if channel == "" || key == "" {
		return false, fmt.Errorf("custom manager: %w: %q", ErrInvalidName, name)
	}

	existing, err := m.repo.GetCustomCommand(ctx, channel, key)
	if err != nil {
		return false, fmt.Errorf("custom manager: get: %w", err)
	}
	if existing == nil {
		return false, nil
	}
	if err := m.repo.DeleteCustomCommand(ctx, channel, key); err != nil {
		return false, fmt.Errorf("custom manager: delete: %w", err)
	}
	return true, nil
}

func (m *CustomCommandManager) ensureNoConflicts(ctx context.Context, channel, name string, created bool, aliases []string, hasAliases bool) error {
	if created && m.isReserved != nil && m.isReserved(name) {
		return fmt.Errorf("custom manager: %w: %q", ErrReservedName, name)
	}
	if hasAliases && m.isReserved != nil {
		for _, alias := range aliases {
			if m.isReserved(alias) {
				return fmt.Errorf("custom manager: %w: alias %q", ErrReservedName, alias)
			}
		}
	}
	if !created && !hasAliases {
		return nil
	}

	others, err := m.repo.ListCustomCommands(ctx, channel)
	if err != nil {
		return fmt.Errorf("custom manager: list: %w", err)
	}
	for _, cmd := range others {
		other := normalizeCommandName(cmd.Name)
		if other == name {
			continue
		}
		otherAliases := normalizeAliasList(cmd.Aliases)
		if created && slices.Contains(otherAliases, name) {
			return fmt.Errorf("custom manager: %w: %q", ErrNameInUse, name)
		}
		if !hasAliases {
			continue
		}
		for _, alias := range aliases {
			if alias == name {
				continue
			}
			if alias == other || slices.Contains(otherAliases, alias) {
				return fmt.Errorf("custom manager: %w: alias %q", ErrNameInUse, alias)
			}
		}
	}
	return nil
}

func normalizeAliasList(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		key := normalizeCommandName(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func cloneCommand(cmd *domain.CustomCommand) *domain.CustomCommand {
	if cmd == nil {
		return nil
	}
	copyCmd := *cmd
	if cmd.Aliases != nil {
		copyCmd.Aliases = append([]string(nil), cmd.Aliases...)
	}
	return &copyCmd
}
