package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"berryBot/internal/domain"
)

const (
	CommandSourceBuiltin = "builtin"
	CommandSourceCustom  = "custom"
)

type CommandDTO struct {
	Name        string   `json:"name"`
	Response    string   `json:"response"`
	Aliases     []string `json:"aliases"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	Source      string   `json:"source"`
	Editable    bool     `json:"editable"`
	Description string   `json:"description,omitempty"`
	Usage       string   `json:"usage,omitempty"`
}

type CommandMutationDTO struct {
	Name     string    `json:"name"`
	Response *string   `json:"response,omitempty"`
	Aliases  *[]string `json:"aliases,omitempty"`
}

// Service is the listing/editing facade used by the admin API and the CLI.
type Service struct {
	manager *CustomCommandManager
}

func NewService(manager *CustomCommandManager) *Service {
	return &Service{manager: manager}
}

// List returns the built-ins followed by the channel's custom commands.
func (s *Service) List(ctx context.Context, channel string) ([]CommandDTO, error) {
	out := builtinCommandDTOs()
	if s == nil || s.manager == nil {
		return out, nil
	}
	customCommands, err := s.manager.List(ctx, channel)
	if err != nil {
		return nil, err
	}
	for _, cmd := range customCommands {
		out = append(out, commandDTOFromDomain(cmd))
	}
	return out, nil
}

func (s *Service) Upsert(ctx context.Context, channel string, input CommandMutationDTO) (CommandDTO, error) {
	if s == nil || s.manager == nil {
		return CommandDTO{}, fmt.Errorf("commands service unavailable")
	}
	result, _, err := s.manager.Upsert(ctx, convertMutationToInput(channel, input))
	if err != nil {
		return CommandDTO{}, err
	}
	return commandDTOFromDomain(result), nil
}

func (s *Service) Delete(ctx context.Context, channel, name string) (bool, error) {
	if s == nil || s.manager == nil {
		return false, fmt.Errorf("commands service unavailable")
	}
	return s.manager.Delete(ctx, channel, name)
}

func commandDTOFromDomain(cmd *domain.CustomCommand) CommandDTO {
	if cmd == nil {
		return CommandDTO{}
	}
	updated := ""
	if !cmd.UpdatedAt.IsZero() {
		updated = cmd.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return CommandDTO{
		Name:      cmd.Name,
		Response:  cmd.Response,
		Aliases:   append([]string{}, cmd.Aliases...),
		UpdatedAt: updated,
		Source:    CommandSourceCustom,
		Editable:  true,
		Usage:     Marker + cmd.Name,
	}
}

func builtinCommandDTOs() []CommandDTO {
	catalog := BuiltinCommandCatalog()
	out := make([]CommandDTO, 0, len(catalog))
	for _, item := range catalog {
		out = append(out, CommandDTO{
			Name:        item.Name,
			Response:    item.Response,
			Aliases:     []string{},
			Source:      CommandSourceBuiltin,
			Editable:    false,
			Description: item.Description,
			Usage:       item.Usage,
		})
	}
	return out
}

func convertMutationToInput(channel string, payload CommandMutationDTO) UpdateCustomCommandInput {
	input := UpdateCustomCommandInput{
		Channel: channel,
		Name:    payload.Name,
	}
	if payload.Response != nil {
		trimmed := strings.TrimSpace(*payload.Response)
		input.Response = &trimmed
	}
	if payload.Aliases != nil {
		input.HasAliases = true
		input.Aliases = append([]string(nil), *payload.Aliases...)
	}
	return input
}
