package events

import (
	"time"

	"berryBot/internal/domain"
)

// ChatMessageDTO is the chat:message payload sent to dashboard clients.
type ChatMessageDTO struct {
	Channel   string `json:"channel"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessageDTO(msg domain.ChatMessage) ChatMessageDTO {
	return ChatMessageDTO{
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

type VerdictDTO struct {
	ID              string  `json:"id"`
	Channel         string  `json:"channel"`
	UserID          string  `json:"user_id"`
	Username        string  `json:"username"`
	Text            string  `json:"text"`
	Category        string  `json:"category"`
	Score           float64 `json:"score"`
	Punishment      string  `json:"punishment"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	DecidedAt       string  `json:"decided_at"`
}

func NewVerdictDTO(msg domain.FlaggedMessage) VerdictDTO {
	return VerdictDTO{
		ID:              msg.ID,
		Channel:         msg.Channel,
		UserID:          msg.UserID,
		Username:        msg.Username,
		Text:            msg.Text,
		Category:        string(msg.Verdict.Category),
		Score:           msg.Verdict.Score,
		Punishment:      string(msg.Verdict.Punishment.Kind),
		DurationSeconds: int(msg.Verdict.Punishment.Duration.Seconds()),
		DecidedAt:       msg.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
}

const (
	BotStateRunning = "running"
	BotStateStopped = "stopped"
	BotStateFailed  = "failed"
)

type BotStatusDTO struct {
	Channel   string `json:"channel"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func NewBotStatusDTO(channel, state string, err error) BotStatusDTO {
	payload := BotStatusDTO{
		Channel:   channel,
		State:     state,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err != nil {
		payload.Error = err.Error()
	}
	return payload
}

// AppErrorDTO is the app:error payload for failures no request is waiting on.
type AppErrorDTO struct {
	Source    string `json:"source"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func NewAppErrorDTO(source string, err error) AppErrorDTO {
	payload := AppErrorDTO{
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err != nil {
		payload.Message = err.Error()
	}
	return payload
}
