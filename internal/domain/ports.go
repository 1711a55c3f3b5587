package domain

import "context"

// ChatSender writes a chat line to the channel it is bound to.
type ChatSender interface {
	Send(ctx context.Context, text string) error
}

// OutgoingMessagePort routes a chat line to a channel by name.
type OutgoingMessagePort interface {
	SendMessage(ctx context.Context, channel, text string) error
}

// Classifier scores text against every moderation category.
type Classifier interface {
	Classify(ctx context.Context, text string) (CategoryScores, error)
}

// PunishmentExecutor receives flagged messages. Carrying out the punishment
// on the platform is its business.
type PunishmentExecutor interface {
	Execute(ctx context.Context, msg FlaggedMessage) error
}

// ModerationLogRepository persists moderation decisions for auditing.
type ModerationLogRepository interface {
	SaveFlaggedMessage(ctx context.Context, msg FlaggedMessage) error
	ListFlaggedMessages(ctx context.Context, channel string, limit int) ([]FlaggedMessage, error)
}

// EventPublisher fans events out to in-process subscribers.
type EventPublisher interface {
	Publish(topic string, payload any)
}
