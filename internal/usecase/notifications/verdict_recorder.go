// Package notifications records moderation verdicts. It is the bot's
// punishment executor: it logs, audits and publishes each flagged message
// and leaves the platform action to whoever consumes the events.
package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"berryBot/internal/app/events"
	"berryBot/internal/domain"
)

type VerdictRecorder struct {
	repo      domain.ModerationLogRepository
	publisher domain.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewVerdictRecorder builds a recorder. repo and publisher are optional.
func NewVerdictRecorder(repo domain.ModerationLogRepository, publisher domain.EventPublisher, logger zerolog.Logger) *VerdictRecorder {
	return &VerdictRecorder{
		repo:      repo,
		publisher: publisher,
		logger:    logger.With().Str("component", "moderation").Logger(),
		now:       time.Now,
	}
}

func (r *VerdictRecorder) Execute(ctx context.Context, msg domain.FlaggedMessage) error {
	if msg.DecidedAt.IsZero() {
		msg.DecidedAt = r.now().UTC()
	}

	r.logger.Warn().
		Str("id", msg.ID).
		Str("channel", msg.Channel).
		Str("user", msg.Username).
		Str("user_id", msg.UserID).
		Str("category", string(msg.Verdict.Category)).
		Float64("score", msg.Verdict.Score).
		Str("punishment", msg.Verdict.Punishment.String()).
		Msg("message flagged")

	if r.publisher != nil {
		r.publisher.Publish(events.TopicModerationVerdict, events.NewVerdictDTO(msg))
	}

	if r.repo == nil {
		return nil
	}
	if err := r.repo.SaveFlaggedMessage(ctx, msg); err != nil {
		return fmt.Errorf("notifications: audit verdict %s: %w", msg.ID, err)
	}
	return nil
}

// Recent lists the newest audited verdicts for channel, or for every channel
// when channel is empty.
func (r *VerdictRecorder) Recent(ctx context.Context, channel string, limit int) ([]events.VerdictDTO, error) {
	if r.repo == nil {
		return []events.VerdictDTO{}, nil
	}
	list, err := r.repo.ListFlaggedMessages(ctx, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list verdicts: %w", err)
	}
	out := make([]events.VerdictDTO, 0, len(list))
	for _, msg := range list {
		out = append(out, events.NewVerdictDTO(msg))
	}
	return out, nil
}

var _ domain.PunishmentExecutor = (*VerdictRecorder)(nil)
