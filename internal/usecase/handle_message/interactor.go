// Package handle_message runs one chat message through moderation and, when
// it is not flagged, through command dispatch.
package handle_message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"berryBot/internal/app/events"
	"berryBot/internal/domain"
	"berryBot/internal/infrastructure/telemetry"
	"berryBot/internal/usecase/commands"
	"berryBot/internal/usecase/moderation"
)

type Interactor struct {
	classifier domain.Classifier
	engine     *moderation.Engine
	executor   domain.PunishmentExecutor
	publisher  domain.EventPublisher
	builtins   commands.Set
	logger     zerolog.Logger
	now        func() time.Time
}

type Config struct {
	Classifier domain.Classifier
	Engine     *moderation.Engine
	Executor   domain.PunishmentExecutor
	// Publisher is optional.
	Publisher domain.EventPublisher
	Logger    zerolog.Logger
}

func NewInteractor(cfg Config) *Interactor {
	engine := cfg.Engine
	if engine == nil {
		engine = moderation.NewEngine(moderation.DefaultPolicy())
	}
	return &Interactor{
		classifier: cfg.Classifier,
		engine:     engine,
		executor:   cfg.Executor,
		publisher:  cfg.Publisher,
		builtins:   commands.Builtins(),
		logger:     cfg.Logger.With().Str("component", "handle_message").Logger(),
		now:        time.Now,
	}
}

// Handle moderates msg and stops there if it is flagged; otherwise it
// resolves a command against the built-ins and customs and sends the
// response through out exactly once. Classifier failures abort the message
// and are returned wrapped in domain.ErrClassifier.
func (uc *Interactor) Handle(ctx context.Context, msg domain.ChatMessage, customs commands.Set, out domain.ChatSender) error {
	ctx, span := telemetry.StartSpan(ctx, "handle_message",
		attribute.String("channel", msg.Channel),
		attribute.String("user", msg.Username),
	)
	defer span.End()

	telemetry.MessagesReceived.WithLabelValues(msg.Channel).Inc()
	uc.publish(events.TopicChatMessage, events.NewChatMessageDTO(msg))

	verdict, err := uc.moderate(ctx, msg)
	if err != nil {
		telemetry.RecordError(span, err)
		uc.publish(events.TopicAppError, events.NewAppErrorDTO("moderation "+msg.Channel, err))
		return err
	}

	if verdict.Flagged {
		span.SetAttributes(
			attribute.String("moderation.category", string(verdict.Category)),
			attribute.String("moderation.punishment", verdict.Punishment.String()),
		)
		telemetry.MessagesFlagged.WithLabelValues(string(verdict.Category), string(verdict.Punishment.Kind)).Inc()

		flagged := domain.FlaggedMessage{
			ID:        uuid.NewString(),
			Verdict:   verdict,
			Channel:   msg.Channel,
			Username:  msg.Username,
			UserID:    msg.UserID,
			Text:      msg.Text,
			DecidedAt: uc.now().UTC(),
		}
		if uc.executor == nil {
			return nil
		}
		if err := uc.executor.Execute(ctx, flagged); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("handle_message: execute punishment: %w", err)
		}
		return nil
	}

	resolved, ok := commands.Resolve(msg, uc.builtins, customs)
	if !ok {
		return nil
	}
	telemetry.CommandsDispatched.WithLabelValues(resolved.Command.Kind.String(), resolved.Command.Name).Inc()
	span.SetAttributes(attribute.String("command", resolved.Command.Name))

	if err := out.Send(ctx, resolved.Response); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("handle_message: send %s response: %w", resolved.Command.Name, err)
	}
	uc.logger.Debug().
		Str("channel", msg.Channel).
		Str("command", resolved.Command.Name).
		Str("user", msg.Username).
		Msg("command answered")
	return nil
}

func (uc *Interactor) moderate(ctx context.Context, msg domain.ChatMessage) (domain.ModerationVerdict, error) {
	if uc.classifier == nil {
		return domain.ModerationVerdict{}, fmt.Errorf("handle_message: %w: no classifier", domain.ErrClassifier)
	}

	start := time.Now()
	scores, err := uc.classifier.Classify(ctx, msg.Text)
	telemetry.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ClassifierErrors.Inc()
		return domain.ModerationVerdict{}, fmt.Errorf("handle_message: classify: %w", asClassifierError(err))
	}
	return uc.engine.Decide(scores), nil
}

func (uc *Interactor) publish(topic string, payload any) {
	if uc.publisher == nil {
		return
	}
	uc.publisher.Publish(topic, payload)
}

func asClassifierError(err error) error {
	if errors.Is(err, domain.ErrClassifier) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrClassifier, err)
}
