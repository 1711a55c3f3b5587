package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"berryBot/internal/app/events"
	"berryBot/internal/domain"
	"berryBot/internal/infrastructure/telemetry"
	twitchadapter "berryBot/internal/interface/adapters/twitch"
	"berryBot/internal/usecase/commands"
)

// MessagePipeline processes one chat message of a bot's channel. It is called
// from the bot's read loop, one message at a time.
type MessagePipeline interface {
	Handle(ctx context.Context, msg domain.ChatMessage, customs commands.Set, out domain.ChatSender) error
}

type ManagerConfig struct {
	// Context bounds every bot's lifetime. Defaults to context.Background.
	Context  context.Context
	Registry *Registry
	Pipeline MessagePipeline
	Customs  domain.CustomCommandSource
	// Publisher is optional.
	Publisher domain.EventPublisher

	Nickname     string
	Addr         string
	ReadBackoff  time.Duration
	WriteTimeout time.Duration
	Dialer       twitchadapter.Dialer

	// ReconnectMax is how many reconnects are tried after a connection
	// error before the bot gives up; the delay doubles from ReconnectDelay.
	ReconnectMax   int
	ReconnectDelay time.Duration

	Logger zerolog.Logger
}

// BotManager starts and stops channel bots.
type BotManager struct {
	ctx    context.Context
	cfg    ManagerConfig
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var ErrManagerClosed = errors.New("bot manager is shut down")

func NewBotManager(cfg ManagerConfig) *BotManager {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.ReconnectMax < 0 {
		cfg.ReconnectMax = 0
	}
	return &BotManager{
		ctx:    ctx,
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "bot_manager").Logger(),
	}
}

func (m *BotManager) Registry() *Registry {
	return m.cfg.Registry
}

// Start loads channel's custom commands, reserves the channel in the
// registry, connects and runs the bot in its own goroutine. It returns
// domain.ErrRegistryConflict if the channel already has a bot.
func (m *BotManager) Start(ctx context.Context, channel, token string) error {
	channel = domain.NormalizeChannel(channel)
	if channel == "" {
		return fmt.Errorf("bot manager: empty channel")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	var customs []domain.CustomCommand
	if m.cfg.Customs != nil {
		loaded, err := m.cfg.Customs.LoadCustomCommands(ctx, channel)
		if err != nil {
			return fmt.Errorf("bot manager: load custom commands for %s: %w", channel, err)
		}
		customs = loaded
	}

	botCtx, cancel := context.WithCancel(m.ctx)
	bot := &Bot{
		channel:   channel,
		token:     token,
		customs:   commands.CustomSet(customs),
		startedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if err := m.cfg.Registry.Add(channel, bot); err != nil {
		cancel()
		return err
	}

	conn := m.newConn(channel, token)
	bot.setConn(conn)
	if err := conn.Connect(ctx); err != nil {
		cancel()
		m.cfg.Registry.removeIf(channel, bot)
		return fmt.Errorf("bot manager: start %s: %w", channel, err)
	}

	if !m.cfg.Registry.markRunning(channel, bot) {
		cancel()
		conn.Disconnect()
		return fmt.Errorf("bot manager: start %s: %w", channel, domain.ErrRegistryConflict)
	}
	telemetry.ActiveBots.Inc()

	// Shutdown marks the manager closed before it lists running bots, so a
	// bot that became running after that listing stops here.
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		cancel()
		conn.Disconnect()
		if m.cfg.Registry.removeIf(channel, bot) {
			telemetry.ActiveBots.Dec()
		}
		return ErrManagerClosed
	}

	m.publishStatus(channel, events.BotStateRunning, nil)
	m.logger.Info().Str("channel", channel).Int("custom_commands", bot.customs.Len()).Msg("bot started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runBot(botCtx, bot)
	}()
	return nil
}

// Stop cancels channel's bot, waits for its read loop to exit, disconnects
// and only then removes the registry entry. It reports whether a running
// bot was stopped. Safe to call from any goroutine except the bot's own.
func (m *BotManager) Stop(channel string) bool {
	channel = domain.NormalizeChannel(channel)
	bot, ok := m.cfg.Registry.beginStop(channel)
	if !ok {
		return false
	}

	bot.cancel()
	<-bot.done
	if conn := bot.Conn(); conn != nil {
		conn.Disconnect()
	}
	if m.cfg.Registry.removeIf(channel, bot) {
		telemetry.ActiveBots.Dec()
		m.publishStatus(channel, events.BotStateStopped, nil)
	}
	m.logger.Info().Str("channel", channel).Msg("bot stopped")
	return true
}

// Shutdown stops every running bot and refuses later starts.
func (m *BotManager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, channel := range m.cfg.Registry.Channels() {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			m.Stop(channel)
		}(channel)
	}
	wg.Wait()
	m.wg.Wait()
}

func (m *BotManager) runBot(ctx context.Context, bot *Bot) {
	defer close(bot.done)

	handler := func(ctx context.Context, msg domain.ChatMessage) error {
		if m.cfg.Pipeline == nil {
			return nil
		}
		return m.cfg.Pipeline.Handle(ctx, msg, bot.customs, bot)
	}

	for {
		err := bot.Conn().Run(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = fmt.Errorf("bot %s: %w: read loop ended", bot.channel, domain.ErrConnection)
		}
		m.logger.Warn().Err(err).Str("channel", bot.channel).Msg("connection lost")

		if !m.reconnect(ctx, bot) {
			if ctx.Err() != nil {
				return
			}
			m.giveUp(bot, err)
			return
		}
	}
}

func (m *BotManager) reconnect(ctx context.Context, bot *Bot) bool {
	delay := m.cfg.ReconnectDelay
	for attempt := 1; attempt <= m.cfg.ReconnectMax; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		delay *= 2

		telemetry.Reconnects.WithLabelValues(bot.channel).Inc()
		conn := m.newConn(bot.channel, bot.token)
		if err := conn.Connect(ctx); err != nil {
			m.logger.Warn().Err(err).Str("channel", bot.channel).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		bot.setConn(conn)
		m.logger.Info().Str("channel", bot.channel).Int("attempt", attempt).Msg("reconnected")
		m.publishStatus(bot.channel, events.BotStateRunning, nil)
		return true
	}
	return false
}

func (m *BotManager) giveUp(bot *Bot, cause error) {
	if conn := bot.Conn(); conn != nil {
		conn.Disconnect()
	}
	if m.cfg.Registry.removeIf(bot.channel, bot) {
		telemetry.ActiveBots.Dec()
		m.publishStatus(bot.channel, events.BotStateFailed, cause)
	}
	m.logger.Error().Err(cause).Str("channel", bot.channel).Msg("bot gave up reconnecting")
}

func (m *BotManager) newConn(channel, token string) *twitchadapter.Conn {
	return twitchadapter.NewConn(twitchadapter.Config{
		Addr:         m.cfg.Addr,
		Nickname:     m.cfg.Nickname,
		Token:        token,
		Channel:      channel,
		ReadBackoff:  m.cfg.ReadBackoff,
		WriteTimeout: m.cfg.WriteTimeout,
		Dialer:       m.cfg.Dialer,
	}, m.cfg.Logger)
}

func (m *BotManager) publishStatus(channel, state string, err error) {
	if m.cfg.Publisher == nil {
		return
	}
	m.cfg.Publisher.Publish(events.TopicBotStatus, events.NewBotStatusDTO(channel, state, err))
}
