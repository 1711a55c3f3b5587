// Package runtime wires the bot process together: storage, classifier,
// message pipeline, bot manager and the admin server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"berryBot/internal/app"
	"berryBot/internal/app/events"
	"berryBot/internal/domain"
	"berryBot/internal/infrastructure/classifier/openai"
	"berryBot/internal/infrastructure/config"
	sqlitestorage "berryBot/internal/infrastructure/persistence/sqlite"
	"berryBot/internal/infrastructure/telemetry"
	twitchadapter "berryBot/internal/interface/adapters/twitch"
	ws "berryBot/internal/interface/api/ws"
	"berryBot/internal/usecase/commands"
	"berryBot/internal/usecase/handle_message"
	"berryBot/internal/usecase/moderation"
	"berryBot/internal/usecase/notifications"
)

const (
	serviceName    = "berrybot"
	serviceVersion = "0.1.0"
)

type Options struct {
	// Config overrides config.Load.
	Config *config.Config
	// Logger overrides the logger built from Config.
	Logger *zerolog.Logger
	// Classifier overrides the moderation client built from Config.
	Classifier domain.Classifier
	// Dialer overrides the chat transport dialer.
	Dialer twitchadapter.Dialer
}

type Runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger zerolog.Logger

	store      *sqlitestorage.Store
	bus        *events.Bus
	manager    *app.BotManager
	wsServer   *ws.Server
	commandSvc *commands.Service
	verdicts   *notifications.VerdictRecorder

	stopTracing func()
	serverErr   chan error

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func Start(ctx context.Context, opts Options) (*Runtime, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := cfg.Logger(os.Stderr)
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	stopTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, serviceName, serviceVersion, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing unavailable")
		stopTracing = func() {}
	}

	store, err := sqlitestorage.NewStore(cfg.DatabasePath)
	if err != nil {
		stopTracing()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	runtimeCtx, cancel := context.WithCancel(ctx)

	bus := events.NewBus(logger)
	customManager := commands.NewCustomCommandManager(store)
	commandSvc := commands.NewService(customManager)
	recorder := notifications.NewVerdictRecorder(store, bus, logger)

	classifier := opts.Classifier
	if classifier == nil {
		classifier = newClassifier(cfg, logger)
	}

	interactor := handle_message.NewInteractor(handle_message.Config{
		Classifier: classifier,
		Engine:     moderation.NewEngine(moderation.DefaultPolicy()),
		Executor:   recorder,
		Publisher:  bus,
		Logger:     logger,
	})

	manager := app.NewBotManager(app.ManagerConfig{
		Context:        runtimeCtx,
		Registry:       app.NewRegistry(),
		Pipeline:       interactor,
		Customs:        customManager,
		Publisher:      bus,
		Nickname:       cfg.TwitchUsername,
		Addr:           cfg.TwitchIRCAddr,
		ReadBackoff:    cfg.ReadBackoff,
		WriteTimeout:   cfg.WriteTimeout,
		Dialer:         opts.Dialer,
		ReconnectMax:   cfg.ReconnectMax,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})

	wsServer := ws.NewServer(ws.Config{
		Addr:         cfg.HTTPAddr,
		AdminToken:   cfg.AdminToken,
		DefaultToken: cfg.TwitchToken,
		Bus:          bus,
		Bots:         manager,
		Registry:     manager.Registry(),
		Commands:     commandSvc,
		Verdicts:     recorder,
		Outgoing:     manager.Registry(),
		Health:       store.Ping,
		Logger:       logger,
	})

	run := &Runtime{
		ctx:         runtimeCtx,
		cancel:      cancel,
		cfg:         cfg,
		logger:      logger.With().Str("component", "runtime").Logger(),
		store:       store,
		bus:         bus,
		manager:     manager,
		wsServer:    wsServer,
		commandSvc:  commandSvc,
		verdicts:    recorder,
		stopTracing: stopTracing,
		serverErr:   make(chan error, 1),
	}

	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		if err := wsServer.Start(runtimeCtx); err != nil && !errors.Is(err, context.Canceled) {
			run.logger.Error().Err(err).Msg("http server")
			run.serverErr <- err
		}
	}()

	run.startConfiguredChannels()

	run.mu.Lock()
	run.started = true
	run.mu.Unlock()
	run.logger.Info().Strs("channels", cfg.TwitchChannels).Msg("bot runtime started")
	return run, nil
}

func newClassifier(cfg *config.Config, logger zerolog.Logger) domain.Classifier {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set: messages are not moderated")
		return openai.ZeroClassifier{}
	}
	return openai.NewClient(openai.Config{
		APIKey:   cfg.OpenAIAPIKey,
		Endpoint: cfg.OpenAIModerationURL,
		Timeout:  cfg.ClassifierTimeout,
	}, logger)
}

// startConfiguredChannels starts a bot for every channel in the config. A
// channel that fails to start is reported on the bus and skipped.
func (r *Runtime) startConfiguredChannels() {
	if len(r.cfg.TwitchChannels) == 0 {
		return
	}
	if !r.cfg.HasBotCredentials() {
		r.logger.Warn().Msg("TWITCH_BOT_USERNAME or TWITCH_BOT_ACCESS_TOKEN not set: no bots started")
		return
	}
	for _, channel := range r.cfg.TwitchChannels {
		if err := r.manager.Start(r.ctx, channel, r.cfg.TwitchToken); err != nil {
			r.logger.Error().Err(err).Str("channel", channel).Msg("start bot")
			r.bus.Publish(events.TopicAppError, events.NewAppErrorDTO("start "+channel, err))
		}
	}
}

// Done is closed when the runtime's context ends.
func (r *Runtime) Done() <-chan struct{} {
	return r.ctx.Done()
}

// ServerErr reports a fatal admin server error.
func (r *Runtime) ServerErr() <-chan error {
	return r.serverErr
}

func (r *Runtime) Stop() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.mu.Unlock()

	r.manager.Shutdown()
	r.cancel()
	r.wg.Wait()
	r.bus.Close()
	r.stopTracing()

	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	r.logger.Info().Msg("bot runtime stopped")
	return nil
}

func (r *Runtime) Bus() *events.Bus {
	if r == nil {
		return nil
	}
	return r.bus
}

func (r *Runtime) Bots() *app.BotManager {
	if r == nil {
		return nil
	}
	return r.manager
}

func (r *Runtime) CommandService() *commands.Service {
	if r == nil {
		return nil
	}
	return r.commandSvc
}

func (r *Runtime) Verdicts() *notifications.VerdictRecorder {
	if r == nil {
		return nil
	}
	return r.verdicts
}

func (r *Runtime) Config() *config.Config {
	if r == nil {
		return nil
	}
	return r.cfg
}
