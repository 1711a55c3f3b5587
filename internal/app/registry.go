package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"berryBot/internal/domain"
	twitchadapter "berryBot/internal/interface/adapters/twitch"
	"berryBot/internal/usecase/commands"
)

var ErrNoRunningBot = errors.New("no running bot for channel")

type botPhase int

const (
	phaseStarting botPhase = iota
	phaseRunning
	phaseStopping
)

func (p botPhase) String() string {
	switch p {
	case phaseStarting:
		return "starting"
	case phaseRunning:
		return "running"
	case phaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Bot is one channel's running bot: its connection, the custom commands it
// loaded at start and the handle to stop its read loop.
type Bot struct {
	channel   string
	token     string
	customs   commands.Set
	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.RWMutex
	conn   *twitchadapter.Conn

	// phase is guarded by the registry mutex.
	phase botPhase
}

func (b *Bot) Channel() string {
	return b.channel
}

func (b *Bot) Conn() *twitchadapter.Conn {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.conn
}

// finished reports whether the bot's read loop has exited. A bot that never
// ran one counts as finished.
func (b *Bot) finished() bool {
	if b.done == nil {
		return true
	}
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *Bot) setConn(conn *twitchadapter.Conn) {
	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
}

// Send writes text to the bot's channel on its current connection.
func (b *Bot) Send(ctx context.Context, text string) error {
	conn := b.Conn()
	if conn == nil {
		return fmt.Errorf("bot %s: %w: no connection", b.channel, domain.ErrConnection)
	}
	return conn.Send(ctx, text)
}

// BotInfo is a point-in-time view of a registered bot.
type BotInfo struct {
	Channel        string    `json:"channel"`
	Phase          string    `json:"phase"`
	Connection     string    `json:"connection"`
	CustomCommands int       `json:"custom_commands"`
	StartedAt      time.Time `json:"started_at"`
}

// Registry maps channel names to bots. A channel has at most one entry, from
// the moment its start is reserved until its stop has completed.
type Registry struct {
	mu   sync.RWMutex
	bots map[string]*Bot
}

func NewRegistry() *Registry {
	return &Registry{bots: make(map[string]*Bot)}
}

// Add reserves channel for bot. It fails with domain.ErrRegistryConflict
// while any entry exists for channel, whatever its phase.
func (r *Registry) Add(channel string, bot *Bot) error {
	channel = domain.NormalizeChannel(channel)
	if channel == "" || bot == nil {
		return fmt.Errorf("registry: empty channel or bot")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bots[channel]; ok {
		return fmt.Errorf("registry: %w: %s (%s)", domain.ErrRegistryConflict, channel, existing.phase)
	}
	bot.phase = phaseStarting
	r.bots[channel] = bot
	return nil
}

// Get returns channel's bot only while it is running; starting and stopping
// bots are not handed out.
func (r *Registry) Get(channel string) (*Bot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bot, ok := r.bots[domain.NormalizeChannel(channel)]
	if !ok || bot.phase != phaseRunning {
		return nil, false
	}
	return bot, true
}

// Remove drops channel's entry once its bot has stopped reading. A bot that
// is still starting or whose read loop is live stays registered; stop it
// through BotManager.Stop. It reports whether an entry was dropped.
func (r *Registry) Remove(channel string) bool {
	channel = domain.NormalizeChannel(channel)
	r.mu.Lock()
	defer r.mu.Unlock()
	bot, ok := r.bots[channel]
	if !ok || !bot.finished() {
		return false
	}
	delete(r.bots, channel)
	return true
}

// Channels returns the running channels, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.bots))
	for channel, bot := range r.bots {
		if bot.phase == phaseRunning {
			out = append(out, channel)
		}
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Snapshot describes every entry, sorted by channel.
func (r *Registry) Snapshot() []BotInfo {
	r.mu.RLock()
	out := make([]BotInfo, 0, len(r.bots))
	for channel, bot := range r.bots {
		info := BotInfo{
			Channel:        channel,
			Phase:          bot.phase.String(),
			CustomCommands: bot.customs.Len(),
			StartedAt:      bot.startedAt,
		}
		if conn := bot.Conn(); conn != nil {
			info.Connection = conn.State().String()
		}
		out = append(out, info)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b BotInfo) int {
		return strings.Compare(a.Channel, b.Channel)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// SendMessage routes text to channel's running bot. It fails with
// ErrNoRunningBot when the channel has none.
func (r *Registry) SendMessage(ctx context.Context, channel, text string) error {
	bot, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("registry: %w: %q", ErrNoRunningBot, channel)
	}
	return bot.Send(ctx, text)
}

func (r *Registry) markRunning(channel string, bot *Bot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bots[channel] != bot || bot.phase != phaseStarting {
		return false
	}
	bot.phase = phaseRunning
	return true
}

// beginStop moves channel's running bot to stopping and returns it.
func (r *Registry) beginStop(channel string) (*Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bot, ok := r.bots[channel]
	if !ok || bot.phase != phaseRunning {
		return nil, false
	}
	bot.phase = phaseStopping
	return bot, true
}

// removeIf drops channel's entry only if it still belongs to bot.
func (r *Registry) removeIf(channel string, bot *Bot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bots[channel] != bot {
		return false
	}
	delete(r.bots, channel)
	return true
}

var _ domain.OutgoingMessagePort = (*Registry)(nil)
