// Package twitchadapter speaks the Twitch chat protocol for a single channel:
// handshake, read loop, keepalives and chat writes.
package twitchadapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"berryBot/internal/domain"
	"berryBot/internal/infrastructure/telemetry"
)

const (
	DefaultAddr         = "irc.chat.twitch.tv:6667"
	DefaultReadBackoff  = 500 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second

	capabilityRequest = "CAP REQ :twitch.tv/tags twitch.tv/commands twitch.tv/membership"
	readChunkSize     = 4096
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateListening
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateListening:
		return "listening"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	Addr     string
	Nickname string
	Token    string
	Channel  string

	// ReadBackoff bounds how long a read waits for data before the loop
	// checks for cancellation again.
	ReadBackoff  time.Duration
	WriteTimeout time.Duration
	Dialer       Dialer
}

type MessageHandler func(ctx context.Context, msg domain.ChatMessage) error

// Conn owns one transport to the chat server for one channel.
type Conn struct {
	cfg    Config
	logger zerolog.Logger

	stateMu sync.RWMutex
	state   State

	// writeMu serializes every write on transport.
	writeMu   sync.Mutex
	transport net.Conn

	dec Decoder
}

func NewConn(cfg Config, logger zerolog.Logger) *Conn {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ReadBackoff <= 0 {
		cfg.ReadBackoff = DefaultReadBackoff
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	cfg.Channel = domain.NormalizeChannel(cfg.Channel)

	return &Conn{
		cfg:    cfg,
		logger: logger.With().Str("component", "twitch").Str("channel", cfg.Channel).Logger(),
	}
}

func (c *Conn) Channel() string {
	return c.cfg.Channel
}

func (c *Conn) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Connect dials the server and performs the handshake: capability request,
// PASS, NICK, JOIN, in that order.
func (c *Conn) Connect(ctx context.Context) error {
	if c.cfg.Channel == "" {
		return fmt.Errorf("twitch: %w: empty channel", domain.ErrConnection)
	}
	if c.cfg.Nickname == "" || c.cfg.Token == "" {
		return fmt.Errorf("twitch: %w: empty nickname or token", domain.ErrConnection)
	}

	c.setState(StateConnecting)

	transport, err := c.cfg.Dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		c.setState(StateFaulted)
		return fmt.Errorf("twitch: %w: dial %s: %v", domain.ErrConnection, c.cfg.Addr, err)
	}

	c.writeMu.Lock()
	c.transport = transport
	c.writeMu.Unlock()

	handshake := []string{
		capabilityRequest,
		"PASS " + formatToken(c.cfg.Token),
		"NICK " + strings.ToLower(c.cfg.Nickname),
		"JOIN #" + c.cfg.Channel,
	}
	for _, line := range handshake {
		if err := c.writeLine(line); err != nil {
			c.fault()
			return fmt.Errorf("twitch: %w: handshake: %v", domain.ErrConnection, err)
		}
	}

	c.setState(StateAuthenticated)
	c.logger.Info().Str("nickname", c.cfg.Nickname).Msg("authenticated")
	return nil
}

// Run reads until ctx is cancelled or the transport fails. Keepalives are
// answered as soon as they are read, ahead of chat messages from the same
// read; each chat message is handed to handler and fully processed before
// the next read. Cancellation returns nil.
func (c *Conn) Run(ctx context.Context, handler MessageHandler) error {
	if s := c.State(); s != StateAuthenticated {
		return fmt.Errorf("twitch: %w: run in state %s", domain.ErrConnection, s)
	}
	c.setState(StateListening)
	c.logger.Info().Msg("listening")

	c.writeMu.Lock()
	transport := c.transport
	c.writeMu.Unlock()
	if transport == nil {
		c.setState(StateFaulted)
		return fmt.Errorf("twitch: %w: no transport", domain.ErrConnection)
	}

	chunk := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := transport.SetReadDeadline(time.Now().Add(c.cfg.ReadBackoff)); err != nil {
			c.fault()
			return fmt.Errorf("twitch: %w: set read deadline: %v", domain.ErrConnection, err)
		}

		n, err := transport.Read(chunk)
		if n > 0 {
			if ferr := c.dec.Feed(chunk[:n]); ferr != nil {
				telemetry.MalformedFrames.WithLabelValues(c.cfg.Channel).Inc()
				c.logger.Warn().Err(ferr).Msg("dropping oversized line")
			}
			if ferr := c.drain(ctx, handler); ferr != nil {
				c.fault()
				return ferr
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.fault()
			return fmt.Errorf("twitch: %w: read: %v", domain.ErrConnection, err)
		}
	}
}

// drain answers every keepalive of the buffered lines first, then hands the
// chat frames to handler in arrival order.
func (c *Conn) drain(ctx context.Context, handler MessageHandler) error {
	var chats []Frame
	for frame, err := range c.dec.Frames() {
		if err != nil {
			telemetry.MalformedFrames.WithLabelValues(c.cfg.Channel).Inc()
			c.logger.Warn().Err(err).Msg("skipping frame")
			continue
		}

		switch frame.Kind {
		case FrameKeepalive:
			if err := c.writeLine(strings.TrimSpace("PONG " + frame.Payload)); err != nil {
				return fmt.Errorf("twitch: %w: keepalive reply: %v", domain.ErrConnection, err)
			}
		case FrameChat:
			chats = append(chats, frame)
		}
	}

	for _, frame := range chats {
		msg, err := ChatMessageFromFrame(frame, c.cfg.Channel)
		if err != nil {
			telemetry.MalformedFrames.WithLabelValues(c.cfg.Channel).Inc()
			c.logger.Warn().Err(err).Msg("skipping chat frame")
			continue
		}
		if handler == nil {
			continue
		}
		if err := handler(ctx, msg); err != nil {
			if errors.Is(err, domain.ErrConnection) {
				return err
			}
			c.logger.Error().Err(err).Str("user", msg.Username).Msg("message handler")
		}
	}
	return nil
}

// Send writes one chat line to the channel. CR and LF in text are replaced so
// a single call never produces more than one protocol line.
func (c *Conn) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(lineBreakReplacer.Replace(text))
	if text == "" {
		return nil
	}
	switch c.State() {
	case StateAuthenticated, StateListening:
	default:
		return fmt.Errorf("twitch: %w: send in state %s", domain.ErrConnection, c.State())
	}
	if err := c.writeLine(fmt.Sprintf("PRIVMSG #%s :%s", c.cfg.Channel, text)); err != nil {
		return fmt.Errorf("twitch: %w: send: %v", domain.ErrConnection, err)
	}
	return nil
}

// Disconnect parts the channel and closes the transport. It is a no-op on a
// disconnected or faulted connection.
func (c *Conn) Disconnect() {
	switch c.State() {
	case StateDisconnected, StateFaulted:
		return
	}

	if err := c.writeLine("PART #" + c.cfg.Channel); err != nil {
		c.logger.Debug().Err(err).Msg("part")
	}
	c.closeTransport()
	c.setState(StateDisconnected)
	c.logger.Info().Msg("disconnected")
}

func (c *Conn) fault() {
	c.closeTransport()
	c.setState(StateFaulted)
}

func (c *Conn) closeTransport() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.transport == nil {
		return
	}
	_ = c.transport.Close()
	c.transport = nil
}

func (c *Conn) writeLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.transport == nil {
		return net.ErrClosed
	}
	if err := c.transport.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := c.transport.Write([]byte(line + "\r\n"))
	return err
}

func formatToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var lineBreakReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")
