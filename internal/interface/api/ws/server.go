// Package ws serves the admin HTTP surface: health, metrics, bot and command
// management, and a websocket feed of bot events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"berryBot/internal/app"
	"berryBot/internal/app/events"
	"berryBot/internal/domain"
	"berryBot/internal/usecase/commands"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type BotController interface {
	Start(ctx context.Context, channel, token string) error
	Stop(channel string) bool
}

type BotLister interface {
	Snapshot() []app.BotInfo
}

type CommandService interface {
	List(ctx context.Context, channel string) ([]commands.CommandDTO, error)
	Upsert(ctx context.Context, channel string, input commands.CommandMutationDTO) (commands.CommandDTO, error)
	Delete(ctx context.Context, channel, name string) (bool, error)
}

type VerdictLister interface {
	Recent(ctx context.Context, channel string, limit int) ([]events.VerdictDTO, error)
}

type Config struct {
	Addr string
	// AdminToken, when set, is required as a bearer token on /api and
	// /ws routes.
	AdminToken string
	// DefaultToken is used for POST /api/bots requests without a token.
	DefaultToken string

	Bus      *events.Bus
	Bots     BotController
	Registry BotLister
	Commands CommandService
	Verdicts VerdictLister
	Outgoing domain.OutgoingMessagePort
	// Health reports whether dependencies are reachable.
	Health func(ctx context.Context) error

	Logger zerolog.Logger
}

func (c *Config) addr() string {
	if c.Addr == "" {
		return ":8080"
	}
	return c.Addr
}

type Server struct {
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Envelope wraps every event sent to websocket clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "http").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/ws/events", s.handleWS)

		r.Get("/api/bots", s.handleListBots)
		r.Post("/api/bots", s.handleStartBot)
		r.Delete("/api/bots/{channel}", s.handleStopBot)
		r.Post("/api/bots/{channel}/messages", s.handleSendMessage)

		r.Get("/api/channels/{channel}/commands", s.handleListCommands)
		r.Put("/api/channels/{channel}/commands/{name}", s.handleUpsertCommand)
		r.Delete("/api/channels/{channel}/commands/{name}", s.handleDeleteCommand)

		r.Get("/api/moderation", s.handleListVerdicts)
	})
	return r
}

// Start serves HTTP and forwards bus events to websocket clients until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http shutdown")
		}
		return nil
	})
	g.Go(func() error {
		s.ForwardEvents(gctx)
		return nil
	})
	return g.Wait()
}

// ForwardEvents broadcasts every bus topic to websocket clients until ctx is
// cancelled or the bus closes.
func (s *Server) ForwardEvents(ctx context.Context) {
	if s.cfg.Bus == nil {
		<-ctx.Done()
		return
	}

	var wg sync.WaitGroup
	for _, topic := range events.Topics {
		ch, unsubscribe := s.cfg.Bus.Subscribe(topic)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					s.Broadcast(topic, payload)
				}
			}
		}(topic)
	}
	wg.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	client := &wsClient{conn: conn}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Int("clients", clientCount).Msg("websocket connected")

	go s.readClient(client)
}

// readClient drains client frames so close frames are processed; the feed
// is one-way.
func (s *Server) readClient(client *wsClient) {
	defer s.dropClient(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}
	}
}

func (s *Server) dropClient(client *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[client]
	delete(s.clients, client)
	clientCount := len(s.clients)
	s.mu.Unlock()

	if ok {
		_ = client.conn.Close()
		s.logger.Info().Int("clients", clientCount).Msg("websocket closed")
	}
}

func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.dropClient(c)
	}
}

// ClientCount reports the connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends one event to every websocket client, dropping clients
// whose write fails.
func (s *Server) Broadcast(topic string, payload any) {
	data, err := json.Marshal(Envelope{Type: topic, Data: payload})
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("encode event")
		return
	}

	s.mu.RLock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(json.RawMessage(data)); err != nil {
			s.logger.Warn().Err(err).Msg("removing websocket client after write error")
			s.dropClient(c)
		}
	}
}
