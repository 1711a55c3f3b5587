package ws

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"berryBot/internal/app"
	"berryBot/internal/domain"
	"berryBot/internal/usecase/commands"
)

const maxBodyBytes = 16 * 1024

func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// requireAdmin checks the bearer token when an admin token is configured.
// Browsers cannot set headers on websocket upgrades, so a token query
// parameter is accepted too.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	bots := 0
	if s.cfg.Registry != nil {
		bots = len(s.cfg.Registry.Snapshot())
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error(), "bots": bots})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "bots": bots, "ws_clients": s.ClientCount()})
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registry == nil {
		writeJSON(w, http.StatusOK, []app.BotInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Registry.Snapshot())
}

type startBotRequest struct {
	Channel string `json:"channel"`
	Token   string `json:"token"`
}

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bots == nil {
		writeError(w, http.StatusServiceUnavailable, "bot manager unavailable")
		return
	}
	var req startBotRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	channel := domain.NormalizeChannel(req.Channel)
	if channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = s.cfg.DefaultToken
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := s.cfg.Bots.Start(r.Context(), channel, token); err != nil {
		switch {
		case errors.Is(err, domain.ErrRegistryConflict):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, app.ErrManagerClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"channel": channel, "status": "running"})
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bots == nil {
		writeError(w, http.StatusServiceUnavailable, "bot manager unavailable")
		return
	}
	channel := domain.NormalizeChannel(chi.URLParam(r, "channel"))
	if !s.cfg.Bots.Stop(channel) {
		writeError(w, http.StatusNotFound, "no running bot for channel")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleSendMessage posts a line to a running bot's channel.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Outgoing == nil {
		writeError(w, http.StatusServiceUnavailable, "chat output unavailable")
		return
	}
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	channel := domain.NormalizeChannel(chi.URLParam(r, "channel"))
	if err := s.cfg.Outgoing.SendMessage(r.Context(), channel, text); err != nil {
		switch {
		case errors.Is(err, app.ErrNoRunningBot):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "commands unavailable")
		return
	}
	list, err := s.cfg.Commands.List(r.Context(), chi.URLParam(r, "channel"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type upsertCommandRequest struct {
	Response *string   `json:"response"`
	Aliases  *[]string `json:"aliases"`
}

func (s *Server) handleUpsertCommand(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "commands unavailable")
		return
	}
	var req upsertCommandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	dto, err := s.cfg.Commands.Upsert(r.Context(), chi.URLParam(r, "channel"), commands.CommandMutationDTO{
		Name:     chi.URLParam(r, "name"),
		Response: req.Response,
		Aliases:  req.Aliases,
	})
	if err != nil {
		writeError(w, commandErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleDeleteCommand(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "commands unavailable")
		return
	}
	removed, err := s.cfg.Commands.Delete(r.Context(), chi.URLParam(r, "channel"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, commandErrorStatus(err), err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "command not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVerdicts(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Verdicts == nil {
		writeError(w, http.StatusServiceUnavailable, "moderation log unavailable")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	list, err := s.cfg.Verdicts.Recent(r.Context(), r.URL.Query().Get("channel"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func commandErrorStatus(err error) int {
	switch {
	case errors.Is(err, commands.ErrNameInUse), errors.Is(err, commands.ErrReservedName):
		return http.StatusConflict
	case errors.Is(err, commands.ErrInvalidName), errors.Is(err, commands.ErrEmptyResponse):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
