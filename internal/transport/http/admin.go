package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/gateway"
)

// AdminSecretHeader carries the shared secret of the host-facing application.
const AdminSecretHeader = "X-Admin-Secret"

// AdminHandler exposes the host control surface.
type AdminHandler struct {
	engine  *app.Engine
	gateway *gateway.Gateway
	secret  string
	logger  zerolog.Logger
}

func NewAdminHandler(engine *app.Engine, gw *gateway.Gateway, secret string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		engine:  engine,
		gateway: gw,
		secret:  secret,
		logger:  logger.With().Str("component", "admin").Logger(),
	}
}

// Routes mounts every admin endpoint behind the shared secret.
func (h *AdminHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requireSecret)

	r.Get("/stats", h.stats)
	r.Post("/emit", h.emit)

	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Get("/leaderboard", h.leaderboard)
		r.Post("/start", h.transition(h.engine.Start))
		r.Post("/question/end", h.transition(h.engine.EndQuestion))
		r.Post("/next", h.transition(h.engine.NextQuestion))
		r.Post("/end", h.transition(h.engine.EndSession))
		r.Post("/replay", h.transition(h.engine.Replay))
		r.Post("/questions/{index}/start", h.startQuestion)
		r.Post("/players/{userID}/kick", h.kick)
		r.Post("/players/{userID}/ban", h.ban)
	})
	return r
}

func (h *AdminHandler) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(AdminSecretHeader)
		if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req app.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	session, err := h.engine.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *AdminHandler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.engine.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AdminHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessionID := chi.URLParam(r, "sessionID")
	entries, err := h.engine.ScoreBoard(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LeaderboardPayload{SessionID: sessionID, Entries: entries})
}

func (h *AdminHandler) transition(action func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if err := action(r.Context(), sessionID); err != nil {
			writeError(w, err)
			return
		}
		h.respondSession(w, r, sessionID)
	}
}

func (h *AdminHandler) startQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if err := h.engine.StartQuestion(r.Context(), sessionID, index); err != nil {
		writeError(w, err)
		return
	}
	h.respondSession(w, r, sessionID)
}

func (h *AdminHandler) respondSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := h.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AdminHandler) kick(w http.ResponseWriter, r *http.Request) {
	sessionID, userID := chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID")
	if err := h.engine.Bans().Kick(r.Context(), sessionID, userID); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("player kicked")
	w.WriteHeader(http.StatusNoContent)
}

type banRequest struct {
	Permanent bool `json:"permanent"`
}

func (h *AdminHandler) ban(w http.ResponseWriter, r *http.Request) {
	sessionID, userID := chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID")
	var req banRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidInput)
			return
		}
	}

	bans := h.engine.Bans()
	var err error
	if req.Permanent {
		err = bans.BanPermanentlyFromSession(r.Context(), sessionID, userID)
	} else {
		err = bans.BanFromSession(r.Context(), sessionID, userID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type emitRequest struct {
	SessionID    string          `json:"sessionId"`
	ConnectionID string          `json:"connectionId"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
}

// emit pushes an arbitrary event to one connection or a whole session room.
func (h *AdminHandler) emit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	switch {
	case req.ConnectionID != "":
		if err := h.gateway.Unicast(req.ConnectionID, req.Event, req.Payload); err != nil {
			writeError(w, err)
			return
		}
	case req.SessionID != "":
		h.gateway.Broadcast(req.SessionID, req.Event, req.Payload)
	default:
		writeError(w, domain.ErrMissingFields)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AdminHandler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Stats())
}
