package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/gateway"
)

type WSHandler struct {
	engine      *app.Engine
	gateway     *gateway.Gateway
	verifier    *auth.Verifier
	joinLimiter app.RateLimiter
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, gw *gateway.Gateway, verifier *auth.Verifier, joinLimiter app.RateLimiter, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine:      engine,
		gateway:     gw,
		verifier:    verifier,
		joinLimiter: joinLimiter,
		logger:      logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	SessionID   string      `json:"sessionId"`
	RoomCode    string      `json:"roomCode"`
	UserID      string      `json:"userId"`
	DisplayName string      `json:"displayName"`
	Role        domain.Role `json:"role"`
	Token       string      `json:"token"`
}

type leaderboardRequest struct {
	Limit int `json:"limit"`
}

// ServeWS upgrades the request and runs the connection until the peer goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := newClient(uuid.NewString(), conn, h.logger)
	log := h.logger.With().Str("connection_id", c.ID()).Logger()
	sess := &wsSession{
		handler: h,
		client:  c,
		address: remoteAddress(r),
		token:   bearerToken(r),
		logger:  log,
	}

	go c.writePump()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("ws read failed")
			}
			break
		}
		sess.dispatch(r.Context(), inbound)
	}

	h.gateway.Leave(context.Background(), c.ID())
	_ = c.Close()
	log.Debug().Msg("connection closed")
}

// wsSession is the per-connection message loop state.
type wsSession struct {
	handler *WSHandler
	client  *client
	address string
	token   string
	logger  zerolog.Logger
}

func (s *wsSession) dispatch(ctx context.Context, msg inboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error().Interface("panic", rec).Str("event", msg.Type).Msg("ws handler panicked")
			s.fail(domain.ErrInternal)
		}
	}()

	var err error
	switch msg.Type {
	case domain.EventJoinSession:
		err = s.join(ctx, msg.Payload)
	case domain.EventLeaveSession:
		s.handler.gateway.Leave(ctx, s.client.ID())
	case domain.EventSubmitAnswer:
		err = s.submit(ctx, msg.Payload)
	case domain.EventGetLeaderboard:
		err = s.leaderboard(ctx, msg.Payload)
	default:
		err = domain.ErrInvalidInput
	}
	if err != nil {
		s.fail(err)
	}
}

func (s *wsSession) fail(err error) {
	if domain.KindOf(err) == domain.KindInternal {
		s.logger.Error().Err(err).Msg("ws request failed")
	}
	_ = s.client.Send(domain.EventError, domain.ErrorPayloadOf(err))
}

func (s *wsSession) join(ctx context.Context, raw json.RawMessage) error {
	var p joinPayload
	if err := decode(raw, &p); err != nil {
		return err
	}
	if p.Role == "" {
		p.Role = domain.RolePlayer
	}
	if !p.Role.Valid() {
		return domain.ErrInvalidInput
	}

	h := s.handler
	if h.joinLimiter != nil {
		allowed, err := h.joinLimiter.Allow(ctx, "join:"+s.address)
		if err != nil {
			s.logger.Warn().Err(err).Msg("join limiter unavailable")
		} else if !allowed {
			return domain.ErrRateLimited
		}
	}

	token := p.Token
	if token == "" {
		token = s.token
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return err
	}

	if p.SessionID == "" && p.RoomCode != "" {
		session, err := h.engine.SessionByRoomCode(ctx, p.RoomCode)
		if err != nil {
			return err
		}
		p.SessionID = session.ID
	}
	if p.SessionID == "" {
		return domain.ErrMissingFields
	}
	if claims.SessionID != p.SessionID || (p.UserID != "" && claims.UserID != p.UserID) {
		return domain.ErrInvalidToken
	}
	name := p.DisplayName
	if name == "" {
		name = claims.DisplayName
	}

	_, err = h.gateway.Join(ctx, gateway.JoinRequest{
		SessionID:     p.SessionID,
		UserID:        claims.UserID,
		DisplayName:   name,
		Role:          p.Role,
		SourceAddress: s.address,
	}, s.client)
	return err
}

func (s *wsSession) submit(ctx context.Context, raw json.RawMessage) error {
	b, ok := s.handler.gateway.Lookup(s.client.ID())
	if !ok {
		return domain.ErrNotJoined
	}
	if b.Key.Role != domain.RolePlayer {
		return domain.ErrUnauthorized
	}
	var req app.AnswerRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	res, err := s.handler.engine.SubmitAnswer(ctx, b.Key.SessionID, b.Key.UserID, req)
	if err != nil {
		return err
	}
	return s.client.Send(domain.EventAnswerReceived, res)
}

func (s *wsSession) leaderboard(ctx context.Context, raw json.RawMessage) error {
	b, ok := s.handler.gateway.Lookup(s.client.ID())
	if !ok {
		return domain.ErrNotJoined
	}
	var req leaderboardRequest
	if len(raw) > 0 {
		if err := decode(raw, &req); err != nil {
			return err
		}
	}
	entries, err := s.handler.engine.ScoreBoard(ctx, b.Key.SessionID, req.Limit)
	if err != nil {
		return err
	}
	return s.client.Send(domain.EventLeaderboard, domain.LeaderboardPayload{SessionID: b.Key.SessionID, Entries: entries})
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return domain.ErrMissingFields
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func remoteAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
