// Package gateway tracks live duplex connections per session room and fans
// session events out to them.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Conn is one client connection. Send must not block.
type Conn interface {
	ID() string
	Send(event string, payload any) error
	Close() error
}

// Engine is the slice of the session engine the gateway drives.
type Engine interface {
	Join(ctx context.Context, p domain.Participant, role domain.Role) (domain.Session, error)
	Resync(ctx context.Context, sessionID string) (domain.QuestionStartPayload, bool, error)
	ParticipantLeft(ctx context.Context, sessionID string)
}

// JoinRequest carries verified identity plus client-declared attributes.
type JoinRequest struct {
	SessionID     string
	UserID        string
	DisplayName   string
	Role          domain.Role
	SourceAddress string
}

// Binding is the room membership of one connection.
type Binding struct {
	Key         app.ConnectionKey
	DisplayName string
	JoinedAt    time.Time
}

type member struct {
	conn Conn
	Binding
}

// Gateway is safe for concurrent use. It never calls into the engine while holding its lock.
type Gateway struct {
	engine Engine
	cache  app.Cache
	clock  clockwork.Clock
	grace  time.Duration
	logger zerolog.Logger

	mu        sync.RWMutex
	members   map[string]*member
	rooms     map[string]map[string]struct{}
	canonical map[app.ConnectionKey]string
}

// Options configures a Gateway; Cache may be nil.
type Options struct {
	Cache         app.Cache
	Clock         clockwork.Clock
	EvictionGrace time.Duration
}

func New(engine Engine, logger zerolog.Logger, opts Options) *Gateway {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.EvictionGrace <= 0 {
		opts.EvictionGrace = time.Second
	}
	return &Gateway{
		engine:    engine,
		cache:     opts.Cache,
		clock:     opts.Clock,
		grace:     opts.EvictionGrace,
		logger:    logger.With().Str("component", "gateway").Logger(),
		members:   make(map[string]*member),
		rooms:     make(map[string]map[string]struct{}),
		canonical: make(map[app.ConnectionKey]string),
	}
}

var _ app.Broadcaster = (*Gateway)(nil)

// Join admits conn into a session room, evicting any previous device of the same identity.
// Admission and roster registration happen first; a rejected join leaves existing
// connections and the registry untouched.
func (g *Gateway) Join(ctx context.Context, req JoinRequest, conn Conn) (domain.Session, error) {
	session, err := g.engine.Join(ctx, domain.Participant{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		DisplayName:   req.DisplayName,
		SourceAddress: req.SourceAddress,
	}, req.Role)
	if err != nil {
		return domain.Session{}, err
	}
	key := app.ConnectionKey{SessionID: req.SessionID, UserID: req.UserID, Role: req.Role}
	log := g.logger.With().
		Str("session_id", req.SessionID).
		Str("user_id", req.UserID).
		Str("connection_id", conn.ID()).
		Logger()

	registered := g.registered(ctx, key, log)
	previous, rebound := g.bind(key, req.DisplayName, conn, registered)
	for _, stale := range previous {
		g.evictConn(stale, domain.EventForcedDisconnect, domain.NoticePayload{
			Reason:  domain.ReasonNewDevice,
			Message: "Signed in from another device",
		})
		log.Info().Str("stale_connection_id", stale.ID()).Msg("evicted previous device")
	}
	if rebound != nil {
		g.afterLeave(ctx, *rebound)
	}
	if registered != "" && registered != conn.ID() && len(previous) == 0 {
		log.Info().Str("registered_connection_id", registered).Msg("superseding connection held by another instance")
	}

	if g.cache != nil {
		if err := g.cache.SetConnection(ctx, key, conn.ID()); err != nil {
			log.Warn().Err(err).Msg("connection registry write failed")
		}
	}

	if req.Role == domain.RolePlayer {
		g.Broadcast(req.SessionID, domain.EventParticipantJoined, domain.ParticipantJoinedPayload{
			UserID:      req.UserID,
			DisplayName: req.DisplayName,
			Count:       g.ConnectedPlayers(req.SessionID),
		})
	}

	_ = conn.Send(domain.EventJoined, domain.JoinedPayload{
		SessionID:        session.ID,
		RoomCode:         session.RoomCode,
		Role:             req.Role,
		Status:           session.Status,
		ConnectionID:     conn.ID(),
		ParticipantCount: g.ConnectedPlayers(req.SessionID),
		QuestionIndex:    session.CurrentQuestionIndex,
		TotalQuestions:   len(session.Questions),
	})

	resync, ok, err := g.engine.Resync(ctx, req.SessionID)
	if err != nil {
		log.Warn().Err(err).Msg("resync lookup failed")
	} else if ok {
		if err := conn.Send(domain.EventQuestionStart, resync); err != nil {
			log.Warn().Err(err).Msg("resync delivery failed")
		}
	}

	log.Info().Str("role", string(req.Role)).Msg("joined session")
	return session, nil
}

// registered returns the connection id the shared registry holds for key, or "".
func (g *Gateway) registered(ctx context.Context, key app.ConnectionKey, log zerolog.Logger) string {
	if g.cache == nil {
		return ""
	}
	id, ok, err := g.cache.GetConnection(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("connection registry read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return id
}

// bind registers conn as canonical for key. It returns stale connections of the same
// identity, including the registered one when it is local, and, when conn was bound
// elsewhere before, that previous binding.
func (g *Gateway) bind(key app.ConnectionKey, displayName string, conn Conn, registered string) ([]Conn, *Binding) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var rebound *Binding
	if m, ok := g.members[conn.ID()]; ok && m.Key != key {
		b := m.Binding
		g.removeLocked(conn.ID())
		rebound = &b
	}

	var stale []Conn
	if oldID, ok := g.canonical[key]; ok && oldID != conn.ID() {
		if m, ok := g.members[oldID]; ok {
			stale = append(stale, m.conn)
		}
		g.removeLocked(oldID)
	}
	if registered != "" && registered != conn.ID() {
		if m, ok := g.members[registered]; ok && m.Key == key {
			stale = append(stale, m.conn)
			g.removeLocked(registered)
		}
	}
	for id := range g.rooms[key.SessionID] {
		m := g.members[id]
		if id != conn.ID() && m.Key.UserID == key.UserID && m.Key.Role == key.Role {
			stale = append(stale, m.conn)
			g.removeLocked(id)
		}
	}

	g.members[conn.ID()] = &member{
		conn:    conn,
		Binding: Binding{Key: key, DisplayName: displayName, JoinedAt: g.clock.Now()},
	}
	room, ok := g.rooms[key.SessionID]
	if !ok {
		room = make(map[string]struct{})
		g.rooms[key.SessionID] = room
	}
	room[conn.ID()] = struct{}{}
	g.canonical[key] = conn.ID()
	return stale, rebound
}

func (g *Gateway) unbind(connectionID string) (Binding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[connectionID]
	if !ok {
		return Binding{}, false
	}
	b := m.Binding
	g.removeLocked(connectionID)
	return b, true
}

func (g *Gateway) removeLocked(connectionID string) {
	m, ok := g.members[connectionID]
	if !ok {
		return
	}
	delete(g.members, connectionID)
	if room, ok := g.rooms[m.Key.SessionID]; ok {
		delete(room, connectionID)
		if len(room) == 0 {
			delete(g.rooms, m.Key.SessionID)
		}
	}
	if g.canonical[m.Key] == connectionID {
		delete(g.canonical, m.Key)
	}
}

// Leave unregisters a connection. Unknown ids are ignored.
func (g *Gateway) Leave(ctx context.Context, connectionID string) {
	b, ok := g.unbind(connectionID)
	if !ok {
		return
	}
	if g.cache != nil {
		if err := g.cache.DeleteConnection(ctx, b.Key, connectionID); err != nil {
			g.logger.Warn().Err(err).Str("connection_id", connectionID).Msg("connection registry release failed")
		}
	}
	g.afterLeave(ctx, b)
	g.logger.Info().
		Str("session_id", b.Key.SessionID).
		Str("user_id", b.Key.UserID).
		Str("connection_id", connectionID).
		Msg("left session")
}

func (g *Gateway) afterLeave(ctx context.Context, b Binding) {
	if b.Key.Role != domain.RolePlayer {
		return
	}
	g.Broadcast(b.Key.SessionID, domain.EventParticipantLeft, domain.ParticipantLeftPayload{
		UserID:      b.Key.UserID,
		DisplayName: b.DisplayName,
	})
	g.engine.ParticipantLeft(ctx, b.Key.SessionID)
}

// Lookup returns the binding of a connection.
func (g *Gateway) Lookup(connectionID string) (Binding, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.members[connectionID]
	if !ok {
		return Binding{}, false
	}
	return m.Binding, true
}

// Broadcast delivers to every connection in the room without blocking.
func (g *Gateway) Broadcast(sessionID, event string, payload any) {
	g.mu.RLock()
	targets := make([]Conn, 0, len(g.rooms[sessionID]))
	for id := range g.rooms[sessionID] {
		targets = append(targets, g.members[id].conn)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			g.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("connection_id", c.ID()).
				Str("event", event).
				Msg("broadcast delivery dropped")
		}
	}
}

// Unicast delivers to one joined connection.
func (g *Gateway) Unicast(connectionID, event string, payload any) error {
	g.mu.RLock()
	m, ok := g.members[connectionID]
	g.mu.RUnlock()
	if !ok {
		return domain.ErrConnectionNotFound
	}
	return m.conn.Send(event, payload)
}

// ConnectedPlayers counts distinct canonical player connections of a session.
func (g *Gateway) ConnectedPlayers(sessionID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for key := range g.canonical {
		if key.SessionID == sessionID && key.Role == domain.RolePlayer {
			n++
		}
	}
	return n
}

// Evict notifies and disconnects the canonical connection of a user.
func (g *Gateway) Evict(sessionID, userID string, role domain.Role, event string, notice domain.NoticePayload) bool {
	key := app.ConnectionKey{SessionID: sessionID, UserID: userID, Role: role}

	g.mu.Lock()
	id, ok := g.canonical[key]
	var target *member
	if ok {
		target = g.members[id]
		g.removeLocked(id)
	}
	g.mu.Unlock()
	if target == nil {
		return false
	}

	g.evictConn(target.conn, event, notice)
	if g.cache != nil {
		if err := g.cache.DeleteConnection(context.Background(), key, id); err != nil {
			g.logger.Warn().Err(err).Str("connection_id", id).Msg("connection registry release failed")
		}
	}
	g.afterLeave(context.Background(), target.Binding)
	g.logger.Info().Str("session_id", sessionID).Str("user_id", userID).Str("reason", notice.Reason).Msg("connection evicted")
	return true
}

func (g *Gateway) evictConn(c Conn, event string, notice domain.NoticePayload) {
	if err := c.Send(event, notice); err != nil {
		g.logger.Debug().Err(err).Str("connection_id", c.ID()).Msg("eviction notice dropped")
	}
	g.clock.AfterFunc(g.grace, func() {
		if err := c.Close(); err != nil {
			g.logger.Debug().Err(err).Str("connection_id", c.ID()).Msg("close after eviction")
		}
	})
}

// ReleaseSession drops player bindings of an ended session; sockets stay open.
func (g *Gateway) ReleaseSession(sessionID string) {
	g.mu.Lock()
	var released []member
	for id := range g.rooms[sessionID] {
		m := g.members[id]
		if m.Key.Role == domain.RolePlayer {
			released = append(released, *m)
			g.removeLocked(id)
		}
	}
	g.mu.Unlock()

	if g.cache == nil {
		return
	}
	for _, m := range released {
		if err := g.cache.DeleteConnection(context.Background(), m.Key, m.conn.ID()); err != nil {
			g.logger.Warn().Err(err).Str("session_id", sessionID).Msg("connection registry release failed")
		}
	}
}

// Stats is a point-in-time view for the admin surface.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
	Players     int `json:"players"`
	Hosts       int `json:"hosts"`
}

func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Stats{Sessions: len(g.rooms), Connections: len(g.members)}
	for key := range g.canonical {
		if key.Role == domain.RolePlayer {
			s.Players++
		} else {
			s.Hosts++
		}
	}
	return s
}
