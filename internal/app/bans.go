package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/domain"
)

// BanRegistry manages session-scoped (TTL) and host-permanent bans and the
// evictions that follow them.
type BanRegistry struct {
	store  Store
	clock  clockwork.Clock
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.RWMutex
	evictor Broadcaster
}

func NewBanRegistry(store Store, clock clockwork.Clock, ttl time.Duration, logger zerolog.Logger) *BanRegistry {
	return &BanRegistry{
		store:   store,
		clock:   clock,
		ttl:     ttl,
		logger:  logger.With().Str("component", "bans").Logger(),
		evictor: nopBroadcaster{},
	}
}

func (r *BanRegistry) setEvictor(b Broadcaster) {
	r.mu.Lock()
	r.evictor = b
	r.mu.Unlock()
}

func (r *BanRegistry) gateway() Broadcaster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evictor
}

// BanFromSession excludes userID from sessionID for the configured TTL and evicts the live connection.
func (r *BanRegistry) BanFromSession(ctx context.Context, sessionID, userID string) error {
	if _, err := r.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	ban := domain.SessionBan{SessionID: sessionID, UserID: userID, ExpiresAt: r.clock.Now().Add(r.ttl)}
	if err := r.store.AddSessionBan(ctx, ban); err != nil {
		return err
	}
	r.evict(sessionID, userID, domain.ReasonBanned, "You have been banned from this session")
	r.logger.Info().Str("session_id", sessionID).Str("user_id", userID).Time("expires_at", ban.ExpiresAt).Msg("session ban added")
	return nil
}

// BanPermanently adds userID to hostID's non-expiring ban set.
func (r *BanRegistry) BanPermanently(ctx context.Context, hostID, userID string) error {
	err := r.store.AddPermanentBan(ctx, domain.PermanentBan{HostID: hostID, UserID: userID, CreatedAt: r.clock.Now()})
	if err != nil {
		return err
	}
	r.logger.Info().Str("host_id", hostID).Str("user_id", userID).Msg("permanent ban added")
	return nil
}

// BanPermanentlyFromSession resolves the session's host, bans permanently and evicts.
func (r *BanRegistry) BanPermanentlyFromSession(ctx context.Context, sessionID, userID string) error {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := r.BanPermanently(ctx, session.HostID, userID); err != nil {
		return err
	}
	r.evict(sessionID, userID, domain.ReasonBanned, "You have been banned by the host")
	return nil
}

// Kick disconnects a player without banning them.
func (r *BanRegistry) Kick(_ context.Context, sessionID, userID string) error {
	if !r.evict(sessionID, userID, domain.ReasonKicked, "You have been removed from the session") {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *BanRegistry) IsBanned(ctx context.Context, sessionID, userID string) (bool, error) {
	return r.store.IsSessionBanned(ctx, sessionID, userID, r.clock.Now())
}

func (r *BanRegistry) IsPermanentlyBanned(ctx context.Context, hostID, userID string) (bool, error) {
	return r.store.IsPermanentlyBanned(ctx, hostID, userID)
}

// CheckJoin returns the auth error that prevents userID from joining session, if any.
func (r *BanRegistry) CheckJoin(ctx context.Context, session domain.Session, userID string) error {
	banned, err := r.IsBanned(ctx, session.ID, userID)
	if err != nil {
		return err
	}
	if banned {
		return domain.ErrBannedFromSession
	}
	permanent, err := r.IsPermanentlyBanned(ctx, session.HostID, userID)
	if err != nil {
		return err
	}
	if permanent {
		return domain.ErrBannedPermanently
	}
	return nil
}

func (r *BanRegistry) evict(sessionID, userID, reason, message string) bool {
	return r.gateway().Evict(sessionID, userID, domain.RolePlayer, domain.EventKicked, domain.NoticePayload{
		Reason:  reason,
		Message: message,
	})
}
