// Package cacheaside decorates the durable store with a best-effort cache.
// Reads try the cache first and repopulate it on a miss; writes always hit the
// store and then refresh the cache, logging cache failures instead of returning them.
// Snapshots carry a revision and the cache refuses to go backwards, so a slow
// read-through cannot overwrite a newer write.
package cacheaside

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type Store struct {
	app.Store
	cache       app.Cache
	clock       clockwork.Clock
	snapshotTTL time.Duration
	logger      zerolog.Logger
	sf          singleflight.Group
}

func New(store app.Store, cache app.Cache, clock clockwork.Clock, snapshotTTL time.Duration, logger zerolog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		Store:       store,
		cache:       cache,
		clock:       clock,
		snapshotTTL: snapshotTTL,
		logger:      logger.With().Str("component", "cacheaside").Logger(),
	}
}

var (
	_ app.Store              = (*Store)(nil)
	_ app.FreshSessionReader = (*Store)(nil)
)

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, ok, err := s.cache.GetSession(ctx, sessionID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache read failed, falling back to store")
	} else if ok {
		return session, nil
	}

	result, err, _ := s.sf.Do(sessionID, func() (interface{}, error) {
		session, err := s.Store.GetSession(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		s.refresh(ctx, session)
		return session, nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return result.(domain.Session), nil
}

// GetSessionFresh bypasses the cache and refreshes it with the durable record.
func (s *Store) GetSessionFresh(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.Store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	s.refresh(ctx, session)
	return session, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if err := s.Store.CreateSession(ctx, session); err != nil {
		return err
	}
	s.refresh(ctx, session)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) error {
	if err := s.Store.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.refresh(ctx, session)
	return nil
}

func (s *Store) AddSessionBan(ctx context.Context, ban domain.SessionBan) error {
	if err := s.Store.AddSessionBan(ctx, ban); err != nil {
		return err
	}
	ttl := ban.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.AddSessionBan(ctx, ban.SessionID, ban.UserID, ttl); err != nil {
		s.logger.Warn().Err(err).Str("session_id", ban.SessionID).Str("user_id", ban.UserID).Msg("cache ban write failed")
	}
	return nil
}

// IsSessionBanned trusts a positive cache answer; negatives are confirmed against the store.
func (s *Store) IsSessionBanned(ctx context.Context, sessionID, userID string, now time.Time) (bool, error) {
	banned, err := s.cache.IsSessionBanned(ctx, sessionID, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("cache ban read failed")
	} else if banned {
		return true, nil
	}
	return s.Store.IsSessionBanned(ctx, sessionID, userID, now)
}

func (s *Store) refresh(ctx context.Context, session domain.Session) {
	if err := s.cache.SetSession(ctx, session, s.snapshotTTL); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("cache write failed")
		// never leave an older snapshot behind
		if err := s.cache.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Debug().Err(err).Str("session_id", session.ID).Msg("cache invalidate failed")
		}
	}
}
