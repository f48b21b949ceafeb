package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Store is the durable app.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ app.Store = (*Store)(nil)

const sessionColumns = `id, room_code, host_id, status, quiz_ref, previous_quiz_ref, questions,
	current_question_index, score_alpha, max_participants, question_start_time, generation,
	choice_mapping, created_at, started_at, ended_at, revision`

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	questions, mapping, err := encodeSession(session)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT DO NOTHING`,
		session.ID, session.RoomCode, session.HostID, string(session.Status), session.QuizRef,
		session.PreviousQuizRef, questions, session.CurrentQuestionIndex, session.ScoreAlpha,
		session.MaxParticipants, session.QuestionStartTime, session.Generation, mapping,
		session.CreatedAt, session.StartedAt, session.EndedAt, session.Revision,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return app.ErrRoomCodeInUse
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session) error {
	questions, mapping, err := encodeSession(session)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET
		status = $2, quiz_ref = $3, previous_quiz_ref = $4, questions = $5,
		current_question_index = $6, score_alpha = $7, max_participants = $8,
		question_start_time = $9, generation = $10, choice_mapping = $11,
		started_at = $12, ended_at = $13, revision = $14
		WHERE id = $1`,
		session.ID, string(session.Status), session.QuizRef, session.PreviousQuizRef, questions,
		session.CurrentQuestionIndex, session.ScoreAlpha, session.MaxParticipants,
		session.QuestionStartTime, session.Generation, mapping, session.StartedAt, session.EndedAt,
		session.Revision,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) FindSessionByRoomCode(ctx context.Context, roomCode string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE room_code = $1 AND status <> 'ended'`, roomCode)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session by room code: %w", err)
	}
	return session, nil
}

func (s *Store) UpsertParticipant(ctx context.Context, p domain.Participant) (domain.Participant, error) {
	err := s.pool.QueryRow(ctx, `INSERT INTO participants (session_id, user_id, display_name, joined_at, source_address, score)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (session_id, user_id) DO UPDATE
			SET display_name = EXCLUDED.display_name, source_address = EXCLUDED.source_address
		RETURNING joined_at, score`,
		p.SessionID, p.UserID, p.DisplayName, p.JoinedAt, p.SourceAddress,
	).Scan(&p.JoinedAt, &p.Score)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("upsert participant: %w", err)
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	p := domain.Participant{SessionID: sessionID, UserID: userID}
	err := s.pool.QueryRow(ctx, `SELECT display_name, joined_at, source_address, score
		FROM participants WHERE session_id = $1 AND user_id = $2`, sessionID, userID,
	).Scan(&p.DisplayName, &p.JoinedAt, &p.SourceAddress, &p.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, display_name, joined_at, source_address, score
		FROM participants WHERE session_id = $1 ORDER BY joined_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p := domain.Participant{SessionID: sessionID}
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.JoinedAt, &p.SourceAddress, &p.Score); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountParticipants(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM participants WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

// RecordAnswer inserts the answer and credits its score in one transaction.
func (s *Store) RecordAnswer(ctx context.Context, a domain.Answer) (int, error) {
	var total int
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO answers
			(session_id, generation, question_index, user_id, choice_id, is_correct, time_taken, score, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING`,
			a.SessionID, a.Generation, a.QuestionIndex, a.UserID, a.ChoiceID, a.IsCorrect,
			a.TimeTakenSeconds, a.Score, a.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyAnswered
		}
		err = tx.QueryRow(ctx, `UPDATE participants SET score = score + $3
			WHERE session_id = $1 AND user_id = $2 RETURNING score`, a.SessionID, a.UserID, a.Score,
		).Scan(&total)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return fmt.Errorf("add score: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string, generation int64, questionIndex int) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, choice_id, is_correct, time_taken, score, submitted_at
		FROM answers WHERE session_id = $1 AND generation = $2 AND question_index = $3
		ORDER BY submitted_at`, sessionID, generation, questionIndex)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		a := domain.Answer{SessionID: sessionID, Generation: generation, QuestionIndex: questionIndex}
		if err := rows.Scan(&a.UserID, &a.ChoiceID, &a.IsCorrect, &a.TimeTakenSeconds, &a.Score, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ResetProgress(ctx context.Context, sessionID string) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("reset answers: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE participants SET score = 0 WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("reset scores: %w", err)
		}
		return nil
	})
}

func (s *Store) AddSessionBan(ctx context.Context, ban domain.SessionBan) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO session_bans (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		ban.SessionID, ban.UserID, ban.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session ban: %w", err)
	}
	return nil
}

func (s *Store) IsSessionBanned(ctx context.Context, sessionID, userID string, now time.Time) (bool, error) {
	var banned bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM session_bans WHERE session_id = $1 AND user_id = $2 AND expires_at > $3)`,
		sessionID, userID, now).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("check session ban: %w", err)
	}
	return banned, nil
}

func (s *Store) AddPermanentBan(ctx context.Context, ban domain.PermanentBan) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO permanent_bans (host_id, user_id, created_at)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, ban.HostID, ban.UserID, ban.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert permanent ban: %w", err)
	}
	return nil
}

func (s *Store) IsPermanentlyBanned(ctx context.Context, hostID, userID string) (bool, error) {
	var banned bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM permanent_bans WHERE host_id = $1 AND user_id = $2)`, hostID, userID).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("check permanent ban: %w", err)
	}
	return banned, nil
}

func encodeSession(session domain.Session) ([]byte, []byte, error) {
	questions, err := json.Marshal(session.Questions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal questions: %w", err)
	}
	var mapping []byte
	if session.ChoiceMapping != nil {
		if mapping, err = json.Marshal(session.ChoiceMapping); err != nil {
			return nil, nil, fmt.Errorf("marshal choice mapping: %w", err)
		}
	}
	return questions, mapping, nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		session   domain.Session
		status    string
		questions []byte
		mapping   []byte
	)
	err := row.Scan(
		&session.ID, &session.RoomCode, &session.HostID, &status, &session.QuizRef,
		&session.PreviousQuizRef, &questions, &session.CurrentQuestionIndex, &session.ScoreAlpha,
		&session.MaxParticipants, &session.QuestionStartTime, &session.Generation, &mapping,
		&session.CreatedAt, &session.StartedAt, &session.EndedAt, &session.Revision,
	)
	if err != nil {
		return domain.Session{}, err
	}
	session.Status = domain.Status(status)
	if err := json.Unmarshal(questions, &session.Questions); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &session.ChoiceMapping); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal choice mapping: %w", err)
		}
	}
	return session, nil
}
