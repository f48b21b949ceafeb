package domain

import "errors"

// Kind is the machine-readable error category surfaced to callers.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindState      Kind = "state_error"
	KindNotFound   Kind = "not_found"
	KindRateLimit  Kind = "rate_limited"
	KindInternal   Kind = "internal_error"
)

// Error is a categorized domain error. Sentinels below are compared by identity via errors.Is.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrMissingFields = newError(KindValidation, "MissingFields", "choiceId and questionIndex are required")
	ErrInvalidChoice = newError(KindValidation, "InvalidChoice", "choice is out of range")
	ErrTooEarly      = newError(KindValidation, "TooEarly", "answer submitted before the question started")
	ErrTooLate       = newError(KindValidation, "TooLate", "answer submitted after the time limit")
	ErrInvalidInput  = newError(KindValidation, "InvalidInput", "malformed request")

	ErrInvalidToken      = newError(KindAuth, "InvalidToken", "invalid token")
	ErrTokenExpired      = newError(KindAuth, "TokenExpired", "token expired")
	ErrBannedFromSession = newError(KindAuth, "BannedFromSession", "you are banned from this session")
	ErrBannedPermanently = newError(KindAuth, "BannedPermanently", "you are banned from this host's sessions")
	ErrNotHost           = newError(KindAuth, "NotHost", "only the session host may connect as host")
	ErrUnauthorized      = newError(KindAuth, "Unauthorized", "unauthorized")

	ErrInvalidTransition   = newError(KindState, "InvalidTransition", "action not allowed in the current phase")
	ErrNotAcceptingAnswers = newError(KindState, "NotAcceptingAnswers", "question is not accepting answers")
	ErrAlreadyAnswered     = newError(KindState, "AlreadyAnswered", "answer already submitted for this question")
	ErrSessionEnded        = newError(KindState, "SessionEnded", "session has ended")
	ErrSessionFull         = newError(KindState, "SessionFull", "session is full")
	ErrNotJoined           = newError(KindState, "NotJoined", "join a session first")

	ErrSessionNotFound     = newError(KindNotFound, "SessionNotFound", "quiz session not found")
	ErrRoomNotFound        = newError(KindNotFound, "RoomNotFound", "room code not found")
	ErrParticipantNotFound = newError(KindNotFound, "ParticipantNotFound", "participant not found in session")
	ErrQuestionNotFound    = newError(KindNotFound, "QuestionNotFound", "question not found")
	ErrConnectionNotFound  = newError(KindNotFound, "ConnectionNotFound", "connection not found")

	ErrRateLimited = newError(KindRateLimit, "RateLimited", "too many requests, slow down")

	ErrRoomCodeExhausted = newError(KindInternal, "RoomCodeExhausted", "could not allocate a unique room code")
	ErrInternal          = newError(KindInternal, "InternalError", "internal error")
)

// KindOf returns the category of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the specific error code of err, defaulting to InternalError.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrInternal.Code
}

// PublicMessage returns a message safe to show clients; non-domain errors are masked.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ErrInternal.Message
}
