package domain

import "errors"

var (
	// ErrUnauthenticated is returned when the caller identity is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAlreadyInGame is returned when a user with a pending or active pair tries to connect again.
	ErrAlreadyInGame = errors.New("user is already participating in a pair")
	// ErrNoActiveGame is returned when a user submits an answer without an active pair.
	ErrNoActiveGame = errors.New("no active pair for user")
	// ErrForbidden is returned when a user reads a pair they do not play in.
	ErrForbidden = errors.New("user is not a participant of this pair")
	// ErrPairNotFound is returned for unknown pair ids and when a user has no current pair.
	ErrPairNotFound = errors.New("pair not found")
	// ErrInvalidID indicates a malformed pair id.
	ErrInvalidID = errors.New("invalid pair id format")
	// ErrInsufficientQuestions means the question bank cannot fill a pair.
	ErrInsufficientQuestions = errors.New("not enough published questions")
	// ErrAlreadyComplete is returned when a player has answered every question already.
	ErrAlreadyComplete = errors.New("player has already answered all questions")
	// ErrInvalidAnswer indicates an empty or malformed answer payload.
	ErrInvalidAnswer = errors.New("answer must be a non-empty string")

	// ErrPairTaken is returned when a claim loses against another player.
	ErrPairTaken = errors.New("pair is no longer waiting for a second player")
	// ErrPairNotActive is returned by mutations that require an active pair.
	ErrPairNotActive = errors.New("pair is not active")
)
