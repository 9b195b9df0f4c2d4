package domain

import "time"

// PairStatus is the lifecycle state of a pair.
type PairStatus string

const (
	StatusPendingSecondPlayer PairStatus = "PendingSecondPlayer"
	StatusActive              PairStatus = "Active"
	StatusFinished            PairStatus = "Finished"
)

// AnswerStatus is the outcome of a single answer.
type AnswerStatus string

const (
	AnswerCorrect   AnswerStatus = "Correct"
	AnswerIncorrect AnswerStatus = "Incorrect"
)

const (
	// DefaultQuestionsPerPair is the number of questions frozen into a pair at activation.
	DefaultQuestionsPerPair = 5
	// DefaultGracePeriod is how long the second player may keep answering after the first one finishes.
	DefaultGracePeriod = 10 * time.Second
)

// Question is a published trivia question owned by the question bank.
type Question struct {
	ID             string   `json:"id"`
	Body           string   `json:"body"`
	CorrectAnswers []string `json:"correctAnswers"`
	Published      bool     `json:"published"`
}

// Accepts reports whether text exactly matches one of the accepted answers.
func (q Question) Accepts(text string) bool {
	for _, candidate := range q.CorrectAnswers {
		if candidate == text {
			return true
		}
	}
	return false
}

// Answer is one entry of a player's append-only answer log.
// Position is the index of the question it targets.
type Answer struct {
	PlayerID   string       `json:"playerId"`
	QuestionID string       `json:"questionId"`
	Position   int          `json:"position"`
	Status     AnswerStatus `json:"answerStatus"`
	AddedAt    time.Time    `json:"addedAt"`
}

// Player is a user's seat in a single pair.
type Player struct {
	ID      string   `json:"id"`
	UserID  string   `json:"userId"`
	Score   int      `json:"score"`
	Answers []Answer `json:"answers"`
}

// Pair is the aggregate root of a two-player quiz duel.
type Pair struct {
	ID                      string     `json:"id"`
	Status                  PairStatus `json:"status"`
	PlayerOne               *Player    `json:"playerOne"`
	PlayerTwo               *Player    `json:"playerTwo,omitempty"`
	Questions               []Question `json:"questions,omitempty"`
	FirstFinisherID         string     `json:"firstFinisherId,omitempty"`
	PairCreatedDate         time.Time  `json:"pairCreatedDate"`
	StartGameDate           *time.Time `json:"startGameDate,omitempty"`
	FinishGameDate          *time.Time `json:"finishGameDate,omitempty"`
	FinishingExpirationDate *time.Time `json:"finishingExpirationDate,omitempty"`
}

// AnswerResult is returned to a player after a submission.
type AnswerResult struct {
	QuestionID   string       `json:"questionId"`
	AnswerStatus AnswerStatus `json:"answerStatus"`
	AddedAt      time.Time    `json:"addedAt"`
	Score        int          `json:"score"`
}
