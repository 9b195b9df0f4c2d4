package domain

import "time"

// PairView is the client-facing projection of a pair. Accepted answers are never exposed.
type PairView struct {
	ID                   string          `json:"id"`
	FirstPlayerProgress  PlayerProgress  `json:"firstPlayerProgress"`
	SecondPlayerProgress *PlayerProgress `json:"secondPlayerProgress"`
	Questions            []QuestionView  `json:"questions"`
	Status               PairStatus      `json:"status"`
	PairCreatedDate      time.Time       `json:"pairCreatedDate"`
	StartGameDate        *time.Time      `json:"startGameDate"`
	FinishGameDate       *time.Time      `json:"finishGameDate"`
}

// PlayerProgress is a player's answers and running score.
type PlayerProgress struct {
	Answers []AnswerView `json:"answers"`
	Player  PlayerView   `json:"player"`
	Score   int          `json:"score"`
}

type PlayerView struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

type AnswerView struct {
	QuestionID   string       `json:"questionId"`
	AnswerStatus AnswerStatus `json:"answerStatus"`
	AddedAt      time.Time    `json:"addedAt"`
}

type QuestionView struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// View projects the pair for clients. Questions stay null until the pair is active.
func (p *Pair) View() PairView {
	view := PairView{
		ID:              p.ID,
		Status:          p.Status,
		PairCreatedDate: p.PairCreatedDate,
		StartGameDate:   cloneTime(p.StartGameDate),
		FinishGameDate:  cloneTime(p.FinishGameDate),
	}
	if p.PlayerOne != nil {
		view.FirstPlayerProgress = progressOf(p.PlayerOne)
	}
	if p.PlayerTwo != nil {
		second := progressOf(p.PlayerTwo)
		view.SecondPlayerProgress = &second
	}
	if p.Status != StatusPendingSecondPlayer {
		view.Questions = make([]QuestionView, 0, len(p.Questions))
		for _, q := range p.Questions {
			view.Questions = append(view.Questions, QuestionView{ID: q.ID, Body: q.Body})
		}
	}
	return view
}

func progressOf(player *Player) PlayerProgress {
	answers := make([]AnswerView, 0, len(player.Answers))
	for _, a := range player.Answers {
		answers = append(answers, AnswerView{
			QuestionID:   a.QuestionID,
			AnswerStatus: a.Status,
			AddedAt:      a.AddedAt,
		})
	}
	return PlayerProgress{
		Answers: answers,
		Player:  PlayerView{ID: player.ID, UserID: player.UserID},
		Score:   player.Score,
	}
}
