package domain

import "time"

// NewPendingPair opens a pair that waits for a second player.
func NewPendingPair(id string, first Player, now time.Time) *Pair {
	return &Pair{
		ID:              id,
		Status:          StatusPendingSecondPlayer,
		PlayerOne:       &first,
		PairCreatedDate: now,
	}
}

// IsLive reports whether the pair still counts as the players' current game.
func (p *Pair) IsLive() bool {
	return p.Status == StatusPendingSecondPlayer || p.Status == StatusActive
}

// HasUser reports whether userID plays in this pair.
func (p *Pair) HasUser(userID string) bool {
	_, _, ok := p.seats(userID)
	return ok
}

// Players returns the seated players in seat order.
func (p *Pair) Players() []*Player {
	players := make([]*Player, 0, 2)
	if p.PlayerOne != nil {
		players = append(players, p.PlayerOne)
	}
	if p.PlayerTwo != nil {
		players = append(players, p.PlayerTwo)
	}
	return players
}

// seats returns the user's player and the opponent (nil while pending).
func (p *Pair) seats(userID string) (*Player, *Player, bool) {
	if p.PlayerOne != nil && p.PlayerOne.UserID == userID {
		return p.PlayerOne, p.PlayerTwo, true
	}
	if p.PlayerTwo != nil && p.PlayerTwo.UserID == userID {
		return p.PlayerTwo, p.PlayerOne, true
	}
	return nil, nil, false
}

// Activate seats the second player and freezes the question set.
// It fails with ErrPairTaken unless the pair is still waiting for a second player.
func (p *Pair) Activate(second Player, questions []Question, now time.Time) error {
	if p.Status != StatusPendingSecondPlayer || p.PlayerTwo != nil {
		return ErrPairTaken
	}
	frozen := make([]Question, len(questions))
	copy(frozen, questions)

	second.Score = 0
	second.Answers = nil
	p.PlayerOne.Score = 0
	p.PlayerTwo = &second
	p.Questions = frozen
	started := now
	p.StartGameDate = &started
	p.Status = StatusActive
	return nil
}

// complete reports whether the player has answered every question.
func (p *Pair) complete(player *Player) bool {
	return player != nil && len(p.Questions) > 0 && len(player.Answers) >= len(p.Questions)
}

// RecordAnswer scores text against the player's next unanswered question.
// Completing both logs finalizes the pair; the first completion arms the grace deadline.
// Answers arriving once the deadline has passed are rejected even if the pair
// has not been finalized yet.
func (p *Pair) RecordAnswer(userID, text string, now time.Time, grace time.Duration) (AnswerResult, error) {
	if p.Status != StatusActive || p.Expired(now) {
		return AnswerResult{}, ErrNoActiveGame
	}
	player, opponent, ok := p.seats(userID)
	if !ok {
		return AnswerResult{}, ErrNoActiveGame
	}

	index := len(player.Answers)
	if index >= len(p.Questions) {
		return AnswerResult{}, ErrAlreadyComplete
	}
	question := p.Questions[index]

	status := AnswerIncorrect
	if question.Accepts(text) {
		status = AnswerCorrect
		player.Score++
	}
	player.Answers = append(player.Answers, Answer{
		PlayerID:   player.ID,
		QuestionID: question.ID,
		Position:   index,
		Status:     status,
		AddedAt:    now,
	})

	if index+1 == len(p.Questions) {
		switch {
		case p.complete(opponent):
			p.Finalize(now)
		case p.FinishingExpirationDate == nil:
			deadline := now.Add(grace)
			p.FinishingExpirationDate = &deadline
			p.FirstFinisherID = player.ID
		}
	}

	return AnswerResult{
		QuestionID:   question.ID,
		AnswerStatus: status,
		AddedAt:      now,
		Score:        player.Score,
	}, nil
}

// Expired reports whether the grace deadline of an active pair has passed.
func (p *Pair) Expired(now time.Time) bool {
	return p.Status == StatusActive &&
		p.FinishingExpirationDate != nil &&
		!p.FinishingExpirationDate.After(now)
}

// FinalizeIfExpired finalizes the pair when its grace deadline has passed.
func (p *Pair) FinalizeIfExpired(now time.Time) bool {
	if !p.Expired(now) {
		return false
	}
	return p.Finalize(now)
}

// Finalize closes an active pair. It returns false without touching the pair
// when the pair is not active, so concurrent callers finalize at most once.
func (p *Pair) Finalize(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}

	for _, player := range p.Players() {
		for index := len(player.Answers); index < len(p.Questions); index++ {
			player.Answers = append(player.Answers, Answer{
				PlayerID:   player.ID,
				QuestionID: p.Questions[index].ID,
				Position:   index,
				Status:     AnswerIncorrect,
				AddedAt:    now,
			})
		}
	}

	if p.FirstFinisherID != "" {
		for _, player := range p.Players() {
			if player.ID == p.FirstFinisherID && player.Score > 0 {
				player.Score++
			}
		}
	}

	finished := now
	p.FinishGameDate = &finished
	p.Status = StatusFinished
	return true
}

// Clone returns a deep copy so stores can mutate without sharing state with readers.
func (p *Pair) Clone() *Pair {
	if p == nil {
		return nil
	}
	out := *p
	out.PlayerOne = p.PlayerOne.clone()
	out.PlayerTwo = p.PlayerTwo.clone()
	if p.Questions != nil {
		out.Questions = make([]Question, len(p.Questions))
		for i, q := range p.Questions {
			q.CorrectAnswers = append([]string(nil), q.CorrectAnswers...)
			out.Questions[i] = q
		}
	}
	out.StartGameDate = cloneTime(p.StartGameDate)
	out.FinishGameDate = cloneTime(p.FinishGameDate)
	out.FinishingExpirationDate = cloneTime(p.FinishingExpirationDate)
	return &out
}

func (pl *Player) clone() *Player {
	if pl == nil {
		return nil
	}
	out := *pl
	if pl.Answers != nil {
		out.Answers = append([]Answer(nil), pl.Answers...)
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
