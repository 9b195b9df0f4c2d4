package domain

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func activePair(t *testing.T) *Pair {
	t.Helper()
	pair := NewPendingPair("pair-1", Player{ID: "p1", UserID: "alice"}, t0)
	questions := make([]Question, 0, DefaultQuestionsPerPair)
	for _, id := range []string{"q1", "q2", "q3", "q4", "q5"} {
		questions = append(questions, Question{ID: id, Body: "body " + id, CorrectAnswers: []string{"yes", "Yes"}, Published: true})
	}
	if err := pair.Activate(Player{ID: "p2", UserID: "bob"}, questions, t0); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return pair
}

func answer(t *testing.T, pair *Pair, userID, text string, at time.Time) AnswerResult {
	t.Helper()
	res, err := pair.RecordAnswer(userID, text, at, DefaultGracePeriod)
	if err != nil {
		t.Fatalf("answer %s: %v", userID, err)
	}
	return res
}

func TestActivateOnlyOnce(t *testing.T) {
	pair := activePair(t)
	if pair.Status != StatusActive || pair.StartGameDate == nil {
		t.Fatalf("expected active pair with start date, got %+v", pair)
	}
	if err := pair.Activate(Player{ID: "p3", UserID: "carol"}, nil, t0); err != ErrPairTaken {
		t.Fatalf("expected ErrPairTaken, got %v", err)
	}
	if pair.PlayerTwo.UserID != "bob" {
		t.Fatalf("second player must not change, got %s", pair.PlayerTwo.UserID)
	}
}

func TestRecordAnswerMatchesExactly(t *testing.T) {
	pair := activePair(t)

	res := answer(t, pair, "alice", "yes", t0)
	if res.AnswerStatus != AnswerCorrect || res.Score != 1 || res.QuestionID != "q1" {
		t.Fatalf("unexpected result %+v", res)
	}
	res = answer(t, pair, "alice", "YES", t0)
	if res.AnswerStatus != AnswerIncorrect || res.Score != 1 || res.QuestionID != "q2" {
		t.Fatalf("case-sensitive comparison expected, got %+v", res)
	}
	res = answer(t, pair, "alice", "Yes", t0)
	if res.AnswerStatus != AnswerCorrect || res.QuestionID != "q3" {
		t.Fatalf("any accepted answer should match, got %+v", res)
	}
	if got := pair.PlayerOne.Answers[2].Position; got != 2 {
		t.Fatalf("expected position 2, got %d", got)
	}
}

func TestFirstFinisherArmsDeadlineOnce(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "yes", t0.Add(time.Duration(i)*time.Second))
	}
	if pair.FinishingExpirationDate == nil {
		t.Fatalf("expected deadline to be armed")
	}
	want := t0.Add(4*time.Second + DefaultGracePeriod)
	if !pair.FinishingExpirationDate.Equal(want) {
		t.Fatalf("expected deadline %v, got %v", want, pair.FinishingExpirationDate)
	}
	if pair.FirstFinisherID != "p1" {
		t.Fatalf("expected p1 as first finisher, got %q", pair.FirstFinisherID)
	}
	if _, err := pair.RecordAnswer("alice", "yes", t0, DefaultGracePeriod); err != ErrAlreadyComplete {
		t.Fatalf("expected ErrAlreadyComplete, got %v", err)
	}
	if pair.Expired(want.Add(-time.Millisecond)) {
		t.Fatalf("pair must not expire before the deadline")
	}
	if !pair.Expired(want) {
		t.Fatalf("pair must expire at the deadline")
	}
}

func TestSecondCompletionFinalizesWithBonus(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "yes", t0)
	}
	for i := 0; i < 4; i++ {
		answer(t, pair, "bob", "yes", t0.Add(time.Second))
	}
	if pair.Status != StatusActive {
		t.Fatalf("pair must stay active until bob completes")
	}
	answer(t, pair, "bob", "no", t0.Add(2*time.Second))

	if pair.Status != StatusFinished || pair.FinishGameDate == nil {
		t.Fatalf("expected finished pair, got %s", pair.Status)
	}
	if pair.PlayerOne.Score != 6 || pair.PlayerTwo.Score != 4 {
		t.Fatalf("expected 6:4, got %d:%d", pair.PlayerOne.Score, pair.PlayerTwo.Score)
	}
	if !pair.FinishingExpirationDate.Equal(t0.Add(DefaultGracePeriod)) {
		t.Fatalf("deadline must not move, got %v", pair.FinishingExpirationDate)
	}
}

func TestFinalizeFillsMissingAnswers(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "yes", t0)
	}
	for i := 0; i < 3; i++ {
		answer(t, pair, "bob", "yes", t0)
	}

	end := t0.Add(DefaultGracePeriod)
	if !pair.Finalize(end) {
		t.Fatalf("expected finalize to run")
	}
	if pair.PlayerOne.Score != 6 || pair.PlayerTwo.Score != 3 {
		t.Fatalf("expected 6:3, got %d:%d", pair.PlayerOne.Score, pair.PlayerTwo.Score)
	}
	if len(pair.PlayerTwo.Answers) != 5 {
		t.Fatalf("expected 5 answers for bob, got %d", len(pair.PlayerTwo.Answers))
	}
	for _, a := range pair.PlayerTwo.Answers[3:] {
		if a.Status != AnswerIncorrect || !a.AddedAt.Equal(end) {
			t.Fatalf("expected synthesized incorrect answer, got %+v", a)
		}
	}

	if pair.Finalize(end.Add(time.Second)) {
		t.Fatalf("second finalize must be a no-op")
	}
	if pair.PlayerOne.Score != 6 || !pair.FinishGameDate.Equal(end) {
		t.Fatalf("second finalize changed state: score=%d finish=%v", pair.PlayerOne.Score, pair.FinishGameDate)
	}
}

func TestNoBonusForZeroScore(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "wrong", t0)
	}
	answer(t, pair, "bob", "yes", t0)
	pair.Finalize(t0.Add(DefaultGracePeriod))

	if pair.PlayerOne.Score != 0 || pair.PlayerTwo.Score != 1 {
		t.Fatalf("expected 0:1, got %d:%d", pair.PlayerOne.Score, pair.PlayerTwo.Score)
	}
}

func TestNoBonusWithoutFirstFinisher(t *testing.T) {
	pair := activePair(t)
	answer(t, pair, "alice", "yes", t0)
	pair.Finalize(t0)
	if pair.PlayerOne.Score != 1 || pair.PlayerTwo.Score != 0 {
		t.Fatalf("expected 1:0, got %d:%d", pair.PlayerOne.Score, pair.PlayerTwo.Score)
	}
}

func TestRecordAnswerRequiresActivePair(t *testing.T) {
	pending := NewPendingPair("pair-2", Player{ID: "p1", UserID: "alice"}, t0)
	if _, err := pending.RecordAnswer("alice", "yes", t0, DefaultGracePeriod); err != ErrNoActiveGame {
		t.Fatalf("expected ErrNoActiveGame, got %v", err)
	}
	pair := activePair(t)
	if _, err := pair.RecordAnswer("mallory", "yes", t0, DefaultGracePeriod); err != ErrNoActiveGame {
		t.Fatalf("expected ErrNoActiveGame for stranger, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	pair := activePair(t)
	answer(t, pair, "alice", "yes", t0)

	clone := pair.Clone()
	answer(t, clone, "alice", "yes", t0)
	clone.Questions[0].CorrectAnswers[0] = "changed"

	if len(pair.PlayerOne.Answers) != 1 || pair.PlayerOne.Score != 1 {
		t.Fatalf("original mutated through clone: %+v", pair.PlayerOne)
	}
	if pair.Questions[0].CorrectAnswers[0] != "yes" {
		t.Fatalf("questions shared between clones")
	}
}

func TestViewHidesQuestionsWhilePending(t *testing.T) {
	pending := NewPendingPair("pair-3", Player{ID: "p1", UserID: "alice"}, t0)
	view := pending.View()
	if view.Questions != nil || view.SecondPlayerProgress != nil {
		t.Fatalf("pending view must have null questions and second player, got %+v", view)
	}

	active := activePair(t).View()
	if len(active.Questions) != 5 || active.SecondPlayerProgress == nil {
		t.Fatalf("active view incomplete: %+v", active)
	}
}

func TestRecordAnswerRejectedAfterDeadline(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "yes", t0)
	}
	late := t0.Add(DefaultGracePeriod + time.Second)
	for i := 0; i < 5; i++ {
		if _, err := pair.RecordAnswer("bob", "yes", late, DefaultGracePeriod); err != ErrNoActiveGame {
			t.Fatalf("expected ErrNoActiveGame after the deadline, got %v", err)
		}
	}
	if len(pair.PlayerTwo.Answers) != 0 || pair.PlayerTwo.Score != 0 {
		t.Fatalf("late answers must not be recorded, got %d answers score %d", len(pair.PlayerTwo.Answers), pair.PlayerTwo.Score)
	}

	if !pair.FinalizeIfExpired(late) {
		t.Fatalf("expected expired pair to finalize")
	}
	if pair.PlayerOne.Score != 6 || pair.PlayerTwo.Score != 0 {
		t.Fatalf("expected 6:0, got %d:%d", pair.PlayerOne.Score, pair.PlayerTwo.Score)
	}
	if pair.FinalizeIfExpired(late) {
		t.Fatalf("finalize must happen once")
	}
}

func TestFinalizeIfExpiredBeforeDeadline(t *testing.T) {
	pair := activePair(t)
	for i := 0; i < 5; i++ {
		answer(t, pair, "alice", "yes", t0)
	}
	if pair.FinalizeIfExpired(t0.Add(time.Second)) {
		t.Fatalf("pair must not finalize before the deadline")
	}
	if pair.Status != StatusActive {
		t.Fatalf("expected active pair, got %s", pair.Status)
	}
}
