package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"pair-quiz-service/internal/domain"
)

type pairRow struct {
	bun.BaseModel `bun:"table:quiz_pairs,alias:qp"`

	ID                      string            `bun:"id,pk,type:uuid"`
	Status                  string            `bun:"status,notnull"`
	Questions               []domain.Question `bun:"questions,type:jsonb"`
	FirstFinisherID         string            `bun:"first_finisher_id,nullzero"`
	PairCreatedDate         time.Time         `bun:"pair_created_date,notnull"`
	StartGameDate           *time.Time        `bun:"start_game_date"`
	FinishGameDate          *time.Time        `bun:"finish_game_date"`
	FinishingExpirationDate *time.Time        `bun:"finishing_expiration_date"`
}

type playerRow struct {
	bun.BaseModel `bun:"table:quiz_players,alias:pl"`

	ID     string `bun:"id,pk"`
	PairID string `bun:"pair_id,type:uuid,notnull"`
	UserID string `bun:"user_id,notnull"`
	Seat   int    `bun:"seat,notnull"`
	Score  int    `bun:"score,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:quiz_answers,alias:qa"`

	PlayerID   string    `bun:"player_id,pk"`
	Position   int       `bun:"position,pk"`
	PairID     string    `bun:"pair_id,type:uuid,notnull"`
	QuestionID string    `bun:"question_id,notnull"`
	Status     string    `bun:"status,notnull"`
	AddedAt    time.Time `bun:"added_at,notnull"`
}

// PairStore keeps pairs in Postgres. A pair spans three tables; Update locks
// the quiz_pairs row with SELECT ... FOR UPDATE for the whole transaction.
type PairStore struct {
	db *bun.DB
}

func NewPairStore(db *bun.DB) *PairStore {
	return &PairStore{db: db}
}

func (s *PairStore) Create(ctx context.Context, pair *domain.Pair) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := toPairRow(pair)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		return savePlayers(ctx, tx, pair)
	})
	if err != nil {
		return fmt.Errorf("create pair %s: %w", pair.ID, err)
	}
	return nil
}

func (s *PairStore) Get(ctx context.Context, id string) (*domain.Pair, error) {
	return load(ctx, s.db, id, false)
}

func (s *PairStore) FindLiveByUser(ctx context.Context, userID string) (*domain.Pair, error) {
	var id string
	err := s.db.NewSelect().
		Model((*pairRow)(nil)).
		ColumnExpr("qp.id").
		Join("JOIN quiz_players AS pl ON pl.pair_id = qp.id").
		Where("pl.user_id = ?", userID).
		Where("qp.status IN (?)", bun.In([]string{
			string(domain.StatusPendingSecondPlayer),
			string(domain.StatusActive),
		})).
		OrderExpr("qp.pair_created_date DESC").
		Limit(1).
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find live pair: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *PairStore) ListPending(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*pairRow)(nil)).
		Column("id").
		Where("status = ?", string(domain.StatusPendingSecondPlayer)).
		Order("pair_created_date ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list pending pairs: %w", err)
	}
	return ids, nil
}

func (s *PairStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*pairRow)(nil)).
		Column("id").
		Where("status = ?", string(domain.StatusActive)).
		Where("finishing_expiration_date <= ?", now).
		Order("finishing_expiration_date ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list expired pairs: %w", err)
	}
	return ids, nil
}

func (s *PairStore) Update(ctx context.Context, id string, fn func(*domain.Pair) error) (*domain.Pair, error) {
	var updated *domain.Pair
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pair, err := load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(pair); err != nil {
			return err
		}
		row := toPairRow(pair)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update pair %s: %w", id, err)
		}
		if err := savePlayers(ctx, tx, pair); err != nil {
			return err
		}
		updated = pair
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func load(ctx context.Context, db bun.IDB, id string, forUpdate bool) (*domain.Pair, error) {
	var row pairRow
	q := db.NewSelect().Model(&row).Where("id = ?", id)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPairNotFound
		}
		return nil, fmt.Errorf("load pair %s: %w", id, err)
	}

	var players []playerRow
	if err := db.NewSelect().Model(&players).Where("pair_id = ?", id).Order("seat ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load players of pair %s: %w", id, err)
	}
	var answers []answerRow
	if err := db.NewSelect().Model(&answers).Where("pair_id = ?", id).Order("position ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load answers of pair %s: %w", id, err)
	}

	pair := &domain.Pair{
		ID:                      row.ID,
		Status:                  domain.PairStatus(row.Status),
		Questions:               row.Questions,
		FirstFinisherID:         row.FirstFinisherID,
		PairCreatedDate:         row.PairCreatedDate,
		StartGameDate:           row.StartGameDate,
		FinishGameDate:          row.FinishGameDate,
		FinishingExpirationDate: row.FinishingExpirationDate,
	}
	for _, p := range players {
		player := &domain.Player{ID: p.ID, UserID: p.UserID, Score: p.Score}
		for _, a := range answers {
			if a.PlayerID != p.ID {
				continue
			}
			player.Answers = append(player.Answers, domain.Answer{
				PlayerID:   a.PlayerID,
				QuestionID: a.QuestionID,
				Position:   a.Position,
				Status:     domain.AnswerStatus(a.Status),
				AddedAt:    a.AddedAt,
			})
		}
		if p.Seat == 1 {
			pair.PlayerOne = player
		} else {
			pair.PlayerTwo = player
		}
	}
	return pair, nil
}

// savePlayers upserts scores and appends answers not stored yet. Answers are
// append-only so existing rows are never rewritten.
func savePlayers(ctx context.Context, tx bun.Tx, pair *domain.Pair) error {
	var (
		players []playerRow
		answers []answerRow
	)
	for seat, player := range []*domain.Player{pair.PlayerOne, pair.PlayerTwo} {
		if player == nil {
			continue
		}
		players = append(players, playerRow{
			ID:     player.ID,
			PairID: pair.ID,
			UserID: player.UserID,
			Seat:   seat + 1,
			Score:  player.Score,
		})
		for _, a := range player.Answers {
			answers = append(answers, answerRow{
				PlayerID:   player.ID,
				Position:   a.Position,
				PairID:     pair.ID,
				QuestionID: a.QuestionID,
				Status:     string(a.Status),
				AddedAt:    a.AddedAt,
			})
		}
	}

	if len(players) > 0 {
		_, err := tx.NewInsert().
			Model(&players).
			On("CONFLICT (id) DO UPDATE").
			Set("score = EXCLUDED.score").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save players of pair %s: %w", pair.ID, err)
		}
	}
	if len(answers) > 0 {
		_, err := tx.NewInsert().
			Model(&answers).
			On("CONFLICT (player_id, position) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save answers of pair %s: %w", pair.ID, err)
		}
	}
	return nil
}

func toPairRow(pair *domain.Pair) pairRow {
	return pairRow{
		ID:                      pair.ID,
		Status:                  string(pair.Status),
		Questions:               pair.Questions,
		FirstFinisherID:         pair.FirstFinisherID,
		PairCreatedDate:         pair.PairCreatedDate,
		StartGameDate:           pair.StartGameDate,
		FinishGameDate:          pair.FinishGameDate,
		FinishingExpirationDate: pair.FinishingExpirationDate,
	}
}
