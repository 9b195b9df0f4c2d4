package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/infra/postgres"
	pgmigrations "pair-quiz-service/internal/infra/postgres/migrations"
	infraredis "pair-quiz-service/internal/infra/redis"
)

type seededQuestion struct {
	body    string
	answers []string
}

var seed = []seededQuestion{
	{"What is 2 + 2?", []string{"4", "four"}},
	{"Capital of France?", []string{"Paris"}},
	{"Red planet?", []string{"Mars"}},
	{"Largest ocean?", []string{"Pacific"}},
	{"Sides of a hexagon?", []string{"6"}},
	{"Author of Hamlet?", []string{"Shakespeare"}},
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	db          *bun.DB
	pool        *pgxpool.Pool
	redisClient *goredis.Client
}

func setup(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := migrateAndSeed(t, ctx, pgURL)
	t.Cleanup(func() { db.Close() })

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	return env{db: db, pool: pool, redisClient: redisClient}
}

func TestPairGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	clk := &clock{now: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
	bank := infraredis.NewQuestionCache(e.redisClient, postgres.NewQuestionLoader(e.pool), 5*time.Minute)
	pairs := postgres.NewPairStore(e.db)
	hub := infraredis.NewHub(e.redisClient)
	service := app.NewPairService(
		pairs,
		app.NewRandomAssigner(bank, domain.DefaultQuestionsPerPair),
		infraredis.NewUserLocker(e.redisClient, 5*time.Second),
		hub,
		domain.DefaultGracePeriod,
	).WithClock(clk.Now)
	finalizer := app.NewFinalizer(pairs, hub, time.Second, 10, 2).WithClock(clk.Now)

	pending, err := service.Connect(ctx, "alice")
	if err != nil {
		t.Fatalf("alice connect: %v", err)
	}
	if pending.Status != domain.StatusPendingSecondPlayer {
		t.Fatalf("expected pending pair, got %s", pending.Status)
	}
	if _, err := service.Connect(ctx, "alice"); !errors.Is(err, domain.ErrAlreadyInGame) {
		t.Fatalf("expected ErrAlreadyInGame, got %v", err)
	}

	active, err := service.Connect(ctx, "bob")
	if err != nil {
		t.Fatalf("bob connect: %v", err)
	}
	if active.ID != pending.ID || active.Status != domain.StatusActive || len(active.Questions) != domain.DefaultQuestionsPerPair {
		t.Fatalf("unexpected active pair %+v", active)
	}

	answers := correctAnswers()
	for _, q := range active.Questions {
		clk.Advance(time.Second)
		result, err := service.SubmitAnswer(ctx, "alice", answers[q.Body])
		if err != nil {
			t.Fatalf("alice answer: %v", err)
		}
		if result.AnswerStatus != domain.AnswerCorrect {
			t.Fatalf("expected correct answer for %q", q.Body)
		}
	}
	if _, err := service.SubmitAnswer(ctx, "bob", "nope"); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	if n, err := finalizer.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to finalize before the deadline, got %d %v", n, err)
	}
	clk.Advance(domain.DefaultGracePeriod)
	if n, err := finalizer.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("expected one finalized pair, got %d %v", n, err)
	}
	if n, _ := finalizer.Sweep(ctx); n != 0 {
		t.Fatalf("finalize must not run twice, got %d", n)
	}

	final, err := service.GetByID(ctx, active.ID, "bob")
	if err != nil {
		t.Fatalf("get pair: %v", err)
	}
	if final.Status != domain.StatusFinished || final.FinishGameDate == nil {
		t.Fatalf("expected finished pair, got %+v", final)
	}
	if final.FirstPlayerProgress.Score != 6 || final.SecondPlayerProgress.Score != 0 {
		t.Fatalf("expected 6:0, got %d:%d", final.FirstPlayerProgress.Score, final.SecondPlayerProgress.Score)
	}
	if got := len(final.SecondPlayerProgress.Answers); got != domain.DefaultQuestionsPerPair {
		t.Fatalf("expected bob's answers to be filled up, got %d", got)
	}
	for _, a := range final.SecondPlayerProgress.Answers {
		if a.AnswerStatus != domain.AnswerIncorrect {
			t.Fatalf("expected only incorrect answers for bob, got %+v", a)
		}
	}
	if _, err := service.GetCurrent(ctx, "alice"); !errors.Is(err, domain.ErrPairNotFound) {
		t.Fatalf("expected no current pair after finish, got %v", err)
	}
}

func TestPostgresUpdateSerializesClaims(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	pairs := postgres.NewPairStore(e.db)
	now := time.Now().UTC()

	pairID := "4c1e9b8e-6f1d-4c55-9d57-0b1f2ad3f0a1"
	if err := pairs.Create(ctx, domain.NewPendingPair(pairID, domain.Player{ID: "p1", UserID: "alice"}, now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	questions, err := postgres.NewQuestionLoader(e.pool).LoadPublished(ctx)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != len(seed) {
		t.Fatalf("expected %d published questions, got %d", len(seed), len(questions))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := domain.Player{ID: fmt.Sprintf("c%d", i), UserID: fmt.Sprintf("challenger-%d", i)}
			_, err := pairs.Update(ctx, pairID, func(p *domain.Pair) error {
				return p.Activate(player, questions[:domain.DefaultQuestionsPerPair], now)
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrPairTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one claim to win, got %d", winners)
	}

	pair, err := pairs.Get(ctx, pairID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pair.Status != domain.StatusActive || pair.PlayerTwo == nil || len(pair.Questions) != domain.DefaultQuestionsPerPair {
		t.Fatalf("unexpected stored pair %+v", pair)
	}
}

func TestPostgresUserLockerSerializesSameUser(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	locker := postgres.NewUserLocker(e.pool)

	unlock, err := locker.Lock(ctx, "alice")
	if err != nil {
		t.Fatalf("lock alice: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(waitCtx, "alice"); err == nil {
		t.Fatalf("expected second lock for alice to wait until the context expired")
	}

	unlockBob, err := locker.Lock(ctx, "bob")
	if err != nil {
		t.Fatalf("lock bob while alice is held: %v", err)
	}
	unlockBob()

	unlock()
	again, err := locker.Lock(ctx, "alice")
	if err != nil {
		t.Fatalf("relock alice after release: %v", err)
	}
	again()
}

func correctAnswers() map[string]string {
	out := make(map[string]string, len(seed))
	for _, q := range seed {
		out[q.body] = q.answers[0]
	}
	return out
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range seed {
		insertQuestion(t, ctx, db, q, true)
	}
	insertQuestion(t, ctx, db, seededQuestion{"Draft question", []string{"draft"}}, false)
	return db
}

func insertQuestion(t *testing.T, ctx context.Context, db *bun.DB, q seededQuestion, published bool) {
	t.Helper()
	data, err := json.Marshal(q.answers)
	if err != nil {
		t.Fatalf("marshal answers: %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO quiz_questions (body, correct_answers, published) VALUES (?, ?::jsonb, ?)`,
		q.body, string(data), published)
	if err != nil {
		t.Fatalf("insert question: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
