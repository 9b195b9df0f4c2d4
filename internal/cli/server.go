package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"pair-quiz-service/internal/app"
	"pair-quiz-service/internal/auth"
	"pair-quiz-service/internal/config"
	"pair-quiz-service/internal/domain"
	"pair-quiz-service/internal/infra/memory"
	"pair-quiz-service/internal/infra/postgres"
	redisstore "pair-quiz-service/internal/infra/redis"
	transport "pair-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the pair quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
	}

	var (
		pool     *pgxpool.Pool
		db       *bun.DB
		migrated bool
	)
	if cfg.Postgres.URL != "" {
		db = openDB(cfg.Postgres.URL)
		defer db.Close()
		if migrated, err = migrateDB(ctx, db); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = postgres.NewQuestionLoader(pool)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.QuestionCacheTTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		cache := redisstore.NewQuestionCache(redisClient, loader, cacheTTL)
		if migrated {
			if err := cache.Invalidate(ctx); err != nil {
				log.Printf("[migrate] invalidate question cache: %v", err)
			}
		}
		bank = cache
	} else {
		bank = memory.NewQuestionCache(loader, cacheTTL)
	}

	var (
		pairs    app.PairRepository
		locks    app.UserLocker
		notifier app.PairNotifier
	)
	switch {
	case db != nil:
		pairs = postgres.NewPairStore(db)
	case redisClient != nil:
		pairs = redisstore.NewPairStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	default:
		pairs = memory.NewPairStore()
	}
	switch {
	case redisClient != nil:
		locks = redisstore.NewUserLocker(redisClient, 5*time.Second)
	case pool != nil:
		locks = postgres.NewUserLocker(pool)
	default:
		locks = memory.NewUserLocker()
	}
	// Without Redis, live updates only reach subscribers on the same instance.
	if redisClient != nil {
		notifier = redisstore.NewHub(redisClient)
	} else {
		notifier = memory.NewHub()
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	if err != nil {
		return err
	}

	grace := config.TTLDuration(cfg.Quiz.GracePeriod, domain.DefaultGracePeriod)
	assigner := app.NewRandomAssigner(bank, config.IntOr(cfg.Quiz.QuestionsPerPair, domain.DefaultQuestionsPerPair))
	service := app.NewPairService(pairs, assigner, locks, notifier, grace)

	finalizer := app.NewFinalizer(pairs, notifier,
		config.TTLDuration(cfg.Scheduler.Interval, time.Second),
		cfg.Scheduler.BatchSize,
		cfg.Scheduler.Workers,
	)
	if err := finalizer.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := finalizer.Stop(); err != nil {
			log.Printf("[finalizer] stop: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(service, tokens).Register(mux)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting pair quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// sampleQuestions seeds the in-memory question bank when no Postgres is configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Body: "What is 2 + 2?", CorrectAnswers: []string{"4", "four"}, Published: true},
		{ID: "q2", Body: "What is the capital of France?", CorrectAnswers: []string{"Paris"}, Published: true},
		{ID: "q3", Body: "How many continents are there?", CorrectAnswers: []string{"7", "seven"}, Published: true},
		{ID: "q4", Body: "Which planet is known as the Red Planet?", CorrectAnswers: []string{"Mars"}, Published: true},
		{ID: "q5", Body: "What is the chemical symbol for water?", CorrectAnswers: []string{"H2O"}, Published: true},
		{ID: "q6", Body: "How many sides does a hexagon have?", CorrectAnswers: []string{"6", "six"}, Published: true},
		{ID: "q7", Body: "Who wrote Hamlet?", CorrectAnswers: []string{"Shakespeare", "William Shakespeare"}, Published: true},
		{ID: "q8", Body: "What is the largest ocean on Earth?", CorrectAnswers: []string{"Pacific", "Pacific Ocean"}, Published: true},
	}
}
