package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"pair-quiz-service/internal/config"
	pgmigrations "pair-quiz-service/internal/infra/postgres/migrations"
	redisstore "pair-quiz-service/internal/infra/redis"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	db := openDB(cfg.Postgres.URL)
	defer db.Close()
	if _, err := migrateDB(ctx, db); err != nil {
		return err
	}
	return resetQuestionCache(ctx, cfg)
}

// resetQuestionCache drops the question bank cached in Redis so every
// instance reloads it from Postgres on its next read.
func resetQuestionCache(ctx context.Context, cfg config.Config) error {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := newRedisClient(cfg)
	defer client.Close()
	if err := redisstore.NewQuestionCache(client, nil, 0).Invalidate(ctx); err != nil {
		return fmt.Errorf("invalidate question cache: %w", err)
	}
	log.Printf("[migrate] question cache invalidated")
	return nil
}

func openDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// migrateDB applies pending migrations and reports whether any ran.
func migrateDB(ctx context.Context, db *bun.DB) (bool, error) {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return false, err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return false, err
	}
	if group.IsZero() {
		log.Printf("[migrate] database is up to date")
		return false, nil
	}
	log.Printf("[migrate] applied %s", group)
	return true, nil
}
