// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the global connection pool. It stays nil when no DATABASE_URL is
// configured; callers must check before use.
var DB *pgxpool.Pool

// Connect opens the pool and verifies the connection.
func Connect(ctx context.Context, url string) error {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return fmt.Errorf("parse pgx config: %w", err)
	}

	DB, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := DB.Ping(pingCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

// Migrate creates the match-history tables if they do not exist yet.
func Migrate(ctx context.Context) error {
	if DB == nil {
		return nil
	}
	schema := `
		CREATE TABLE IF NOT EXISTS matches (
			id UUID PRIMARY KEY,
			room_code TEXT NOT NULL,
			winner_id UUID NOT NULL,
			target_score INT NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS match_results (
			match_id UUID NOT NULL REFERENCES matches(id),
			player_id UUID NOT NULL,
			player_name TEXT NOT NULL,
			score INT NOT NULL,
			did_win BOOLEAN NOT NULL,
			PRIMARY KEY (match_id, player_id)
		);
	`
	if _, err := DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
