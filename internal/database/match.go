// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kwadwoansah/spar/internal/models"
)

// RecordMatchResult persists a finished game: one row in matches plus one
// per player in match_results. No-op when the pool is not configured.
func RecordMatchResult(ctx context.Context, state models.RoomState) error {
	if DB == nil {
		return nil
	}

	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		matchID := uuid.New()
		insMatch := `
			INSERT INTO matches (id, room_code, winner_id, target_score, finished_at)
			VALUES ($1, $2, $3, $4, NOW())
		`
		if _, err := tx.Exec(ctx, insMatch, matchID, state.ID, state.GameWinnerID, state.GameTargetScore); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}

		insResult := `
			INSERT INTO match_results (match_id, player_id, player_name, score, did_win)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, p := range state.Players {
			didWin := p.ID == state.GameWinnerID
			if _, err := tx.Exec(ctx, insResult, matchID, p.ID, p.Name, p.Score, didWin); err != nil {
				return fmt.Errorf("insert result for %s: %w", p.ID, err)
			}
		}
		return nil
	})
}
