package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/commit-streak/internal/model"
)

// GetStreak returns the zero state when nothing is stored for userID.
func (db *DB) GetStreak(ctx context.Context, userID string) (model.StreakState, error) {
	var s model.StreakState
	err := db.conn.QueryRowContext(ctx,
		`SELECT current_streak, longest_streak, last_active_day, updated_at
		 FROM streaks WHERE user_id = ?`, userID,
	).Scan(&s.CurrentStreak, &s.LongestStreak, &s.LastActiveDay, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StreakState{}, nil
	}
	if err != nil {
		return model.StreakState{}, fmt.Errorf("sqlite: getting streak for user %s: %w", userID, err)
	}
	return s, nil
}

func (db *DB) SaveStreak(ctx context.Context, userID string, s model.StreakState) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO streaks (user_id, current_streak, longest_streak, last_active_day, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   current_streak = excluded.current_streak,
		   longest_streak = excluded.longest_streak,
		   last_active_day = excluded.last_active_day,
		   updated_at = excluded.updated_at`,
		userID, s.CurrentStreak, s.LongestStreak, s.LastActiveDay, s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving streak for user %s: %w", userID, err)
	}
	return nil
}
