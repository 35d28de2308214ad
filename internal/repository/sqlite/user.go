package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

// Upsert inserts a new user or updates the profile of the existing row with
// the same GitHub ID.
//
// WHY KEEP THE EXISTING ID?
// Streaks, credentials and day buckets reference users.id. Replacing the row
// would orphan (or cascade-delete) all of them, so an existing user keeps
// their internal ID and only the profile columns change. The UTC offset is
// user-chosen and never overwritten by a login.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var (
		existingID string
		offset     int
		createdAt  time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, utc_offset_minutes, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &offset, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	now := db.now()
	if existingID != "" {
		user.ID = existingID
		user.UTCOffsetMinutes = offset
		user.CreatedAt = createdAt
		user.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login, user.Email, user.AvatarURL, user.UpdatedAt, user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	if err := validateOffset(user.UTCOffsetMinutes); err != nil {
		return err
	}
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, utc_offset_minutes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.GitHubID, user.Login, user.Email, user.AvatarURL,
		user.UTCOffsetMinutes, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, utc_offset_minutes, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.GitHubID, &u.Login, &u.Email, &u.AvatarURL, &u.UTCOffsetMinutes, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}

// SetUTCOffset changes the zone commit days are computed in.
func (db *DB) SetUTCOffset(ctx context.Context, id string, minutes int) error {
	if err := validateOffset(minutes); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET utc_offset_minutes = ?, updated_at = ? WHERE id = ?`,
		minutes, db.now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting utc offset for user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func validateOffset(minutes int) error {
	if minutes < -model.MaxUTCOffsetMinutes || minutes > model.MaxUTCOffsetMinutes {
		return apperror.ValidationFailed("utcOffsetMinutes",
			fmt.Sprintf("must be between %d and %d", -model.MaxUTCOffsetMinutes, model.MaxUTCOffsetMinutes))
	}
	return nil
}
