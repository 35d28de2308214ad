package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (*model.DayBucket, error) {
	var (
		day      model.Day
		complete bool
		raw      string
	)
	if err := row.Scan(&day, &complete, &raw); err != nil {
		return nil, err
	}
	var commits []model.CommitRecord
	if err := json.Unmarshal([]byte(raw), &commits); err != nil {
		return nil, fmt.Errorf("decoding commits of %s: %w", day, err)
	}
	b := model.NewDayBucket(day)
	b.Complete = complete
	for _, c := range commits {
		b.Add(c)
	}
	return b, nil
}

func (db *DB) GetDayBucket(ctx context.Context, userID string, day model.Day) (*model.DayBucket, error) {
	b, err := scanBucket(db.conn.QueryRowContext(ctx,
		`SELECT day, complete, commits FROM day_buckets WHERE user_id = ? AND day = ?`,
		userID, day,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("day bucket", userID+"/"+day.String())
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting day bucket %s for user %s: %w", day, userID, err)
	}
	return b, nil
}

// ListDayBuckets returns the stored buckets with from <= day <= to, oldest
// first. Days never stored are simply absent.
func (db *DB) ListDayBuckets(ctx context.Context, userID string, from, to model.Day) ([]*model.DayBucket, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT day, complete, commits FROM day_buckets
		 WHERE user_id = ? AND day >= ? AND day <= ?
		 ORDER BY day`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing day buckets for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*model.DayBucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning day bucket for user %s: %w", userID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating day buckets for user %s: %w", userID, err)
	}
	return out, nil
}

// MergeDayBuckets unions each bucket into its stored counterpart inside one
// transaction and returns the stored result for each input, in input order.
//
// A complete stored bucket is returned as is: once a day is over and fully
// fetched, later fetches cannot change it.
func (db *DB) MergeDayBuckets(ctx context.Context, userID string, buckets ...*model.DayBucket) ([]*model.DayBucket, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning bucket merge: %w", err)
	}
	defer tx.Rollback()

	now := db.now()
	out := make([]*model.DayBucket, 0, len(buckets))
	for _, in := range buckets {
		if in == nil {
			continue
		}

		stored, err := scanBucket(tx.QueryRowContext(ctx,
			`SELECT day, complete, commits FROM day_buckets WHERE user_id = ? AND day = ?`,
			userID, in.Date,
		))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			stored = model.NewDayBucket(in.Date)
		case err != nil:
			return nil, fmt.Errorf("sqlite: reading day bucket %s: %w", in.Date, err)
		case stored.Complete:
			out = append(out, stored)
			continue
		}

		stored.Merge(in)
		raw, err := json.Marshal(stored.Sorted())
		if err != nil {
			return nil, fmt.Errorf("sqlite: encoding day bucket %s: %w", in.Date, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO day_buckets (user_id, day, complete, commits, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, day) DO UPDATE SET
			   complete = excluded.complete, commits = excluded.commits, updated_at = excluded.updated_at`,
			userID, stored.Date, stored.Complete, string(raw), now,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: writing day bucket %s: %w", in.Date, err)
		}
		out = append(out, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing bucket merge: %w", err)
	}
	return out, nil
}
