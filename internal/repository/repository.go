// Package repository declares the storage interfaces the services depend on.
// internal/repository/sqlite implements all of them on one *sqlite.DB.
package repository

import (
	"context"

	"github.com/sakif/commit-streak/internal/model"
)

type UserRepository interface {
	// Upsert inserts the user or refreshes the profile of the existing row
	// with the same GitHubID. It sets ID and timestamps on user.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	SetUTCOffset(ctx context.Context, id string, minutes int) error
}

type CredentialRepository interface {
	SaveCredential(ctx context.Context, userID string, cred model.Credential) error
	// GetCredential returns apperror.ErrCredentialMissing when nothing is stored.
	GetCredential(ctx context.Context, userID string) (model.Credential, error)
	DeleteCredential(ctx context.Context, userID string) error
}

type StreakRepository interface {
	// GetStreak returns the zero state for a user that has none yet.
	GetStreak(ctx context.Context, userID string) (model.StreakState, error)
	SaveStreak(ctx context.Context, userID string, s model.StreakState) error
}

type DayBucketRepository interface {
	// GetDayBucket returns apperror.ErrNotFound when the day was never stored.
	GetDayBucket(ctx context.Context, userID string, day model.Day) (*model.DayBucket, error)
	// ListDayBuckets returns the stored buckets in [from, to], ordered by day.
	ListDayBuckets(ctx context.Context, userID string, from, to model.Day) ([]*model.DayBucket, error)
	// MergeDayBuckets unions each bucket into the stored one. A stored
	// complete bucket is left untouched.
	MergeDayBuckets(ctx context.Context, userID string, buckets ...*model.DayBucket) ([]*model.DayBucket, error)
}

// Store is everything the engine persists.
type Store interface {
	UserRepository
	CredentialRepository
	StreakRepository
	DayBucketRepository
}
