package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/repository"
)

var _ repository.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory repository.Store with the same merge rules as
// the SQLite store. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]*model.User
	credentials map[string]model.Credential
	streaks     map[string]model.StreakState
	buckets     map[string]map[model.Day]*model.DayBucket

	// BucketReads counts GetDayBucket calls.
	BucketReads atomic.Int64
	// SaveStreakErr, when set, is returned by SaveStreak.
	SaveStreakErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*model.User),
		credentials: make(map[string]model.Credential),
		streaks:     make(map[string]model.StreakState),
		buckets:     make(map[string]map[model.Day]*model.DayBucket),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, u := range s.users {
		if u.GitHubID == user.GitHubID {
			user.ID = u.ID
			user.CreatedAt = u.CreatedAt
			user.UTCOffsetMinutes = u.UTCOffsetMinutes
			user.UpdatedAt = now
			cp := *user
			s.users[u.ID] = &cp
			return nil
		}
	}
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SetUTCOffset(_ context.Context, id string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.UTCOffsetMinutes = minutes
	return nil
}

func (s *MemoryStore) SaveCredential(_ context.Context, userID string, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred.UpdatedAt = time.Now().UTC()
	s.credentials[userID] = cred
	return nil
}

func (s *MemoryStore) GetCredential(_ context.Context, userID string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[userID]
	if !ok {
		return model.Credential{}, apperror.CredentialMissing(userID)
	}
	return c, nil
}

func (s *MemoryStore) DeleteCredential(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, userID)
	return nil
}

func (s *MemoryStore) GetStreak(_ context.Context, userID string) (model.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[userID], nil
}

func (s *MemoryStore) SaveStreak(_ context.Context, userID string, st model.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveStreakErr != nil {
		return s.SaveStreakErr
	}
	s.streaks[userID] = st
	return nil
}

func (s *MemoryStore) GetDayBucket(_ context.Context, userID string, day model.Day) (*model.DayBucket, error) {
	s.BucketReads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[userID][day]
	if !ok {
		return nil, apperror.NotFound("day bucket", userID+"/"+day.String())
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListDayBuckets(_ context.Context, userID string, from, to model.Day) ([]*model.DayBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.DayBucket
	for d, b := range s.buckets[userID] {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) MergeDayBuckets(_ context.Context, userID string, buckets ...*model.DayBucket) ([]*model.DayBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := s.buckets[userID]
	if days == nil {
		days = make(map[model.Day]*model.DayBucket)
		s.buckets[userID] = days
	}
	out := make([]*model.DayBucket, 0, len(buckets))
	for _, in := range buckets {
		if in == nil {
			continue
		}
		stored, ok := days[in.Date]
		if !ok {
			stored = model.NewDayBucket(in.Date)
			days[in.Date] = stored
		}
		if !stored.Complete {
			stored.Merge(in)
		}
		out = append(out, stored.Clone())
	}
	return out, nil
}

// PutBucket stores b as is, bypassing the merge rules.
func (s *MemoryStore) PutBucket(userID string, b *model.DayBucket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[userID] == nil {
		s.buckets[userID] = make(map[model.Day]*model.DayBucket)
	}
	s.buckets[userID][b.Date] = b.Clone()
}
