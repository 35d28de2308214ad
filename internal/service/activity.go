// Package service — commit activity and streak business logic.
//
// ActivityService is the engine's front door:
//
//	ActivityHandler (HTTP) → ActivityService → DayCache → Fetcher → GitHub
//	                                         ↘ Store (streaks, day buckets, credentials)
//
// CONCURRENCY:
// Network I/O happens without holding any lock. Only the short
// read-merge-write of a user's buckets and streak runs under that user's
// mutex, so one slow refresh never blocks another user.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/commit-streak/internal/aggregate"
	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/cache"
	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/fetcher"
	"github.com/sakif/commit-streak/internal/metrics"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/repository"
	"github.com/sakif/commit-streak/internal/streak"
)

// ActivityConfig tunes refresh behaviour.
type ActivityConfig struct {
	// RefreshInterval is how long a computed streak is served without asking
	// GitHub again.
	RefreshInterval time.Duration `toml:"refresh_interval"`
	// InitialLookbackDays is how far back the first refresh of a new user reads.
	InitialLookbackDays int `toml:"initial_lookback_days"`
	// MaxWindowDays caps how far back any refresh reads.
	MaxWindowDays int `toml:"max_window_days"`
	// DayLoadTimeout bounds one shared single-day load.
	DayLoadTimeout time.Duration `toml:"day_load_timeout"`
}

func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		RefreshInterval:     5 * time.Minute,
		InitialLookbackDays: 30,
		MaxWindowDays:       90,
		DayLoadTimeout:      cache.DefaultLoadTimeout,
	}
}

func (c ActivityConfig) withDefaults() ActivityConfig {
	d := DefaultActivityConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.InitialLookbackDays <= 0 {
		c.InitialLookbackDays = d.InitialLookbackDays
	}
	if c.MaxWindowDays <= 0 {
		c.MaxWindowDays = d.MaxWindowDays
	}
	if c.InitialLookbackDays > c.MaxWindowDays {
		c.InitialLookbackDays = c.MaxWindowDays
	}
	if c.DayLoadTimeout <= 0 {
		c.DayLoadTimeout = d.DayLoadTimeout
	}
	return c
}

// CommitFetcher is satisfied by *fetcher.Fetcher.
type CommitFetcher interface {
	Fetch(ctx context.Context, cred model.Credential, w fetcher.Window) (*fetcher.Result, error)
}

// DayResult is one day of activity as served to a caller.
type DayResult struct {
	Date      model.Day            `json:"date"`
	Commits   []model.CommitRecord `json:"commits"`
	Additions int                  `json:"additions"`
	Deletions int                  `json:"deletions"`
	Complete  bool                 `json:"complete"`
	Partial   bool                 `json:"partial"`
	Stale     bool                 `json:"stale"`
}

// StreakResult is the stored streak plus how it reads today.
type StreakResult struct {
	State   model.StreakState `json:"state"`
	Today   model.Day         `json:"today"`
	Current int               `json:"current"`
	Broken  bool              `json:"broken"`
	AtRisk  bool              `json:"atRisk"`
	// Stale means GitHub could not be reached and State is the last
	// successfully computed one.
	Stale bool `json:"stale"`
	// Partial means some repositories could not be read during the refresh.
	Partial bool `json:"partial"`
}

type ActivityService struct {
	store   repository.Store
	fetcher CommitFetcher
	cache   *cache.DayCache
	cfg     ActivityConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	locks   keyedMutex

	// forget drops any client state cached for a credential GitHub rejected.
	forget func(model.Credential)
}

type ActivityOption func(*ActivityService)

func WithClock(c clock.Clock) ActivityOption { return func(s *ActivityService) { s.clock = c } }

func WithMetrics(m *metrics.Metrics) ActivityOption {
	return func(s *ActivityService) { s.metrics = m }
}

// WithCredentialRejected registers a callback run when GitHub answers 401.
func WithCredentialRejected(fn func(model.Credential)) ActivityOption {
	return func(s *ActivityService) { s.forget = fn }
}

func NewActivityService(store repository.Store, f CommitFetcher, cfg ActivityConfig, logger *slog.Logger, opts ...ActivityOption) *ActivityService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ActivityService{
		store:   store,
		fetcher: f,
		cfg:     cfg.withDefaults(),
		clock:   clock.Real{},
		logger:  logger,
		forget:  func(model.Credential) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New(store, s.cfg.DayLoadTimeout, logger, s.metrics)
	return s
}

// userClock returns the user's zone and the current day in it.
func (s *ActivityService) userClock(ctx context.Context, userID string) (*time.Location, time.Time, model.Day, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, time.Time{}, model.Day{}, fmt.Errorf("service/activity: loading user %s: %w", userID, err)
	}
	loc := user.Location()
	now := s.clock.Now()
	return loc, now, model.DayOf(now, loc), nil
}

// =========================================================================
// DAY QUERIES
// =========================================================================

// GetCommitsForDay returns the commits userID authored on date (YYYY-MM-DD,
// in the user's zone).
//
// A day that is over and was fully fetched is served from storage. Any
// other day is fetched (once, however many callers ask at the same time).
// New activity found this way moves the streak forward.
func (s *ActivityService) GetCommitsForDay(ctx context.Context, userID, date string) (*DayResult, error) {
	day, err := model.ParseDay(date)
	if err != nil {
		return nil, apperror.InvalidDate(date, "expected YYYY-MM-DD")
	}

	loc, now, today, err := s.userClock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if day.After(today) {
		return nil, apperror.InvalidDate(date, "date is in the future")
	}

	load := func(ctx context.Context) (cache.Loaded, error) {
		cred, err := s.store.GetCredential(ctx, userID)
		if err != nil {
			return cache.Loaded{}, err
		}
		res, err := s.fetch(ctx, cred, fetcher.Window{Since: day, Until: day, Location: loc})
		if err != nil {
			return cache.Loaded{}, err
		}
		buckets := aggregate.Window(res.Commits, day, day, loc, today, !res.Partial())
		return cache.Loaded{Bucket: buckets[0], Partial: res.Partial()}, nil
	}

	r, err := s.cache.GetDay(ctx, userID, day, load)
	if err != nil {
		return nil, err
	}

	if r.Loaded() && !r.Bucket.IsEmpty() {
		if err := s.advance(ctx, userID, day, today, now); err != nil {
			// The day itself was served fine; the streak catches up on the
			// next refresh.
			s.logger.Warn("streak update after day load failed",
				slog.String("userID", userID),
				slog.String("day", day.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return &DayResult{
		Date:      day,
		Commits:   r.Bucket.Sorted(),
		Additions: r.Bucket.Additions(),
		Deletions: r.Bucket.Deletions(),
		Complete:  r.Bucket.Complete,
		Partial:   r.Partial,
		Stale:     r.Stale,
	}, nil
}

// advance feeds one newly seen active day to the streak.
func (s *ActivityService) advance(ctx context.Context, userID string, day, today model.Day, now time.Time) error {
	ctx = context.WithoutCancel(ctx)

	unlock := s.locks.Lock(userID)
	defer unlock()

	state, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return err
	}
	lookup, err := s.lookup(ctx, userID, today)
	if err != nil {
		return err
	}
	next := streak.Advance(state, day, lookup, now)
	if next == state {
		return nil
	}
	return s.store.SaveStreak(ctx, userID, next)
}

// =========================================================================
// STREAK
// =========================================================================

// GetStreak returns the user's streak, refreshing it from GitHub when the
// stored one is older than RefreshInterval.
func (s *ActivityService) GetStreak(ctx context.Context, userID string) (*StreakResult, error) {
	state, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/activity: loading streak for user %s: %w", userID, err)
	}

	if !state.UpdatedAt.IsZero() && s.clock.Now().Sub(state.UpdatedAt) < s.cfg.RefreshInterval {
		_, _, today, err := s.userClock(ctx, userID)
		if err != nil {
			return nil, err
		}
		return s.report(ctx, userID, state, today)
	}
	return s.Refresh(ctx, userID)
}

// Refresh reads every day since the streak was last known to be settled,
// merges the result into storage and replays the streak over it.
//
// When GitHub is unavailable or the quota is exhausted the stored streak is
// returned unchanged with Stale set. A rejected credential is an error.
func (s *ActivityService) Refresh(ctx context.Context, userID string) (*StreakResult, error) {
	loc, now, today, err := s.userClock(ctx, userID)
	if err != nil {
		return nil, err
	}

	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		s.metrics.StreakRefresh("error")
		return nil, err
	}

	state, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/activity: loading streak for user %s: %w", userID, err)
	}

	since, err := s.windowStart(ctx, userID, state, today)
	if err != nil {
		return nil, err
	}

	res, err := s.fetch(ctx, cred, fetcher.Window{Since: since, Until: today, Location: loc})
	if err != nil {
		if apperror.IsTransient(err) {
			s.metrics.StreakRefresh("stale")
			s.logger.Warn("streak refresh failed, serving stored streak",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			r, rerr := s.report(ctx, userID, state, today)
			if rerr != nil {
				return nil, rerr
			}
			r.Stale = true
			return r, nil
		}
		s.metrics.StreakRefresh("error")
		return nil, err
	}

	buckets := aggregate.Window(res.Commits, since, today, loc, today, !res.Partial())

	// Whatever was fetched is kept, even if the caller has gone away.
	pctx := context.WithoutCancel(ctx)

	unlock := s.locks.Lock(userID)
	if _, err := s.store.MergeDayBuckets(pctx, userID, buckets...); err != nil {
		unlock()
		return nil, fmt.Errorf("service/activity: storing day buckets for user %s: %w", userID, err)
	}
	current, err := s.store.GetStreak(pctx, userID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("service/activity: loading streak for user %s: %w", userID, err)
	}
	stored, lookup, err := s.history(pctx, userID, today)
	if err != nil {
		unlock()
		return nil, err
	}
	// Days between the last active day and the fetched window may have been
	// settled by earlier reads without ever reaching the streak.
	from := since
	if !current.IsEmpty() && current.LastActiveDay.Before(from) {
		from = current.LastActiveDay
	}
	replay := make([]*model.DayBucket, 0, len(stored))
	for _, b := range stored {
		if !b.Date.Before(from) {
			replay = append(replay, b)
		}
	}
	next := streak.Replay(current, replay, lookup, now)
	next.UpdatedAt = now
	err = s.store.SaveStreak(pctx, userID, next)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("service/activity: saving streak for user %s: %w", userID, err)
	}

	outcome := "ok"
	if res.Partial() {
		outcome = "partial"
	}
	s.metrics.StreakRefresh(outcome)
	s.logger.Info("streak refreshed",
		slog.String("userID", userID),
		slog.String("since", since.String()),
		slog.Int("commits", len(res.Commits)),
		slog.Int("current", next.CurrentStreak),
		slog.Bool("partial", res.Partial()),
	)

	r := evaluate(next, today, lookup)
	r.Partial = res.Partial()
	return r, nil
}

// windowStart picks the first day a refresh has to read: the first day from
// the last active day (or the initial lookback for a new user) whose stored
// bucket is missing or not yet complete. Activity found past such a day
// leaves the streak pending, so the window always reaches back to it. It is never earlier than
// MaxWindowDays before today.
func (s *ActivityService) windowStart(ctx context.Context, userID string, state model.StreakState, today model.Day) (model.Day, error) {
	floor := today.AddDays(-s.cfg.MaxWindowDays)

	start := today.AddDays(-s.cfg.InitialLookbackDays)
	if !state.IsEmpty() {
		start = state.LastActiveDay
	}
	if start.Before(floor) {
		start = floor
	}
	if start.After(today) {
		start = today
	}

	stored, err := s.store.ListDayBuckets(ctx, userID, start, today)
	if err != nil {
		return model.Day{}, fmt.Errorf("service/activity: listing day buckets for user %s: %w", userID, err)
	}
	complete := make(map[model.Day]bool, len(stored))
	for _, b := range stored {
		complete[b.Date] = b.Complete
	}
	for d := start; d.Before(today); d = d.AddDays(1) {
		if !complete[d] {
			return d, nil
		}
	}
	return today, nil
}

// fetch runs the fetcher and turns "every repository failed for a transient
// reason" into that transient error, and reports rejected credentials.
func (s *ActivityService) fetch(ctx context.Context, cred model.Credential, w fetcher.Window) (*fetcher.Result, error) {
	res, err := s.fetcher.Fetch(ctx, cred, w)
	if err != nil {
		if errors.Is(err, apperror.ErrCredentialInvalid) {
			s.forget(cred)
		}
		return nil, err
	}
	if res.Repositories > 0 && len(res.Failures) == res.Repositories {
		if first := res.Failures[0].Err; apperror.IsTransient(first) {
			return nil, first
		}
	}
	return res, nil
}

// lookup answers streak questions from the stored buckets of the last
// MaxWindowDays.
func (s *ActivityService) lookup(ctx context.Context, userID string, today model.Day) (streak.Lookup, error) {
	_, lookup, err := s.history(ctx, userID, today)
	return lookup, err
}

// history returns the stored buckets of the last MaxWindowDays, oldest
// first, and a lookup over them. Days before that window are never read
// again, so the lookup reports them as complete and empty.
func (s *ActivityService) history(ctx context.Context, userID string, today model.Day) ([]*model.DayBucket, streak.Lookup, error) {
	floor := today.AddDays(-s.cfg.MaxWindowDays)
	stored, err := s.store.ListDayBuckets(ctx, userID, floor, today)
	if err != nil {
		return nil, nil, fmt.Errorf("service/activity: listing day buckets for user %s: %w", userID, err)
	}
	byDay := make(map[model.Day]*model.DayBucket, len(stored))
	for _, b := range stored {
		byDay[b.Date] = b
	}
	return stored, func(d model.Day) (bool, bool) {
		if d.Before(floor) {
			return false, true
		}
		b, ok := byDay[d]
		if !ok {
			return false, false
		}
		return !b.IsEmpty(), b.Complete
	}, nil
}

func (s *ActivityService) report(ctx context.Context, userID string, state model.StreakState, today model.Day) (*StreakResult, error) {
	lookup, err := s.lookup(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	return evaluate(state, today, lookup), nil
}

func evaluate(state model.StreakState, today model.Day, lookup streak.Lookup) *StreakResult {
	st := streak.Evaluate(state, today, lookup)
	return &StreakResult{
		State:   state,
		Today:   today,
		Current: st.Current,
		Broken:  st.Broken,
		AtRisk:  st.AtRisk,
	}
}

// =========================================================================
// SETTINGS
// =========================================================================

// SetTimezone changes the fixed UTC offset commit days are computed in.
// Days already stored as complete keep the commits they were built with.
func (s *ActivityService) SetTimezone(ctx context.Context, userID string, offsetMinutes int) (*model.User, error) {
	if offsetMinutes < -model.MaxUTCOffsetMinutes || offsetMinutes > model.MaxUTCOffsetMinutes {
		return nil, apperror.ValidationFailed("utcOffsetMinutes",
			fmt.Sprintf("must be between %d and %d", -model.MaxUTCOffsetMinutes, model.MaxUTCOffsetMinutes))
	}
	if err := s.store.SetUTCOffset(ctx, userID, offsetMinutes); err != nil {
		return nil, fmt.Errorf("service/activity: setting timezone for user %s: %w", userID, err)
	}
	return s.store.GetUserByID(ctx, userID)
}
