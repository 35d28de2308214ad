// Package cache sits between day queries and the upstream fetch.
//
// A day whose stored bucket is complete is answered from storage. Any other
// day is loaded, merged into storage and returned, with concurrent requests
// for the same user and day sharing one load.
//
// WHY singleflight?
// The upstream is quota-bound. Ten tabs asking for today's commits at once
// should cost one fetch, not ten, and the late callers should get exactly
// what the first one got.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/metrics"
	"github.com/sakif/commit-streak/internal/model"
)

// DefaultLoadTimeout bounds one shared load.
const DefaultLoadTimeout = 2 * time.Minute

// Store is the subset of repository.DayBucketRepository the cache needs.
type Store interface {
	GetDayBucket(ctx context.Context, userID string, day model.Day) (*model.DayBucket, error)
	MergeDayBuckets(ctx context.Context, userID string, buckets ...*model.DayBucket) ([]*model.DayBucket, error)
}

// Loaded is what a Loader fetched for one day.
type Loaded struct {
	Bucket  *model.DayBucket
	Partial bool // some repositories could not be read
}

// Loader fetches one day from upstream. It runs detached from the context of
// any single caller, so it must honour the ctx it is given.
type Loader func(ctx context.Context) (Loaded, error)

// Result is a day as served to one caller.
type Result struct {
	Bucket *model.DayBucket
	// Source is metrics.CacheHit, CacheMiss or CacheShared.
	Source  string
	Partial bool
	// Stale means the load failed and Bucket is the last stored copy.
	Stale bool
}

// Loaded reports whether this result came out of a fresh load.
func (r *Result) Loaded() bool { return r.Source != metrics.CacheHit && !r.Stale }

type DayCache struct {
	store       Store
	group       singleflight.Group
	loadTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(store Store, loadTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *DayCache {
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DayCache{store: store, loadTimeout: loadTimeout, logger: logger, metrics: m}
}

type shared struct {
	bucket  *model.DayBucket
	partial bool
}

// GetDay returns the bucket for userID on day.
//
// Each caller waits on its own ctx: a caller that gives up does not cancel
// the load for the others, and the merged result is stored either way.
func (c *DayCache) GetDay(ctx context.Context, userID string, day model.Day, load Loader) (*Result, error) {
	stored, err := c.store.GetDayBucket(ctx, userID, day)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if stored != nil && stored.Complete {
		c.metrics.CacheLookup(metrics.CacheHit)
		return &Result{Bucket: stored, Source: metrics.CacheHit}, nil
	}

	key := userID + "/" + day.String()
	ch := c.group.DoChan(key, func() (any, error) {
		c.metrics.CacheLookup(metrics.CacheMiss)

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		loaded, err := load(lctx)
		if err != nil {
			return nil, err
		}
		b := loaded.Bucket
		if b == nil {
			b = model.NewDayBucket(day)
		}
		b.Date = day

		merged, err := c.store.MergeDayBuckets(lctx, userID, b)
		if err != nil {
			return nil, err
		}
		if len(merged) == 0 {
			return nil, errors.New("cache: store returned no bucket")
		}
		return &shared{bucket: merged[0], partial: loaded.Partial}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		source := metrics.CacheMiss
		if res.Shared {
			source = metrics.CacheShared
			c.metrics.CacheLookup(metrics.CacheShared)
		}

		if res.Err != nil {
			if stored != nil && apperror.IsTransient(res.Err) {
				c.logger.Warn("day load failed, serving stored bucket",
					slog.String("userID", userID),
					slog.String("day", day.String()),
					slog.String("error", res.Err.Error()),
				)
				return &Result{Bucket: stored, Source: source, Stale: true}, nil
			}
			return nil, res.Err
		}

		s := res.Val.(*shared)
		// Every caller gets its own copy of the shared bucket.
		return &Result{Bucket: s.bucket.Clone(), Source: source, Partial: s.partial}, nil
	}
}
