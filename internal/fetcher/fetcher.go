// Package fetcher collects a user's commits across every repository they can
// read, for a window of days.
//
// Repositories are fetched concurrently by a bounded pool of workers that all
// share one upstream client (and so one quota). A repository that fails is
// recorded and skipped; the run only aborts for failures that would hit every
// other repository too (a rejected credential, an exhausted rate limit).
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/clock"
	"github.com/sakif/commit-streak/internal/metrics"
	"github.com/sakif/commit-streak/internal/model"
)

// Upstream is the part of the GitHub client the fetcher needs.
// *github.Client implements it.
type Upstream interface {
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	ListCommits(ctx context.Context, repo model.Repository, since, until time.Time, author string) ([]model.CommitRecord, error)
}

// SourceFunc returns the upstream to use for a credential.
type SourceFunc func(cred model.Credential) (Upstream, error)

// Window is an inclusive range of calendar days in a fixed zone.
type Window struct {
	Since    model.Day
	Until    model.Day
	Location *time.Location
}

// Bounds returns the window as a half-open instant range [start, end).
func (w Window) Bounds() (time.Time, time.Time) {
	loc := w.loc()
	return w.Since.Start(loc), w.Until.End(loc)
}

func (w Window) loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

func (w Window) Validate() error {
	if w.Since.IsZero() || w.Until.IsZero() {
		return apperror.ValidationFailed("window", "window bounds are required")
	}
	if w.Until.Before(w.Since) {
		return apperror.ValidationFailed("window", fmt.Sprintf("window ends (%s) before it starts (%s)", w.Until, w.Since))
	}
	return nil
}

// RepoFailure records a repository that could not be fetched.
type RepoFailure struct {
	Repository string
	Err        error
}

// Result is what a fetch gathered. Commits are deduplicated by SourceID and
// sorted by authoring time.
type Result struct {
	Window         Window
	Repositories   int
	Commits        []model.CommitRecord
	Failures       []RepoFailure
	EnumerationErr error // set when only part of the repository list was read
	Canceled       bool  // the caller's context ended before every repository was fetched
}

// Partial reports whether some of the window's commits may be missing.
func (r *Result) Partial() bool {
	return r.EnumerationErr != nil || len(r.Failures) > 0 || r.Canceled
}

type Config struct {
	Concurrency int `toml:"concurrency"`
}

const defaultConcurrency = 4

type Fetcher struct {
	source  SourceFunc
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(source SourceFunc, cfg Config, c clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{source: source, cfg: cfg, clock: c, logger: logger, metrics: m}
}

// abortsRun reports errors that make every remaining request pointless.
func abortsRun(err error) bool {
	return errors.Is(err, apperror.ErrCredentialInvalid) || errors.Is(err, apperror.ErrRateLimitExceeded)
}

// Fetch gathers the commits authored by cred's identity within w.
//
// The returned Result is never nil. A non-nil error means the run was
// aborted (see abortsRun) or no repository could be listed at all; the
// Result still carries whatever was gathered before that.
func (f *Fetcher) Fetch(ctx context.Context, cred model.Credential, w Window) (*Result, error) {
	res := &Result{Window: w}
	if err := w.Validate(); err != nil {
		return res, err
	}

	up, err := f.source(cred)
	if err != nil {
		return res, fmt.Errorf("fetcher: creating upstream client: %w", err)
	}

	started := f.clock.Now()
	defer func() { f.metrics.FetchDuration(f.clock.Now().Sub(started)) }()

	repos, enumErr := up.ListRepositories(ctx)
	res.Repositories = len(repos)
	if enumErr != nil {
		switch {
		case ctx.Err() != nil:
			res.Canceled = true
			return res, nil
		case abortsRun(enumErr) || len(repos) == 0:
			return res, fmt.Errorf("fetcher: enumerating repositories: %w", enumErr)
		default:
			f.logger.Warn("repository enumeration incomplete, continuing with partial list",
				slog.String("identity", cred.Identity),
				slog.Int("repositories", len(repos)),
				slog.String("error", enumErr.Error()),
			)
			res.EnumerationErr = enumErr
		}
	}

	since, until := w.Bounds()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		seen     = make(map[string]struct{})
		fatalErr error
	)

	g := new(errgroup.Group)
	g.SetLimit(f.cfg.Concurrency)

	for _, repo := range repos {
		if runCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			commits, err := up.ListCommits(runCtx, repo, since, until, cred.Identity)

			mu.Lock()
			defer mu.Unlock()

			// Keep whatever the repository yielded, even on failure.
			for _, c := range commits {
				if _, dup := seen[c.SourceID]; dup {
					continue
				}
				seen[c.SourceID] = struct{}{}
				res.Commits = append(res.Commits, c)
			}

			switch {
			case err == nil:
			case abortsRun(err):
				if fatalErr == nil {
					fatalErr = err
					cancel()
				}
			case runCtx.Err() != nil:
				// Cancelled mid-flight; not a failure of this repository.
			default:
				f.metrics.RepoFailure()
				f.logger.Warn("repository fetch failed",
					slog.String("repository", repo.FullName),
					slog.String("error", err.Error()),
				)
				res.Failures = append(res.Failures, RepoFailure{Repository: repo.FullName, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Commits, func(i, j int) bool {
		a, b := res.Commits[i], res.Commits[j]
		if !a.AuthoredAt.Equal(b.AuthoredAt) {
			return a.AuthoredAt.Before(b.AuthoredAt)
		}
		return a.SourceID < b.SourceID
	})

	if fatalErr != nil {
		return res, fmt.Errorf("fetcher: aborting run: %w", fatalErr)
	}
	if ctx.Err() != nil {
		res.Canceled = true
	}

	f.logger.Debug("fetch finished",
		slog.String("identity", cred.Identity),
		slog.String("since", w.Since.String()),
		slog.String("until", w.Until.String()),
		slog.Int("repositories", res.Repositories),
		slog.Int("commits", len(res.Commits)),
		slog.Int("failures", len(res.Failures)),
		slog.Bool("partial", res.Partial()),
	)
	return res, nil
}
