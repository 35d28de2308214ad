package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/fetcher"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/testutil"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeFetcher serves a fixed set of commits, filtered to the window asked for.
type fakeFetcher struct {
	mu      sync.Mutex
	commits []model.CommitRecord
	err     error
	mutate  func(*fetcher.Result)
	windows []fetcher.Window
}

func (f *fakeFetcher) Fetch(ctx context.Context, cred model.Credential, w fetcher.Window) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	if f.err != nil {
		return &fetcher.Result{Window: w}, f.err
	}

	since, until := w.Bounds()
	res := &fetcher.Result{Window: w, Repositories: 1}
	for _, c := range f.commits {
		if !c.AuthoredAt.Before(since) && c.AuthoredAt.Before(until) {
			res.Commits = append(res.Commits, c)
		}
	}
	if f.mutate != nil {
		f.mutate(res)
	}
	return res, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}

func jan(d int) model.Day { return model.NewDay(2024, time.January, d) }

func at(d, hour int) time.Time { return time.Date(2024, time.January, d, hour, 0, 0, 0, time.UTC) }

func commitAt(id string, t time.Time) model.CommitRecord {
	return model.CommitRecord{SourceID: id, Repository: "octo/repo", Message: "msg " + id, AuthoredAt: t, Additions: 3, Deletions: 1}
}

type env struct {
	store     *testutil.MemoryStore
	fetch     *fakeFetcher
	clock     *testutil.FakeClock
	svc       *ActivityService
	userID    string
	forgotten []model.Credential
}

func newEnv(t *testing.T, now time.Time, commits ...model.CommitRecord) *env {
	t.Helper()
	e := &env{
		store: testutil.NewMemoryStore(),
		fetch: &fakeFetcher{commits: commits},
		clock: testutil.NewFakeClock(now),
	}

	user := &model.User{GitHubID: 1, Login: "octo"}
	require.NoError(t, e.store.Upsert(context.Background(), user))
	require.NoError(t, e.store.SaveCredential(context.Background(), user.ID, model.Credential{Token: "ghp_x", Identity: "octo"}))
	e.userID = user.ID

	e.svc = NewActivityService(e.store, e.fetch, ActivityConfig{}, discardLogger(),
		WithClock(e.clock),
		WithCredentialRejected(func(c model.Credential) { e.forgotten = append(e.forgotten, c) }),
	)
	return e
}

func (e *env) storedStreak(t *testing.T) model.StreakState {
	t.Helper()
	s, err := e.store.GetStreak(context.Background(), e.userID)
	require.NoError(t, err)
	return s
}

// =========================================================================
// REFRESH
// =========================================================================

func TestRefresh_ConsecutiveDays(t *testing.T) {
	e := newEnv(t, at(3, 20),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)),
	)

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Current)
	assert.Equal(t, jan(3), r.State.LastActiveDay)
	assert.False(t, r.Broken)
	assert.False(t, r.AtRisk)
	assert.False(t, r.Stale)
	assert.Equal(t, 3, e.storedStreak(t).CurrentStreak)
	assert.Equal(t, at(3, 20), e.storedStreak(t).UpdatedAt)
}

func TestRefresh_GapResetsRun(t *testing.T) {
	e := newEnv(t, at(5, 20),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)), commitAt("e", at(5, 9)),
	)

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Current)
	assert.Equal(t, jan(5), r.State.LastActiveDay)
	assert.Equal(t, 3, r.State.LongestStreak)
}

func TestRefresh_ReportsBreakOnceGapDayIsComplete(t *testing.T) {
	e := newEnv(t, at(6, 12),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)),
	)

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)

	assert.True(t, r.Broken)
	assert.Zero(t, r.Current)
	// The stored run is left as it was.
	assert.Equal(t, 3, e.storedStreak(t).CurrentStreak)
}

func TestRefresh_TodayWithoutCommitsIsAtRisk(t *testing.T) {
	e := newEnv(t, at(4, 12),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)),
	)

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Current)
	assert.True(t, r.AtRisk)
	assert.False(t, r.Broken)
}

func TestRefresh_IncrementalWindow(t *testing.T) {
	e := newEnv(t, at(5, 12),
		commitAt("a", at(3, 10)), commitAt("b", at(4, 10)), commitAt("c", at(5, 10)),
	)
	ctx := context.Background()

	_, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)
	assert.Equal(t, jan(5).AddDays(-30), e.fetch.windows[0].Since)

	e.clock.Set(at(6, 12))
	r, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)

	// Only the day that was still open, plus today, is read again.
	assert.Equal(t, jan(5), e.fetch.windows[1].Since)
	assert.Equal(t, jan(6), e.fetch.windows[1].Until)
	assert.Equal(t, 3, r.Current)
	assert.True(t, r.AtRisk)
}

func TestRefresh_TransientFailureServesStoredStreak(t *testing.T) {
	tests := map[string]error{
		"upstream unavailable": apperror.UpstreamUnavailable(4, errors.New("503")),
		"rate limited":         apperror.RateLimited(at(4, 13), errors.New("403")),
	}
	for name, fetchErr := range tests {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, at(4, 12))
			stored := model.StreakState{CurrentStreak: 3, LongestStreak: 3, LastActiveDay: jan(3), UpdatedAt: at(3, 12)}
			require.NoError(t, e.store.SaveStreak(context.Background(), e.userID, stored))
			e.fetch.err = fetchErr

			r, err := e.svc.Refresh(context.Background(), e.userID)
			require.NoError(t, err)

			assert.True(t, r.Stale)
			assert.Equal(t, stored, r.State)
			assert.Equal(t, 3, r.Current)
			assert.Equal(t, stored, e.storedStreak(t))
		})
	}
}

func TestRefresh_AllRepositoriesFailingIsStale(t *testing.T) {
	e := newEnv(t, at(4, 12))
	e.fetch.mutate = func(r *fetcher.Result) {
		r.Repositories = 2
		r.Failures = []fetcher.RepoFailure{
			{Repository: "octo/a", Err: apperror.UpstreamUnavailable(4, errors.New("502"))},
			{Repository: "octo/b", Err: apperror.UpstreamUnavailable(4, errors.New("502"))},
		}
	}

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)
	assert.True(t, r.Stale)
}

func TestRefresh_PartialResultKeepsDaysOpen(t *testing.T) {
	e := newEnv(t, at(4, 12), commitAt("a", at(2, 9)))
	e.fetch.mutate = func(r *fetcher.Result) {
		r.Repositories = 2
		r.Failures = []fetcher.RepoFailure{{Repository: "octo/b", Err: apperror.Forbidden("blocked")}}
	}

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)
	assert.True(t, r.Partial)
	assert.False(t, r.Stale)
	assert.Equal(t, 1, r.State.CurrentStreak)

	b, err := e.store.GetDayBucket(context.Background(), e.userID, jan(2))
	require.NoError(t, err)
	assert.False(t, b.Complete)
}

func TestRefresh_PartialGapIsReadAgain(t *testing.T) {
	inOther := func(c model.CommitRecord) model.CommitRecord { c.Repository = "octo/other"; return c }
	e := newEnv(t, at(3, 20),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)),
		inOther(commitAt("d", at(4, 9))), inOther(commitAt("e", at(5, 9))),
		commitAt("f", at(6, 9)),
	)
	ctx := context.Background()

	_, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)
	require.Equal(t, 3, e.storedStreak(t).CurrentStreak)

	// octo/other cannot be read, so Jan 4 and 5 look empty but are not final.
	e.clock.Set(at(6, 12))
	e.fetch.mutate = func(r *fetcher.Result) {
		kept := r.Commits[:0]
		for _, c := range r.Commits {
			if c.Repository != "octo/other" {
				kept = append(kept, c)
			}
		}
		r.Commits = kept
		r.Repositories = 2
		r.Failures = []fetcher.RepoFailure{{Repository: "octo/other", Err: apperror.Forbidden("blocked")}}
	}
	r, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)
	assert.True(t, r.Partial)
	assert.False(t, r.Broken)
	assert.Equal(t, 3, r.Current)
	assert.Equal(t, jan(3), e.storedStreak(t).LastActiveDay)

	e.fetch.mutate = nil
	r, err = e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)

	assert.Equal(t, jan(3), e.fetch.windows[2].Since)
	assert.Equal(t, 6, r.Current)
	assert.Equal(t, jan(6), r.State.LastActiveDay)
	assert.Equal(t, 6, e.storedStreak(t).LongestStreak)
}

func TestRefresh_WindowOlderThanHorizonIsSettled(t *testing.T) {
	// The last known activity is older than any refresh will read again.
	e := newEnv(t, at(5, 12), commitAt("a", at(5, 9)))
	ctx := context.Background()
	old := jan(5).AddDays(-200)
	require.NoError(t, e.store.SaveStreak(ctx, e.userID, model.StreakState{CurrentStreak: 4, LongestStreak: 4, LastActiveDay: old}))

	r, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)

	assert.Equal(t, jan(5).AddDays(-90), e.fetch.windows[0].Since)
	assert.Equal(t, 1, r.Current)
	assert.Equal(t, jan(5), r.State.LastActiveDay)
	assert.Equal(t, 4, r.State.LongestStreak)
}

func TestRefresh_CanceledFetchKeepsWhatWasGathered(t *testing.T) {
	e := newEnv(t, at(4, 12), commitAt("a", at(3, 9)))
	e.fetch.mutate = func(r *fetcher.Result) { r.Canceled = true }

	r, err := e.svc.Refresh(context.Background(), e.userID)
	require.NoError(t, err)
	assert.True(t, r.Partial)

	b, err := e.store.GetDayBucket(context.Background(), e.userID, jan(3))
	require.NoError(t, err)
	assert.True(t, b.Has("a"))
	assert.False(t, b.Complete)
}

func TestRefresh_CredentialErrors(t *testing.T) {
	e := newEnv(t, at(4, 12))
	e.fetch.err = apperror.CredentialInvalid(errors.New("401"))

	_, err := e.svc.Refresh(context.Background(), e.userID)
	assert.ErrorIs(t, err, apperror.ErrCredentialInvalid)
	require.Len(t, e.forgotten, 1)
	assert.Equal(t, "octo", e.forgotten[0].Identity)

	require.NoError(t, e.store.DeleteCredential(context.Background(), e.userID))
	_, err = e.svc.Refresh(context.Background(), e.userID)
	assert.ErrorIs(t, err, apperror.ErrCredentialMissing)
}

// =========================================================================
// GET STREAK
// =========================================================================

func TestGetStreak_ServesStoredStreakWhileFresh(t *testing.T) {
	e := newEnv(t, at(3, 12), commitAt("a", at(3, 9)))
	ctx := context.Background()

	r, err := e.svc.GetStreak(ctx, e.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Current)
	assert.Equal(t, 1, e.fetch.calls())

	e.clock.Advance(time.Minute)
	_, err = e.svc.GetStreak(ctx, e.userID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.fetch.calls())

	e.clock.Advance(5 * time.Minute)
	_, err = e.svc.GetStreak(ctx, e.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.fetch.calls())
}

// =========================================================================
// DAY QUERIES
// =========================================================================

func TestGetCommitsForDay_RejectsBadDates(t *testing.T) {
	e := newEnv(t, at(5, 12))

	for _, date := range []string{"2024-13-01", "yesterday", "", "2024-01-06"} {
		_, err := e.svc.GetCommitsForDay(context.Background(), e.userID, date)
		assert.ErrorIs(t, err, apperror.ErrInvalidDate, date)
	}
	assert.Zero(t, e.fetch.calls())
}

func TestGetCommitsForDay_CompleteDayIsFetchedOnce(t *testing.T) {
	e := newEnv(t, at(5, 12), commitAt("b", at(4, 15)), commitAt("a", at(4, 9)))
	ctx := context.Background()

	r, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-04")
	require.NoError(t, err)
	require.Len(t, r.Commits, 2)
	assert.Equal(t, "a", r.Commits[0].SourceID)
	assert.True(t, r.Complete)
	assert.Equal(t, 6, r.Additions)
	assert.Equal(t, 2, r.Deletions)

	_, err = e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-04")
	require.NoError(t, err)
	assert.Equal(t, 1, e.fetch.calls())
}

func TestGetCommitsForDay_TodayIsAlwaysReloaded(t *testing.T) {
	e := newEnv(t, at(5, 12), commitAt("a", at(5, 9)))
	ctx := context.Background()

	r, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-05")
	require.NoError(t, err)
	assert.False(t, r.Complete)

	_, err = e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, 2, e.fetch.calls())
}

func TestGetCommitsForDay_NewActivityAdvancesStreak(t *testing.T) {
	e := newEnv(t, at(5, 12), commitAt("a", at(4, 9)), commitAt("b", at(5, 9)))
	ctx := context.Background()

	_, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-04")
	require.NoError(t, err)
	assert.Equal(t, model.StreakState{CurrentStreak: 1, LongestStreak: 1, LastActiveDay: jan(4), UpdatedAt: at(5, 12)}, e.storedStreak(t))

	_, err = e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, 2, e.storedStreak(t).CurrentStreak)
	assert.Equal(t, jan(5), e.storedStreak(t).LastActiveDay)
}

func TestGetCommitsForDay_BackfillOnlyWhenAdjacent(t *testing.T) {
	e := newEnv(t, at(5, 12), commitAt("old", at(1, 9)), commitAt("adj", at(3, 9)))
	ctx := context.Background()
	require.NoError(t, e.store.SaveStreak(ctx, e.userID, model.StreakState{CurrentStreak: 2, LongestStreak: 2, LastActiveDay: jan(5)}))

	_, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, 3, e.storedStreak(t).CurrentStreak)

	_, err = e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 3, e.storedStreak(t).CurrentStreak)
	assert.Equal(t, jan(5), e.storedStreak(t).LastActiveDay)
}

func TestGetCommitsForDay_UnreadGapKeepsStreakPending(t *testing.T) {
	e := newEnv(t, at(3, 20),
		commitAt("a", at(1, 9)), commitAt("b", at(2, 9)), commitAt("c", at(3, 9)),
		commitAt("d", at(4, 9)), commitAt("e", at(5, 9)), commitAt("f", at(6, 9)),
	)
	ctx := context.Background()

	_, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)

	// Jan 4 and 5 have never been read when today is looked at.
	e.clock.Set(at(6, 12))
	day, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-06")
	require.NoError(t, err)
	require.Len(t, day.Commits, 1)
	assert.Equal(t, 3, e.storedStreak(t).CurrentStreak)
	assert.Equal(t, jan(3), e.storedStreak(t).LastActiveDay)

	r, err := e.svc.Refresh(ctx, e.userID)
	require.NoError(t, err)

	last := e.fetch.windows[len(e.fetch.windows)-1]
	assert.Equal(t, jan(3), last.Since)
	assert.Equal(t, 6, r.Current)
	assert.Equal(t, jan(6), e.storedStreak(t).LastActiveDay)
}

func TestGetCommitsForDay_UsesUserOffset(t *testing.T) {
	// 03:00 UTC on Jan 4 is 22:00 on Jan 3 at UTC-05:00.
	e := newEnv(t, at(5, 12), commitAt("late", at(4, 3)))
	ctx := context.Background()
	_, err := e.svc.SetTimezone(ctx, e.userID, -300)
	require.NoError(t, err)

	r, err := e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-03")
	require.NoError(t, err)
	assert.Len(t, r.Commits, 1)

	r, err = e.svc.GetCommitsForDay(ctx, e.userID, "2024-01-04")
	require.NoError(t, err)
	assert.Empty(t, r.Commits)
}

func TestGetCommitsForDay_MissingCredential(t *testing.T) {
	e := newEnv(t, at(5, 12))
	require.NoError(t, e.store.DeleteCredential(context.Background(), e.userID))

	_, err := e.svc.GetCommitsForDay(context.Background(), e.userID, "2024-01-04")
	assert.ErrorIs(t, err, apperror.ErrCredentialMissing)
}

func TestSetTimezone_Validates(t *testing.T) {
	e := newEnv(t, at(5, 12))

	_, err := e.svc.SetTimezone(context.Background(), e.userID, 15*60)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	u, err := e.svc.SetTimezone(context.Background(), e.userID, 330)
	require.NoError(t, err)
	assert.Equal(t, 330, u.UTCOffsetMinutes)
}

// =========================================================================
// LOCKS
// =========================================================================

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex

	unlockA := k.Lock("a")
	// A different key is not blocked by "a".
	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}

	// The same key waits for the holder.
	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired

	require.Eventually(t, func() bool { return k.len() == 0 }, time.Second, time.Millisecond)
}
