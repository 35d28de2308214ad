// Package streak derives the consecutive-day streak from day buckets.
//
// The calculator is a small state machine over model.StreakState:
//
//	Empty           --active D-->  Active(1, D)
//	Active(n, L)    --active L-->  Active(n, L)      (same day, no-op)
//	Active(n, L)    --active L+1-> Active(n+1, L+1)
//	Active(n, L)    --active D>L+1-> Active(1, D)    (every day in between complete and empty)
//	Active(n, L)    --active D>L+1-> Active(n, L)    (otherwise: pending)
//
// A pending day is picked up again by the next replay once the days before
// it have been read. A day earlier than L only matters when it touches the
// start of the current run; older history is never rewritten.
//
// Breaking is evaluated separately (Evaluate): a streak is only broken once
// the day after L is over, complete, and empty. Until then it is still
// alive, because today's commits may simply not have happened yet.
package streak

import (
	"sort"
	"time"

	"github.com/sakif/commit-streak/internal/model"
)

// Lookup reports what is stored locally about a day. It must not call
// the upstream.
type Lookup func(day model.Day) (active, complete bool)

// NoLookup knows nothing about any day.
func NoLookup(model.Day) (bool, bool) { return false, false }

// Advance applies activity on day to s and returns the new state. A day past
// a gap that lookup cannot vouch for leaves s unchanged.
func Advance(s model.StreakState, day model.Day, lookup Lookup, now time.Time) model.StreakState {
	if day.IsZero() {
		return s
	}
	if lookup == nil {
		lookup = NoLookup
	}

	if s.IsEmpty() {
		s.CurrentStreak = 1
		s.LastActiveDay = day
		s.CurrentStreak += extendBackwards(day, lookup)
		return touched(s, now)
	}

	last := s.LastActiveDay
	switch {
	case day == last:
		return s

	case day == last.AddDays(1):
		s.CurrentStreak++
		s.LastActiveDay = day

	case day.After(last):
		if !settledEmpty(last, day, lookup) {
			return s
		}
		s.CurrentStreak = 1
		s.LastActiveDay = day
		s.CurrentStreak += extendBackwards(day, lookup)

	default:
		start := s.RunStart()
		if !day.Before(start) {
			return s // already inside the run
		}
		if day != start.AddDays(-1) {
			return s // detached from the run
		}
		s.CurrentStreak++
		s.CurrentStreak += extendBackwards(day, lookup)
	}
	return touched(s, now)
}

// settledEmpty reports whether every day strictly between from and to is
// known to be complete and without commits.
func settledEmpty(from, to model.Day, lookup Lookup) bool {
	for d := from.AddDays(1); d.Before(to); d = d.AddDays(1) {
		active, complete := lookup(d)
		if active || !complete {
			return false
		}
	}
	return true
}

// extendBackwards counts consecutive known-active days directly before day.
func extendBackwards(day model.Day, lookup Lookup) int {
	n := 0
	for d := day.AddDays(-1); ; d = d.AddDays(-1) {
		active, _ := lookup(d)
		if !active {
			return n
		}
		n++
	}
}

func touched(s model.StreakState, now time.Time) model.StreakState {
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.UpdatedAt = now
	return s
}

// Replay applies every non-empty bucket to s in ascending date order.
//
// The buckets themselves answer for their own days; lookup answers for
// everything else.
func Replay(s model.StreakState, buckets []*model.DayBucket, lookup Lookup, now time.Time) model.StreakState {
	if lookup == nil {
		lookup = NoLookup
	}
	byDay := make(map[model.Day]*model.DayBucket, len(buckets))
	active := make([]*model.DayBucket, 0, len(buckets))
	for _, b := range buckets {
		if b == nil {
			continue
		}
		byDay[b.Date] = b
		if !b.IsEmpty() {
			active = append(active, b)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Date.Before(active[j].Date) })

	known := func(d model.Day) (bool, bool) {
		if b, ok := byDay[d]; ok {
			return !b.IsEmpty(), b.Complete
		}
		return lookup(d)
	}
	for _, b := range active {
		s = Advance(s, b.Date, known, now)
	}
	return s
}

// Status is the streak as it should be reported on a given day.
type Status struct {
	Current int  `json:"current"`
	Broken  bool `json:"broken"`
	// AtRisk means the run is alive but nothing has been recorded for today yet.
	AtRisk bool `json:"atRisk"`
}

// Evaluate reports the streak of s as seen on today.
func Evaluate(s model.StreakState, today model.Day, lookup Lookup) Status {
	if s.IsEmpty() {
		return Status{}
	}
	if lookup == nil {
		lookup = NoLookup
	}
	gap := s.LastActiveDay.AddDays(1)
	if gap.Before(today) {
		active, complete := lookup(gap)
		if complete && !active {
			return Status{Broken: true}
		}
	}
	return Status{
		Current: s.CurrentStreak,
		AtRisk:  s.LastActiveDay.Before(today),
	}
}
