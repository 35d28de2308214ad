// Package aggregate groups commits into per-day buckets in a user's zone.
package aggregate

import (
	"sort"
	"time"

	"github.com/sakif/commit-streak/internal/model"
)

// Aggregate buckets commits by the day they were authored on in loc.
//
// The result depends only on the set of commits: input order and duplicate
// records do not change it, and aggregating the same input twice gives equal
// buckets. Buckets come back incomplete; completeness is a property of the
// fetch, see Window.
func Aggregate(commits []model.CommitRecord, loc *time.Location) map[model.Day]*model.DayBucket {
	if loc == nil {
		loc = time.UTC
	}
	// Sort a copy first so that "first seen wins" picks the same record for
	// a duplicated SourceID whatever the input order.
	sorted := append([]model.CommitRecord(nil), commits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceID != sorted[j].SourceID {
			return sorted[i].SourceID < sorted[j].SourceID
		}
		return sorted[i].Repository < sorted[j].Repository
	})

	out := make(map[model.Day]*model.DayBucket)
	for _, c := range sorted {
		day := model.DayOf(c.AuthoredAt, loc)
		b, ok := out[day]
		if !ok {
			b = model.NewDayBucket(day)
			out[day] = b
		}
		b.Add(c)
	}
	return out
}

// Window returns one bucket per day in [since, until], ascending, including
// days without commits so an empty day can be confirmed as such. Commits
// outside the window are dropped.
//
// A bucket is marked complete only when the day is before today and
// fetchComplete says the fetch saw every repository without failure.
func Window(commits []model.CommitRecord, since, until model.Day, loc *time.Location, today model.Day, fetchComplete bool) []*model.DayBucket {
	byDay := Aggregate(commits, loc)

	days := model.DaysBetween(since, until)
	out := make([]*model.DayBucket, 0, len(days))
	for _, d := range days {
		b, ok := byDay[d]
		if !ok {
			b = model.NewDayBucket(d)
		}
		b.Complete = fetchComplete && d.Before(today)
		out = append(out, b)
	}
	return out
}
