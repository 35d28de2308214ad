package aggregate

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/commit-streak/internal/model"
)

func rec(id string, at time.Time) model.CommitRecord {
	return model.CommitRecord{SourceID: id, Repository: "octo/repo", AuthoredAt: at}
}

func sampleCommits() []model.CommitRecord {
	return []model.CommitRecord{
		rec("a", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		rec("b", time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)),
		rec("c", time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)),
		rec("d", time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)),
		rec("a", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)), // duplicate
	}
}

func ids(b *model.DayBucket) []string {
	var out []string
	for _, c := range b.Sorted() {
		out = append(out, c.SourceID)
	}
	return out
}

func TestAggregate_GroupsByDayAndDedups(t *testing.T) {
	got := Aggregate(sampleCommits(), time.UTC)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b"}, ids(got[model.NewDay(2024, 1, 1)]))
	assert.Equal(t, []string{"c"}, ids(got[model.NewDay(2024, 1, 2)]))
	assert.Equal(t, []string{"d"}, ids(got[model.NewDay(2024, 1, 3)]))
	for _, b := range got {
		assert.False(t, b.Complete)
	}
}

func TestAggregate_FixedOffsetMovesDayBoundary(t *testing.T) {
	// At UTC-05:00 the 03:00Z commit belongs to Jan 1, and 23:30Z is still Jan 1 too.
	got := Aggregate(sampleCommits(), model.OffsetLocation(-5*60))

	assert.Equal(t, []string{"a", "b", "c"}, ids(got[model.NewDay(2024, 1, 1)]))
	_, hasJan2 := got[model.NewDay(2024, 1, 2)]
	assert.False(t, hasJan2)
}

func TestAggregate_Idempotent(t *testing.T) {
	in := sampleCommits()
	first := Aggregate(in, time.UTC)
	second := Aggregate(in, time.UTC)

	require.Equal(t, len(first), len(second))
	for day, b := range first {
		assert.Equal(t, ids(b), ids(second[day]), "day %s", day)
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	in := sampleCommits()
	want := Aggregate(in, time.UTC)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.CommitRecord(nil), in...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Aggregate(shuffled, time.UTC)
		require.Equal(t, len(want), len(got))
		for day, b := range want {
			assert.Equal(t, ids(b), ids(got[day]))
		}
	}
}

func TestAggregate_DuplicatePicksSameRecordRegardlessOfOrder(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	fromRepo := model.CommitRecord{SourceID: "x", Repository: "octo/repo", AuthoredAt: at}
	fromFork := model.CommitRecord{SourceID: "x", Repository: "fork/repo", AuthoredAt: at}

	one := Aggregate([]model.CommitRecord{fromRepo, fromFork}, time.UTC)
	two := Aggregate([]model.CommitRecord{fromFork, fromRepo}, time.UTC)

	day := model.NewDay(2024, 1, 1)
	assert.Equal(t, one[day].Sorted(), two[day].Sorted())
}

func TestWindow_IncludesEmptyDaysAndMarksCompleteness(t *testing.T) {
	today := model.NewDay(2024, 1, 4)
	buckets := Window(sampleCommits(), model.NewDay(2024, 1, 1), model.NewDay(2024, 1, 4), time.UTC, today, true)

	require.Len(t, buckets, 4)
	assert.Equal(t, model.NewDay(2024, 1, 1), buckets[0].Date)
	assert.Equal(t, 2, buckets[0].Len())
	assert.True(t, buckets[0].Complete)
	assert.True(t, buckets[2].Complete)
	assert.True(t, buckets[3].IsEmpty())
	assert.False(t, buckets[3].Complete, "today is never complete")
}

func TestWindow_PartialFetchIsNeverComplete(t *testing.T) {
	today := model.NewDay(2024, 1, 10)
	buckets := Window(sampleCommits(), model.NewDay(2024, 1, 1), model.NewDay(2024, 1, 3), time.UTC, today, false)

	for _, b := range buckets {
		assert.False(t, b.Complete, "day %s", b.Date)
	}
}

func TestWindow_DropsCommitsOutsideWindow(t *testing.T) {
	buckets := Window(sampleCommits(), model.NewDay(2024, 1, 2), model.NewDay(2024, 1, 2), time.UTC, model.NewDay(2024, 1, 10), true)

	require.Len(t, buckets, 1)
	assert.Equal(t, []string{"c"}, ids(buckets[0]))
}
