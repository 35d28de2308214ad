package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	tests := []struct {
		in      string
		want    Day
		wantErr bool
	}{
		{in: "2024-01-05", want: NewDay(2024, time.January, 5)},
		{in: "2024-02-29", want: NewDay(2024, time.February, 29)},
		{in: "2023-02-29", wantErr: true},
		{in: "2024-13-01", wantErr: true},
		{in: "05/01/2024", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestDayOf_FixedOffset(t *testing.T) {
	// 2024-01-06 04:30 UTC is still the evening of Jan 5 at UTC-05:00.
	instant := time.Date(2024, 1, 6, 4, 30, 0, 0, time.UTC)

	assert.Equal(t, NewDay(2024, 1, 6), DayOf(instant, time.UTC))
	assert.Equal(t, NewDay(2024, 1, 5), DayOf(instant, OffsetLocation(-5*60)))
	assert.Equal(t, NewDay(2024, 1, 6), DayOf(instant, OffsetLocation(9*60)))
}

func TestDayArithmetic(t *testing.T) {
	d := NewDay(2024, 2, 28)

	assert.Equal(t, NewDay(2024, 2, 29), d.AddDays(1))
	assert.Equal(t, NewDay(2024, 3, 1), d.AddDays(2))
	assert.Equal(t, NewDay(2023, 12, 31), NewDay(2024, 1, 1).AddDays(-1))
	assert.Equal(t, 2, NewDay(2024, 3, 1).Sub(d))
	assert.Equal(t, -2, d.Sub(NewDay(2024, 3, 1)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.True(t, d == NewDay(2024, 2, 28))
}

func TestDayBounds(t *testing.T) {
	loc := OffsetLocation(-5 * 60)
	d := NewDay(2024, 1, 5)

	assert.Equal(t, time.Date(2024, 1, 5, 5, 0, 0, 0, time.UTC), d.Start(loc).UTC())
	assert.Equal(t, time.Date(2024, 1, 6, 5, 0, 0, 0, time.UTC), d.End(loc).UTC())
	assert.True(t, d.Contains(time.Date(2024, 1, 6, 4, 59, 59, 0, time.UTC), loc))
	assert.False(t, d.Contains(time.Date(2024, 1, 6, 5, 0, 0, 0, time.UTC), loc))
}

func TestDaysBetween(t *testing.T) {
	days := DaysBetween(NewDay(2024, 1, 30), NewDay(2024, 2, 2))
	assert.Equal(t, []Day{
		NewDay(2024, 1, 30), NewDay(2024, 1, 31), NewDay(2024, 2, 1), NewDay(2024, 2, 2),
	}, days)

	assert.Nil(t, DaysBetween(NewDay(2024, 2, 2), NewDay(2024, 1, 30)))
}

func TestDayJSONAndScan(t *testing.T) {
	type wrapper struct {
		Day Day `json:"day"`
	}

	b, err := json.Marshal(wrapper{Day: NewDay(2024, 1, 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-01-05"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"day":""}`), &w))
	assert.True(t, w.Day.IsZero())

	var d Day
	require.NoError(t, d.Scan("2024-03-01"))
	assert.Equal(t, NewDay(2024, 3, 1), d)
	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	v, err := Day{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func commit(id string, at time.Time) CommitRecord {
	return CommitRecord{SourceID: id, Repository: "octo/repo", AuthoredAt: at, Additions: 2, Deletions: 1}
}

func TestDayBucket_AddDedupFirstSeenWins(t *testing.T) {
	b := NewDayBucket(NewDay(2024, 1, 5))
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	first := commit("abc", at)
	first.Message = "first"
	second := commit("abc", at)
	second.Message = "second"

	assert.True(t, b.Add(first))
	assert.False(t, b.Add(second))
	require.Equal(t, 1, b.Len())
	assert.Equal(t, "first", b.Sorted()[0].Message)
}

func TestDayBucket_MergeIsUnionAndCompleteSticks(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	a := NewDayBucket(NewDay(2024, 1, 5))
	a.Add(commit("1", at))
	a.Complete = true

	b := NewDayBucket(NewDay(2024, 1, 5))
	b.Add(commit("1", at))
	b.Add(commit("2", at.Add(time.Hour)))

	a.Merge(b)
	assert.Equal(t, 2, a.Len())
	assert.True(t, a.Complete)
	assert.Equal(t, 4, a.Additions())
	assert.Equal(t, 2, a.Deletions())
}

func TestDayBucket_SortedIsDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	b := NewDayBucket(NewDay(2024, 1, 5))
	b.Add(commit("c", at.Add(time.Minute)))
	b.Add(commit("b", at))
	b.Add(commit("a", at))

	ids := []string{}
	for _, c := range b.Sorted() {
		ids = append(ids, c.SourceID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestDayBucket_JSONRoundTripKeepsSet(t *testing.T) {
	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	b := NewDayBucket(NewDay(2024, 1, 5))
	b.Add(commit("x", at))
	b.Complete = true

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var got DayBucket
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, b.Date, got.Date)
	assert.True(t, got.Complete)
	assert.True(t, got.Has("x"))
	assert.Equal(t, 1, got.Len())
}

func TestStreakState_RunStart(t *testing.T) {
	s := StreakState{CurrentStreak: 3, LastActiveDay: NewDay(2024, 1, 3)}
	assert.Equal(t, NewDay(2024, 1, 1), s.RunStart())
	assert.True(t, StreakState{}.IsEmpty())
	assert.True(t, StreakState{}.RunStart().IsZero())
}

func TestCredentialStringHidesToken(t *testing.T) {
	c := Credential{Token: "ghp_secret", Identity: "octocat"}
	assert.NotContains(t, c.String(), "ghp_secret")
	assert.Contains(t, c.String(), "octocat")
}
