package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Repository is a source-code repository the user can read. It only lives
// for the duration of one fetch.
type Repository struct {
	Name      string `json:"name"`
	FullName  string `json:"fullName"` // "owner/name"
	Owner     string `json:"owner"`
	URL       string `json:"url"`
	IsPrivate bool   `json:"isPrivate"`
	IsFork    bool   `json:"isFork"`
}

// CommitRecord is the canonical form of one upstream commit.
//
// SourceID is the commit SHA. It is the dedup key: the same commit reached
// through two repositories (a fork and its parent, say) is one record.
// AuthoredAt is always UTC.
type CommitRecord struct {
	SourceID   string    `json:"sourceId"`
	Repository string    `json:"repository"`
	Message    string    `json:"message"`
	URL        string    `json:"url"`
	AuthoredAt time.Time `json:"authoredAt"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
}

// DayBucket holds the commits authored on one calendar day, deduplicated by
// SourceID. Complete means the day is over and a full, non-partial fetch
// covered it; a complete bucket never changes again.
type DayBucket struct {
	Date     Day
	Complete bool
	commits  map[string]CommitRecord
}

func NewDayBucket(d Day) *DayBucket {
	return &DayBucket{Date: d, commits: make(map[string]CommitRecord)}
}

// Add inserts c unless a commit with the same SourceID is already present.
// It reports whether c was added.
func (b *DayBucket) Add(c CommitRecord) bool {
	if b.commits == nil {
		b.commits = make(map[string]CommitRecord)
	}
	if _, ok := b.commits[c.SourceID]; ok {
		return false
	}
	b.commits[c.SourceID] = c
	return true
}

// Merge unions other into b. Commits already in b win, and completeness is
// sticky.
func (b *DayBucket) Merge(other *DayBucket) {
	if other == nil {
		return
	}
	for _, c := range other.commits {
		b.Add(c)
	}
	b.Complete = b.Complete || other.Complete
}

func (b *DayBucket) Has(sourceID string) bool {
	_, ok := b.commits[sourceID]
	return ok
}

func (b *DayBucket) Len() int { return len(b.commits) }
func (b *DayBucket) IsEmpty() bool { return len(b.commits) == 0 }

// Sorted returns the commits ordered by AuthoredAt, ties broken by SourceID.
func (b *DayBucket) Sorted() []CommitRecord {
	out := make([]CommitRecord, 0, len(b.commits))
	for _, c := range b.commits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AuthoredAt.Equal(out[j].AuthoredAt) {
			return out[i].AuthoredAt.Before(out[j].AuthoredAt)
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

func (b *DayBucket) Additions() int {
	n := 0
	for _, c := range b.commits {
		n += c.Additions
	}
	return n
}

func (b *DayBucket) Deletions() int {
	n := 0
	for _, c := range b.commits {
		n += c.Deletions
	}
	return n
}

// Clone returns a deep copy so callers can mutate it freely.
func (b *DayBucket) Clone() *DayBucket {
	c := NewDayBucket(b.Date)
	c.Complete = b.Complete
	for id, rec := range b.commits {
		c.commits[id] = rec
	}
	return c
}

type dayBucketJSON struct {
	Date      Day            `json:"date"`
	Complete  bool           `json:"complete"`
	Additions int            `json:"additions"`
	Deletions int            `json:"deletions"`
	Commits   []CommitRecord `json:"commits"`
}

func (b *DayBucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(dayBucketJSON{
		Date:      b.Date,
		Complete:  b.Complete,
		Additions: b.Additions(),
		Deletions: b.Deletions(),
		Commits:   b.Sorted(),
	})
}

func (b *DayBucket) UnmarshalJSON(data []byte) error {
	var raw dayBucketJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = *NewDayBucket(raw.Date)
	b.Complete = raw.Complete
	for _, c := range raw.Commits {
		b.Add(c)
	}
	return nil
}
