package model

import "time"

// StreakState is the persisted streak of one user.
//
// When CurrentStreak > 0 it is the length of the run of consecutive active
// days ending at LastActiveDay. The zero value is the Empty state.
// LongestStreak is the best run this engine has observed for the user.
type StreakState struct {
	CurrentStreak int       `json:"currentStreak"`
	LongestStreak int       `json:"longestStreak"`
	LastActiveDay Day       `json:"lastActiveDay"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s StreakState) IsEmpty() bool {
	return s.CurrentStreak == 0 || s.LastActiveDay.IsZero()
}

// RunStart is the first day of the current run. Zero for an empty state.
func (s StreakState) RunStart() Day {
	if s.IsEmpty() {
		return Day{}
	}
	return s.LastActiveDay.AddDays(-(s.CurrentStreak - 1))
}

// Credential is the upstream access token of a user plus the identity
// (GitHub login) it belongs to. The engine only reads it.
type Credential struct {
	Token     string    `json:"-"`
	Identity  string    `json:"identity"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// String keeps the token out of logs.
func (c Credential) String() string {
	return "credential(" + c.Identity + ")"
}
