// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered user account.
//
// GitHub OAuth is the identity provider, so the stable external identifier is
// the GitHub user ID. Our own primary key is an xid string so that storage keys
// never depend on a third party's numbering.
//
// WHY UTCOffsetMinutes?
// Commit days are computed in the user's timezone. Only a fixed offset is
// supported: a commit at 23:30 at UTC-05:00 belongs to that calendar day even
// though it is already the next day in UTC.
type User struct {
	ID               string    `json:"id"`
	GitHubID         int64     `json:"githubId"`
	Login            string    `json:"login"`
	Email            string    `json:"email"`
	AvatarURL        string    `json:"avatarUrl"`
	UTCOffsetMinutes int       `json:"utcOffsetMinutes"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// MaxUTCOffsetMinutes bounds UTCOffsetMinutes (UTC-14:00 .. UTC+14:00).
const MaxUTCOffsetMinutes = 14 * 60

// Location returns the user's fixed-offset zone.
func (u *User) Location() *time.Location {
	return OffsetLocation(u.UTCOffsetMinutes)
}

// OffsetLocation turns an offset in minutes into a fixed zone.
func OffsetLocation(minutes int) *time.Location {
	if minutes == 0 {
		return time.UTC
	}
	return time.FixedZone("", minutes*60)
}
